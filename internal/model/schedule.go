package model

// ScheduleConfig is the persisted daily trigger configuration.
type ScheduleConfig struct {
	Enabled     bool   `json:"enabled"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Pipeline    string `json:"pipeline"`
	SLLM        *int   `json:"sllm"`
	Zo          string `json:"zo"`
	LastRunDate string `json:"last_run_date,omitempty"`
}

// DefaultSchedule is used when no configuration has been saved yet.
func DefaultSchedule() ScheduleConfig {
	return ScheduleConfig{
		Enabled:  false,
		Hour:     6,
		Minute:   0,
		Pipeline: "daily",
		Zo:       ZoteroOff,
	}
}

// RunContext builds the context a scheduled run for date starts with.
func (c ScheduleConfig) RunContext(date string) RunContext {
	rc := RunContext{RunDate: date, Zotero: c.Zo == ZoteroOn}
	if c.SLLM != nil {
		rc.SLLM = *c.SLLM
	}
	return rc
}
