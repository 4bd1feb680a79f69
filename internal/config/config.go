// Package config provides centralized configuration for the arxivdaily server and CLI.
// All configurable values are loaded from environment variables with sensible defaults.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LLMBackend is one of the global credential sets chosen by the SLLM selector.
type LLMBackend struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ModuleLLM holds per-module built-in defaults. Empty strings and zero values
// mean "use the active backend" (for BaseURL/Model) or the resolver's constants.
type ModuleLLM struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Config holds all server configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// DataRoot is the directory under which every step writes its dated artifacts.
	DataRoot string

	// StepWorkDir is the working directory step programs are started in.
	StepWorkDir string

	// PythonBin is the interpreter used to launch step scripts.
	PythonBin string

	// ControllerDir holds the step scripts, relative to StepWorkDir unless absolute.
	ControllerDir string

	// PipelinesFile optionally points at a YAML file with pipeline overrides.
	PipelinesFile string

	// ScheduleFile is the JSON file the schedule configuration is persisted to.
	ScheduleFile string

	// SchedulerInterval is how often the scheduler checks the wall clock.
	SchedulerInterval time.Duration

	// LogBufferLines caps the in-memory run log.
	LogBufferLines int

	// StopGrace is how long a terminated step gets before it is killed.
	StopGrace time.Duration

	// HTTPTimeout is the timeout for outgoing LLM requests.
	HTTPTimeout time.Duration

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// PreflightProbe sends a test prompt to every resolved LLM endpoint before a run starts.
	PreflightProbe bool

	// Backends maps SLLM selector values (1, 2, 3) to global credentials.
	Backends map[int]LLMBackend

	// Modules maps resolver module names to their built-in defaults.
	Modules map[string]ModuleLLM
}

// moduleEnvPrefixes maps resolver module names to their environment prefix.
var moduleEnvPrefixes = map[string]string{
	"theme_select":  "THEME_SELECT",
	"org":           "ORG",
	"summary":       "SUMMARY",
	"summary_limit": "SUMMARY_LIMIT",
	"paper_assets":  "PAPER_ASSETS",
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	c := Config{
		Port:              envOr("PORT", "8080"),
		DBPath:            envOr("DB_PATH", "arxivdaily.db"),
		DataRoot:          envOr("DATA_ROOT", "data"),
		StepWorkDir:       envOr("STEP_WORKDIR", "."),
		PythonBin:         envOr("PYTHON_BIN", "python"),
		ControllerDir:     envOr("CONTROLLER_DIR", "Controller"),
		PipelinesFile:     os.Getenv("PIPELINES_FILE"),
		ScheduleFile:      envOr("SCHEDULE_FILE", "database/schedule_config.json"),
		SchedulerInterval: envDuration("SCHEDULER_INTERVAL", 30*time.Second),
		LogBufferLines:    envInt("LOG_BUFFER_LINES", 500),
		StopGrace:         envDuration("STOP_GRACE", 10*time.Second),
		HTTPTimeout:       envDuration("HTTP_TIMEOUT", 120*time.Second),
		CORSOrigin:        envOr("CORS_ORIGIN", "*"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		PreflightProbe:    envBool("LLM_PREFLIGHT_PROBE", false),
		Backends: map[int]LLMBackend{
			1: {
				APIKey:  os.Getenv("LLM1_API_KEY"),
				BaseURL: envOr("LLM1_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
				Model:   envOr("LLM1_MODEL", "qwen-plus"),
			},
			2: {
				APIKey:  os.Getenv("LLM2_API_KEY"),
				BaseURL: os.Getenv("LLM2_BASE_URL"),
				Model:   os.Getenv("LLM2_MODEL"),
			},
			3: {
				APIKey:  os.Getenv("LLM3_API_KEY"),
				BaseURL: os.Getenv("LLM3_BASE_URL"),
				Model:   os.Getenv("LLM3_MODEL"),
			},
		},
		Modules: make(map[string]ModuleLLM, len(moduleEnvPrefixes)),
	}
	for name, prefix := range moduleEnvPrefixes {
		c.Modules[name] = ModuleLLM{
			BaseURL:     os.Getenv(prefix + "_BASE_URL"),
			Model:       os.Getenv(prefix + "_MODEL"),
			Temperature: envFloat(prefix+"_TEMPERATURE", 0),
			MaxTokens:   envInt(prefix+"_MAX_TOKENS", 0),
		}
	}
	return c
}

// Backend returns the credentials for an SLLM selector; unknown selectors use backend 1.
func (c Config) Backend(selector int) LLMBackend {
	if b, ok := c.Backends[selector]; ok {
		return b
	}
	return c.Backends[1]
}

// LoadEnvFiles loads KEY=VALUE files into the process environment.
// Variables that are already set are never overwritten and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
