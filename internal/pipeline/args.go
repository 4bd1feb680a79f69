package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yangwenmai/arxivdaily/internal/model"
)

// Environment variables read as fallbacks and written for every step.
const (
	EnvRunDate = "RUN_DATE"
	EnvSLLM    = "SLLM"
	EnvUserID  = "PIPELINE_USER_ID"
	EnvZo      = "ZO"
)

// ParseArgs extracts --date, --SLLM, --user-id and --Zo (as "--flag value" or
// "--flag=value") from args and returns the run context plus the remaining
// arguments, which are forwarded to the first step only. getenv supplies the
// fallbacks; now supplies today's date.
func ParseArgs(args []string, getenv func(string) string, now time.Time) (model.RunContext, []string, error) {
	values, rest := extractFlags(args, "--date", "--SLLM", "--user-id", "--Zo")

	rc := model.RunContext{RunDate: strings.TrimSpace(getenv(EnvRunDate))}
	if v, ok := values["--date"]; ok && v != "" {
		rc.RunDate = v
	}
	if rc.RunDate == "" {
		rc.RunDate = model.Today(now)
	}
	if !model.ValidDate(rc.RunDate) {
		return rc, rest, fmt.Errorf("invalid run date %q, want YYYY-MM-DD", rc.RunDate)
	}

	rc.SLLM = parseSelector(getenv(EnvSLLM))
	if v, ok := values["--SLLM"]; ok {
		if sel := parseSelector(v); sel != 0 {
			rc.SLLM = sel
		}
	}

	userID := strings.TrimSpace(getenv(EnvUserID))
	if v, ok := values["--user-id"]; ok && v != "" {
		userID = v
	}
	if userID != "" {
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil || id <= 0 {
			return rc, rest, fmt.Errorf("invalid user id %q", userID)
		}
		rc.UserID = id
	}

	zo := NormalizeZo(getenv(EnvZo))
	if v, ok := values["--Zo"]; ok {
		if z := strings.ToUpper(strings.TrimSpace(v)); z == model.ZoteroOn || z == model.ZoteroOff {
			zo = z
		}
	}
	rc.Zotero = zo == model.ZoteroOn

	return rc, rest, nil
}

// NormalizeZo maps anything but T (case-insensitive) to F.
func NormalizeZo(v string) string {
	if strings.ToUpper(strings.TrimSpace(v)) == model.ZoteroOn {
		return model.ZoteroOn
	}
	return model.ZoteroOff
}

// parseSelector accepts 1, 2 or 3 and returns zero for anything else.
func parseSelector(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 || n > 3 {
		return 0
	}
	return n
}

// extractFlags removes the named flags and their values from args. A flag
// without a following value is removed and reported as empty.
func extractFlags(args []string, names ...string) (map[string]string, []string) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	values := make(map[string]string)
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if name, val, ok := strings.Cut(a, "="); ok && known[name] {
			values[name] = strings.TrimSpace(val)
			continue
		}
		if !known[a] {
			rest = append(rest, a)
			continue
		}
		if i+1 < len(args) {
			values[a] = strings.TrimSpace(args[i+1])
			i++
		} else {
			values[a] = ""
		}
	}
	return values, rest
}

// StepEnv overlays the run context on base (KEY=VALUE pairs). Later entries
// win, matching os/exec semantics for duplicate keys.
func StepEnv(base []string, rc model.RunContext) []string {
	env := make([]string, 0, len(base)+5)
	env = append(env, base...)
	env = append(env,
		EnvRunDate+"="+rc.RunDate,
		"PYTHONIOENCODING=utf-8",
		EnvZo+"="+rc.ZoFlag(),
	)
	if rc.SLLM != 0 {
		env = append(env, EnvSLLM+"="+strconv.Itoa(rc.SLLM))
	}
	if rc.UserID != 0 {
		env = append(env, EnvUserID+"="+strconv.FormatInt(rc.UserID, 10))
	}
	return env
}
