package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env.local")

	content := `# comment line
FOO_TEST_KEY=hello
BAR_TEST_KEY="quoted value"
BAZ_TEST_KEY='single quoted'

EMPTY_LINE_ABOVE=works
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"FOO_TEST_KEY", "BAR_TEST_KEY", "BAZ_TEST_KEY", "EMPTY_LINE_ABOVE"}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	if err := LoadEnvFiles(envFile); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"FOO_TEST_KEY", "hello"},
		{"BAR_TEST_KEY", "quoted value"},
		{"BAZ_TEST_KEY", "single quoted"},
		{"EMPTY_LINE_ABOVE", "works"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("os.Getenv(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadEnvFiles_RealEnvTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	if err := os.WriteFile(envFile, []byte("PRECEDENCE_TEST=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PRECEDENCE_TEST", "from-env")

	if err := LoadEnvFiles(envFile); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}

	if got := os.Getenv("PRECEDENCE_TEST"); got != "from-env" {
		t.Errorf("env var = %q, want %q (real env should take precedence)", got, "from-env")
	}
}

func TestLoadEnvFiles_MissingFile(t *testing.T) {
	if err := LoadEnvFiles("/nonexistent/path/.env.local"); err != nil {
		t.Errorf("missing file should be skipped, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "DB_PATH", "DATA_ROOT", "PYTHON_BIN", "SCHEDULE_FILE",
		"SCHEDULER_INTERVAL", "LOG_BUFFER_LINES", "LLM1_BASE_URL", "LLM1_MODEL",
		"SUMMARY_MODEL", "SUMMARY_TEMPERATURE",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DataRoot != "data" {
		t.Errorf("DataRoot = %q, want %q", cfg.DataRoot, "data")
	}
	if cfg.ScheduleFile != "database/schedule_config.json" {
		t.Errorf("ScheduleFile = %q, want default", cfg.ScheduleFile)
	}
	if cfg.SchedulerInterval != 30*time.Second {
		t.Errorf("SchedulerInterval = %v, want 30s", cfg.SchedulerInterval)
	}
	if cfg.LogBufferLines != 500 {
		t.Errorf("LogBufferLines = %d, want 500", cfg.LogBufferLines)
	}
	if got := cfg.Backend(1).Model; got != "qwen-plus" {
		t.Errorf("Backend(1).Model = %q, want %q", got, "qwen-plus")
	}
	if m, ok := cfg.Modules["summary"]; !ok || m.Model != "" || m.Temperature != 0 {
		t.Errorf("Modules[summary] = %+v, %v; want zero defaults", m, ok)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LLM2_BASE_URL", "https://api.gptgod.online/v1")
	t.Setenv("LLM2_MODEL", "gpt-4o")
	t.Setenv("LLM2_API_KEY", "sk-test-key")
	t.Setenv("SUMMARY_LIMIT_TEMPERATURE", "0.2")
	t.Setenv("SUMMARY_LIMIT_MAX_TOKENS", "800")

	cfg := Load()

	b := cfg.Backend(2)
	if b.BaseURL != "https://api.gptgod.online/v1" || b.Model != "gpt-4o" || b.APIKey != "sk-test-key" {
		t.Errorf("Backend(2) = %+v", b)
	}
	m := cfg.Modules["summary_limit"]
	if m.Temperature != 0.2 || m.MaxTokens != 800 {
		t.Errorf("Modules[summary_limit] = %+v, want temperature 0.2 and max tokens 800", m)
	}
}

func TestBackend_UnknownSelectorUsesFirst(t *testing.T) {
	cfg := Config{Backends: map[int]LLMBackend{1: {Model: "one"}, 2: {Model: "two"}}}
	if got := cfg.Backend(7).Model; got != "one" {
		t.Errorf("Backend(7).Model = %q, want %q", got, "one")
	}
}

func TestEnvDuration_Invalid(t *testing.T) {
	t.Setenv("TEST_DUR_INVALID", "not-a-duration")

	got := envDuration("TEST_DUR_INVALID", 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("envDuration with invalid value = %v, want fallback 5s", got)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	t.Setenv("TEST_INT_INVALID", "abc")

	got := envInt("TEST_INT_INVALID", 42)
	if got != 42 {
		t.Errorf("envInt with invalid value = %d, want fallback 42", got)
	}
}

func TestEnvFloat_Invalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_INVALID", "1.2.3")

	if got := envFloat("TEST_FLOAT_INVALID", 0.5); got != 0.5 {
		t.Errorf("envFloat with invalid value = %v, want fallback 0.5", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("LLM_PREFLIGHT_PROBE", "true")
	if !Load().PreflightProbe {
		t.Error("PreflightProbe = false, want true")
	}
	t.Setenv("LLM_PREFLIGHT_PROBE", "maybe")
	if Load().PreflightProbe {
		t.Error("PreflightProbe = true for invalid value, want default false")
	}
}
