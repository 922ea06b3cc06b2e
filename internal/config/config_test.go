package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Execution.MaxConcurrentRuns != 10 {
		t.Errorf("expected MaxConcurrentRuns=10, got: %d", cfg.Execution.MaxConcurrentRuns)
	}
	if cfg.ToolRuntime.BreakerOpenAfter != 5 {
		t.Errorf("expected BreakerOpenAfter=5, got: %d", cfg.ToolRuntime.BreakerOpenAfter)
	}
	if cfg.Kernel.MaxIterations != 50 {
		t.Errorf("expected MaxIterations=50, got: %d", cfg.Kernel.MaxIterations)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configContent := `{
		"execution": {
			"max_concurrent_runs": 20,
			"sandbox_enabled": false
		},
		"journal": {
			"event_log_mode": "fail"
		}
	}`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Execution.MaxConcurrentRuns != 20 {
		t.Errorf("expected MaxConcurrentRuns=20, got: %d", cfg.Execution.MaxConcurrentRuns)
	}
	if cfg.Execution.SandboxEnabled != false {
		t.Errorf("expected SandboxEnabled=false, got: %v", cfg.Execution.SandboxEnabled)
	}
	if cfg.Journal.EventLogMode != "fail" {
		t.Errorf("expected Journal.EventLogMode='fail', got: %s", cfg.Journal.EventLogMode)
	}
	// Unspecified fields keep their defaults.
	if cfg.ToolRuntime.BreakerOpenAfter != 5 {
		t.Errorf("expected BreakerOpenAfter=5 (default), got: %d", cfg.ToolRuntime.BreakerOpenAfter)
	}
}

func TestLoadFromFileTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[execution]
max_concurrent_runs = 30

[permission]
require_explicit_approval = true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Execution.MaxConcurrentRuns != 30 {
		t.Errorf("expected MaxConcurrentRuns=30, got: %d", cfg.Execution.MaxConcurrentRuns)
	}
	if !cfg.Permission.RequireExplicitApproval {
		t.Error("expected RequireExplicitApproval=true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("REACH_MAX_CONCURRENT_RUNS", "25")
	os.Setenv("REACH_JOURNAL_EVENT_LOG_MODE", "fail")
	os.Setenv("REACH_TOOLRUNTIME_WATCH_MANIFESTS", "true")
	os.Setenv("REACH_EXECUTION_TIMEOUT", "10m")
	defer func() {
		os.Unsetenv("REACH_MAX_CONCURRENT_RUNS")
		os.Unsetenv("REACH_JOURNAL_EVENT_LOG_MODE")
		os.Unsetenv("REACH_TOOLRUNTIME_WATCH_MANIFESTS")
		os.Unsetenv("REACH_EXECUTION_TIMEOUT")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Execution.MaxConcurrentRuns != 25 {
		t.Errorf("expected MaxConcurrentRuns=25, got: %d", cfg.Execution.MaxConcurrentRuns)
	}
	if cfg.Journal.EventLogMode != "fail" {
		t.Errorf("expected Journal.EventLogMode='fail', got: %s", cfg.Journal.EventLogMode)
	}
	if !cfg.ToolRuntime.WatchManifests {
		t.Error("expected WatchManifests=true")
	}
	if cfg.Execution.ExecutionTimeout != 10*time.Minute {
		t.Errorf("expected ExecutionTimeout=10m, got: %v", cfg.Execution.ExecutionTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config func() *Config
		valid  bool
		errors int
	}{
		{
			name:   "valid default config",
			config: func() *Config { return Default() },
			valid:  true,
		},
		{
			name: "negative concurrent runs",
			config: func() *Config {
				cfg := Default()
				cfg.Execution.MaxConcurrentRuns = -1
				return cfg
			},
			valid:  false,
			errors: 1,
		},
		{
			name: "invalid event log mode",
			config: func() *Config {
				cfg := Default()
				cfg.Journal.EventLogMode = "invalid"
				return cfg
			},
			valid:  false,
			errors: 1,
		},
		{
			name: "breaker open after below one",
			config: func() *Config {
				cfg := Default()
				cfg.ToolRuntime.BreakerOpenAfter = 0
				return cfg
			},
			valid:  false,
			errors: 1,
		},
		{
			name: "negative kernel max steps",
			config: func() *Config {
				cfg := Default()
				cfg.Kernel.MaxSteps = -1
				return cfg
			},
			valid:  false,
			errors: 1,
		},
		{
			name: "invalid log level",
			config: func() *Config {
				cfg := Default()
				cfg.Telemetry.LogLevel = "invalid"
				return cfg
			},
			valid:  false,
			errors: 1,
		},
		{
			name: "zero delegation token ttl",
			config: func() *Config {
				cfg := Default()
				cfg.Permission.DelegationTokenTTL = 0
				return cfg
			},
			valid:  false,
			errors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			result := cfg.Validate()

			if tt.valid && !result.Valid() {
				t.Errorf("expected valid config, got errors: %s", result.Error())
			}
			if !tt.valid && result.Valid() {
				t.Error("expected invalid config, but validation passed")
			}
			if !tt.valid && len(result.Errors) != tt.errors {
				t.Errorf("expected %d errors, got: %d (%s)", tt.errors, len(result.Errors), result.Error())
			}
		})
	}
}

func TestValidateWithDefaults(t *testing.T) {
	cfg := &Config{}

	if err := cfg.ValidateWithDefaults(); err != nil {
		t.Fatalf("ValidateWithDefaults failed: %v", err)
	}

	if cfg.Execution.MaxConcurrentRuns != 10 {
		t.Errorf("expected MaxConcurrentRuns=10 (default), got: %d", cfg.Execution.MaxConcurrentRuns)
	}
	if cfg.ToolRuntime.BreakerOpenAfter != 5 {
		t.Errorf("expected BreakerOpenAfter=5 (default), got: %d", cfg.ToolRuntime.BreakerOpenAfter)
	}
}

func TestSaveJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := Default()
	cfg.Execution.MaxConcurrentRuns = 50

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Execution.MaxConcurrentRuns != 50 {
		t.Errorf("expected MaxConcurrentRuns=50, got: %d", loaded.Execution.MaxConcurrentRuns)
	}
}

func TestSaveTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.Kernel.MaxSteps = 123

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Kernel.MaxSteps != 123 {
		t.Errorf("expected MaxSteps=123, got: %d", loaded.Kernel.MaxSteps)
	}
}

func TestGetEnvDocs(t *testing.T) {
	docs := GetEnvDocs()
	if len(docs) == 0 {
		t.Error("expected some environment variable documentation")
	}
	if _, ok := docs["REACH_MAX_CONCURRENT_RUNS"]; !ok {
		t.Error("expected REACH_MAX_CONCURRENT_RUNS in docs")
	}
	if _, ok := docs["REACH_KERNEL_MAX_ITERATIONS"]; !ok {
		t.Error("expected REACH_KERNEL_MAX_ITERATIONS in docs")
	}
}

func TestValidationResult(t *testing.T) {
	result := &ValidationResult{
		Errors: []*ValidationError{
			{Field: "test", Message: "error 1"},
			{Field: "test2", Message: "error 2"},
		},
	}

	if result.Valid() {
		t.Error("result with errors should not be valid")
	}
	errStr := result.Error()
	if errStr == "" {
		t.Error("Error() should return non-empty string for invalid result")
	}
}
