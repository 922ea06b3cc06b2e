package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from defaults, file, and environment.
// Resolution order (highest priority last):
// 1. Defaults
// 2. Config file
// 3. Environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from a JSON or TOML file, chosen by
// extension (".toml" decodes with BurntSushi/toml; anything else is
// treated as JSON).
func loadFromFile(cfg *Config, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) error {
	return loadStructFromEnv(reflect.ValueOf(cfg).Elem(), "")
}

// loadStructFromEnv recursively loads struct fields from environment.
func loadStructFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := loadStructFromEnv(field, prefix); err != nil {
					return err
				}
			}
			continue
		}

		if value := os.Getenv(envTag); value != "" {
			if err := setField(field, value); err != nil {
				return fmt.Errorf("setting %s: %w", envTag, err)
			}
		}
	}

	return nil
}

// setField sets a struct field from a string value.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parsing duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing int: %w", err)
			}
			field.SetInt(n)
		}
	case reflect.Int32:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("parsing int32: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parsing float64: %w", err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// configFilePath returns the path to the config file.
func configFilePath() string {
	if path := os.Getenv("REACH_CONFIG_PATH"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".reach", "config.toml"),
		filepath.Join(home, ".reach", "config.json"),
		filepath.Join(home, ".reach.json"),
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Save saves configuration to a file, choosing JSON or TOML by the
// path's extension.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("creating config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetEnvDocs returns documentation for all environment variables.
func GetEnvDocs() map[string]string {
	return map[string]string{
		"REACH_JOURNAL_PATH":                           "Event log file path",
		"REACH_JOURNAL_FSYNC":                          "Fsync after every append/compact (default: true)",
		"REACH_JOURNAL_REDACT":                         "Scan payloads for secrets before writing (default: true)",
		"REACH_JOURNAL_MAX_EVENT_BYTES":                "Maximum event log size in bytes (default: 104857600)",
		"REACH_JOURNAL_EVENT_LOG_MODE":                 "Event log overflow mode: warn or fail (default: warn)",
		"REACH_JOURNAL_COMPACTION_THRESHOLD_BYTES":     "Auto-compact once the log exceeds this size (default: 0, manual only)",
		"REACH_PERMISSION_PROFILE_PATH":                "Path to a session policy profile document",
		"REACH_PERMISSION_REQUIRE_EXPLICIT_APPROVAL":   "Deny instead of prompting when no active grant covers the scope (default: false)",
		"REACH_PERMISSION_ALLOW_WILDCARD_TARGETS":      "Allow a grant's wildcard target to satisfy any requested target (default: true)",
		"REACH_PERMISSION_MAX_GRANTS_PER_SESSION":      "Cap grants accumulated per session (default: 0, unlimited)",
		"REACH_PERMISSION_DENY_ON_DELEGATION_MISMATCH": "Profile flag for DCT mismatches; not read by the permission check (default: false)",
		"REACH_PERMISSION_DELEGATION_TOKEN_TTL":        "TTL for signed delegation tokens (default: 10m)",
		"REACH_TOOLRUNTIME_MANIFEST_DIR":               "Directory scanned for tool manifests",
		"REACH_TOOLRUNTIME_WATCH_MANIFESTS":            "Reload the registry on manifest directory changes (default: false)",
		"REACH_TOOLRUNTIME_BREAKER_OPEN_AFTER":         "Consecutive failures before a tool's circuit opens (default: 5)",
		"REACH_TOOLRUNTIME_BREAKER_RESET_MS":           "Breaker open duration before a half-open probe (default: 30000)",
		"REACH_TOOLRUNTIME_VALIDATOR_CACHE_SIZE":       "Compiled JSON Schema validator cache size (default: 128)",
		"REACH_KERNEL_MAX_TOKENS":                      "Default session token budget (default: 0, unbounded)",
		"REACH_KERNEL_MAX_COST_USD":                    "Default session cost budget in USD (default: 0, unbounded)",
		"REACH_KERNEL_MAX_DURATION_MS":                 "Default session wall-clock budget in ms (default: 0, unbounded)",
		"REACH_KERNEL_MAX_ITERATIONS":                  "Default max plan/replan iterations (default: 50)",
		"REACH_KERNEL_MAX_STEPS":                       "Default max executed steps (default: 500)",
		"REACH_MAX_CONCURRENT_RUNS":                    "Maximum concurrent sessions (default: 10)",
		"REACH_EXECUTION_TIMEOUT":                      "Default session timeout (default: 5m)",
		"REACH_SANDBOX_ENABLED":                        "Enable tool execution sandboxing (default: true)",
		"REACH_STREAMING_REPLAY":                       "Enable memory-efficient streaming replay (default: false)",
		"REACH_MAX_EVENT_BUFFER_SIZE":                  "In-memory event buffer limit for replay tooling (default: 0, unlimited)",
		"REACH_LOG_LEVEL":                              "Log level: debug, info, warn, error, fatal (default: info)",
		"REACH_LOG_DIR":                                "Log directory (default: stderr)",
		"REACH_METRICS_ENABLED":                        "Enable metrics (default: true)",
		"REACH_METRICS_PATH":                           "Metrics output path",
		"REACH_TRACING_ENABLED":                        "Enable tracing (default: false)",
		"REACH_SECRET_SCANNING_ENABLED":                "Enable secret scanning (default: true)",
		"REACH_MAX_SECRET_ENTROPY":                     "Secret entropy threshold (default: 4.5)",
		"REACH_AUDIT_LOG_PATH":                         "Audit log path",
		"REACH_DETERMINISM_STRICT":                     "Strict determinism mode (default: false)",
		"REACH_DETERMINISM_VERIFY_ON_LOAD":             "Verify journal hash chain on load (default: true)",
		"REACH_DETERMINISM_CANONICAL_TIME":             "Use canonical time format (default: true)",
		"REACH_CONFIG_PATH":                            "Path to config file (.toml or .json)",
	}
}

// PrintEnvDocs prints environment variable documentation grouped by
// the component each variable configures.
func PrintEnvDocs() {
	fmt.Println("Reach Environment Variables")
	fmt.Println("===========================")
	fmt.Println()

	categories := map[string][]string{
		"Journal":     {},
		"Permission":  {},
		"ToolRuntime": {},
		"Kernel":      {},
		"Execution":   {},
		"Telemetry":   {},
		"Security":    {},
		"Determinism": {},
		"General":     {},
	}

	docs := GetEnvDocs()
	for env, doc := range docs {
		category := "General"
		switch {
		case strings.HasPrefix(env, "REACH_JOURNAL_"):
			category = "Journal"
		case strings.HasPrefix(env, "REACH_PERMISSION_"):
			category = "Permission"
		case strings.HasPrefix(env, "REACH_TOOLRUNTIME_"):
			category = "ToolRuntime"
		case strings.HasPrefix(env, "REACH_KERNEL_"):
			category = "Kernel"
		case strings.Contains(env, "CONCURRENT") || strings.Contains(env, "EXECUTION") || strings.Contains(env, "SANDBOX") || strings.Contains(env, "STREAMING") || strings.Contains(env, "EVENT_BUFFER"):
			category = "Execution"
		case strings.Contains(env, "LOG") || strings.Contains(env, "METRIC") || strings.Contains(env, "TRACING"):
			category = "Telemetry"
		case strings.Contains(env, "SECRET") || strings.Contains(env, "AUDIT") || strings.Contains(env, "ENTROPY"):
			category = "Security"
		case strings.Contains(env, "DETERMINISM"):
			category = "Determinism"
		}
		categories[category] = append(categories[category], fmt.Sprintf("  %-46s %s", env, doc))
	}

	order := []string{"Journal", "Permission", "ToolRuntime", "Kernel", "Execution", "Telemetry", "Security", "Determinism", "General"}
	for _, category := range order {
		vars := categories[category]
		if len(vars) == 0 {
			continue
		}
		fmt.Printf("%s:\n", category)
		for _, v := range vars {
			fmt.Println(v)
		}
		fmt.Println()
	}
}
