// Package config provides typed, validated configuration for the
// Journal, Permission Engine, Tool Runtime, and Kernel.
// Configuration resolution order (highest priority first):
// 1. Environment variables (REACH_*)
// 2. Config file (~/.reach/config.toml, ~/.reach/config.json, or REACH_CONFIG_PATH)
// 3. Defaults
package config

import (
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	// Journal controls the append-only event log.
	Journal JournalConfig `json:"journal" toml:"journal"`

	// Permission controls the capability-scope permission engine.
	Permission PermissionConfig `json:"permission" toml:"permission"`

	// ToolRuntime controls manifest loading, schema validation, and
	// per-tool circuit breakers.
	ToolRuntime ToolRuntimeConfig `json:"tool_runtime" toml:"tool_runtime"`

	// Kernel controls the agentic execution loop's default budgets.
	Kernel KernelConfig `json:"kernel" toml:"kernel"`

	// Execution controls process-wide concurrency and buffering.
	Execution ExecutionConfig `json:"execution" toml:"execution"`

	// Telemetry controls observability.
	Telemetry TelemetryConfig `json:"telemetry" toml:"telemetry"`

	// Security controls secret redaction and audit logging.
	Security SecurityConfig `json:"security" toml:"security"`

	// Determinism controls canonical-hashing guarantees.
	Determinism DeterminismConfig `json:"determinism" toml:"determinism"`
}

// JournalConfig controls the append-only event journal (spec.md §4.1).
type JournalConfig struct {
	// Path is the event log file. Empty means the caller must supply
	// one explicitly; Load never invents a journal location.
	Path string `json:"path" toml:"path" env:"REACH_JOURNAL_PATH" default:""`

	// Fsync calls File.Sync() after every append/compact.
	Fsync bool `json:"fsync" toml:"fsync" env:"REACH_JOURNAL_FSYNC" default:"true"`

	// Redact scans payloads for secret-shaped values before they are
	// serialized.
	Redact bool `json:"redact" toml:"redact" env:"REACH_JOURNAL_REDACT" default:"true"`

	// MaxEventBytes warns/fails once the log exceeds this size (0 = no limit).
	MaxEventBytes int64 `json:"max_event_bytes" toml:"max_event_bytes" env:"REACH_JOURNAL_MAX_EVENT_BYTES" default:"104857600"`

	// EventLogMode determines behavior when MaxEventBytes is exceeded:
	// "warn" or "fail".
	EventLogMode string `json:"event_log_mode" toml:"event_log_mode" env:"REACH_JOURNAL_EVENT_LOG_MODE" default:"warn"`

	// CompactionThresholdBytes triggers automatic compaction once the
	// on-disk log passes this size (0 = manual compaction only).
	CompactionThresholdBytes int64 `json:"compaction_threshold_bytes" toml:"compaction_threshold_bytes" env:"REACH_JOURNAL_COMPACTION_THRESHOLD_BYTES" default:"0"`
}

// PermissionConfig controls the session policy profile applied by the
// permission engine (spec.md §4.2, permission.Profile).
type PermissionConfig struct {
	// ProfilePath, if set, loads a Profile document at startup instead
	// of DefaultProfile().
	ProfilePath string `json:"profile_path" toml:"profile_path" env:"REACH_PERMISSION_PROFILE_PATH" default:""`

	// RequireExplicitApproval denies any scope not already covered by an
	// active grant instead of invoking the approval callback.
	RequireExplicitApproval bool `json:"require_explicit_approval" toml:"require_explicit_approval" env:"REACH_PERMISSION_REQUIRE_EXPLICIT_APPROVAL" default:"false"`

	// AllowWildcardTargets permits a required scope's target segment to
	// be satisfied by a grant whose target is "*".
	AllowWildcardTargets bool `json:"allow_wildcard_targets" toml:"allow_wildcard_targets" env:"REACH_PERMISSION_ALLOW_WILDCARD_TARGETS" default:"true"`

	// MaxGrantsPerSession caps how many grants a session may accumulate
	// (0 = unlimited).
	MaxGrantsPerSession int `json:"max_grants_per_session" toml:"max_grants_per_session" env:"REACH_PERMISSION_MAX_GRANTS_PER_SESSION" default:"0"`

	// DenyOnDelegationMismatch mirrors permission.Profile's field of the
	// same name, which Check does not read: a DCT-enforcer rejection is
	// always an ordinary per-scope denial.
	DenyOnDelegationMismatch bool `json:"deny_on_delegation_mismatch" toml:"deny_on_delegation_mismatch" env:"REACH_PERMISSION_DENY_ON_DELEGATION_MISMATCH" default:"false"`

	// DelegationTokenTTL bounds how long a signed delegation token
	// derived for a subagent remains valid.
	DelegationTokenTTL time.Duration `json:"delegation_token_ttl" toml:"delegation_token_ttl" env:"REACH_PERMISSION_DELEGATION_TOKEN_TTL" default:"10m"`
}

// ToolRuntimeConfig controls manifest loading and execution guards
// (spec.md §4.3).
type ToolRuntimeConfig struct {
	// ManifestDir is scanned for *.json tool manifests.
	ManifestDir string `json:"manifest_dir" toml:"manifest_dir" env:"REACH_TOOLRUNTIME_MANIFEST_DIR" default:""`

	// WatchManifests reloads the registry on any change under
	// ManifestDir.
	WatchManifests bool `json:"watch_manifests" toml:"watch_manifests" env:"REACH_TOOLRUNTIME_WATCH_MANIFESTS" default:"false"`

	// BreakerOpenAfter is consecutive failures before a tool's circuit
	// opens.
	BreakerOpenAfter int `json:"breaker_open_after" toml:"breaker_open_after" env:"REACH_TOOLRUNTIME_BREAKER_OPEN_AFTER" default:"5"`

	// BreakerResetMS is how long a breaker stays open before admitting
	// a half-open probe.
	BreakerResetMS int `json:"breaker_reset_ms" toml:"breaker_reset_ms" env:"REACH_TOOLRUNTIME_BREAKER_RESET_MS" default:"30000"`

	// ValidatorCacheSize bounds the number of compiled JSON Schema
	// validators kept in the LRU cache.
	ValidatorCacheSize int `json:"validator_cache_size" toml:"validator_cache_size" env:"REACH_TOOLRUNTIME_VALIDATOR_CACHE_SIZE" default:"128"`
}

// KernelConfig controls the agentic loop's default per-session budgets
// (spec.md §4.4 Limits). kernel.New does not read them; cmd/reachd
// copies them into the Limits of each session it runs.
type KernelConfig struct {
	MaxTokens     int64   `json:"max_tokens" toml:"max_tokens" env:"REACH_KERNEL_MAX_TOKENS" default:"0"`
	MaxCostUSD    float64 `json:"max_cost_usd" toml:"max_cost_usd" env:"REACH_KERNEL_MAX_COST_USD" default:"0"`
	MaxDurationMS int64   `json:"max_duration_ms" toml:"max_duration_ms" env:"REACH_KERNEL_MAX_DURATION_MS" default:"0"`
	MaxIterations int64   `json:"max_iterations" toml:"max_iterations" env:"REACH_KERNEL_MAX_ITERATIONS" default:"50"`
	MaxSteps      int64   `json:"max_steps" toml:"max_steps" env:"REACH_KERNEL_MAX_STEPS" default:"500"`
}

// ExecutionConfig controls process-wide execution behavior.
type ExecutionConfig struct {
	// MaxConcurrentRuns limits concurrent sessions (0 = unlimited).
	MaxConcurrentRuns int `json:"max_concurrent_runs" toml:"max_concurrent_runs" env:"REACH_MAX_CONCURRENT_RUNS" default:"10"`

	// ExecutionTimeout is the default wall-clock timeout for a session
	// lacking an explicit max_duration_ms.
	ExecutionTimeout time.Duration `json:"execution_timeout" toml:"execution_timeout" env:"REACH_EXECUTION_TIMEOUT" default:"5m"`

	// SandboxEnabled controls whether tool execution is sandboxed.
	SandboxEnabled bool `json:"sandbox_enabled" toml:"sandbox_enabled" env:"REACH_SANDBOX_ENABLED" default:"true"`

	// StreamingReplay enables memory-efficient streaming replay of a
	// journal session instead of buffering every event.
	StreamingReplay bool `json:"streaming_replay" toml:"streaming_replay" env:"REACH_STREAMING_REPLAY" default:"false"`

	// MaxEventBufferSize limits the in-memory event buffer used by
	// replay/verify tooling (0 = unlimited).
	MaxEventBufferSize int `json:"max_event_buffer_size" toml:"max_event_buffer_size" env:"REACH_MAX_EVENT_BUFFER_SIZE" default:"0"`
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	// LogLevel is the minimum zap log level.
	LogLevel string `json:"log_level" toml:"log_level" env:"REACH_LOG_LEVEL" default:"info"`

	// LogDir is where logs are written (empty = stderr).
	LogDir string `json:"log_dir" toml:"log_dir" env:"REACH_LOG_DIR" default:""`

	// MetricsEnabled controls whether metrics are collected.
	MetricsEnabled bool `json:"metrics_enabled" toml:"metrics_enabled" env:"REACH_METRICS_ENABLED" default:"true"`

	// MetricsPath is where metrics are written.
	MetricsPath string `json:"metrics_path" toml:"metrics_path" env:"REACH_METRICS_PATH" default:""`

	// TracingEnabled controls whether tracing is enabled.
	TracingEnabled bool `json:"tracing_enabled" toml:"tracing_enabled" env:"REACH_TRACING_ENABLED" default:"false"`
}

// SecurityConfig controls secret redaction and audit logging.
type SecurityConfig struct {
	// SecretScanningEnabled scans tool output/journal payloads for secrets.
	SecretScanningEnabled bool `json:"secret_scanning_enabled" toml:"secret_scanning_enabled" env:"REACH_SECRET_SCANNING_ENABLED" default:"true"`

	// MaxSecretEntropy is the Shannon-entropy threshold for heuristic
	// secret detection.
	MaxSecretEntropy float64 `json:"max_secret_entropy" toml:"max_secret_entropy" env:"REACH_MAX_SECRET_ENTROPY" default:"4.5"`

	// AuditLogPath is where audit logs are written (empty = disabled).
	AuditLogPath string `json:"audit_log_path" toml:"audit_log_path" env:"REACH_AUDIT_LOG_PATH" default:""`
}

// DeterminismConfig controls determinism guarantees around canonical
// JSON and hashing (internal/determinism).
type DeterminismConfig struct {
	// StrictMode rejects non-canonicalizable payloads instead of
	// falling back to a best-effort encoding.
	StrictMode bool `json:"strict_mode" toml:"strict_mode" env:"REACH_DETERMINISM_STRICT" default:"false"`

	// VerifyOnLoad re-hashes the journal chain on Open.
	VerifyOnLoad bool `json:"verify_on_load" toml:"verify_on_load" env:"REACH_DETERMINISM_VERIFY_ON_LOAD" default:"true"`

	// CanonicalTimeFormat uses RFC3339Nano with a fixed UTC offset for
	// every timestamp entering the hash chain.
	CanonicalTimeFormat bool `json:"canonical_time_format" toml:"canonical_time_format" env:"REACH_DETERMINISM_CANONICAL_TIME" default:"true"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Journal: JournalConfig{
			Fsync:         true,
			Redact:        true,
			MaxEventBytes: 100 * 1024 * 1024,
			EventLogMode:  "warn",
		},
		Permission: PermissionConfig{
			AllowWildcardTargets: true,
			DelegationTokenTTL:   10 * time.Minute,
		},
		ToolRuntime: ToolRuntimeConfig{
			BreakerOpenAfter:   5,
			BreakerResetMS:     30000,
			ValidatorCacheSize: 128,
		},
		Kernel: KernelConfig{
			MaxIterations: 50,
			MaxSteps:      500,
		},
		Execution: ExecutionConfig{
			MaxConcurrentRuns: 10,
			ExecutionTimeout:  5 * time.Minute,
			SandboxEnabled:    true,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
		Security: SecurityConfig{
			SecretScanningEnabled: true,
			MaxSecretEntropy:      4.5,
		},
		Determinism: DeterminismConfig{
			VerifyOnLoad:        true,
			CanonicalTimeFormat: true,
		},
	}
}
