package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationResult contains validation errors.
type ValidationResult struct {
	Errors []*ValidationError
}

// Valid returns true if there are no validation errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error string.
func (r *ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{
		Errors: make([]*ValidationError, 0),
	}

	result.validateJournal(c)
	result.validatePermission(c)
	result.validateToolRuntime(c)
	result.validateKernel(c)
	result.validateExecution(c)
	result.validateTelemetry(c)
	result.validateSecurity(c)

	return result
}

func (r *ValidationResult) validateJournal(c *Config) {
	if c.Journal.MaxEventBytes < 0 {
		r.add("journal.max_event_bytes", "must be >= 0 (0 = no limit)")
	}
	if c.Journal.EventLogMode != "warn" && c.Journal.EventLogMode != "fail" {
		r.add("journal.event_log_mode", "must be 'warn' or 'fail'")
	}
	if c.Journal.CompactionThresholdBytes < 0 {
		r.add("journal.compaction_threshold_bytes", "must be >= 0 (0 = manual compaction only)")
	}
	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		r.add("journal.path", "must be an absolute path")
	}
}

func (r *ValidationResult) validatePermission(c *Config) {
	if c.Permission.MaxGrantsPerSession < 0 {
		r.add("permission.max_grants_per_session", "must be >= 0 (0 = unlimited)")
	}
	if c.Permission.DelegationTokenTTL <= 0 {
		r.add("permission.delegation_token_ttl", "must be > 0")
	}
	if c.Permission.ProfilePath != "" && !filepath.IsAbs(c.Permission.ProfilePath) {
		r.add("permission.profile_path", "must be an absolute path")
	}
}

func (r *ValidationResult) validateToolRuntime(c *Config) {
	if c.ToolRuntime.BreakerOpenAfter < 1 {
		r.add("tool_runtime.breaker_open_after", "must be >= 1")
	}
	if c.ToolRuntime.BreakerResetMS <= 0 {
		r.add("tool_runtime.breaker_reset_ms", "must be > 0")
	}
	if c.ToolRuntime.ValidatorCacheSize < 1 {
		r.add("tool_runtime.validator_cache_size", "must be >= 1")
	}
	if c.ToolRuntime.ManifestDir != "" && !filepath.IsAbs(c.ToolRuntime.ManifestDir) {
		r.add("tool_runtime.manifest_dir", "must be an absolute path")
	}
}

func (r *ValidationResult) validateKernel(c *Config) {
	if c.Kernel.MaxTokens < 0 {
		r.add("kernel.max_tokens", "must be >= 0 (0 = unbounded)")
	}
	if c.Kernel.MaxCostUSD < 0 {
		r.add("kernel.max_cost_usd", "must be >= 0 (0 = unbounded)")
	}
	if c.Kernel.MaxDurationMS < 0 {
		r.add("kernel.max_duration_ms", "must be >= 0 (0 = unbounded)")
	}
	if c.Kernel.MaxIterations < 0 {
		r.add("kernel.max_iterations", "must be >= 0 (0 = unbounded)")
	}
	if c.Kernel.MaxSteps < 0 {
		r.add("kernel.max_steps", "must be >= 0 (0 = unbounded)")
	}
}

func (r *ValidationResult) validateExecution(c *Config) {
	if c.Execution.MaxConcurrentRuns < 0 {
		r.add("execution.max_concurrent_runs", "must be >= 0 (0 = unlimited)")
	}
	if c.Execution.ExecutionTimeout <= 0 {
		r.add("execution.execution_timeout", "must be > 0")
	}
	if c.Execution.MaxEventBufferSize < 0 {
		r.add("execution.max_event_buffer_size", "must be >= 0 (0 = unlimited)")
	}
}

func (r *ValidationResult) validateTelemetry(c *Config) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[c.Telemetry.LogLevel] {
		r.add("telemetry.log_level", "must be one of: debug, info, warn, error, fatal")
	}
	if c.Telemetry.LogDir != "" && !filepath.IsAbs(c.Telemetry.LogDir) {
		r.add("telemetry.log_dir", "must be an absolute path")
	}
}

func (r *ValidationResult) validateSecurity(c *Config) {
	if c.Security.MaxSecretEntropy < 0 {
		r.add("security.max_secret_entropy", "must be >= 0")
	}
	if c.Security.AuditLogPath != "" && !filepath.IsAbs(c.Security.AuditLogPath) {
		r.add("security.audit_log_path", "must be an absolute path")
	}
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, &ValidationError{
		Field:   field,
		Message: message,
	})
}

// MustValidate validates the config and panics if invalid.
func (c *Config) MustValidate() {
	result := c.Validate()
	if !result.Valid() {
		panic(result.Error())
	}
}

// ValidateWithDefaults validates and applies defaults for missing
// (zero-valued) fields before validating.
func (c *Config) ValidateWithDefaults() error {
	defaults := Default()

	if c.Journal.MaxEventBytes == 0 {
		c.Journal.MaxEventBytes = defaults.Journal.MaxEventBytes
	}
	if c.Journal.EventLogMode == "" {
		c.Journal.EventLogMode = defaults.Journal.EventLogMode
	}
	if c.Permission.DelegationTokenTTL == 0 {
		c.Permission.DelegationTokenTTL = defaults.Permission.DelegationTokenTTL
	}
	if c.ToolRuntime.BreakerOpenAfter == 0 {
		c.ToolRuntime.BreakerOpenAfter = defaults.ToolRuntime.BreakerOpenAfter
	}
	if c.ToolRuntime.BreakerResetMS == 0 {
		c.ToolRuntime.BreakerResetMS = defaults.ToolRuntime.BreakerResetMS
	}
	if c.ToolRuntime.ValidatorCacheSize == 0 {
		c.ToolRuntime.ValidatorCacheSize = defaults.ToolRuntime.ValidatorCacheSize
	}
	if c.Execution.MaxConcurrentRuns == 0 {
		c.Execution.MaxConcurrentRuns = defaults.Execution.MaxConcurrentRuns
	}
	if c.Execution.ExecutionTimeout == 0 {
		c.Execution.ExecutionTimeout = defaults.Execution.ExecutionTimeout
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = defaults.Telemetry.LogLevel
	}

	result := c.Validate()
	if !result.Valid() {
		return fmt.Errorf("configuration validation failed: %s", result.Error())
	}

	return nil
}
