// Command reachd is the daemon entrypoint: it loads configuration, wires
// the Journal, Permission Engine, Tool Runtime, and Kernel together in
// dependency order (spec.md §2), and drives one session from task to
// terminal state. Grounded on the teacher's cmd/runnerd composition-root
// style — explicit wiring in main, no DI framework — trimmed to this
// core's four subsystems rather than runnerd's HTTP API surface, which
// spec.md §1 places out of scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reach/core/internal/config"
	"reach/core/internal/journal"
	"reach/core/internal/kernel"
	"reach/core/internal/logging"
	"reach/core/internal/permission"
	"reach/core/internal/toolruntime"
)

func main() {
	task := flag.String("task", "", "natural-language task to execute")
	agentic := flag.Bool("agentic", true, "iterate planner calls until the plan is empty")
	configPath := flag.String("config", "", "path to a reach config file (JSON or TOML)")
	flag.Parse()

	if *task == "" {
		fmt.Fprintln(os.Stderr, "reachd: -task is required")
		os.Exit(2)
	}

	if err := run(*task, *agentic, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "reachd: %v\n", err)
		os.Exit(1)
	}
}

func run(task string, agentic bool, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must be set (REACH_JOURNAL_PATH or config file)")
	}
	if cfg.ToolRuntime.ManifestDir == "" {
		return errors.New("tool_runtime.manifest_dir must be set (REACH_TOOLRUNTIME_MANIFEST_DIR or config file)")
	}

	logger := logging.New(logging.Config{Level: cfg.Telemetry.LogLevel, Component: "reachd"})

	j, err := journal.Open(cfg.Journal.Path, journal.Options{
		Fsync:  cfg.Journal.Fsync,
		Redact: cfg.Journal.Redact,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	perm := permission.New(j, permission.DenyAll, logger)

	registry, err := toolruntime.LoadRegistry(cfg.ToolRuntime.ManifestDir, logger)
	if err != nil {
		return fmt.Errorf("load tool registry: %w", err)
	}
	runtime := toolruntime.New(registry, perm, j, logger)
	// The "noop" manifest shipped under manifests/ declares no real I/O;
	// its handler only acknowledges the call so a StaticPlanner-driven
	// demo session can reach session.completed without a live tool
	// registry wired in.
	runtime.RegisterHandler("noop", func(_ context.Context, _ map[string]any, _ toolruntime.Mode, _ toolruntime.Policy) (map[string]any, error) {
		return map[string]any{"status": "ok"}, nil
	})

	k := kernel.New(j, perm, runtime, registry, kernel.StaticPlanner{}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := k.Run(ctx, kernel.RunRequest{
		Task:    task,
		Agentic: agentic,
		Limits: kernel.Limits{
			MaxTokens:     cfg.Kernel.MaxTokens,
			MaxCostUSD:    cfg.Kernel.MaxCostUSD,
			MaxDurationMS: cfg.Kernel.MaxDurationMS,
			MaxIterations: cfg.Kernel.MaxIterations,
			MaxSteps:      cfg.Kernel.MaxSteps,
		},
	})
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}

	logger.Info(fmt.Sprintf("session %s terminated with status %s", session.ID, session.Status()))
	if fail := session.Failure(); fail != nil {
		fmt.Fprintf(os.Stderr, "session failed: %s: %s\n", fail.Code, fail.Reason)
		os.Exit(1)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
