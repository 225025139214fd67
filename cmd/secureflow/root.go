package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NSvoltage/secureflow/internal/audit"
	"github.com/NSvoltage/secureflow/internal/cache"
	"github.com/NSvoltage/secureflow/internal/config"
	"github.com/NSvoltage/secureflow/internal/executor"
	"github.com/NSvoltage/secureflow/internal/resource"
	"github.com/NSvoltage/secureflow/internal/state"
	"github.com/NSvoltage/secureflow/pkg/engine"
	"github.com/NSvoltage/secureflow/pkg/logger"
	"github.com/NSvoltage/secureflow/pkg/types"
)

var (
	cfgFile   string
	logLevel  string
	profile   string
	workspace string
	overrides []string
)

var rootCmd = &cobra.Command{
	Use:   "secureflow",
	Short: "Secure workflow orchestration engine",
	Long: `secureflow runs declarative YAML workflows under a security profile:
validated commands, confined file access, content-addressed step caching,
and resumable, audited executions.`,
	Version:       engine.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			logger.SetLevelFromString(logLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "security profile (plan_only, restricted, standard, elevated)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace root for command and file confinement")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "configuration override key=value (e.g. --set state.backend=sqlite)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration with CLI flags folded in as overrides.
func loadConfig() (*config.Config, error) {
	args := make(map[string]string, len(overrides)+3)
	for _, ov := range overrides {
		parts := strings.SplitN(ov, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --set value %q, expected key=value", ov)
		}
		args[parts[0]] = parts[1]
	}
	if profile != "" {
		args["security.profile"] = profile
	}
	if workspace != "" {
		args["security.workspace_root"] = workspace
	}
	if logLevel != "" {
		args["logging.level"] = logLevel
	}
	return config.NewLoader().WithConfigPath(cfgFile).WithCmdArgs(args).Load()
}

// buildEngine wires an engine from configuration. The returned cleanup
// closes the engine and any file-backed sinks.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	var store state.Store
	var err error
	switch cfg.State.Backend {
	case "sqlite":
		store, err = state.NewSQLiteStore(cfg.State.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening state store: %w", err)
		}
	default:
		store = state.NewMemoryStore()
	}

	var sink audit.Sink = audit.NopSink{}
	if cfg.Security.AuditLog != "" {
		fileSink, err := audit.NewFileSink(cfg.Security.AuditLog)
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("opening audit log: %w", err)
		}
		sink = fileSink
	}

	opts := []engine.Option{
		engine.WithStore(store),
		engine.WithAuditSink(sink),
		engine.WithWorkspaceRoot(cfg.Security.WorkspaceRoot),
		engine.WithHolderID(cfg.Engine.HolderID),
		engine.WithLeaseTTL(cfg.Engine.LeaseTTL),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, engine.WithCache(cache.New(
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		)))
	}
	if cfg.Engine.AdmissionMode == "reject" {
		opts = append(opts, engine.WithAdmissionMode(resource.ModeReject))
	}
	if cfg.Agent.Endpoint != "" {
		opts = append(opts, engine.WithBridge(executor.NewHTTPBridge(cfg.Agent.Endpoint, cfg.Agent.Timeout)))
	}

	e := engine.New(opts...)
	cleanup := func() {
		_ = e.Close()
		_ = sink.Close()
	}
	return e, cleanup, nil
}

// securityContext builds the CLI caller's security context.
func securityContext(cfg *config.Config) types.SecurityContext {
	return types.SecurityContext{
		PrincipalID: "cli:" + cfg.Engine.HolderID,
		Permissions: []string{
			types.PermissionExecute,
			types.PermissionCommand,
			types.PermissionFileWrite,
			types.PermissionDelegate,
		},
		Profile: types.ProfileByName(cfg.Security.Profile),
	}
}
