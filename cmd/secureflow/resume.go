package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/pkg/types"
)

var resumeJSONOutput bool

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow.yaml> <execution-id>",
	Short: "Resume a paused execution",
	Long: `resume reloads a paused execution from the state store and continues it.
Steps that already completed are replayed from their recorded outputs;
only unfinished steps run again. The workflow file must match the name
and version the execution was started with.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		workflow, err := parser.NewYAMLParser().ParseFile(args[0])
		if err != nil {
			return fmt.Errorf("parsing workflow: %w", err)
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state, err := eng.Resume(ctx, workflow, args[1], securityContext(cfg))
		if state != nil {
			printState(cmd, state, resumeJSONOutput)
		}
		if err != nil {
			return err
		}
		if state != nil && state.Status == types.ExecutionStatusFailed {
			return fmt.Errorf("execution %s failed", state.ID)
		}
		return nil
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeJSONOutput, "json", false, "print the execution state as JSON")
	rootCmd.AddCommand(resumeCmd)
}
