package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSONOutput bool

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show execution state",
	Long: `status prints the persisted state of one execution, or a one-line
summary of every known execution when no id is given. Requires a
persistent state backend (state.backend=sqlite) to see executions
from previous processes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		if len(args) == 1 {
			state, err := eng.Status(ctx, args[0])
			if err != nil {
				return err
			}
			printState(cmd, state, statusJSONOutput)
			return nil
		}

		states, err := eng.List(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(states) == 0 {
			fmt.Fprintln(out, "no executions found")
			return nil
		}
		for _, state := range states {
			fmt.Fprintf(out, "%s  %-10s %s@%s  updated %s\n",
				state.ID, state.Status, state.WorkflowName, state.WorkflowVersion,
				state.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "print the execution state as JSON")
	rootCmd.AddCommand(statusCmd)
}
