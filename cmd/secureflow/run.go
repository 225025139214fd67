package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NSvoltage/secureflow/internal/parser"
	"github.com/NSvoltage/secureflow/pkg/types"
)

var (
	runInputs     []string
	runJSONOutput bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Execute a workflow file",
	Long: `run parses a workflow file, validates it against the active security
profile, and executes it to completion. A SIGINT or SIGTERM pauses the
execution so it can be resumed later with "secureflow resume".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		workflow, err := parser.NewYAMLParser().ParseFile(args[0])
		if err != nil {
			return fmt.Errorf("parsing workflow: %w", err)
		}

		inputs, err := parseInputFlags(runInputs)
		if err != nil {
			return err
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state, err := eng.Run(ctx, workflow, inputs, securityContext(cfg))
		if state != nil {
			printState(cmd, state, runJSONOutput)
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
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "workflow input key=value (repeatable)")
	runCmd.Flags().BoolVar(&runJSONOutput, "json", false, "print the execution state as JSON")
	rootCmd.AddCommand(runCmd)
}

// parseInputFlags turns repeated key=value flags into a workflow input map.
// Values stay strings; the binding layer handles declared defaults.
func parseInputFlags(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --input value %q, expected key=value", pair)
		}
		inputs[parts[0]] = parts[1]
	}
	return inputs, nil
}

func printState(cmd *cobra.Command, state *types.ExecutionState, asJSON bool) {
	if asJSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		}
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "execution: %s\n", state.ID)
	fmt.Fprintf(out, "workflow:  %s@%s\n", state.WorkflowName, state.WorkflowVersion)
	fmt.Fprintf(out, "status:    %s\n", state.Status)
	if state.Error != "" {
		fmt.Fprintf(out, "error:     %s\n", state.Error)
	}

	ids := make([]string, 0, len(state.Steps))
	for id := range state.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintln(out, "steps:")
	for _, id := range ids {
		rec := state.Steps[id]
		line := fmt.Sprintf("  %-24s %s", id, rec.Status)
		if rec.Attempts > 1 {
			line += fmt.Sprintf(" (attempts: %d)", rec.Attempts)
		}
		if rec.Error != "" {
			line += " " + rec.Error
		}
		fmt.Fprintln(out, line)
	}

	if len(state.Outputs) > 0 {
		fmt.Fprintln(out, "outputs:")
		keys := make([]string, 0, len(state.Outputs))
		for k := range state.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %v\n", k, state.Outputs[k])
		}
	}
}
