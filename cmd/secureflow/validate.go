package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NSvoltage/secureflow/internal/parser"
)

var validateInputs []string

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Validate a workflow without executing it",
	Long: `validate parses a workflow file and produces a dry-run plan: steps in
dependency order with their resolved commands and any security or
structural issues. No commands are executed and no files are written.`,
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

		inputs, err := parseInputFlags(validateInputs)
		if err != nil {
			return err
		}

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := eng.DryRun(workflow, inputs, securityContext(cfg))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "workflow: %s@%s\n", report.WorkflowName, report.WorkflowVersion)
		fmt.Fprintln(out, "plan:")
		for _, plan := range report.Steps {
			marker := "ok"
			if !plan.Valid {
				marker = "INVALID"
			}
			fmt.Fprintf(out, "  %-24s %-12s %s\n", plan.StepID, plan.Kind, marker)
			if plan.Command != "" {
				fmt.Fprintf(out, "    command: %s\n", plan.Command)
			}
			for _, issue := range plan.Issues {
				fmt.Fprintf(out, "    issue: %s\n", issue)
			}
		}
		if !report.Valid {
			return fmt.Errorf("workflow %s is not valid under profile %s", report.WorkflowName, cfg.Security.Profile)
		}
		fmt.Fprintln(out, "workflow is valid")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringArrayVarP(&validateInputs, "input", "i", nil, "workflow input key=value (repeatable)")
	rootCmd.AddCommand(validateCmd)
}
