package commands

import (
	"github.com/spf13/cobra"

	"github.com/policydelta/policydelta/pkg/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		proposedPath string
		domain       string
		method       string
		whatIf       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a differential operation",
		Long: `Run the full differential operation against the configured target.

This command:
  - Exports the existing policy configuration and saves it as a baseline
  - Loads the proposed configuration document
  - Computes the schema-aware delta and saves it
  - Evaluates the pre-apply policy guard
  - Applies the delta (PATCH semantics, skipped when nothing changed)
  - Re-exports and verifies that every delta object converged`,
		Example: `  # Apply a proposed configuration
  policydelta run --proposed desired.json

  # Preview only, stop after the delta is computed
  policydelta run --proposed desired.json --what-if

  # Scope to a specific domain
  policydelta run --proposed desired.json --domain prod`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			opCtx, execErr := a.orchestrator.Execute(ctx, workflow.Request{
				Target:       a.cfg.Target.Endpoint,
				Domain:       pickDomain(domain, a.cfg.Domain),
				ProposedPath: proposedPath,
				WhatIf:       whatIf,
				ApplyMethod:  pickMethod(method, a.cfg.Apply.Method),
			})
			if opCtx != nil {
				printOperation(opCtx)
			}
			return execErr
		},
	}

	cmd.Flags().StringVarP(&proposedPath, "proposed", "p", "", "proposed configuration file")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain scope (overrides config)")
	cmd.Flags().StringVar(&method, "method", "", "HTTP method for apply (overrides config)")
	cmd.Flags().BoolVar(&whatIf, "what-if", false, "stop after computing and saving the delta")
	_ = cmd.MarkFlagRequired("proposed")

	return cmd
}

func pickDomain(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

func pickMethod(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
