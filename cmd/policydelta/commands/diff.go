package commands

import (
	"github.com/spf13/cobra"

	"github.com/policydelta/policydelta/pkg/workflow"
)

func newDiffCommand() *cobra.Command {
	var (
		proposedPath string
		domain       string
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compute the delta without applying it",
		Long: `Compute and save the delta between the existing configuration and a
proposed document. Equivalent to "run --what-if": the baseline and delta
artifacts are written, nothing is applied.`,
		Example: `  # Preview what would change
  policydelta diff --proposed desired.json

  # Preview for one domain, machine readable
  policydelta diff --proposed desired.json --domain prod --json`,
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
				WhatIf:       true,
			})
			if opCtx != nil {
				printOperation(opCtx)
			}
			return execErr
		},
	}

	cmd.Flags().StringVarP(&proposedPath, "proposed", "p", "", "proposed configuration file")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain scope (overrides config)")
	_ = cmd.MarkFlagRequired("proposed")

	return cmd
}
