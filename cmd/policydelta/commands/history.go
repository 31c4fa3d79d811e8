package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit       int
		operationID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past differential operations",
		Long: `List past operations from the history database, newest first, or show
one operation with its step results.`,
		Example: `  # Last 20 operations
  policydelta history

  # One operation with steps
  policydelta history --id 6b2f...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.history == nil {
				return fmt.Errorf("history is disabled (no history.path configured)")
			}

			if operationID != "" {
				op, err := a.history.GetOperation(ctx, operationID)
				if err != nil {
					return err
				}
				steps, err := a.history.ListStepResults(ctx, operationID)
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(map[string]any{"operation": op, "steps": steps})
					return nil
				}
				fmt.Printf("%s  %s  %s  domain=%s  what_if=%v\n",
					op.ID, op.Status, op.Target, op.Domain, op.WhatIf)
				fmt.Printf("  creates=%d updates=%d deletes=%d unchanged=%d\n",
					op.Creates, op.Updates, op.Deletes, op.Unchanged)
				fmt.Printf("  matches=%d mismatches=%d not_found=%d\n",
					op.Matches, op.Mismatches, op.NotFound)
				for _, s := range steps {
					msg := ""
					if s.Message != nil {
						msg = *s.Message
					}
					fmt.Printf("  %-20s %-10s %s\n", s.Name, s.Status, msg)
				}
				return nil
			}

			ops, err := a.history.ListOperations(ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(ops)
				return nil
			}
			for _, op := range ops {
				fmt.Printf("%s  %-22s %-10s %s  +%d ~%d -%d\n",
					op.StartedAt.Format(time.RFC3339),
					op.Status, op.Domain, op.ID,
					op.Creates, op.Updates, op.Deletes)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max operations to list")
	cmd.Flags().StringVar(&operationID, "id", "", "show one operation with step results")

	return cmd
}
