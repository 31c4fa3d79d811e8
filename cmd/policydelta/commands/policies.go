package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the loaded guard policies",
		Long: `List the pre-apply guard policies: built-ins plus anything loaded from
the configured policy paths.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			policies := a.guard.ListPolicies()
			sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

			if jsonOutput {
				printJSON(policies)
				return nil
			}

			fmt.Printf("Guard mode: %s\n", a.guard.Mode())
			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("  %-22s %-9s %-8s %s\n", p.Name, p.Severity, state, p.Description)
			}
			return nil
		},
	}
	return cmd
}
