package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	var (
		domain     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the existing configuration",
		Long: `Export the full policy configuration tree from the target and write it
as indented JSON, to a file or to stdout.`,
		Example: `  # Export to stdout
  policydelta export

  # Export one domain to a file
  policydelta export --domain prod --output prod.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			tree, err := a.client.GetConfiguration(ctx, pickDomain(domain, a.cfg.Domain))
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			data, err := json.MarshalIndent(tree, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}

			if outputPath == "" || outputPath == "-" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(outputPath, data, 0o640); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			a.logger.Info().Str("path", outputPath).Int("bytes", len(data)).Msg("Configuration exported")
			return nil
		},
	}

	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain scope (overrides config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")

	return cmd
}
