package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleet-resale-pricer/internal/app"
)

var (
	importPath   string
	importDryRun bool
)

var importCatalogCmd = &cobra.Command{
	Use:   "import-catalog",
	Short: "Import price catalog rows from a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importPath == "" {
			return fmt.Errorf("--file is required")
		}
		opts := app.ImportOptions{
			Path:   importPath,
			DryRun: importDryRun,
		}
		return getApp().ImportCatalog(cmd.Context(), opts)
	},
}

func init() {
	importCatalogCmd.Flags().StringVar(&importPath, "file", "", "Path to the catalog CSV")
	importCatalogCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and validate without writing")
}
