package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleet-resale-pricer/internal/app"
)

var quoteOpts app.QuoteOptions

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Value an ad-hoc device without storing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if quoteOpts.ProductFamily == "" {
			return fmt.Errorf("--family is required")
		}
		return getApp().Quote(cmd.Context(), quoteOpts)
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteOpts.Serial, "serial", "", "Serial number to report (optional)")
	quoteCmd.Flags().StringVar(&quoteOpts.ProductFamily, "family", "", "Product family, e.g. iPhone, iPad, Mac, Apple Watch")
	quoteCmd.Flags().StringVar(&quoteOpts.DeviceModel, "model", "", "Device model, e.g. \"iPhone 14 Pro\"")
	quoteCmd.Flags().StringVar(&quoteOpts.ProductType, "type", "", "Product type identifier")
	quoteCmd.Flags().StringVar(&quoteOpts.Storage, "storage", "", "Storage capacity, e.g. 256GB")
	quoteCmd.Flags().StringVar(&quoteOpts.Condition, "condition", "", "Condition grade (NEW, EXCELLENT, GOOD, FAIR, POOR)")
	quoteCmd.Flags().StringVar(&quoteOpts.Region, "region", "", "Pricing region (defaults to config)")
	quoteCmd.Flags().StringVar(&quoteOpts.DisplayCurrency, "currency", "", "Display currency (USD, AED, INR)")
}
