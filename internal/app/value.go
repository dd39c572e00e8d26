package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"fleet-resale-pricer/internal/pricing"
)

// Value revalues the stored fleet, or a single device when serial is
// non-empty. Results are persisted and a summary printed.
func (a *App) Value(ctx context.Context, serial string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; use quote for ad-hoc valuations")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	if serial != "" {
		result, err := svc.ValueSerial(ctx, serial)
		if err != nil {
			return err
		}
		printResult(*result, a.newConverter())
		return nil
	}

	stats, err := svc.ValueFleet(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "valued %d of %d devices (%d estimated via fallback)\n", stats.Valued, stats.Devices, stats.Failed)
	return nil
}

func (a *App) newConverter() *pricing.Converter {
	return pricing.NewConverter(a.rates())
}

func printResult(result pricing.Result, converter *pricing.Converter) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Serial\t%s\n", result.DeviceSerial)
	fmt.Fprintf(writer, "Price\t%s\n", converter.Format(result.Price, result.Currency))
	if result.DisplayPrice != nil && result.DisplayCurrency != nil {
		fmt.Fprintf(writer, "Display\t%s\n", converter.Format(*result.DisplayPrice, *result.DisplayCurrency))
	}
	fmt.Fprintf(writer, "Provider\t%s\n", result.Provider)
	fmt.Fprintf(writer, "Match\t%s\n", result.MatchLevel)
	fmt.Fprintf(writer, "Condition\t%s\n", result.Condition)
	fmt.Fprintf(writer, "Computed\t%s\n", result.ComputedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(writer, "Explanation\t%s\n", result.Explanation)
	writer.Flush()
}
