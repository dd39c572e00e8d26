package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the current fleet valuations and summary stats.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show valuations")
	}
	if closeStore != nil {
		defer closeStore()
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	valuations, err := store.ListValuations(ctx, limit)
	if err != nil {
		return err
	}
	if len(valuations) == 0 {
		fmt.Fprintln(os.Stdout, "no devices found")
		return nil
	}

	converter := a.newConverter()
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Serial\tFamily\tModel\tStorage\tCondition\tPrice\tMatch\tProvider\tComputed (UTC)")

	for _, valuation := range valuations {
		device := valuation.Device
		price, match, provider, condition, computed := "-", "-", "-", "-", "-"
		if valuation.Result != nil {
			result := valuation.Result
			price = converter.Format(result.Price, result.Currency)
			if result.DisplayPrice != nil && result.DisplayCurrency != nil {
				price = converter.Format(*result.DisplayPrice, *result.DisplayCurrency)
			}
			match = string(result.MatchLevel)
			provider = string(result.Provider)
			condition = string(result.Condition)
			computed = result.ComputedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			device.Serial,
			orDash(device.ProductFamily),
			sanitizeInline(orDash(device.DeviceModel)),
			orDash(device.Storage),
			condition,
			price,
			match,
			provider,
			computed,
		)
	}
	writer.Flush()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d devices, %d valued, total fleet value %s\n",
		stats.TotalDevices, stats.Valued, stats.TotalValue.StringFixed(2))
	return nil
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
