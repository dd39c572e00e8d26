package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fleet-resale-pricer/internal/storage"
)

// Export writes current valuations as CSV and/or a per-family value
// chart as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.CSVPath != "" {
		valuations, err := store.ListValuations(ctx, opts.MaxRows)
		if err != nil {
			return err
		}
		if len(valuations) == 0 {
			a.Logger.Info().Msg("no valuations to export")
			return nil
		}
		a.Logger.Info().Int("rows", len(valuations)).Str("path", opts.CSVPath).Msg("exporting valuations")
		if err := writeValuationsCSV(opts.CSVPath, valuations); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		families, err := store.FleetValueByFamily(ctx)
		if err != nil {
			return err
		}
		if len(families) == 0 {
			a.Logger.Info().Msg("no valued devices to chart")
			return nil
		}
		if err := writeFamilyValuePNG(opts.PNGPath, families); err != nil {
			return err
		}
	}

	return nil
}

func writeValuationsCSV(path string, valuations []storage.DeviceValuation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"serial", "product_family", "device_model", "storage", "condition", "price", "currency", "display_price", "display_currency", "provider", "match_level", "computed_at", "explanation"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, valuation := range valuations {
		device := valuation.Device
		record := []string{
			device.Serial,
			derefOr(device.ProductFamily, ""),
			derefOr(device.DeviceModel, ""),
			derefOr(device.Storage, ""),
			"", "", "", "", "", "", "", "", "",
		}
		if result := valuation.Result; result != nil {
			record[4] = string(result.Condition)
			record[5] = result.Price.String()
			record[6] = string(result.Currency)
			if result.DisplayPrice != nil {
				record[7] = result.DisplayPrice.String()
			}
			if result.DisplayCurrency != nil {
				record[8] = string(*result.DisplayCurrency)
			}
			record[9] = string(result.Provider)
			record[10] = string(result.MatchLevel)
			record[11] = result.ComputedAt.UTC().Format(time.RFC3339)
			record[12] = result.Explanation
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeFamilyValuePNG(path string, families []storage.FamilyValue) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(families))
	for _, fv := range families {
		bars = append(bars, chart.Value{
			Label: fv.Family,
			Value: fv.Total.InexactFloat64(),
		})
	}

	graph := chart.BarChart{
		Title:    "Fleet resale value by product family",
		Width:    1280,
		Height:   720,
		BarWidth: 80,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func derefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
