package app

import (
	"context"
	"fmt"
	"strings"

	"fleet-resale-pricer/internal/pricing"
)

// Quote values an ad-hoc device described on the command line. Catalog
// rows are consulted when a database is configured, but nothing is
// persisted.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) error {
	device, display, err := a.quoteAttributes(opts)
	if err != nil {
		return err
	}

	var catalog pricing.CatalogQuerier
	store, closeStore, storeErr := a.openStore(ctx)
	if storeErr != nil {
		a.Logger.Warn().Err(storeErr).Msg("database unavailable; quoting without catalog")
	} else if store != nil {
		catalog = store
		defer closeStore()
	}

	engine := a.newEngine(catalog, nil)
	result := engine.Calculate(ctx, device, display)
	printResult(result, a.newConverter())
	return nil
}

func (a *App) quoteAttributes(opts QuoteOptions) (pricing.DeviceAttributes, *pricing.Currency, error) {
	serial := opts.Serial
	if serial == "" {
		serial = "ADHOC"
	}

	condition := pricing.Condition("")
	if opts.Condition != "" {
		parsed, err := pricing.ParseCondition(opts.Condition)
		if err != nil {
			return pricing.DeviceAttributes{}, nil, err
		}
		condition = parsed
	}

	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = a.Config.Valuation.DefaultRegion
	}

	var display *pricing.Currency
	displayRaw := opts.DisplayCurrency
	if displayRaw == "" {
		displayRaw = a.Config.Valuation.DisplayCurrency
	}
	if displayRaw != "" {
		parsed, err := pricing.ParseCurrency(displayRaw)
		if err != nil {
			return pricing.DeviceAttributes{}, nil, fmt.Errorf("display currency: %w", err)
		}
		display = &parsed
	}

	return pricing.DeviceAttributes{
		Serial:        serial,
		ProductFamily: optStr(opts.ProductFamily),
		DeviceModel:   optStr(opts.DeviceModel),
		ProductType:   optStr(opts.ProductType),
		Storage:       optStr(opts.Storage),
		Condition:     condition,
		Region:        region,
	}, display, nil
}

func optStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
