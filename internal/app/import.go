package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fleet-resale-pricer/internal/pricing"
)

// catalogCSVHeader is the required column order for catalog imports.
var catalogCSVHeader = []string{
	"provider", "product_family", "device_model", "product_type",
	"storage", "condition", "region", "price", "currency",
	"effective_date", "expires_at",
}

// ImportCatalog loads operator-authored price rows from a CSV file.
// Empty model, type, or storage cells become wildcard rows.
func (a *App) ImportCatalog(ctx context.Context, opts ImportOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	entries, err := parseCatalogCSV(file)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("no catalog rows found")
	}

	if opts.DryRun {
		fmt.Fprintf(os.Stdout, "dry run: %d catalog rows parsed ok\n", len(entries))
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot import catalog")
	}
	if closeStore != nil {
		defer closeStore()
	}

	inserted, err := store.InsertCatalogEntries(ctx, entries)
	if err != nil {
		return fmt.Errorf("inserted %d rows before failure: %w", inserted, err)
	}

	fmt.Fprintf(os.Stdout, "imported %d catalog rows\n", inserted)
	return nil
}

func parseCatalogCSV(r io.Reader) ([]pricing.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkCatalogHeader(header); err != nil {
		return nil, err
	}

	entries := make([]pricing.CatalogEntry, 0)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		entry, err := parseCatalogRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func checkCatalogHeader(header []string) error {
	if len(header) != len(catalogCSVHeader) {
		return fmt.Errorf("expected %d columns, got %d", len(catalogCSVHeader), len(header))
	}
	for i, want := range catalogCSVHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("column %d must be %q, got %q", i+1, want, header[i])
		}
	}
	return nil
}

func parseCatalogRow(record []string) (pricing.CatalogEntry, error) {
	if len(record) != len(catalogCSVHeader) {
		return pricing.CatalogEntry{}, fmt.Errorf("expected %d fields, got %d", len(catalogCSVHeader), len(record))
	}

	provider, err := pricing.ParseProvider(record[0])
	if err != nil {
		return pricing.CatalogEntry{}, err
	}
	family := strings.TrimSpace(record[1])
	if family == "" {
		return pricing.CatalogEntry{}, errors.New("product_family is required")
	}
	condition, err := pricing.ParseCondition(record[5])
	if err != nil {
		return pricing.CatalogEntry{}, err
	}
	region := strings.TrimSpace(record[6])
	if region == "" {
		return pricing.CatalogEntry{}, errors.New("region is required")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[7]))
	if err != nil {
		return pricing.CatalogEntry{}, fmt.Errorf("price: %w", err)
	}
	if price.IsNegative() {
		return pricing.CatalogEntry{}, errors.New("price cannot be negative")
	}
	currency, err := pricing.ParseCurrency(record[8])
	if err != nil {
		return pricing.CatalogEntry{}, err
	}

	effective := time.Now().UTC()
	if raw := strings.TrimSpace(record[9]); raw != "" {
		effective, err = parseCatalogDate(raw)
		if err != nil {
			return pricing.CatalogEntry{}, fmt.Errorf("effective_date: %w", err)
		}
	}
	var expires *time.Time
	if raw := strings.TrimSpace(record[10]); raw != "" {
		parsed, err := parseCatalogDate(raw)
		if err != nil {
			return pricing.CatalogEntry{}, fmt.Errorf("expires_at: %w", err)
		}
		expires = &parsed
	}

	return pricing.CatalogEntry{
		Provider:      provider,
		ProductFamily: family,
		DeviceModel:   optStr(record[2]),
		ProductType:   optStr(record[3]),
		Storage:       optStr(record[4]),
		Condition:     condition,
		Region:        region,
		Price:         price,
		Currency:      currency,
		EffectiveDate: effective,
		ExpiresAt:     expires,
	}, nil
}

func parseCatalogDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q (use YYYY-MM-DD or RFC3339)", raw)
}
