package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fleet-resale-pricer/internal/pricing"
)

const (
	catalogColumns = `id,
        provider,
        product_family,
        device_model,
        product_type,
        storage_capacity,
        condition,
        region,
        price,
        currency,
        effective_date,
        expires_at`

	findCatalogEntriesSQL = `SELECT ` + catalogColumns + `
    FROM catalog_entries
    WHERE provider = $1
      AND condition = $2
      AND region = $3
      AND effective_date <= $4
      AND (expires_at IS NULL OR expires_at > $4)`

	insertCatalogEntrySQL = `INSERT INTO catalog_entries (
        provider,
        product_family,
        device_model,
        product_type,
        storage_capacity,
        condition,
        region,
        price,
        currency,
        effective_date,
        expires_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`
)

// FindEntries implements pricing.CatalogQuerier: one tier's lookup,
// active rows only, newest effective date first. Tri-state field
// constraints compile to equality or IS NULL predicates; unconstrained
// fields add nothing.
func (s *Store) FindEntries(ctx context.Context, provider pricing.Provider, filter pricing.CatalogFilter) ([]pricing.CatalogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	activeAt := filter.ActiveAt
	if activeAt.IsZero() {
		activeAt = time.Now().UTC()
	}

	var sb strings.Builder
	sb.WriteString(findCatalogEntriesSQL)
	args := []any{string(provider), string(filter.Condition), filter.Region, activeAt}
	appendFieldPredicate(&sb, &args, "product_family", filter.ProductFamily)
	appendFieldPredicate(&sb, &args, "device_model", filter.DeviceModel)
	appendFieldPredicate(&sb, &args, "product_type", filter.ProductType)
	appendFieldPredicate(&sb, &args, "storage_capacity", filter.Storage)
	sb.WriteString(" ORDER BY effective_date DESC;")

	rows, queryErr := pool.Query(ctx, sb.String(), args...)
	if queryErr != nil {
		return nil, fmt.Errorf("find catalog entries: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]pricing.CatalogEntry, 0)
	for rows.Next() {
		entry, scanErr := scanCatalogEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func appendFieldPredicate(sb *strings.Builder, args *[]any, column string, m pricing.FieldMatch) {
	switch {
	case m.NullOnly:
		fmt.Fprintf(sb, "\n      AND %s IS NULL", column)
	case m.Equals != nil:
		*args = append(*args, *m.Equals)
		fmt.Fprintf(sb, "\n      AND %s = $%d", column, len(*args))
	}
}

// InsertCatalogEntries stores operator-authored catalog rows and returns
// the number inserted.
func (s *Store) InsertCatalogEntries(ctx context.Context, entries []pricing.CatalogEntry) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, entry := range entries {
		_, execErr := pool.Exec(ctx, insertCatalogEntrySQL,
			string(entry.Provider),
			entry.ProductFamily,
			entry.DeviceModel,
			entry.ProductType,
			entry.Storage,
			string(entry.Condition),
			entry.Region,
			entry.Price.String(),
			string(entry.Currency),
			entry.EffectiveDate,
			entry.ExpiresAt,
		)
		if execErr != nil {
			return inserted, fmt.Errorf("insert catalog entry: %w", execErr)
		}
		inserted++
	}
	return inserted, nil
}

func scanCatalogEntry(rows pgx.Rows) (pricing.CatalogEntry, error) {
	var (
		entry     pricing.CatalogEntry
		provider  string
		condition string
		currency  string
		priceStr  string
	)

	if err := rows.Scan(
		&entry.ID,
		&provider,
		&entry.ProductFamily,
		&entry.DeviceModel,
		&entry.ProductType,
		&entry.Storage,
		&condition,
		&entry.Region,
		&priceStr,
		&currency,
		&entry.EffectiveDate,
		&entry.ExpiresAt,
	); err != nil {
		return pricing.CatalogEntry{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return pricing.CatalogEntry{}, fmt.Errorf("parse catalog price: %w", err)
	}

	entry.Provider = pricing.Provider(provider)
	entry.Condition = pricing.Condition(condition)
	entry.Currency = pricing.Currency(currency)
	entry.Price = price
	return entry, nil
}
