package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fleet-resale-pricer/internal/pricing"
)

const (
	upsertResultSQL = `INSERT INTO valuation_results (
        device_serial,
        price,
        currency,
        display_price,
        display_currency,
        provider,
        match_level,
        condition,
        explanation,
        computed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (device_serial) DO UPDATE
    SET
        price            = EXCLUDED.price,
        currency         = EXCLUDED.currency,
        display_price    = EXCLUDED.display_price,
        display_currency = EXCLUDED.display_currency,
        provider         = EXCLUDED.provider,
        match_level      = EXCLUDED.match_level,
        condition        = EXCLUDED.condition,
        explanation      = EXCLUDED.explanation,
        computed_at      = EXCLUDED.computed_at;`

	resultColumns = `device_serial,
        price,
        currency,
        display_price,
        display_currency,
        provider,
        match_level,
        condition,
        explanation,
        computed_at`

	findLatestResultSQL = `SELECT ` + resultColumns + `
    FROM valuation_results
    WHERE device_serial = $1
    ORDER BY computed_at DESC
    LIMIT 1;`

	listValuationsSQL = `SELECT
        d.serial,
        d.product_family,
        d.device_model,
        d.product_type,
        d.storage_capacity,
        d.color,
        d.status,
        d.purchase_date,
        d.added_at,
        d.updated_at,
        r.device_serial,
        r.price,
        r.currency,
        r.display_price,
        r.display_currency,
        r.provider,
        r.match_level,
        r.condition,
        r.explanation,
        r.computed_at
    FROM devices d
    LEFT JOIN valuation_results r ON r.device_serial = d.serial
    ORDER BY r.computed_at DESC NULLS LAST, d.updated_at DESC
    LIMIT $1;`

	fleetValueByFamilySQL = `SELECT
        COALESCE(d.product_family, 'Unknown') AS family,
        COUNT(*) AS devices,
        COALESCE(SUM(r.price), 0) AS total
    FROM devices d
    JOIN valuation_results r ON r.device_serial = d.serial
    GROUP BY family
    ORDER BY total DESC;`

	fleetStatsSQL = `SELECT
        (SELECT COUNT(*) FROM devices),
        (SELECT COUNT(*) FROM valuation_results),
        (SELECT COALESCE(SUM(price), 0) FROM valuation_results);`
)

// Upsert implements pricing.ResultStore: one current result per device
// serial, replaced atomically on conflict. Concurrent valuations of the
// same device are last-write-wins.
func (s *Store) Upsert(ctx context.Context, result pricing.Result) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var displayPrice any
	if result.DisplayPrice != nil {
		displayPrice = result.DisplayPrice.String()
	}
	var displayCurrency any
	if result.DisplayCurrency != nil {
		displayCurrency = string(*result.DisplayCurrency)
	}

	_, execErr := pool.Exec(ctx, upsertResultSQL,
		result.DeviceSerial,
		result.Price.String(),
		string(result.Currency),
		displayPrice,
		displayCurrency,
		string(result.Provider),
		string(result.MatchLevel),
		string(result.Condition),
		result.Explanation,
		result.ComputedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert valuation result: %w", execErr)
	}
	return nil
}

// FindLatest implements pricing.ResultStore.
func (s *Store) FindLatest(ctx context.Context, serial string) (*pricing.Result, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, findLatestResultSQL, serial)
	if queryErr != nil {
		return nil, fmt.Errorf("find latest result: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	result, scanErr := scanResult(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &result, nil
}

// ListValuations lists device snapshots joined with their current
// results, most recently valued first.
func (s *Store) ListValuations(ctx context.Context, limit int) ([]DeviceValuation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listValuationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list valuations: %w", queryErr)
	}
	defer rows.Close()

	valuations := make([]DeviceValuation, 0, limit)
	for rows.Next() {
		valuation, scanErr := scanDeviceValuation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		valuations = append(valuations, valuation)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return valuations, nil
}

// FleetValueByFamily aggregates current resale value per product family.
// Totals sum native prices across currencies, matching the reporting
// behaviour the dashboard expects for a single-currency catalog.
func (s *Store) FleetValueByFamily(ctx context.Context) ([]FamilyValue, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fleetValueByFamilySQL)
	if queryErr != nil {
		return nil, fmt.Errorf("fleet value by family: %w", queryErr)
	}
	defer rows.Close()

	values := make([]FamilyValue, 0)
	for rows.Next() {
		var fv FamilyValue
		var totalStr string
		if err := rows.Scan(&fv.Family, &fv.Devices, &totalStr); err != nil {
			return nil, err
		}
		total, convErr := decimal.NewFromString(totalStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse family total: %w", convErr)
		}
		fv.Total = total
		values = append(values, fv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return values, nil
}

// Stats summarises the fleet.
func (s *Store) Stats(ctx context.Context) (FleetStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return FleetStats{}, err
	}

	var stats FleetStats
	var totalStr string
	if scanErr := pool.QueryRow(ctx, fleetStatsSQL).Scan(&stats.TotalDevices, &stats.Valued, &totalStr); scanErr != nil {
		return FleetStats{}, fmt.Errorf("fleet stats: %w", scanErr)
	}
	total, convErr := decimal.NewFromString(totalStr)
	if convErr != nil {
		return FleetStats{}, fmt.Errorf("parse fleet total: %w", convErr)
	}
	stats.TotalValue = total
	return stats, nil
}

func scanResult(rows pgx.Rows) (pricing.Result, error) {
	var (
		result          pricing.Result
		priceStr        string
		currency        string
		displayPrice    *string
		displayCurrency *string
		provider        string
		matchLevel      string
		condition       string
	)

	if err := rows.Scan(
		&result.DeviceSerial,
		&priceStr,
		&currency,
		&displayPrice,
		&displayCurrency,
		&provider,
		&matchLevel,
		&condition,
		&result.Explanation,
		&result.ComputedAt,
	); err != nil {
		return pricing.Result{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("parse result price: %w", err)
	}
	result.Price = price
	result.Currency = pricing.Currency(currency)
	result.Provider = pricing.Provider(provider)
	result.MatchLevel = pricing.MatchLevel(matchLevel)
	result.Condition = pricing.Condition(condition)

	if displayPrice != nil {
		dp, convErr := decimal.NewFromString(*displayPrice)
		if convErr != nil {
			return pricing.Result{}, fmt.Errorf("parse display price: %w", convErr)
		}
		result.DisplayPrice = &dp
	}
	if displayCurrency != nil {
		dc := pricing.Currency(*displayCurrency)
		result.DisplayCurrency = &dc
	}

	return result, nil
}

func scanDeviceValuation(rows pgx.Rows) (DeviceValuation, error) {
	var (
		device          DeviceRecord
		serial          *string
		priceStr        *string
		currency        *string
		displayPrice    *string
		displayCurrency *string
		provider        *string
		matchLevel      *string
		condition       *string
		explanation     *string
		computedAt      *time.Time
	)

	if err := rows.Scan(
		&device.Serial,
		&device.ProductFamily,
		&device.DeviceModel,
		&device.ProductType,
		&device.Storage,
		&device.Color,
		&device.Status,
		&device.PurchaseDate,
		&device.AddedAt,
		&device.UpdatedAt,
		&serial,
		&priceStr,
		&currency,
		&displayPrice,
		&displayCurrency,
		&provider,
		&matchLevel,
		&condition,
		&explanation,
		&computedAt,
	); err != nil {
		return DeviceValuation{}, err
	}

	valuation := DeviceValuation{Device: device}
	if serial == nil {
		return valuation, nil
	}
	if priceStr == nil || currency == nil || provider == nil || matchLevel == nil || condition == nil || explanation == nil || computedAt == nil {
		return DeviceValuation{}, errors.New("valuation row missing required columns")
	}

	price, err := decimal.NewFromString(*priceStr)
	if err != nil {
		return DeviceValuation{}, fmt.Errorf("parse result price: %w", err)
	}

	result := pricing.Result{
		DeviceSerial: *serial,
		Price:        price,
		Currency:     pricing.Currency(*currency),
		Provider:     pricing.Provider(*provider),
		MatchLevel:   pricing.MatchLevel(*matchLevel),
		Condition:    pricing.Condition(*condition),
		Explanation:  *explanation,
		ComputedAt:   *computedAt,
	}
	if displayPrice != nil {
		dp, convErr := decimal.NewFromString(*displayPrice)
		if convErr != nil {
			return DeviceValuation{}, fmt.Errorf("parse display price: %w", convErr)
		}
		result.DisplayPrice = &dp
	}
	if displayCurrency != nil {
		dc := pricing.Currency(*displayCurrency)
		result.DisplayCurrency = &dc
	}

	valuation.Result = &result
	return valuation, nil
}
