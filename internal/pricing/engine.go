package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ResultStore is the persistence collaborator for valuation results.
// Upsert must keep at most one current result per device serial: find
// the latest existing result for the serial and replace it, or insert.
type ResultStore interface {
	FindLatest(ctx context.Context, serial string) (*Result, error)
	Upsert(ctx context.Context, result Result) error
}

// fallbackPrice backs the last-resort result when every internal step
// fails. Bulk valuation iterates whole fleets; a defective device record
// must degrade to a sentinel price, never abort the batch.
var fallbackPrice = decimal.NewFromInt(100)

// Engine is the sole public entry point of the valuation core. It
// orchestrates the provider chain, the formula estimator, display
// currency conversion, and result persistence, and guarantees that
// Calculate returns a usable result for every input.
type Engine struct {
	chain     *Chain
	estimator *Estimator
	converter *Converter
	results   ResultStore
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine wires the engine. results may be nil, in which case
// valuations are computed but not persisted.
func NewEngine(chain *Chain, estimator *Estimator, converter *Converter, results ResultStore, logger zerolog.Logger) *Engine {
	return &Engine{
		chain:     chain,
		estimator: estimator,
		converter: converter,
		results:   results,
		logger:    logger.With().Str("component", "pricing_engine").Logger(),
		now:       time.Now,
	}
}

// Calculate values one device and persists the result. It never returns
// an error: conversion failures keep the native currency, persistence
// failures are logged, and any internal defect yields the fixed fallback
// result. displayCurrency is optional.
func (e *Engine) Calculate(ctx context.Context, device DeviceAttributes, displayCurrency *Currency) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("serial", device.Serial).
				Interface("panic", r).
				Msg("valuation failed; returning fallback result")
			result = e.fallbackResult(ctx, device, fmt.Sprintf("%v", r))
		}
	}()

	device.Condition = device.Condition.Normalize()

	if candidate := e.chain.Resolve(ctx, device); candidate != nil {
		result = Result{
			DeviceSerial: device.Serial,
			Price:        candidate.Entry.Price,
			Currency:     candidate.Entry.Currency,
			Provider:     candidate.Entry.Provider,
			MatchLevel:   candidate.Level,
			Condition:    device.Condition,
			Explanation:  candidate.Explanation,
			ComputedAt:   e.now().UTC(),
		}
		e.applyDisplayCurrency(&result, displayCurrency)
		e.persist(ctx, result)
		return result
	}

	estimateCurrency := CurrencyUSD
	if displayCurrency != nil {
		estimateCurrency = *displayCurrency
	}
	estimate := e.estimator.Estimate(device, estimateCurrency)

	// The estimate is already denominated in the requested currency, so
	// matchLevel NONE results carry no separate display price.
	result = Result{
		DeviceSerial: device.Serial,
		Price:        estimate.Price,
		Currency:     estimate.Currency,
		Provider:     ProviderManual,
		MatchLevel:   MatchNone,
		Condition:    device.Condition,
		Explanation:  estimate.Explanation,
		ComputedAt:   e.now().UTC(),
	}
	e.persist(ctx, result)
	return result
}

// applyDisplayCurrency attaches a converted display price when the caller
// asked for a currency other than the result's native one. Conversion
// failures are logged and the native currency kept.
func (e *Engine) applyDisplayCurrency(result *Result, displayCurrency *Currency) {
	if displayCurrency == nil || *displayCurrency == result.Currency {
		return
	}
	converted, err := e.converter.Convert(result.Price, result.Currency, *displayCurrency)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("serial", result.DeviceSerial).
			Str("from", string(result.Currency)).
			Str("to", string(*displayCurrency)).
			Msg("display conversion failed; keeping native currency")
		return
	}
	result.DisplayPrice = &converted
	result.DisplayCurrency = displayCurrency
}

// persist upserts the result best-effort. A failed write never alters
// what the caller receives.
func (e *Engine) persist(ctx context.Context, result Result) {
	if e.results == nil {
		return
	}
	if err := e.results.Upsert(ctx, result); err != nil {
		e.logger.Error().Err(err).
			Str("serial", result.DeviceSerial).
			Msg("failed to persist valuation result")
	}
}

func (e *Engine) fallbackResult(ctx context.Context, device DeviceAttributes, cause string) Result {
	result := Result{
		DeviceSerial: device.Serial,
		Price:        fallbackPrice,
		Currency:     CurrencyUSD,
		Provider:     ProviderManual,
		MatchLevel:   MatchNone,
		Condition:    device.Condition.Normalize(),
		Explanation:  "Error estimating price - using fallback value. Original error: " + cause,
		ComputedAt:   e.now().UTC(),
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Interface("panic", r).Msg("failed to persist fallback result")
			}
		}()
		e.persist(ctx, result)
	}()

	return result
}
