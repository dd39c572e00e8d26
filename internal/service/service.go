package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fleet-resale-pricer/internal/config"
	"fleet-resale-pricer/internal/inventory"
	"fleet-resale-pricer/internal/pricing"
	"fleet-resale-pricer/internal/scheduler"
	"fleet-resale-pricer/internal/storage"
)

// Service orchestrates inventory sync and fleet revaluation.
type Service struct {
	scheduler *scheduler.Scheduler
	source    inventory.DeviceSource
	devices   storage.DeviceStore
	engine    *pricing.Engine
	logger    zerolog.Logger

	displayCurrency *pricing.Currency
	defaultRegion   string
	locker          storage.AdvisoryLocker
	lockKey         int64
	now             func() time.Time
}

// SyncStats summarises one inventory sync.
type SyncStats struct {
	Pages   int
	Devices int
}

// ValuationStats summarises one fleet revaluation pass.
type ValuationStats struct {
	Devices int
	Valued  int
	Failed  int
}

// New constructs the fleet valuation service. source may be nil when
// inventory credentials are absent; devices may be nil without a
// database.
func New(cfg *config.Config, sched *scheduler.Scheduler, source inventory.DeviceSource, devices storage.DeviceStore, engine *pricing.Engine, logger zerolog.Logger) *Service {
	componentLogger := logger.With().Str("component", "service").Logger()

	var display *pricing.Currency
	if cfg.Valuation.DisplayCurrency != "" {
		parsed, err := pricing.ParseCurrency(cfg.Valuation.DisplayCurrency)
		if err != nil {
			componentLogger.Warn().Str("currency", cfg.Valuation.DisplayCurrency).Msg("ignoring unsupported display currency")
		} else {
			display = &parsed
		}
	}

	var locker storage.AdvisoryLocker
	if l, ok := devices.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:       sched,
		source:          source,
		devices:         devices,
		engine:          engine,
		logger:          componentLogger,
		displayCurrency: display,
		defaultRegion:   cfg.Valuation.DefaultRegion,
		locker:          locker,
		lockKey:         cfg.Scheduler.AdvisoryLockKey,
		now:             time.Now,
	}
}

// Run begins the periodic sync-and-revalue loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one scheduled cycle. The advisory lock keeps
// concurrent replicas from double-valuing the fleet.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if s.source != nil {
		if _, err := s.Sync(ctx); err != nil {
			return fmt.Errorf("sync inventory: %w", err)
		}
	}

	stats, err := s.ValueFleet(ctx)
	if err != nil {
		return fmt.Errorf("value fleet: %w", err)
	}

	s.logger.Info().Time("tick", tick).
		Int("devices", stats.Devices).
		Int("valued", stats.Valued).
		Msg("revaluation cycle complete")
	return nil
}

// Sync pulls all inventory pages and refreshes device snapshots.
func (s *Service) Sync(ctx context.Context) (SyncStats, error) {
	if s.source == nil {
		return SyncStats{}, fmt.Errorf("inventory source not configured")
	}
	if s.devices == nil {
		return SyncStats{}, fmt.Errorf("device store not configured")
	}

	var stats SyncStats
	cursor := ""
	for {
		page, err := s.source.FetchDevices(ctx, cursor)
		if err != nil {
			return stats, fmt.Errorf("fetch devices page %d: %w", stats.Pages+1, err)
		}
		stats.Pages++

		for _, device := range page.Devices {
			record := s.toRecord(device)
			if err := s.devices.UpsertDevice(ctx, record); err != nil {
				return stats, fmt.Errorf("upsert device %s: %w", device.Serial, err)
			}
			stats.Devices++
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	s.logger.Info().Int("pages", stats.Pages).Int("devices", stats.Devices).Msg("inventory sync complete")
	return stats, nil
}

// ValueFleet revalues every stored device snapshot. Valuation never
// aborts the pass: the engine degrades to fallback results on its own.
func (s *Service) ValueFleet(ctx context.Context) (ValuationStats, error) {
	if s.devices == nil {
		return ValuationStats{}, fmt.Errorf("device store not configured")
	}

	records, err := s.devices.ListDevices(ctx)
	if err != nil {
		return ValuationStats{}, fmt.Errorf("list devices: %w", err)
	}

	stats := ValuationStats{Devices: len(records)}
	for _, record := range records {
		result := s.ValueDevice(ctx, record)
		if result.Provider == pricing.ProviderManual && result.MatchLevel == pricing.MatchNone {
			stats.Failed++
		}
		stats.Valued++
	}
	return stats, nil
}

// ValueDevice values a single snapshot through the pricing engine.
func (s *Service) ValueDevice(ctx context.Context, record storage.DeviceRecord) pricing.Result {
	return s.engine.Calculate(ctx, s.toAttributes(record), s.displayCurrency)
}

// ValueSerial looks up a stored device and values it.
func (s *Service) ValueSerial(ctx context.Context, serial string) (*pricing.Result, error) {
	if s.devices == nil {
		return nil, fmt.Errorf("device store not configured")
	}
	record, err := s.devices.GetDevice(ctx, serial)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("device %s not found", serial)
	}
	result := s.ValueDevice(ctx, *record)
	return &result, nil
}

func (s *Service) toRecord(device inventory.Device) storage.DeviceRecord {
	now := s.now().UTC()
	record := storage.DeviceRecord{
		Serial:        device.Serial,
		ProductFamily: optStr(device.ProductFamily),
		DeviceModel:   optStr(device.DeviceModel),
		ProductType:   optStr(device.ProductType),
		Storage:       optStr(device.Storage),
		Color:         optStr(device.Color),
		Status:        optStr(device.Status),
		PurchaseDate:  device.PurchaseDate,
		AddedAt:       now,
		UpdatedAt:     now,
	}
	if device.AddedAt != nil {
		record.AddedAt = *device.AddedAt
	}
	if device.UpdatedAt != nil {
		record.UpdatedAt = *device.UpdatedAt
	}
	return record
}

func (s *Service) toAttributes(record storage.DeviceRecord) pricing.DeviceAttributes {
	return pricing.DeviceAttributes{
		Serial:        record.Serial,
		ProductFamily: record.ProductFamily,
		DeviceModel:   record.DeviceModel,
		ProductType:   record.ProductType,
		Storage:       record.Storage,
		Condition:     ConditionFromAge(record.PurchaseDate, s.now()),
		Region:        s.defaultRegion,
	}
}

// ConditionFromAge grades a device by purchase age. Devices without a
// purchase date grade GOOD.
func ConditionFromAge(purchase *time.Time, now time.Time) pricing.Condition {
	if purchase == nil {
		return pricing.ConditionGood
	}
	switch {
	case purchase.After(now.AddDate(-2, 0, 0)):
		return pricing.ConditionExcellent
	case purchase.After(now.AddDate(-3, 0, 0)):
		return pricing.ConditionGood
	case purchase.After(now.AddDate(-5, 0, 0)):
		return pricing.ConditionFair
	default:
		return pricing.ConditionPoor
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
