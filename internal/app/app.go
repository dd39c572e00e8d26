package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fleet-resale-pricer/internal/config"
	"fleet-resale-pricer/internal/inventory"
	"fleet-resale-pricer/internal/pricing"
	"fleet-resale-pricer/internal/scheduler"
	"fleet-resale-pricer/internal/service"
	"fleet-resale-pricer/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newInventoryClient() inventory.DeviceSource {
	if !a.Config.Inventory.Configured() {
		return nil
	}
	cfg := a.Config.Inventory
	return inventory.NewClient(inventory.Options{
		BaseURL:          cfg.BaseURL,
		TokenURL:         cfg.TokenURL,
		ClientID:         cfg.ClientID,
		KeyID:            cfg.KeyID,
		PrivateKeyPath:   cfg.PrivateKeyPath,
		PrivateKeyBase64: cfg.PrivateKeyBase64,
		Scope:            cfg.Scope,
		PageLimit:        cfg.PageLimit,
		Timeout:          cfg.RequestTimeout,
		UserAgent:        cfg.UserAgent,
	}, a.Logger)
}

func (a *App) rates() pricing.Rates {
	ex := a.Config.Exchange
	var rates pricing.Rates
	if ex.RateUSDToAED > 0 {
		rates.USDToAED = decimal.NewFromFloat(ex.RateUSDToAED)
	}
	if ex.RateUSDToINR > 0 {
		rates.USDToINR = decimal.NewFromFloat(ex.RateUSDToINR)
	}
	if ex.RateAEDToUSD > 0 {
		rates.AEDToUSD = decimal.NewFromFloat(ex.RateAEDToUSD)
	}
	if ex.RateINRToUSD > 0 {
		rates.INRToUSD = decimal.NewFromFloat(ex.RateINRToUSD)
	}
	return rates
}

// newEngine wires the pricing core. catalog and results may be nil; a
// nil catalog disables the provider chain so every valuation estimates.
func (a *App) newEngine(catalog pricing.CatalogQuerier, results pricing.ResultStore) *pricing.Engine {
	if catalog == nil {
		catalog = emptyCatalog{}
	}
	chain := pricing.NewChain(pricing.NewMatcher(catalog), a.Logger)
	return pricing.NewEngine(chain, pricing.NewEstimator(), pricing.NewConverter(a.rates()), results, a.Logger)
}

type emptyCatalog struct{}

func (emptyCatalog) FindEntries(ctx context.Context, provider pricing.Provider, filter pricing.CatalogFilter) ([]pricing.CatalogEntry, error) {
	return nil, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	var catalog pricing.CatalogQuerier
	var results pricing.ResultStore
	var devices storage.DeviceStore
	if store != nil {
		catalog = store
		results = store
		devices = store
	}
	engine := a.newEngine(catalog, results)
	return service.New(a.Config, sched, a.newInventoryClient(), devices, engine, a.Logger)
}

// Run executes the long-running sync-and-revalue service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn must be configured for the service loop")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting fleet valuation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fleet valuation service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting current valuations.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	MaxRows int
}

// QuoteOptions describe an ad-hoc device to value without touching the
// database.
type QuoteOptions struct {
	Serial          string
	ProductFamily   string
	DeviceModel     string
	ProductType     string
	Storage         string
	Condition       string
	Region          string
	DisplayCurrency string
}

// ImportOptions configure the catalog CSV import.
type ImportOptions struct {
	Path   string
	DryRun bool
}
