package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fleet-resale-pricer/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Valuation ValuationConfig `mapstructure:"valuation"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the periodic sync-and-revalue cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// InventoryConfig covers the org-devices API and its OAuth credentials.
type InventoryConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	TokenURL         string        `mapstructure:"token_url"`
	ClientID         string        `mapstructure:"client_id"`
	KeyID            string        `mapstructure:"key_id"`
	PrivateKeyPath   string        `mapstructure:"private_key_path"`
	PrivateKeyBase64 string        `mapstructure:"private_key_base64"`
	Scope            string        `mapstructure:"scope"`
	PageLimit        int           `mapstructure:"page_limit"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// Configured reports whether inventory credentials are present.
func (c InventoryConfig) Configured() bool {
	if c.ClientID == "" || c.KeyID == "" {
		return false
	}
	return c.PrivateKeyPath != "" || c.PrivateKeyBase64 != ""
}

// ValuationConfig sets fleet-wide valuation defaults.
type ValuationConfig struct {
	DefaultRegion   string `mapstructure:"default_region"`
	DisplayCurrency string `mapstructure:"display_currency"`
}

// ExchangeConfig holds per-pair exchange rate multipliers touching the
// USD base. Zero values fall back to the built-in default rates; cross
// pairs are composed through USD.
type ExchangeConfig struct {
	RateUSDToAED float64 `mapstructure:"rate_usd_to_aed"`
	RateUSDToINR float64 `mapstructure:"rate_usd_to_inr"`
	RateAEDToUSD float64 `mapstructure:"rate_aed_to_usd"`
	RateINRToUSD float64 `mapstructure:"rate_inr_to_usd"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLEETPRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fleetpricer")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x666c7072))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("inventory.base_url", "https://api-business.apple.com/v1")
	v.SetDefault("inventory.token_url", "https://account.apple.com/auth/oauth2/token")
	v.SetDefault("inventory.scope", "business.api")
	v.SetDefault("inventory.page_limit", 100)
	v.SetDefault("inventory.request_timeout", "30s")
	v.SetDefault("inventory.user_agent", "fleetpricer/1.0")

	v.SetDefault("valuation.default_region", "US")

	v.SetDefault("export.max_rows", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Inventory.PageLimit <= 0 {
		return fmt.Errorf("inventory.page_limit must be greater than zero")
	}
	if c.Valuation.DefaultRegion == "" {
		return fmt.Errorf("valuation.default_region must not be empty")
	}
	for name, rate := range map[string]float64{
		"exchange.rate_usd_to_aed": c.Exchange.RateUSDToAED,
		"exchange.rate_usd_to_inr": c.Exchange.RateUSDToINR,
		"exchange.rate_aed_to_usd": c.Exchange.RateAEDToUSD,
		"exchange.rate_inr_to_usd": c.Exchange.RateINRToUSD,
	} {
		if rate < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
