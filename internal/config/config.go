package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"equitywatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	AlphaVantage AlphaVantageConfig `mapstructure:"alphavantage"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Export       ExportConfig       `mapstructure:"export"`
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

// SchedulerConfig governs when crossover checks run.
type SchedulerConfig struct {
	MarketOpen      string        `mapstructure:"market_open"`
	Timezone        string        `mapstructure:"timezone"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	SymbolPacing    time.Duration `mapstructure:"symbol_pacing"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlphaVantageConfig covers market data access.
type AlphaVantageConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	SMAPeriod          int           `mapstructure:"sma_period"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// TelegramConfig 描述 Telegram 推送参数；bot token 与 chat id 按用户存库。
type TelegramConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert suppression policy.
type AlertingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EQUITYWATCH")
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
	v.SetDefault("app.name", "equitywatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.market_open", "09:30")
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.startup_delay", "30s")
	v.SetDefault("scheduler.symbol_pacing", "3s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x65715741))

	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co/query")
	v.SetDefault("alphavantage.request_timeout", "30s")
	v.SetDefault("alphavantage.min_request_interval", "12500ms")
	v.SetDefault("alphavantage.cache_ttl", "12h")
	v.SetDefault("alphavantage.sma_period", 200)
	v.SetDefault("alphavantage.user_agent", "equitywatch/1.0")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.dedup_window", "168h")

	v.SetDefault("export.max_data_points", 100000)

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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := ParseClock(c.Scheduler.MarketOpen); err != nil {
		return fmt.Errorf("scheduler.market_open: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Scheduler.SymbolPacing < 0 {
		return fmt.Errorf("scheduler.symbol_pacing cannot be negative")
	}
	if c.AlphaVantage.MinRequestInterval <= 0 {
		return fmt.Errorf("alphavantage.min_request_interval must be greater than zero")
	}
	if c.AlphaVantage.CacheTTL <= 0 {
		return fmt.Errorf("alphavantage.cache_ttl must be greater than zero")
	}
	if c.AlphaVantage.SMAPeriod <= 0 {
		return fmt.Errorf("alphavantage.sma_period must be greater than zero")
	}
	if c.Alerting.DedupWindow <= 0 {
		return fmt.Errorf("alerting.dedup_window must be greater than zero")
	}
	return nil
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" wall-clock value.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("expected HH:MM, got %q", s)
	}
	var c Clock
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("clock value %q out of range", s)
	}
	return c, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
