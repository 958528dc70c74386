package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sentiment-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Sources       SourcesConfig       `mapstructure:"sources"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Export        ExportConfig        `mapstructure:"export"`
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
}

// SourcesConfig describes the upstream provider chain.
type SourcesConfig struct {
	CNN         CNNSourceConfig         `mapstructure:"cnn"`
	Alternative AlternativeSourceConfig `mapstructure:"alternative"`
}

// CNNSourceConfig covers the primary provider.
type CNNSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffMin     time.Duration `mapstructure:"backoff_min"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// AlternativeSourceConfig covers the fallback provider.
type AlternativeSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CacheConfig governs snapshot freshness policy.
type CacheConfig struct {
	// FreshnessWindow is the maximum snapshot age served on the happy path.
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	// StaleWindow is the wider bound accepted only when every source fails.
	StaleWindow   time.Duration `mapstructure:"stale_window"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// SchedulerConfig governs job cadence.
type SchedulerConfig struct {
	NotificationCheckInterval time.Duration `mapstructure:"notification_check_interval"`
	DataRefreshInterval       time.Duration `mapstructure:"data_refresh_interval"`
	HealthCheckInterval       time.Duration `mapstructure:"health_check_interval"`
	CleanupTimeUTC            string        `mapstructure:"cleanup_time_utc"`
	StartupDelay              time.Duration `mapstructure:"startup_delay"`
}

// NotificationsConfig holds subscriber-facing defaults.
type NotificationsConfig struct {
	DefaultPushTime string  `mapstructure:"default_push_time"`
	DefaultTimezone string  `mapstructure:"default_timezone"`
	DefaultLanguage string  `mapstructure:"default_language"`
	BroadcastRate   float64 `mapstructure:"broadcast_rate"` // messages per second
}

// DeliveryConfig routes rendered messages to subscribers.
type DeliveryConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram Bot API sink.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FNGWATCHER")
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
	v.SetDefault("app.name", "fngwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sources.cnn.base_url", "https://production.dataviz.cnn.io/index/fearandgreed/graphdata")
	v.SetDefault("sources.cnn.request_timeout", "30s")
	v.SetDefault("sources.cnn.max_retries", 3)
	v.SetDefault("sources.cnn.backoff_min", "1s")
	v.SetDefault("sources.cnn.backoff_max", "3s")

	v.SetDefault("sources.alternative.base_url", "https://api.alternative.me/fng/")
	v.SetDefault("sources.alternative.request_timeout", "30s")

	v.SetDefault("cache.freshness_window", "30m")
	v.SetDefault("cache.stale_window", "180m")
	v.SetDefault("cache.retention_days", 30)

	v.SetDefault("scheduler.notification_check_interval", "1m")
	v.SetDefault("scheduler.data_refresh_interval", "60m")
	v.SetDefault("scheduler.health_check_interval", "15m")
	v.SetDefault("scheduler.cleanup_time_utc", "02:00")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("notifications.default_push_time", "09:00")
	v.SetDefault("notifications.default_timezone", "UTC")
	v.SetDefault("notifications.default_language", "en")
	v.SetDefault("notifications.broadcast_rate", 10.0)

	v.SetDefault("delivery.telegram.enabled", false)
	v.SetDefault("delivery.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("delivery.telegram.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("cache.freshness_window must be greater than zero")
	}
	if c.Cache.StaleWindow < c.Cache.FreshnessWindow {
		return fmt.Errorf("cache.stale_window must be at least cache.freshness_window")
	}
	if c.Cache.RetentionDays <= 0 {
		return fmt.Errorf("cache.retention_days must be greater than zero")
	}
	if c.Scheduler.NotificationCheckInterval <= 0 {
		return fmt.Errorf("scheduler.notification_check_interval must be greater than zero")
	}
	// Eligibility matches local HH:MM exactly, so a coarser tick would skip
	// push times entirely.
	if c.Scheduler.NotificationCheckInterval > time.Minute {
		return fmt.Errorf("scheduler.notification_check_interval must not exceed one minute")
	}
	if c.Scheduler.DataRefreshInterval <= 0 {
		return fmt.Errorf("scheduler.data_refresh_interval must be greater than zero")
	}
	if c.Scheduler.HealthCheckInterval <= 0 {
		return fmt.Errorf("scheduler.health_check_interval must be greater than zero")
	}
	if _, err := ParseWallClock(c.Scheduler.CleanupTimeUTC); err != nil {
		return fmt.Errorf("scheduler.cleanup_time_utc: %w", err)
	}
	if _, err := ParseWallClock(c.Notifications.DefaultPushTime); err != nil {
		return fmt.Errorf("notifications.default_push_time: %w", err)
	}
	if c.Sources.CNN.MaxRetries <= 0 {
		return fmt.Errorf("sources.cnn.max_retries must be greater than zero")
	}
	if c.Sources.CNN.BackoffMax < c.Sources.CNN.BackoffMin {
		return fmt.Errorf("sources.cnn.backoff_max must be at least sources.cnn.backoff_min")
	}
	if c.Notifications.BroadcastRate <= 0 {
		return fmt.Errorf("notifications.broadcast_rate must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Delivery.Telegram.Enabled && c.Delivery.Telegram.BotToken == "" {
		return fmt.Errorf("delivery.telegram.bot_token is required when telegram delivery is enabled")
	}
	return nil
}

// WallClock is a minute-resolution time of day.
type WallClock struct {
	Hour   int
	Minute int
}

// ParseWallClock parses an "HH:MM" string.
func ParseWallClock(s string) (WallClock, error) {
	var wc WallClock
	if _, err := fmt.Sscanf(s, "%d:%d", &wc.Hour, &wc.Minute); err != nil {
		return WallClock{}, fmt.Errorf("invalid HH:MM value %q", s)
	}
	if wc.Hour < 0 || wc.Hour > 23 || wc.Minute < 0 || wc.Minute > 59 {
		return WallClock{}, fmt.Errorf("HH:MM value %q out of range", s)
	}
	return wc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
