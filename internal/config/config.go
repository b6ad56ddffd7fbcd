package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Cron        CronConfig        `mapstructure:"cron"`
	Nansen      NansenConfig      `mapstructure:"nansen"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Lock        LockConfig        `mapstructure:"lock"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	API         APIConfig         `mapstructure:"api"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Refresh      string `mapstructure:"refresh"`
	RunOnStartup bool   `mapstructure:"run_on_startup"`
}

type NansenConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DexScreenerConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
}

type PipelineConfig struct {
	Chain       string        `mapstructure:"chain"`
	PageSize    int           `mapstructure:"page_size"`
	OrderField  string        `mapstructure:"order_field"`
	Timeframes  []string      `mapstructure:"timeframes"`
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
	InsertBatch int           `mapstructure:"insert_batch"`
}

type LockConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type ArchiveConfig struct {
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

type APIConfig struct {
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
	MaxRows         int  `mapstructure:"max_rows"`
}

// ConfigurationError lists required settings that are missing or unusable.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("configuration error: %s", strings.Join(parts, "; "))
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	// Provider credentials are commonly exported without the prefix.
	_ = v.BindEnv("nansen.api_key", "SF_NANSEN_API_KEY", "NANSEN_API_KEY")
	_ = v.BindEnv("db.dsn", "SF_DB_DSN", "DATABASE_URL")

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.refresh", "0 */5 * * * *")
	v.SetDefault("cron.run_on_startup", true)
	v.SetDefault("nansen.base_url", "https://api.nansen.ai")
	v.SetDefault("nansen.timeout", "20s")
	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.timeout", "15s")
	v.SetDefault("dexscreener.batch_size", 30)
	v.SetDefault("dexscreener.concurrency", 4)
	v.SetDefault("pipeline.chain", "solana")
	v.SetDefault("pipeline.page_size", 50)
	v.SetDefault("pipeline.order_field", "net_flow_24h_usd")
	v.SetDefault("pipeline.timeframes", []string{"5min", "10min", "30min", "1h", "6h", "12h", "24h", "7d", "30d"})
	v.SetDefault("pipeline.tick_timeout", "60s")
	v.SetDefault("pipeline.insert_batch", 200)
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.retry_interval", "100ms")
	v.SetDefault("archive.clickhouse_dsn", "")
	v.SetDefault("api.fallback_enabled", false)
	v.SetDefault("api.max_rows", 50)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate fails fast when credentials the pipeline cannot run without are absent.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Nansen.APIKey) == "" {
		missing = append(missing, "nansen.api_key (SF_NANSEN_API_KEY or NANSEN_API_KEY)")
	}
	if strings.TrimSpace(c.DB.DSN) == "" {
		missing = append(missing, "db.dsn (SF_DB_DSN or DATABASE_URL)")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
