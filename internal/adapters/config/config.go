package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"boxscout/pkg/errors"
)

type Config struct {
	App           AppConfig
	Provider      ProviderConfig
	Scanner       ScannerConfig
	Strategy      StrategyConfig
	Options       OptionsConfig
	Grading       GradingConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"boxscout"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// ProviderConfig configures the market-data REST API
type ProviderConfig struct {
	APIKey           string        `envconfig:"PROVIDER_API_KEY" required:"true"`
	Name             string        `envconfig:"DATA_PROVIDER" default:"polygon"`
	BaseURL          string        `envconfig:"PROVIDER_BASE_URL"`
	BarsPathTemplate string        `envconfig:"PROVIDER_BARS_PATH_TEMPLATE" default:"/markets/{symbol}/bars"`
	Timeout          time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	RequestsPerSec   float64       `envconfig:"PROVIDER_REQUESTS_PER_SEC" default:"5"`
}

// ScannerConfig drives the scan worker loop
type ScannerConfig struct {
	Universe             []string      `envconfig:"SCAN_UNIVERSE" default:"SPY,QQQ,IWM,NVDA,TSLA,AAPL,MSFT,AMZN,META,AMD,AVGO"`
	MarketSymbol         string        `envconfig:"SCAN_MARKET_SYMBOL" default:"QQQ"`
	Interval             time.Duration `envconfig:"SCAN_INTERVAL" default:"60s"`
	RTHOnly              bool          `envconfig:"SCAN_RTH_ONLY" default:"true"`
	MaxConcurrency       int           `envconfig:"SCAN_MAX_CONCURRENCY" default:"4"`
	MinConfidenceToAlert float64       `envconfig:"MIN_CONFIDENCE_TO_ALERT" default:"7.5"`
	AlertCooldown        time.Duration `envconfig:"ALERT_COOLDOWN" default:"30m"`
}

// StrategyConfig holds the breakout gate thresholds
type StrategyConfig struct {
	Timezone             string  `envconfig:"TIMEZONE" default:"America/New_York"`
	AllowedWindows       string  `envconfig:"ALLOWED_WINDOWS" default:"09:35-11:00,13:30-15:50"`
	ScanOutsideWindow    bool    `envconfig:"SCAN_OUTSIDE_WINDOW" default:"false"`
	MinAvgDailyVolume    float64 `envconfig:"MIN_AVG_DAILY_VOLUME" default:"5000000"`
	MinPrice             float64 `envconfig:"MIN_PRICE" default:"10.0"`
	MaxPrice             float64 `envconfig:"MAX_PRICE" default:"1000.0"`
	BoxBars              int     `envconfig:"BOX_BARS" default:"12"`
	BoxMaxRangePct       float64 `envconfig:"BOX_MAX_RANGE_PCT" default:"0.012"`
	ATRCompFactor        float64 `envconfig:"ATR_COMP_FACTOR" default:"0.75"`
	VolContractionFactor float64 `envconfig:"VOL_CONTRACTION_FACTOR" default:"0.80"`
	BreakBufferPct       float64 `envconfig:"BREAK_BUFFER_PCT" default:"0.001"`
	MaxExtensionPct      float64 `envconfig:"MAX_EXTENSION_PCT" default:"0.006"`
	BreakVolMult         float64 `envconfig:"BREAK_VOL_MULT" default:"1.5"`
	VWAPConfirm          bool    `envconfig:"VWAP_CONFIRM" default:"true"`
	EntryBufferPct       float64 `envconfig:"ENTRY_BUFFER_PCT" default:"0.0005"`
	StopBufferPct        float64 `envconfig:"STOP_BUFFER_PCT" default:"0.0015"`
	// Calibration heuristics, kept tunable rather than hard-coded
	VolumeExtrapolation  float64 `envconfig:"VOLUME_EXTRAPOLATION_FACTOR" default:"3"`
	OffSessionVolumeFrac float64 `envconfig:"OFF_SESSION_VOLUME_FRACTION" default:"0.25"`
}

// OptionsConfig holds option-contract liquidity thresholds
type OptionsConfig struct {
	SpreadPctMax    float64 `envconfig:"SPREAD_PCT_MAX" default:"0.08"`
	MinVolume       float64 `envconfig:"MIN_OPT_VOLUME" default:"200"`
	MinOpenInterest float64 `envconfig:"MIN_OPT_OI" default:"500"`
	MinMid          float64 `envconfig:"MIN_OPT_MID" default:"0.25"`
	IVPctlMaxForAgg float64 `envconfig:"IV_PCTL_MAX_FOR_AGG" default:"0.70"`
	IVPctlMaxForAny float64 `envconfig:"IV_PCTL_MAX_FOR_ANY" default:"0.85"`
	LenientMode     bool    `envconfig:"OPT_LENIENT_MODE" default:"false"`
}

// GradingConfig drives the post-hoc alert grading worker
type GradingConfig struct {
	Enabled      bool          `envconfig:"GRADING_ENABLED" default:"true"`
	Interval     time.Duration `envconfig:"GRADING_INTERVAL" default:"1h"`
	LookbackDays int           `envconfig:"GRADING_LOOKBACK_DAYS" default:"3"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"boxscout"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
}

type TelegramConfig struct {
	Enabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Strategy.BoxBars <= 0 {
		return errors.NewValidationError("BOX_BARS", "must be positive", c.Strategy.BoxBars)
	}
	if c.Strategy.MinPrice >= c.Strategy.MaxPrice {
		return errors.NewValidationError("MIN_PRICE", "must be below MAX_PRICE", c.Strategy.MinPrice)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.NewValidationError("TELEGRAM_BOT_TOKEN", "required when telegram is enabled", "")
	}
	for _, s := range c.Scanner.Universe {
		if strings.TrimSpace(s) == "" {
			return errors.NewValidationError("SCAN_UNIVERSE", "contains empty symbol", c.Scanner.Universe)
		}
	}
	return nil
}
