package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Telegram  TelegramConfig

	MetricsPush MetricsPushConfig

	OrderWebhookURL string
	AdminAPIToken   string
	PublicBaseURL   string
	SnowflakeNode   int64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled          bool
	TableOrderRate   float64
	TableOrderBurst  int
	CheckoutRate     float64
	CheckoutBurst    int
	SubmitLockTTLSec int
}

// MetricsPushConfig ships the floor metrics to hosts that cannot be scraped.
type MetricsPushConfig struct {
	Exporter    string
	Endpoint    string
	AuthToken   string
	IntervalSec int
}

// Enabled reports whether an exporter and endpoint are both set.
func (c MetricsPushConfig) Enabled() bool {
	return strings.TrimSpace(c.Exporter) != "" && strings.TrimSpace(c.Endpoint) != ""
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIBase  string
}

// Enabled reports whether both bot token and chat are set.
func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != "" && strings.TrimSpace(c.ChatID) != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "comanda"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "comanda"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "comanda.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", false),
			TableOrderRate:   getenvFloat("RATE_LIMIT_TABLE_ORDER_RATE", 0.5),
			TableOrderBurst:  int(getenvInt64("RATE_LIMIT_TABLE_ORDER_BURST", 5)),
			CheckoutRate:     getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst:    int(getenvInt64("RATE_LIMIT_CHECKOUT_BURST", 3)),
			SubmitLockTTLSec: int(getenvInt64("RATE_LIMIT_SUBMIT_LOCK_TTL_SECONDS", 10)),
		},
		Telegram: TelegramConfig{
			BotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
			ChatID:   strings.TrimSpace(getenv("TELEGRAM_CHAT_ID", "")),
			APIBase:  strings.TrimRight(getenv("TELEGRAM_API_BASE", "https://api.telegram.org"), "/"),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:    strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:    strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken:   strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			IntervalSec: int(getenvInt64("METRICS_PUSH_INTERVAL_SECONDS", 60)),
		},

		OrderWebhookURL: strings.TrimSpace(getenv("ORDER_WEBHOOK_URL", "")),
		AdminAPIToken:   strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		PublicBaseURL:   strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		SnowflakeNode:   getenvInt64("SNOWFLAKE_NODE", 1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
