// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/muaviaUsmani/autobuy/internal/logger"
)

// Broker modes
const (
	BrokerModeCoinbase = "coinbase"
	BrokerModePaper    = "paper"
)

// Config holds all configuration for the autobuy process
type Config struct {
	// BrokerMode selects the exchange gateway: "coinbase" or "paper"
	BrokerMode string
	// CoinbaseAPIKey is the CDP key name ("organizations/.../apiKeys/...")
	CoinbaseAPIKey string
	// CoinbaseAPISecret is the PEM-encoded EC private key
	CoinbaseAPISecret string
	// CoinbaseBaseURL is the Advanced Trade API root
	CoinbaseBaseURL string
	// BrokerRateLimit caps exchange requests per second
	BrokerRateLimit float64
	// BrokerTimeout bounds every exchange request
	BrokerTimeout time.Duration
	// LimitPriceFactor discounts the spot price for the limit buy
	LimitPriceFactor decimal.Decimal
	// PaperFillAfter is how many polls a paper order needs before it fills
	PaperFillAfter int

	// APIPort is the port the dashboard API listens on; empty disables it
	APIPort string
	// AdminUsername is the dashboard login
	AdminUsername string
	// AdminPasswordHash is a bcrypt hash; AdminPassword is hashed at startup when no hash is set
	AdminPasswordHash string
	AdminPassword     string
	// AdminTOTPSecret enables a second factor when non-empty
	AdminTOTPSecret string
	// JWTSecret signs dashboard session tokens
	JWTSecret string
	// SessionTTL is how long a dashboard session stays valid
	SessionTTL time.Duration
	// SecureCookies marks the session cookie Secure; enable behind TLS
	SecureCookies bool

	// RedisURL enables scheduler state, the buy lock and the ledger mirror when set
	RedisURL string
	// DatabaseURL enables the Postgres settings store when set
	DatabaseURL string
	// JournalPath enables the SQLite transaction journal when set
	JournalPath string
	// SettingsFile is the env file trading settings are written back to
	SettingsFile string

	// SchedulerTickInterval is how often the scheduler looks for due jobs
	SchedulerTickInterval time.Duration
	// OrderCheckInterval is the fixed period of the order check job
	OrderCheckInterval time.Duration
	// BuyLockTTL bounds how long one instance may hold the buy lock
	BuyLockTTL time.Duration

	// TelegramEnabled turns Telegram delivery on
	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   string
	// WebhookURL receives every lifecycle event as JSON when set
	WebhookURL string

	// PprofAddr starts a pprof listener when set
	PprofAddr string

	// Logging configuration
	Logging *logger.Config
}

// LoadConfig loads configuration from the environment, reading .env first
// when present. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		BrokerMode:            strings.ToLower(getEnv("BROKER_MODE", BrokerModeCoinbase)),
		CoinbaseAPIKey:        getEnv("COINBASE_API_KEY", ""),
		CoinbaseAPISecret:     getEnv("COINBASE_API_SECRET", ""),
		CoinbaseBaseURL:       getEnv("COINBASE_BASE_URL", "https://api.coinbase.com"),
		BrokerRateLimit:       getEnvAsFloat("BROKER_RATE_LIMIT", 10),
		BrokerTimeout:         getEnvAsDuration("BROKER_TIMEOUT", 15*time.Second),
		LimitPriceFactor:      getEnvAsDecimal("LIMIT_PRICE_FACTOR", decimal.RequireFromString("0.995")),
		PaperFillAfter:        getEnvAsInt("PAPER_FILL_AFTER", 1),
		APIPort:               getEnv("API_PORT", "8080"),
		AdminUsername:         getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:     getEnv("ADMIN_PASSWORD_HASH", ""),
		AdminPassword:         getEnv("ADMIN_PASSWORD", ""),
		AdminTOTPSecret:       getEnv("ADMIN_TOTP_SECRET", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		SessionTTL:            getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		SecureCookies:         getEnvAsBool("SECURE_COOKIES", false),
		RedisURL:              getEnv("REDIS_URL", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JournalPath:           getEnv("JOURNAL_PATH", ""),
		SettingsFile:          getEnv("SETTINGS_FILE", ".env"),
		SchedulerTickInterval: getEnvAsDuration("SCHEDULER_TICK_INTERVAL", 1*time.Second),
		OrderCheckInterval:    getEnvAsDuration("ORDER_CHECK_INTERVAL", 5*time.Minute),
		BuyLockTTL:            getEnvAsDuration("BUY_LOCK_TTL", 2*time.Minute),
		TelegramEnabled:       getEnvAsBool("TELEGRAM_NOTIFICATIONS_ENABLED", false),
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:        getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:            getEnv("WEBHOOK_URL", ""),
		PprofAddr:             getEnv("PPROF_ADDR", ""),
		Logging:               loadLoggingConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that would make startup fail later anyway
func (c *Config) Validate() error {
	switch c.BrokerMode {
	case BrokerModeCoinbase:
		if c.CoinbaseAPIKey == "" || c.CoinbaseAPISecret == "" {
			return fmt.Errorf("COINBASE_API_KEY and COINBASE_API_SECRET are required in coinbase mode")
		}
	case BrokerModePaper:
		if c.PaperFillAfter < 0 {
			return fmt.Errorf("PAPER_FILL_AFTER cannot be negative")
		}
	default:
		return fmt.Errorf("BROKER_MODE must be %q or %q, got %q", BrokerModeCoinbase, BrokerModePaper, c.BrokerMode)
	}

	if c.BrokerRateLimit <= 0 {
		return fmt.Errorf("BROKER_RATE_LIMIT must be > 0")
	}
	if c.BrokerTimeout <= 0 {
		return fmt.Errorf("BROKER_TIMEOUT must be > 0")
	}
	if !c.LimitPriceFactor.IsPositive() || c.LimitPriceFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("LIMIT_PRICE_FACTOR must be in (0, 1]")
	}
	if c.SchedulerTickInterval <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_INTERVAL must be > 0")
	}
	if c.OrderCheckInterval < time.Second {
		return fmt.Errorf("ORDER_CHECK_INTERVAL must be at least 1s")
	}
	if c.APIPort != "" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when the API is enabled")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

// TelegramConfigured reports whether Telegram delivery can actually run
func (c *Config) TelegramConfigured() bool {
	return c.TelegramEnabled && c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// APIEnabled reports whether the dashboard API should be served
func (c *Config) APIEnabled() bool {
	return c.APIPort != "" && (c.AdminPasswordHash != "" || c.AdminPassword != "")
}

// Warnings lists non-fatal configuration problems worth logging at startup
func (c *Config) Warnings() []string {
	var warnings []string
	if c.TelegramEnabled && !c.TelegramConfigured() {
		warnings = append(warnings, "TELEGRAM_NOTIFICATIONS_ENABLED is set but TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID is missing")
	}
	if c.APIPort != "" && c.AdminPasswordHash == "" && c.AdminPassword == "" {
		warnings = append(warnings, "no ADMIN_PASSWORD_HASH or ADMIN_PASSWORD set, the API is disabled")
	}
	return warnings
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(strings.ToLower(level))
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(strings.ToLower(format))
	}

	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", cfg.File.Path)
	cfg.File.OrderPath = getEnv("LOG_ORDER_FILE_PATH", "")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", cfg.File.MaxSizeMB)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	return cfg
}
