package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Storage: "postgres", "sqlite" or "memory"
	StoreDriver string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Ledger: "memory" or "ethereum"
	LedgerDriver      string
	LedgerRPCURL      string
	LedgerContract    string
	LedgerOperatorKey string
	LedgerChainID     int64
	LedgerTimeout     time.Duration

	// Reconciler
	ReconcileSchedule string
	ReconcileGrace    time.Duration

	// Statistics cache (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsCacheTTL time.Duration

	// Observability
	SentryDSN    string
	AppEnv       string
	LogLevel     string
	LogRetention time.Duration

	// Server
	Port           string
	CORSOrigins    string
	RateLimit      int
	AuthRateLimit  int
	MetricsEnabled bool
}

// Load reads the environment, after merging an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "hydrogen_credits"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m")),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h")),

		LedgerDriver:      getEnv("LEDGER_DRIVER", "memory"),
		LedgerRPCURL:      getEnv("LEDGER_RPC_URL", "http://127.0.0.1:8545"),
		LedgerContract:    getEnv("LEDGER_CONTRACT_ADDRESS", ""),
		LedgerOperatorKey: getEnv("LEDGER_OPERATOR_KEY", ""),
		LedgerChainID:     int64(getEnvInt("LEDGER_CHAIN_ID", 31337)),
		LedgerTimeout:     parseDuration(getEnv("LEDGER_TIMEOUT", "30s")),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1m"),
		ReconcileGrace:    parseDuration(getEnv("RECONCILE_GRACE", "2m")),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		StatsCacheTTL: parseDuration(getEnv("STATS_CACHE_TTL", "1m")),

		SentryDSN:    getEnv("SENTRY_DSN", ""),
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogRetention: parseDuration(getEnv("LOG_RETENTION", "720h")),

		Port:           getEnv("PORT", "8080"),
		CORSOrigins:    getEnv("CORS_ORIGINS", "*"),
		RateLimit:      getEnvInt("RATE_LIMIT", 100),
		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 10),
		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}
