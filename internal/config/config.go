package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret   string
	JWTExpiry   time.Duration
	CORSOrigins []string

	// Ledger gateway
	LedgerRPCURL         string
	LedgerTimeout        time.Duration
	BreakerMaxFailures   uint32
	BreakerOpenTimeout   time.Duration
	SubmissionsPerMinute int

	// Goal-tracking program
	PackageID      string
	GoalModule     string
	GlobalLedgerID string

	// Yield pool
	YieldPackageID string
	YieldPoolID    string
	BaseCoinType   string
	StableCoinType string
	ShareType      string
	BaseSymbol     string
	BaseDecimals   int32

	// Indexer
	IndexerEnabled      bool
	IndexerPollInterval time.Duration
	IndexerPageSize     int

	// View cache (optional: in-memory when REDIS_URL is empty)
	RedisURL    string
	CachePrefix string
	CacheTTL    time.Duration

	// Events (optional: log mode when KAFKA_BROKERS is empty)
	KafkaBrokers []string
	KafkaTopic   string

	// Price oracle (optional)
	OracleURL          string
	OraclePollInterval time.Duration

	// Observability (optional)
	SentryDSN string

	// Storage for history exports (S3-compatible, optional)
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string        // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
	S3PresignExpiry time.Duration // Expiry for export download links - default: 1 hour
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Piggy Bank"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:8090"),
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/piggybank.db"),

		// Security
		JWTSecret:   envRequired("JWT_SECRET"),
		JWTExpiry:   envDuration("JWT_EXPIRY", 24*time.Hour),
		CORSOrigins: envList("CORS_ORIGINS", "http://localhost:3000"),

		// Ledger gateway
		LedgerRPCURL:         envRequired("LEDGER_RPC_URL"),
		LedgerTimeout:        envDuration("LEDGER_TIMEOUT", 30*time.Second),
		BreakerMaxFailures:   uint32(envInt("LEDGER_BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout:   envDuration("LEDGER_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		SubmissionsPerMinute: envInt("SUBMISSIONS_PER_MINUTE", 20),

		// Goal-tracking program
		PackageID:      envRequired("PACKAGE_ID"),
		GoalModule:     envString("GOAL_MODULE", "bucky_bank"),
		GlobalLedgerID: envRequired("GLOBAL_LEDGER_ID"),

		// Yield pool
		YieldPackageID: envRequired("YIELD_PACKAGE_ID"),
		YieldPoolID:    envString("YIELD_POOL_ID", ""),
		BaseCoinType:   envString("BASE_COIN_TYPE", "0x2::sui::SUI"),
		StableCoinType: envString("STABLE_COIN_TYPE", ""),
		ShareType:      envString("SHARE_TYPE", ""),
		BaseSymbol:     envString("BASE_SYMBOL", "SUI"),
		BaseDecimals:   int32(envInt("BASE_DECIMALS", 9)),

		// Indexer
		IndexerEnabled:      envBool("INDEXER_ENABLED", true),
		IndexerPollInterval: envDuration("INDEXER_POLL_INTERVAL", 5*time.Second),
		IndexerPageSize:     envInt("INDEXER_PAGE_SIZE", 50),

		// View cache
		RedisURL:    envString("REDIS_URL", ""),
		CachePrefix: envString("CACHE_PREFIX", "piggybank:"),
		CacheTTL:    envDuration("CACHE_TTL", 5*time.Minute),

		// Events
		KafkaBrokers: envList("KAFKA_BROKERS", ""),
		KafkaTopic:   envString("KAFKA_TOPIC", "piggybank.submissions"),

		// Price oracle
		OracleURL:          envString("ORACLE_URL", ""),
		OraclePollInterval: envDuration("ORACLE_POLL_INTERVAL", time.Minute),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage (S3-compatible - required for history exports only)
		S3Region:        envString("S3_REGION", ""),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", 1*time.Hour),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures the services a deployment cannot run without are configured.
// Development allows the yield pool and Sentry to be missing for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.YieldPoolID == "" || cfg.StableCoinType == "" || cfg.ShareType == "" {
		slog.Error("production deployment requires YIELD_POOL_ID, STABLE_COIN_TYPE and SHARE_TYPE")
		os.Exit(1)
	}
	if cfg.SentryDSN == "" {
		slog.Warn("production deployment without SENTRY_DSN, errors are only logged")
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envList splits a comma-separated value, dropping empty items.
func envList(key, def string) []string {
	var out []string
	for _, item := range strings.Split(envString(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and connection strings are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName: c.AppName,
		AppEnv:  c.AppEnv,
		AppURL:  c.AppURL,
		Port:    c.Port,

		PackageID:      c.PackageID,
		GoalModule:     c.GoalModule,
		GlobalLedgerID: c.GlobalLedgerID,
		YieldPackageID: c.YieldPackageID,
		YieldPoolID:    c.YieldPoolID,
		BaseCoinType:   c.BaseCoinType,
		StableCoinType: c.StableCoinType,
		ShareType:      c.ShareType,
		BaseSymbol:     c.BaseSymbol,
		BaseDecimals:   c.BaseDecimals,

		S3Endpoint: c.S3Endpoint,
	}
}
