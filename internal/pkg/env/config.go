package env

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendFile  = "file"
	StoreBackendMySQL = "mysql"

	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"

	ResetModeCalendar = "calendar"
	ResetModeRolling  = "rolling"
)

// Config is the typed view of the ledger's environment.
type Config struct {
	Host string
	Port string

	StoreBackend string
	FilePath     string
	StoreTimeout time.Duration

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	CacheHost     string
	CachePort     int
	CachePassword string

	LockBackend string
	LockTTL     time.Duration

	CatalogPath string
	FreePlanID  string

	ResetMode        string
	ResetTimezone    string
	RollingPeriodDay int

	FastSpringWebhookSecret string
	AdminAPIKeyHash         string
	WebhookEventLog         string

	RateLimitMax     int
	RateLimitWindow  time.Duration
	RateLimitBackend string

	SnapshotEnabled bool
	SnapshotCron    string
	S3AccessKeyID   string
	S3SecretKey     string
	S3Region        string
	S3Bucket        string
	S3Endpoint      string
	S3Prefix        string
}

// LoadConfig reads Config from the loaded .env map and the process environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Host:                    GetEnv("APP_HOST", "localhost"),
		Port:                    GetEnv("APP_PORT", "4000"),
		StoreBackend:            strings.ToLower(GetEnv("LEDGER_STORE", StoreBackendFile)),
		FilePath:                GetEnv("LEDGER_FILE_PATH", "data/current-plan.json"),
		DBUser:                  GetEnv("DB_USER", ""),
		DBPassword:              GetEnv("DB_PASSWORD", ""),
		DBHost:                  GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:                  GetEnv("DB_PORT", "3306"),
		DBName:                  GetEnv("DB_NAME", ""),
		CacheHost:               GetEnv("CACHE_HOST", "localhost"),
		CachePassword:           GetEnv("CACHE_PASSWORD", ""),
		LockBackend:             strings.ToLower(GetEnv("LOCK_BACKEND", LockBackendMemory)),
		CatalogPath:             GetEnv("PLAN_CATALOG_PATH", ""),
		FreePlanID:              GetEnv("FREE_PLAN_ID", "free"),
		ResetMode:               strings.ToLower(GetEnv("USAGE_RESET_MODE", ResetModeCalendar)),
		ResetTimezone:           GetEnv("USAGE_RESET_TZ", "Local"),
		FastSpringWebhookSecret: GetEnv("FASTSPRING_WEBHOOK_SECRET", ""),
		AdminAPIKeyHash:         GetEnv("ADMIN_API_KEY_HASH", ""),
		WebhookEventLog:         strings.ToLower(GetEnv("WEBHOOK_EVENT_LOG", "memory")),
		RateLimitBackend:        strings.ToLower(GetEnv("RATE_LIMIT_BACKEND", "memory")),
		SnapshotEnabled:         GetEnv("SNAPSHOT_ENABLED", "false") == "true",
		SnapshotCron:            GetEnv("SNAPSHOT_CRON", "@daily"),
		S3AccessKeyID:           GetEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:             GetEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Region:                GetEnv("S3_REGION", "us-east-1"),
		S3Bucket:                GetEnv("S3_BUCKET_NAME", ""),
		S3Endpoint:              GetEnv("S3_ENDPOINT_URL", ""),
		S3Prefix:                GetEnv("S3_PREFIX", "ledger"),
	}

	var err error
	if cfg.CachePort, err = strconv.Atoi(GetEnv("CACHE_PORT", "6379")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_PORT: %w", err)
	}
	if cfg.StoreTimeout, err = time.ParseDuration(GetEnv("STORE_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}
	if cfg.LockTTL, err = time.ParseDuration(GetEnv("LOCK_TTL", "10s")); err != nil {
		return nil, fmt.Errorf("invalid LOCK_TTL: %w", err)
	}
	if cfg.RateLimitMax, err = strconv.Atoi(GetEnv("RATE_LIMIT_MAX", "120")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_MAX: %w", err)
	}
	if cfg.RateLimitWindow, err = time.ParseDuration(GetEnv("RATE_LIMIT_WINDOW", "1m")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RollingPeriodDay, err = strconv.Atoi(GetEnv("USAGE_ROLLING_DAYS", "30")); err != nil {
		return nil, fmt.Errorf("invalid USAGE_ROLLING_DAYS: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendFile:
		if strings.TrimSpace(c.FilePath) == "" {
			return fmt.Errorf("LEDGER_FILE_PATH is required for the file store")
		}
	case StoreBackendMySQL:
		if c.DBName == "" {
			return fmt.Errorf("DB_NAME is required for the mysql store")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_STORE %q", c.StoreBackend)
	}

	switch c.LockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}

	switch c.ResetMode {
	case ResetModeCalendar:
		if _, err := c.ResetLocation(); err != nil {
			return err
		}
	case ResetModeRolling:
		if c.RollingPeriodDay <= 0 {
			return fmt.Errorf("USAGE_ROLLING_DAYS must be positive")
		}
	default:
		return fmt.Errorf("unsupported USAGE_RESET_MODE %q", c.ResetMode)
	}

	switch c.WebhookEventLog {
	case "memory", "redis", StoreBackendMySQL:
	default:
		return fmt.Errorf("unsupported WEBHOOK_EVENT_LOG %q", c.WebhookEventLog)
	}
	if c.WebhookEventLog == StoreBackendMySQL && c.DBName == "" {
		return fmt.Errorf("DB_NAME is required for the mysql webhook event log")
	}

	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}

	if c.SnapshotEnabled {
		if c.StoreBackend != StoreBackendFile {
			return fmt.Errorf("SNAPSHOT_ENABLED requires the file store")
		}
		if c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretKey == "" {
			return fmt.Errorf("S3_BUCKET_NAME, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when snapshots are enabled")
		}
	}
	return nil
}

// ResetLocation resolves USAGE_RESET_TZ.
func (c *Config) ResetLocation() (*time.Location, error) {
	switch strings.TrimSpace(c.ResetTimezone) {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGE_RESET_TZ: %w", err)
	}
	return loc, nil
}

// UsesRedis reports whether any component is configured to use the cache server.
func (c *Config) UsesRedis() bool {
	return c.LockBackend == LockBackendRedis || c.WebhookEventLog == "redis" || c.RateLimitBackend == "redis"
}

// UsesMySQL reports whether any component is configured to use the database.
func (c *Config) UsesMySQL() bool {
	return c.StoreBackend == StoreBackendMySQL || c.WebhookEventLog == StoreBackendMySQL
}

// MySQLDSN builds the GORM DSN for the mysql store.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
