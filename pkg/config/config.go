package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers for KeyedStorage.
const (
	KVDriverMemory = "memory"
	KVDriverRedis  = "redis"
	KVDriverSQLite = "sqlite"
)

// Report storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	KV          KVConfig
	Sessions    SessionConfig
	Listing     ListingConfig
	Bulk        BulkConfig
	Reports     ReportsConfig
	Events      EventsConfig
	Maintenance MaintenanceConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// KVConfig selects the backend persisting tracker snapshots and other keyed values.
type KVConfig struct {
	Driver        string
	SQLitePath    string
	Channel       string
	PurgeInterval time.Duration
}

// SessionConfig tunes the session tracker.
type SessionConfig struct {
	SnapshotTTL time.Duration
}

// ListingConfig governs list snapshots and paging defaults.
type ListingConfig struct {
	CacheTTL        time.Duration
	DefaultPageSize int
	PageWindow      int
	SnapshotLimit   int
}

// BulkConfig bounds fan-out for bulk actions.
type BulkConfig struct {
	Concurrency int
	MaxItems    int
}

// ReportsConfig configures score report exports.
type ReportsConfig struct {
	StorageDriver   string
	StorageDir      string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// EventsConfig toggles session lifecycle publishing.
type EventsConfig struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	Workers    int
	MaxRetries int
}

// MaintenanceConfig governs the cancelled-session sweep.
type MaintenanceConfig struct {
	SweepInterval      time.Duration
	CancelledRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		QueryTimeout: parseDuration(v.GetString("DB_QUERY_TIMEOUT"), 0),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.KV = KVConfig{
		Driver:        strings.ToLower(v.GetString("KV_DRIVER")),
		SQLitePath:    v.GetString("KV_SQLITE_PATH"),
		Channel:       v.GetString("KV_CHANGE_CHANNEL"),
		PurgeInterval: parseDuration(v.GetString("KV_TTL_PURGE_INTERVAL"), time.Minute),
	}

	cfg.Sessions = SessionConfig{
		SnapshotTTL: parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
	}

	cfg.Listing = ListingConfig{
		CacheTTL:        parseDuration(v.GetString("LISTING_CACHE_TTL"), 30*time.Second),
		DefaultPageSize: v.GetInt("LISTING_DEFAULT_PAGE_SIZE"),
		PageWindow:      v.GetInt("LISTING_PAGE_WINDOW"),
		SnapshotLimit:   v.GetInt("LISTING_SNAPSHOT_LIMIT"),
	}

	cfg.Bulk = BulkConfig{
		Concurrency: v.GetInt("BULK_CONCURRENCY"),
		MaxItems:    v.GetInt("BULK_MAX_ITEMS"),
	}

	cfg.Reports = ReportsConfig{
		StorageDriver:   strings.ToLower(v.GetString("REPORTS_STORAGE_DRIVER")),
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		S3Bucket:        v.GetString("REPORTS_S3_BUCKET"),
		S3Region:        v.GetString("REPORTS_S3_REGION"),
		S3Endpoint:      v.GetString("REPORTS_S3_ENDPOINT"),
		S3PathStyle:     v.GetBool("REPORTS_S3_PATH_STYLE"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Events = EventsConfig{
		Enabled:    v.GetBool("ENABLE_SESSION_EVENTS"),
		Brokers:    splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:      v.GetString("SESSION_EVENTS_TOPIC"),
		Workers:    v.GetInt("SESSION_EVENTS_WORKERS"),
		MaxRetries: v.GetInt("SESSION_EVENTS_RETRIES"),
	}

	cfg.Maintenance = MaintenanceConfig{
		SweepInterval:      parseDuration(v.GetString("MAINTENANCE_SWEEP_INTERVAL"), 6*time.Hour),
		CancelledRetention: parseDuration(v.GetString("MAINTENANCE_CANCELLED_RETENTION"), 30*24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bat7")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_QUERY_TIMEOUT", "")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "bat7-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("KV_DRIVER", KVDriverMemory)
	v.SetDefault("KV_SQLITE_PATH", "./data/bat7-kv.db")
	v.SetDefault("KV_CHANGE_CHANNEL", "bat7:kv:changes")
	v.SetDefault("KV_TTL_PURGE_INTERVAL", "1m")
	v.SetDefault("SESSION_TTL", "12h")

	v.SetDefault("LISTING_CACHE_TTL", "30s")
	v.SetDefault("LISTING_DEFAULT_PAGE_SIZE", 10)
	v.SetDefault("LISTING_PAGE_WINDOW", 5)
	v.SetDefault("LISTING_SNAPSHOT_LIMIT", 5000)

	v.SetDefault("BULK_CONCURRENCY", 8)
	v.SetDefault("BULK_MAX_ITEMS", 500)

	v.SetDefault("REPORTS_STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_S3_BUCKET", "")
	v.SetDefault("REPORTS_S3_REGION", "us-east-1")
	v.SetDefault("REPORTS_S3_ENDPOINT", "")
	v.SetDefault("REPORTS_S3_PATH_STYLE", false)
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("ENABLE_SESSION_EVENTS", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("SESSION_EVENTS_TOPIC", "bat7.test-sessions")
	v.SetDefault("SESSION_EVENTS_WORKERS", 1)
	v.SetDefault("SESSION_EVENTS_RETRIES", 3)

	v.SetDefault("MAINTENANCE_SWEEP_INTERVAL", "6h")
	v.SetDefault("MAINTENANCE_CANCELLED_RETENTION", "720h")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
