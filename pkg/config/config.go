package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
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
	History     HistoryConfig
	Preferences PreferenceConfig
	Exports     ExportsConfig
	Previews    PreviewConfig
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

	StatementTimeout time.Duration
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	KeyNamespace string
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// HistoryConfig tunes the history grids and their data source.
type HistoryConfig struct {
	DefaultPageSize  int
	MaxPageSize      int
	DefaultRangeDays int
	SessionTTL       time.Duration
	FetchTimeout     time.Duration
	CacheTTL         time.Duration
	CacheEnabled     bool
	FetchWorkers     int
	FetchQueueSize   int
	Timezone         string
	QALinkBase       string
}

// Location resolves the configured time zone, falling back to UTC.
func (c HistoryConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PreferenceConfig controls how long user preferences are kept.
type PreferenceConfig struct {
	TTL time.Duration
}

// ExportsConfig configures grid exports and their signed download links.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// PreviewConfig locates the CCD preview images and signs links to them.
type PreviewConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

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

		StatementTimeout: parseDuration(v.GetString("DB_STATEMENT_TIMEOUT"), 30*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout:  parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
		KeyNamespace: v.GetString("REDIS_KEY_NAMESPACE"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.History = HistoryConfig{
		DefaultPageSize:  v.GetInt("HISTORY_DEFAULT_PAGE_SIZE"),
		MaxPageSize:      v.GetInt("HISTORY_MAX_PAGE_SIZE"),
		DefaultRangeDays: v.GetInt("HISTORY_DEFAULT_RANGE_DAYS"),
		SessionTTL:       parseDuration(v.GetString("HISTORY_SESSION_TTL"), 30*time.Minute),
		FetchTimeout:     parseDuration(v.GetString("HISTORY_FETCH_TIMEOUT"), 15*time.Second),
		CacheTTL:         parseDuration(v.GetString("HISTORY_CACHE_TTL"), 15*time.Second),
		CacheEnabled:     v.GetBool("HISTORY_CACHE_ENABLED"),
		FetchWorkers:     v.GetInt("HISTORY_FETCH_WORKERS"),
		FetchQueueSize:   v.GetInt("HISTORY_FETCH_QUEUE_SIZE"),
		Timezone:         v.GetString("HISTORY_TIMEZONE"),
		QALinkBase:       v.GetString("HISTORY_QA_LINK_BASE"),
	}

	cfg.Preferences = PreferenceConfig{
		TTL: parseDuration(v.GetString("PREFERENCES_TTL"), 720*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	cfg.Previews = PreviewConfig{
		StorageDir:      v.GetString("PREVIEWS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("PREVIEWS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("PREVIEWS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// developmentSecrets are the defaults shipped for local runs.
var developmentSecrets = map[string]bool{
	"dev_secret":          true,
	"dev_exports_secret":  true,
	"dev_previews_secret": true,
}

// Validate reports every setting the service cannot start with. Production
// refuses the development signing secrets.
func (c *Config) Validate() error {
	var problems []error
	h := c.History
	if h.DefaultPageSize <= 0 || h.MaxPageSize < h.DefaultPageSize {
		problems = append(problems, fmt.Errorf("history page sizes: default %d, max %d", h.DefaultPageSize, h.MaxPageSize))
	}
	if h.DefaultRangeDays <= 0 {
		problems = append(problems, fmt.Errorf("HISTORY_DEFAULT_RANGE_DAYS must be positive, got %d", h.DefaultRangeDays))
	}
	if h.FetchWorkers <= 0 || h.FetchQueueSize <= 0 {
		problems = append(problems, fmt.Errorf("fetch queue: %d workers, %d slots", h.FetchWorkers, h.FetchQueueSize))
	}
	if h.Timezone != "" {
		if _, err := time.LoadLocation(h.Timezone); err != nil {
			problems = append(problems, fmt.Errorf("HISTORY_TIMEZONE: %w", err))
		}
	}
	if c.Env == EnvProduction {
		secrets := []struct{ key, value string }{
			{"JWT_SECRET", c.JWT.Secret},
			{"EXPORTS_SIGNED_URL_SECRET", c.Exports.SignedURLSecret},
			{"PREVIEWS_SIGNED_URL_SECRET", c.Previews.SignedURLSecret},
		}
		for _, s := range secrets {
			if s.value == "" || developmentSecrets[s.value] {
				problems = append(problems, fmt.Errorf("%s must be set in production", s.key))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "qlf")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_KEY_NAMESPACE", "qlf:")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("HISTORY_DEFAULT_PAGE_SIZE", 25)
	v.SetDefault("HISTORY_MAX_PAGE_SIZE", 500)
	v.SetDefault("HISTORY_DEFAULT_RANGE_DAYS", 7)
	v.SetDefault("HISTORY_SESSION_TTL", "30m")
	v.SetDefault("HISTORY_FETCH_TIMEOUT", "15s")
	v.SetDefault("HISTORY_CACHE_TTL", "15s")
	v.SetDefault("HISTORY_CACHE_ENABLED", true)
	v.SetDefault("HISTORY_FETCH_WORKERS", 4)
	v.SetDefault("HISTORY_FETCH_QUEUE_SIZE", 64)
	v.SetDefault("HISTORY_TIMEZONE", "UTC")
	v.SetDefault("HISTORY_QA_LINK_BASE", "/monitor/qa")

	v.SetDefault("PREFERENCES_TTL", "720h")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")

	v.SetDefault("PREVIEWS_STORAGE_DIR", "./ccd_previews")
	v.SetDefault("PREVIEWS_SIGNED_URL_SECRET", "dev_previews_secret")
	v.SetDefault("PREVIEWS_SIGNED_URL_TTL", "30m")
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
