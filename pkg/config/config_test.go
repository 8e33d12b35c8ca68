package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 25, cfg.History.DefaultPageSize)
	assert.Equal(t, 500, cfg.History.MaxPageSize)
	assert.Equal(t, 7, cfg.History.DefaultRangeDays)
	assert.Equal(t, 30*time.Minute, cfg.History.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.History.FetchTimeout)
	assert.Equal(t, 4, cfg.History.FetchWorkers)
	assert.Equal(t, time.UTC, cfg.History.Location())
	assert.Equal(t, 720*time.Hour, cfg.Preferences.TTL)
	assert.Equal(t, "qlf:", cfg.Redis.KeyNamespace)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HISTORY_DEFAULT_PAGE_SIZE", "50")
	t.Setenv("HISTORY_FETCH_TIMEOUT", "3s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, ,http://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.History.DefaultPageSize)
	assert.Equal(t, 3*time.Second, cfg.History.FetchTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
	assert.Equal(t, time.UTC, HistoryConfig{Timezone: "Mars/Olympus"}.Location())
}

func TestLoadRejectsInvalidHistorySettings(t *testing.T) {
	t.Setenv("HISTORY_DEFAULT_PAGE_SIZE", "100")
	t.Setenv("HISTORY_MAX_PAGE_SIZE", "50")
	t.Setenv("HISTORY_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history page sizes")
	assert.Contains(t, err.Error(), "HISTORY_TIMEZONE")
}

func TestValidateProductionSecrets(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "PREVIEWS_SIGNED_URL_SECRET")

	t.Setenv("JWT_SECRET", "s1")
	t.Setenv("EXPORTS_SIGNED_URL_SECRET", "s2")
	t.Setenv("PREVIEWS_SIGNED_URL_SECRET", "s3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
}
