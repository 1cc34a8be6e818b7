package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsignal/internal/indicator"
	"coinsignal/internal/strategy"
)

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, indicator.DefaultParams(), cfg.Indicators)
	assert.Equal(t, strategy.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, "*/5 * * * *", cfg.RescanCron)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.Brokers())
}

func TestLoad_EnvAndOverlay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "coinsignal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
indicators:
  rsi_period: 7
  bollinger_k: 2.5
thresholds:
  rsi_oversold: 25
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("WINDOW_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Indicators.RSIPeriod)
	assert.Equal(t, 26, cfg.Indicators.MACDSlow)
	assert.Equal(t, 2.5, cfg.Indicators.BollingerK)
	assert.Equal(t, 25.0, cfg.Thresholds.RSIOversold)
	assert.Equal(t, 70.0, cfg.Thresholds.RSIOverbought)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 200, cfg.WindowSize)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RESCAN_CRON=@hourly\n"), 0o644))
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RESCAN_CRON", "")
	os.Unsetenv("RESCAN_CRON") // godotenv only fills unset keys

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "@hourly", cfg.RescanCron)
}

func TestLoad_InvalidOverlay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indicators:\n  macd_fast: 40\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, indicator.ErrInvalidParams)
}

func TestValidate_WindowTooSmall(t *testing.T) {
	cfg := &Config{
		Indicators: indicator.DefaultParams(),
		Thresholds: strategy.DefaultThresholds(),
		WindowSize: 10,
	}
	assert.Error(t, cfg.Validate())
	cfg.WindowSize = 26
	assert.NoError(t, cfg.Validate())
}
