package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Window.Timezone)
	assert.Equal(t, 9, cfg.Window.StartHour)
	assert.Equal(t, 18, cfg.Window.EndHour)
	assert.Equal(t, []string{"12-25"}, cfg.Window.Holidays)
	assert.Equal(t, 60*24*time.Hour, cfg.Cooldown)
	assert.Equal(t, 15*time.Second, cfg.Jitter.Min)
	assert.Equal(t, 120*time.Second, cfg.Jitter.Max)
	assert.Equal(t, 30*time.Minute, cfg.Reclaim.StuckAfter)

	strategy := cfg.StatusRetry.Strategy()
	assert.Equal(t, 3, strategy.Attempts)
	assert.Equal(t, 500*time.Millisecond, strategy.Delay)
	assert.Equal(t, 2.0, strategy.Backoff)

	require.Len(t, cfg.Lanes, 2)
	li, ok := cfg.Lane("linkedin")
	require.True(t, ok)
	assert.Equal(t, "push", li.SpacingMode)
	assert.Equal(t, 5*time.Minute, li.MinSpacing)
	assert.Equal(t, 38, li.DailyCap)

	em, ok := cfg.Lane("email")
	require.True(t, ok)
	assert.Equal(t, "pull", em.SpacingMode)
	assert.Equal(t, []string{"email"}, em.Channels)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_WINDOW_TIMEZONE", "Europe/Berlin")
	t.Setenv("APP_COOLDOWN", "720h")
	t.Setenv("APP_DATABASE_DSN", "postgres://u:p@db:5432/x")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Window.Timezone)
	assert.Equal(t, 720*time.Hour, cfg.Cooldown)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
window:
  start_hour: 8
  end_hour: 17
lanes:
  - name: dm-only
    channels: [linkedin_dm]
    spacing_mode: push
    min_spacing: 10m
    daily_cap: 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.defaults.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Window.StartHour)
	assert.Equal(t, 17, cfg.Window.EndHour)
	require.Len(t, cfg.Lanes, 1)
	assert.Equal(t, "dm-only", cfg.Lanes[0].Name)
	assert.Equal(t, 10*time.Minute, cfg.Lanes[0].MinSpacing)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	t.Run("end before start", func(t *testing.T) {
		cfg := base()
		cfg.Window.StartHour = 18
		cfg.Window.EndHour = 9
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown channel", func(t *testing.T) {
		cfg := base()
		cfg.Lanes[0].Channels = []string{"sms"}
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate lane", func(t *testing.T) {
		cfg := base()
		cfg.Lanes[1].Name = cfg.Lanes[0].Name
		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate lane")
	})
}
