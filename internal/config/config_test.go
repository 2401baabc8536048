package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusloop/internal/cycle"
	"focusloop/internal/ipc"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsMatchProductionCycle(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "log_level: debug\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "focusloop.db", cfg.DatabasePath)
	assert.Equal(t, ipc.SocketPath, cfg.SocketPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 2*time.Second, cfg.CollectionInterval())
	assert.True(t, cfg.Cycle.Settings().Equal(cycle.DefaultSettings()))
}

func TestTestModeUsesSeconds(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "cycle:\n  test_mode: true\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Cycle.Settings().Equal(cycle.TestSettings()))
}

func TestFileValuesAndSanitising(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
database_path: /var/lib/focusloop/history.db
collect_mode: sometimes
collection_interval_seconds: 0
poll_interval_ms: -5
cycle:
  focus: 50
  rest: 10
  long_rest: 30
  long_rest_interval: 3
  max_deferrals: 1
  deferral_options: [2, 4]
notify:
  desktop: false
  bark:
    key: abc
  sound:
    player: paplay
    files:
      focus_complete: /usr/share/sounds/bell.oga
distraction:
  enabled: true
  apps: [Steam, discord]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/focusloop/history.db", cfg.DatabasePath)
	assert.Equal(t, "always", cfg.CollectMode)
	assert.Equal(t, 1, cfg.CollectionIntervalSeconds)
	assert.Equal(t, 100, cfg.PollIntervalMS)
	assert.False(t, cfg.Notify.Desktop)
	assert.True(t, cfg.Notify.Log)
	assert.Equal(t, "abc", cfg.Notify.Bark.Key)
	assert.Equal(t, "https://api.day.app", cfg.Notify.Bark.Server)
	assert.Equal(t, "paplay", cfg.Notify.Sound.Player)
	assert.Equal(t, "/usr/share/sounds/bell.oga", cfg.Notify.Sound.Files["focus_complete"])
	assert.True(t, cfg.Distraction.Enabled)
	assert.Equal(t, []string{"Steam", "discord"}, cfg.Distraction.Apps)

	s := cfg.Cycle.Settings()
	assert.Equal(t, 3000, s.FocusSeconds)
	assert.Equal(t, 600, s.BaseRestSeconds)
	assert.Equal(t, 1800, s.ExtendedRestSeconds)
	assert.Equal(t, 3, s.ExtendedRestInterval)
	assert.Equal(t, 1, s.MaxDeferrals)
	assert.Equal(t, []int{120, 240}, s.DeferralOptions)
	assert.Equal(t, 300, s.BonusDivisor)
	assert.Equal(t, 60, s.BonusUnit)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "cycle:\n  focus: 50\n")
	t.Setenv("FOCUSLOOP_CYCLE_FOCUS", "40")
	t.Setenv("FOCUSLOOP_SOCKET_PATH", "/run/user/1000/focusloop.sock")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Cycle.Focus)
	assert.Equal(t, "/run/user/1000/focusloop.sock", cfg.SocketPath)
}

func TestInvalidCycleIsRejected(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "cycle:\n  focus: 0\n")

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, cycle.ErrInvalidSettings)
}

func TestPollIntervalAboveOneSecondIsRejected(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, t.TempDir(), "poll_interval_ms: 1000\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.PollInterval())

	_, err = LoadConfig(writeConfig(t, t.TempDir(), "poll_interval_ms: 5000\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "poll_interval_ms")
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "cycle: [\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestWatchDeliversEditedCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cycle:\n  focus: 25\n")

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, path, loader.File())

	changes := make(chan *Config, 8)
	loader.Watch(func(cfg *Config) { changes <- cfg })

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "cycle:\n  focus: 45\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Cycle.Focus == 45 {
				return
			}
		case <-deadline:
			t.Fatal("config change not delivered")
		}
	}
}
