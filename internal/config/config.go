package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"focusloop/internal/cycle"
	"focusloop/internal/ipc"
)

// ErrInvalidConfig marks values the daemon cannot run with.
var ErrInvalidConfig = errors.New("config: invalid value")

// The countdown re-reads the clock at least once per second.
const maxPollIntervalMS = 1000

// CycleConfig holds the cycle lengths. Durations are minutes, or seconds
// when TestMode is set.
type CycleConfig struct {
	TestMode         bool  `mapstructure:"test_mode"`
	Focus            int   `mapstructure:"focus"`
	Rest             int   `mapstructure:"rest"`
	LongRest         int   `mapstructure:"long_rest"`
	LongRestInterval int   `mapstructure:"long_rest_interval"`
	MaxDeferrals     int   `mapstructure:"max_deferrals"`
	DeferralOptions  []int `mapstructure:"deferral_options"`
}

type BarkConfig struct {
	Key    string `mapstructure:"key"`
	Server string `mapstructure:"server"`
}

type SoundConfig struct {
	Player string            `mapstructure:"player"`
	Files  map[string]string `mapstructure:"files"` // notice kind -> sound file
}

type NotifyConfig struct {
	Desktop bool        `mapstructure:"desktop"`
	Log     bool        `mapstructure:"log"`
	Bark    BarkConfig  `mapstructure:"bark"`
	Sound   SoundConfig `mapstructure:"sound"`
}

type DistractionConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Apps    []string `mapstructure:"apps"` // WM_CLASS values, case-insensitive
}

type Config struct {
	DatabasePath              string            `mapstructure:"database_path"`
	SocketPath                string            `mapstructure:"socket_path"`
	PollIntervalMS            int               `mapstructure:"poll_interval_ms"`
	LogLevel                  string            `mapstructure:"log_level"`
	CollectMode               string            `mapstructure:"collect_mode"` // "always", "focus" or "off"
	CollectionIntervalSeconds int               `mapstructure:"collection_interval_seconds"`
	Cycle                     CycleConfig       `mapstructure:"cycle"`
	Notify                    NotifyConfig      `mapstructure:"notify"`
	Distraction               DistractionConfig `mapstructure:"distraction"`
}

// Loader keeps the viper instance around so the file can be watched.
type Loader struct {
	v *viper.Viper
}

func NewLoader(configPath string) *Loader {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/focusloop")
		v.AddConfigPath("/etc/focusloop/")
	}

	v.SetEnvPrefix("FOCUSLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", "focusloop.db")
	v.SetDefault("socket_path", ipc.SocketPath)
	v.SetDefault("poll_interval_ms", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("collect_mode", "always")
	v.SetDefault("collection_interval_seconds", 2)
	v.SetDefault("cycle.test_mode", false)
	v.SetDefault("cycle.focus", 25)
	v.SetDefault("cycle.rest", 5)
	v.SetDefault("cycle.long_rest", 15)
	v.SetDefault("cycle.long_rest_interval", 4)
	v.SetDefault("cycle.max_deferrals", 3)
	v.SetDefault("cycle.deferral_options", []int{5, 10, 15})
	v.SetDefault("notify.desktop", true)
	v.SetDefault("notify.log", true)
	v.SetDefault("notify.bark.key", "")
	v.SetDefault("notify.bark.server", "https://api.day.app")
	v.SetDefault("notify.sound.player", "")
	v.SetDefault("distraction.enabled", false)
	v.SetDefault("distraction.apps", []string{})

	return &Loader{v: v}
}

// LoadConfig reads configuration once.
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the config file (a missing one is fine) and the environment.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Info().Msg("Config file not found, using defaults")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.sanitize()
	if cfg.PollIntervalMS > maxPollIntervalMS {
		return nil, fmt.Errorf("%w: poll_interval_ms %d exceeds %d", ErrInvalidConfig, cfg.PollIntervalMS, maxPollIntervalMS)
	}
	if err := cfg.Cycle.Settings().Validate(); err != nil {
		return nil, err
	}
	log.Debug().Interface("config", cfg).Msg("Configuration loaded")
	return &cfg, nil
}

// File is the config file in use, or empty when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read config whenever the file is
// written. Broken edits are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring config change")
			return
		}
		log.Info().Str("file", e.Name).Msg("Config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (c *Config) sanitize() {
	if c.CollectionIntervalSeconds < 1 {
		log.Warn().Int("collection_interval_seconds", c.CollectionIntervalSeconds).Msg("Interval too low, using 1")
		c.CollectionIntervalSeconds = 1
	}
	switch c.CollectMode {
	case "always", "focus", "off":
	default:
		log.Warn().Str("collect_mode", c.CollectMode).Msg("Invalid collect_mode, using always")
		c.CollectMode = "always"
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 100
	}
	if c.SocketPath == "" {
		c.SocketPath = ipc.SocketPath
	}
}

// PollInterval is the countdown poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// CollectionInterval is the window focus sampling cadence.
func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSeconds) * time.Second
}

// Settings converts the configured lengths into cycle settings.
func (c CycleConfig) Settings() cycle.Settings {
	unit := 60
	s := cycle.DefaultSettings()
	if c.TestMode {
		unit = 1
		s = cycle.TestSettings()
	}
	s.FocusSeconds = c.Focus * unit
	s.BaseRestSeconds = c.Rest * unit
	s.ExtendedRestSeconds = c.LongRest * unit
	s.ExtendedRestInterval = c.LongRestInterval
	s.MaxDeferrals = c.MaxDeferrals
	s.DeferralOptions = make([]int, len(c.DeferralOptions))
	for i, opt := range c.DeferralOptions {
		s.DeferralOptions[i] = opt * unit
	}
	return s
}
