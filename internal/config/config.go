package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/codeboard/internal/speech"
	"github.com/balaji-balu/codeboard/pkg/model"
)

const EnvPrefix = "CODEBOARD"

type Peer struct {
	ID  string `mapstructure:"id" yaml:"id"`
	URL string `mapstructure:"url" yaml:"url"`
}

type Viewport struct {
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

type Config struct {
	Env     string `mapstructure:"env" yaml:"env"`
	Service string `mapstructure:"service" yaml:"service"`

	Store struct {
		URL string `mapstructure:"url" yaml:"url"`
	} `mapstructure:"store" yaml:"store"`

	Poller struct {
		Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
		Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
		HistorySize  int           `mapstructure:"history_size" yaml:"history_size"`
		HistoryEvict int           `mapstructure:"history_evict" yaml:"history_evict"`
	} `mapstructure:"poller" yaml:"poller"`

	Health struct {
		BaseInterval time.Duration `mapstructure:"base_interval" yaml:"base_interval"`
		MaxInterval  time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
		LocalTimeout time.Duration `mapstructure:"local_timeout" yaml:"local_timeout"`
		PeerTimeout  time.Duration `mapstructure:"peer_timeout" yaml:"peer_timeout"`
		StaleCheck   time.Duration `mapstructure:"stale_check" yaml:"stale_check"`
		StaleAfter   time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
		PruneAfter   time.Duration `mapstructure:"prune_after" yaml:"prune_after"`
		Peers        []Peer        `mapstructure:"peers" yaml:"peers"`
	} `mapstructure:"health" yaml:"health"`

	Display struct {
		Seconds          int           `mapstructure:"seconds" yaml:"seconds"`
		Tick             time.Duration `mapstructure:"tick" yaml:"tick"`
		Grace            time.Duration `mapstructure:"grace" yaml:"grace"`
		SafetyMargin     int           `mapstructure:"safety_margin" yaml:"safety_margin"`
		Viewport         Viewport      `mapstructure:"viewport" yaml:"viewport"`
		Watchdog         time.Duration `mapstructure:"watchdog" yaml:"watchdog"`
		ScreensaverCheck time.Duration `mapstructure:"screensaver_check" yaml:"screensaver_check"`
		Color            string        `mapstructure:"color" yaml:"color"`
		FontSize         int           `mapstructure:"font_size" yaml:"font_size"`
	} `mapstructure:"display" yaml:"display"`

	Speech struct {
		Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
		Rate      float64  `mapstructure:"rate" yaml:"rate"`
		Engine    string   `mapstructure:"engine" yaml:"engine"`
		Command   string   `mapstructure:"command" yaml:"command"`
		Args      []string `mapstructure:"args" yaml:"args"`
		Transform string   `mapstructure:"transform" yaml:"transform"`
	} `mapstructure:"speech" yaml:"speech"`

	Queue struct {
		MaxLen int `mapstructure:"max_len" yaml:"max_len"`
	} `mapstructure:"queue" yaml:"queue"`

	API struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"api" yaml:"api"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	} `mapstructure:"metrics" yaml:"metrics"`

	Telemetry struct {
		Exporter string `mapstructure:"exporter" yaml:"exporter"`
		Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	} `mapstructure:"telemetry" yaml:"telemetry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("service", "terminal")

	v.SetDefault("store.url", "http://localhost:8090")

	v.SetDefault("poller.interval", 3*time.Second)
	v.SetDefault("poller.timeout", 10*time.Second)
	v.SetDefault("poller.history_size", 100)
	v.SetDefault("poller.history_evict", 20)

	v.SetDefault("health.base_interval", 60*time.Second)
	v.SetDefault("health.max_interval", 300*time.Second)
	v.SetDefault("health.local_timeout", 5*time.Second)
	v.SetDefault("health.peer_timeout", 8*time.Second)
	v.SetDefault("health.stale_check", 30*time.Second)
	v.SetDefault("health.stale_after", 60*time.Second)
	v.SetDefault("health.prune_after", time.Hour)
	v.SetDefault("health.peers", []Peer{})

	v.SetDefault("display.seconds", model.DefaultDisplaySeconds)
	v.SetDefault("display.tick", time.Second)
	v.SetDefault("display.grace", 100*time.Millisecond)
	v.SetDefault("display.safety_margin", 5)
	v.SetDefault("display.viewport.width", 1920)
	v.SetDefault("display.viewport.height", 1080)
	v.SetDefault("display.watchdog", 10*time.Second)
	v.SetDefault("display.screensaver_check", 5*time.Second)
	v.SetDefault("display.color", "#000000")
	v.SetDefault("display.font_size", 0)

	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.rate", 1.0)
	v.SetDefault("speech.engine", "silent")
	v.SetDefault("speech.command", "espeak-ng")
	v.SetDefault("speech.args", []string{"-s", "{wpm}", "{text}"})
	v.SetDefault("speech.transform", "zwsp")

	v.SetDefault("queue.max_len", 0)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
}

// Load reads .env (if any), then path (if non-empty), then CODEBOARD_*
// environment variables over the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Env {
	case "development", "staging", "production":
	default:
		bad("env %q", c.Env)
	}
	if c.Store.URL == "" {
		bad("store.url is required")
	}
	for name, d := range map[string]time.Duration{
		"poller.interval":           c.Poller.Interval,
		"poller.timeout":            c.Poller.Timeout,
		"health.base_interval":      c.Health.BaseInterval,
		"health.max_interval":       c.Health.MaxInterval,
		"health.local_timeout":      c.Health.LocalTimeout,
		"health.peer_timeout":       c.Health.PeerTimeout,
		"health.stale_check":        c.Health.StaleCheck,
		"health.stale_after":        c.Health.StaleAfter,
		"health.prune_after":        c.Health.PruneAfter,
		"display.tick":              c.Display.Tick,
		"display.watchdog":          c.Display.Watchdog,
		"display.screensaver_check": c.Display.ScreensaverCheck,
	} {
		if d <= 0 {
			bad("%s must be positive", name)
		}
	}
	if c.Poller.HistoryEvict <= 0 || c.Poller.HistoryEvict > c.Poller.HistorySize {
		bad("poller.history_evict must be in 1..history_size")
	}
	if c.Display.Viewport.Width <= 0 || c.Display.Viewport.Height <= 0 {
		bad("display.viewport must be positive")
	}
	for i, p := range c.Health.Peers {
		if p.ID == "" || p.URL == "" {
			bad("health.peers[%d] needs id and url", i)
		}
	}
	if err := c.Settings().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Speech.Engine {
	case "silent":
	case "command":
		if c.Speech.Command == "" {
			bad("speech.command is required for the command engine")
		}
	default:
		bad("speech.engine %q", c.Speech.Engine)
	}
	if _, err := speech.TransformByName(c.Speech.Transform); err != nil {
		bad("speech.transform: %v", err)
	}
	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		bad("telemetry.exporter %q", c.Telemetry.Exporter)
	}
	return errors.Join(errs...)
}

// Settings is the viewer-adjustable part of the config.
func (c *Config) Settings() model.Settings {
	return model.Settings{
		DisplaySeconds:   c.Display.Seconds,
		SpeechRate:       c.Speech.Rate,
		FontSize:         c.Display.FontSize,
		Color:            c.Display.Color,
		NarrationEnabled: c.Speech.Enabled,
	}
}

// Dump renders the effective config as YAML.
func Dump(c *Config) ([]byte, error) {
	return yaml.Marshal(c)
}
