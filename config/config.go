package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the voice client configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Display DisplayConfig `yaml:"display"`
	Record  RecordConfig  `yaml:"record"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig locates the backend. When ConnectURL is set the client
// first asks it for a room; otherwise it signals SignalURL directly.
type SessionConfig struct {
	ConnectURL string `yaml:"connect_url"`
	SignalURL  string `yaml:"signal_url"`
	BotType    string `yaml:"bot_type"`
	Timeout    int    `yaml:"timeout"` // seconds
}

type AudioConfig struct {
	SampleRate int  `yaml:"sample_rate"`
	Channels   int  `yaml:"channels"`
	Playback   bool `yaml:"playback"`
}

type DisplayConfig struct {
	FrameRate int `yaml:"frame_rate"`
	Rays      int `yaml:"rays"`
}

type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration for a backend on localhost.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			SignalURL: "ws://localhost:8088/session",
			BotType:   "intake",
			Timeout:   30,
		},
		Audio: AudioConfig{
			SampleRate: 48000,
			Channels:   1,
		},
		Display: DisplayConfig{
			FrameRate: 60,
			Rays:      50,
		},
		Record: RecordConfig{
			Dir: "./sessions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if host := getenv("SFU_SERVER"); host != "" {
		if u, err := url.JoinPath(host, "session"); err == nil {
			c.Session.SignalURL = u
		}
	}
	if v := getenv("CONNECT_URL"); v != "" {
		c.Session.ConnectURL = v
	}
	if v := getenv("BOT_TYPE"); v != "" {
		c.Session.BotType = v
	}
}

func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}
	if err := c.Record.Validate(); err != nil {
		return fmt.Errorf("record config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *SessionConfig) Validate() error {
	if s.ConnectURL == "" && s.SignalURL == "" {
		return fmt.Errorf("one of connect_url or signal_url is required")
	}
	if s.ConnectURL != "" {
		u, err := url.Parse(s.ConnectURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("connect_url must be an http(s) URL, got %q", s.ConnectURL)
		}
	}
	if s.SignalURL != "" {
		u, err := url.Parse(s.SignalURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("signal_url must be a ws(s) URL, got %q", s.SignalURL)
		}
	}
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("sample_rate must be an opus rate (8000, 12000, 16000, 24000, 48000), got %d", a.SampleRate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	return nil
}

func (d *DisplayConfig) Validate() error {
	if d.FrameRate < 1 || d.FrameRate > 240 {
		return fmt.Errorf("frame_rate must be between 1 and 240, got %d", d.FrameRate)
	}
	if d.Rays < 1 {
		return fmt.Errorf("rays must be at least 1, got %d", d.Rays)
	}
	return nil
}

func (r *RecordConfig) Validate() error {
	if r.Enabled && r.Dir == "" {
		return fmt.Errorf("dir cannot be empty when recording is enabled")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if _, err := l.SlogLevel(); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

func (l *LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", l.Level)
}

// NewLogger builds the process logger described by l.
func (l *LoggingConfig) NewLogger() *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
