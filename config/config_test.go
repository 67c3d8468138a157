package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range []string{"SFU_SERVER", "CONNECT_URL", "BOT_TYPE"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SFU_SERVER", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.DeepEqual(t, Default().Audio, cfg.Audio)
	assert.Equal(t, 60, cfg.Display.FrameRate)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
session:
  connect_url: http://localhost:7860/connect
  bot_type: shawarma
audio:
  playback: true
display:
  rays: 24
record:
  enabled: true
  dir: /tmp/rec
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7860/connect", cfg.Session.ConnectURL)
	assert.Equal(t, "shawarma", cfg.Session.BotType)
	assert.Equal(t, 30, cfg.Session.Timeout)
	assert.Assert(t, cfg.Audio.Playback)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 24, cfg.Display.Rays)
	assert.Equal(t, "/tmp/rec", cfg.Record.Dir)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"SFU_SERVER": "ws://bot.example:9000",
		"BOT_TYPE":   "simple",
	}
	cfg.applyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "ws://bot.example:9000/session", cfg.Session.SignalURL)
	assert.Equal(t, "simple", cfg.Session.BotType)
	assert.Equal(t, "", cfg.Session.ConnectURL)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"signal_url must be a ws(s) URL":       "session:\n  signal_url: http://nope\n",
		"connect_url must be an http(s) URL":   "session:\n  connect_url: ftp://nope\n",
		"sample_rate must be an opus rate":     "audio:\n  sample_rate: 44100\n",
		"channels must be 1 or 2":              "audio:\n  channels: 6\n",
		"frame_rate must be between 1 and 240": "display:\n  frame_rate: 0\n",
		"unknown log level":                    "logging:\n  level: loud\n",
		"format must be text or json":          "logging:\n  format: xml\n",
		"dir cannot be empty":                  "record:\n  enabled: true\n  dir: \"\"\n",
	}
	for want, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.ErrorContains(t, err, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
