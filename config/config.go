// Package config loads the explicit configuration struct handed to the
// pipeline and services at construction. Nothing reads settings ambiently.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the resolved runtime configuration.
type Config struct {
	RecordingsDir    string
	SampleRate       int
	Channels         int
	PreBufferSeconds int
	InputDevice      int // 0 = default microphone

	// Transcription/summarization provider settings.
	WhisperPath  string
	WhisperModel string

	// Scribe status API.
	HTTPAddr string
	Workers  int

	LogPath string
	Debug   bool
}

type fileConfig struct {
	RecordingsDir    string `toml:"recordings_dir"`
	SampleRate       int    `toml:"sample_rate"`
	Channels         int    `toml:"channels"`
	PreBufferSeconds int    `toml:"prebuffer_seconds"`
	InputDevice      int    `toml:"input_device"`
	WhisperPath      string `toml:"whisper_path"`
	WhisperModel     string `toml:"whisper_model"`
	HTTPAddr         string `toml:"http_addr"`
	Workers          int    `toml:"workers"`
	LogPath          string `toml:"log_path"`
	Debug            bool   `toml:"debug"`
}

// PreBufferCeiling is the pre-buffer window as a duration.
func (c *Config) PreBufferCeiling() time.Duration {
	return time.Duration(c.PreBufferSeconds) * time.Second
}

// Load resolves configuration from defaults, then the TOML config file, then
// environment overrides.
func Load() (*Config, error) {
	cfg := &Config{
		RecordingsDir:    defaultRecordingsDir(),
		SampleRate:       48000,
		Channels:         2,
		PreBufferSeconds: 30,
		HTTPAddr:         "127.0.0.1:8444",
		Workers:          2,
		LogPath:          defaultLogPath(),
	}

	if path := configFilePath(); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err == nil {
			if fc.RecordingsDir != "" {
				cfg.RecordingsDir = expandTilde(fc.RecordingsDir)
			}
			if fc.SampleRate > 0 {
				cfg.SampleRate = fc.SampleRate
			}
			if fc.Channels > 0 {
				cfg.Channels = fc.Channels
			}
			if fc.PreBufferSeconds > 0 {
				cfg.PreBufferSeconds = fc.PreBufferSeconds
			}
			cfg.InputDevice = fc.InputDevice
			cfg.WhisperPath = fc.WhisperPath
			cfg.WhisperModel = fc.WhisperModel
			if fc.HTTPAddr != "" {
				cfg.HTTPAddr = fc.HTTPAddr
			}
			if fc.Workers > 0 {
				cfg.Workers = fc.Workers
			}
			if fc.LogPath != "" {
				cfg.LogPath = expandTilde(fc.LogPath)
			}
			cfg.Debug = fc.Debug
		}
	}

	applyEnvOverrides(cfg)

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MINUTE_RECORDINGS_DIR"); v != "" {
		cfg.RecordingsDir = expandTilde(v)
	}
	if v := os.Getenv("MINUTE_WHISPER_PATH"); v != "" {
		cfg.WhisperPath = v
	}
	if v := os.Getenv("MINUTE_WHISPER_MODEL"); v != "" {
		cfg.WhisperModel = v
	}
	if v := os.Getenv("MINUTE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MINUTE_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "minute")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "minute")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultRecordingsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "recordings")
	}
	return filepath.Join(".", "recordings")
}

func defaultLogPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "minute", "minute.log")
	}
	return filepath.Join(".", "logs", "minute.log")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
