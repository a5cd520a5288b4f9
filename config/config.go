// Package config loads the settings of an actsim run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the settings of a run, one field per TOML section.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Recording  RecordingConfig  `toml:"recording"`
	Sound      SoundConfig      `toml:"sound"`
	Logging    LoggingConfig    `toml:"logging"`
	Scenario   ScenarioConfig   `toml:"scenario"`
}

// SimulationConfig sets up the scheduler. Durations are written as TOML
// strings such as "500ms".
type SimulationConfig struct {
	InitialSpeed      int           `toml:"initial_speed"`
	ReadLockTimeout   time.Duration `toml:"read_lock_timeout"`
	RepaintAckTimeout time.Duration `toml:"repaint_ack_timeout"`
	MinFrameRate      float64       `toml:"min_frame_rate"`
	MaxFrameRate      float64       `toml:"max_frame_rate"`
}

// MonitorConfig controls the web monitor.
type MonitorConfig struct {
	Enabled     bool `toml:"enabled"`
	Port        int  `toml:"port"` // 0 picks a free port
	OpenBrowser bool `toml:"open_browser"`
}

// RecordingConfig tells where the event recording and the stored speed
// setting go.
type RecordingConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"` // without the .sqlite3 suffix; empty picks a name
	SpeedPath string `toml:"speed_path"`
}

// SoundConfig controls the speaker output.
type SoundConfig struct {
	Enabled    bool `toml:"enabled"`
	SampleRate int  `toml:"sample_rate"`
}

// LoggingConfig sets up the logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	File   string `toml:"file"`   // empty logs to stderr, or to actsim.log while the terminal UI runs
}

// ScenarioConfig names the scenario file to run. The built-in demo runs if
// Path is empty.
type ScenarioConfig struct {
	Path string `toml:"path"`
}

// Load reads a TOML config file over the defaults and then applies overrides
// from a .env file and the environment. A missing config file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Simulation: SimulationConfig{
			InitialSpeed:      50,
			ReadLockTimeout:   500 * time.Millisecond,
			RepaintAckTimeout: 100 * time.Millisecond,
			MinFrameRate:      30,
			MaxFrameRate:      60,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Port:    0,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			SpeedPath: "actsim_speed.sqlite3",
		},
		Sound: SoundConfig{
			Enabled:    true,
			SampleRate: 44100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return defaults()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("ACTSIM_SPEED"); ok {
		speed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACTSIM_SPEED: %w", err)
		}
		c.Simulation.InitialSpeed = speed
	}

	if v, ok := os.LookupEnv("ACTSIM_MONITOR_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACTSIM_MONITOR_PORT: %w", err)
		}
		c.Monitor.Enabled = true
		c.Monitor.Port = port
	}

	if v, ok := os.LookupEnv("ACTSIM_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}

	if v, ok := os.LookupEnv("ACTSIM_RECORDING_PATH"); ok {
		c.Recording.Enabled = true
		c.Recording.Path = v
	}

	return nil
}

// Validate rejects settings the simulation cannot run with.
func (c *Config) Validate() error {
	s := c.Simulation

	if s.MinFrameRate < 0 || s.MaxFrameRate < s.MinFrameRate {
		return fmt.Errorf("invalid frame rates: min %v, max %v",
			s.MinFrameRate, s.MaxFrameRate)
	}

	if s.ReadLockTimeout < 0 || s.RepaintAckTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("invalid monitor port %d", c.Monitor.Port)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	return nil
}
