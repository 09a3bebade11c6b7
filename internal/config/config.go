package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Audio     AudioConfig     `yaml:"audio"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Relay     RelayConfig     `yaml:"relay"`
	LogLevel  string          `yaml:"log_level"`
}

// ModelConfig holds model artifact locations.
type ModelConfig struct {
	Path      string `yaml:"path"`       // ONNX model file
	VocabPath string `yaml:"vocab_path"` // tokenizer vocabulary JSON
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate       int     `yaml:"sample_rate"`        // pipeline rate, Hz
	DeviceSampleRate int     `yaml:"device_sample_rate"` // capture hardware rate, Hz
	Channels         int     `yaml:"channels"`
	MaxBufferSeconds float64 `yaml:"max_buffer_seconds"`
}

// SchedulerConfig holds transcription scheduling settings.
type SchedulerConfig struct {
	IntervalSeconds float64 `yaml:"interval_seconds"`  // continuous decode cadence
	MinAudioSeconds float64 `yaml:"min_audio_seconds"` // gate below which ticks are skipped
	RMSGate         float64 `yaml:"rms_gate"`          // 0 disables the energy gate
	IncludeAudio    bool    `yaml:"include_audio"`     // attach WAV bytes to sink deliveries
}

// RelayConfig holds the websocket transcript relay settings.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "vitalscribe")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the default directory for downloaded model artifacts.
func DefaultModelsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "vitalscribe", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	modelsDir := DefaultModelsDir()

	return &Config{
		Model: ModelConfig{
			Path:      filepath.Join(modelsDir, "ctc_model.onnx"),
			VocabPath: filepath.Join(modelsDir, "tokenizer.json"),
		},
		Audio: AudioConfig{
			SampleRate:       16000,
			DeviceSampleRate: 48000,
			Channels:         1,
			MaxBufferSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds: 5,
			MinAudioSeconds: 2,
			RMSGate:         0,
			IncludeAudio:    false,
		},
		Relay: RelayConfig{
			Enabled: false,
			Address: ":8080",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Model.Path = expandTilde(cfg.Model.Path)
	cfg.Model.VocabPath = expandTilde(cfg.Model.VocabPath)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return fmt.Errorf("model.path must not be empty")
	}
	if c.Model.VocabPath == "" {
		return fmt.Errorf("model.vocab_path must not be empty")
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.DeviceSampleRate <= 0 {
		return fmt.Errorf("audio.device_sample_rate must be > 0")
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels must be 1 (mono pipeline), got %d", c.Audio.Channels)
	}
	if c.Audio.MaxBufferSeconds <= 0 {
		return fmt.Errorf("audio.max_buffer_seconds must be > 0")
	}

	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0")
	}
	if c.Scheduler.MinAudioSeconds < 0 {
		return fmt.Errorf("scheduler.min_audio_seconds must be >= 0")
	}
	if c.Scheduler.RMSGate < 0 {
		return fmt.Errorf("scheduler.rms_gate must be >= 0")
	}

	if c.Relay.Enabled && c.Relay.Address == "" {
		return fmt.Errorf("relay.address must not be empty when relay is enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// MaxBufferSamples returns the accumulator capacity in samples.
func (c *Config) MaxBufferSamples() int {
	return int(c.Audio.MaxBufferSeconds * float64(c.Audio.SampleRate))
}

// ParseLogLevel maps a config log level string to a slog.Level.
// Unknown values default to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
