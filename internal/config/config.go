// Package config resolves runtime configuration from a YAML file, the
// environment, and defaults, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the capture pipeline.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Vendors     VendorsConfig     `yaml:"vendors"`
	Audio       AudioConfig       `yaml:"audio"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Rules       RulesConfig       `yaml:"rules"`
	Session     SessionConfig     `yaml:"session"`
}

// CredentialsConfig points at the trusted backend that mints short-lived
// streaming tokens, one endpoint per vendor.
type CredentialsConfig struct {
	Endpoints map[string]string `yaml:"endpoints"`
	TimeoutMs int               `yaml:"timeout_ms"`
}

type VendorsConfig struct {
	Default    string           `yaml:"default"`
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	AssemblyAI AssemblyAIConfig `yaml:"assemblyai"`
}

type DeepgramConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	SmartFormat bool   `yaml:"smart_format"`
}

type AssemblyAIConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkIntervalMs int    `yaml:"chunk_interval_ms"`
	Opus            bool   `yaml:"opus"`
}

// RecognizerConfig configures the optional in-process recognizer. An empty
// model path disables it and every session streams to a vendor.
type RecognizerConfig struct {
	ModelPath string `yaml:"model_path"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type SessionConfig struct {
	Language      string `yaml:"language"`
	MinCaptureMs  int    `yaml:"min_capture_ms"`
	MinFinalChars int    `yaml:"min_final_chars"`
	StartTimeout  int    `yaml:"start_timeout_ms"`
	DrainTimeout  int    `yaml:"drain_timeout_ms"`
}

func (c CredentialsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c SessionConfig) MinCaptureDuration() time.Duration {
	return time.Duration(c.MinCaptureMs) * time.Millisecond
}

func (c SessionConfig) StartTimeoutDuration() time.Duration {
	return time.Duration(c.StartTimeout) * time.Millisecond
}

func (c SessionConfig) DrainTimeoutDuration() time.Duration {
	return time.Duration(c.DrainTimeout) * time.Millisecond
}

// Load resolves configuration. path names a YAML file; an empty path checks
// the default location and skips the file layer when nothing is there.
func Load(path string) (Config, error) {
	cfg := defaults()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultPath()
	}
	if path != "" {
		contents, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(contents, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
			// No config file is fine; defaults plus environment apply.
		default:
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Credentials: CredentialsConfig{
			Endpoints: map[string]string{},
			TimeoutMs: 8000,
		},
		Vendors: VendorsConfig{
			Default: "deepgram",
			Deepgram: DeepgramConfig{
				Endpoint:    "wss://api.deepgram.com/v1/listen",
				Model:       "nova-2",
				SmartFormat: true,
			},
			AssemblyAI: AssemblyAIConfig{
				Endpoint: "wss://api.assemblyai.com/v2/realtime/ws",
			},
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			ChunkIntervalMs: 250,
		},
		Rules: RulesConfig{
			IterationLimit: 30,
		},
		Session: SessionConfig{
			MinCaptureMs:  800,
			MinFinalChars: 5,
			StartTimeout:  8000,
			DrainTimeout:  4000,
		},
	}
}

func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicegate", "config.yaml")
}

func applyEnv(cfg *Config) {
	cfg.Vendors.Default = envOrDefault("VOICEGATE_VENDOR", cfg.Vendors.Default)
	cfg.Vendors.Deepgram.Endpoint = envOrDefault("VOICEGATE_DEEPGRAM_ENDPOINT", cfg.Vendors.Deepgram.Endpoint)
	cfg.Vendors.Deepgram.Model = envOrDefault("VOICEGATE_DEEPGRAM_MODEL", cfg.Vendors.Deepgram.Model)
	cfg.Vendors.AssemblyAI.Endpoint = envOrDefault("VOICEGATE_ASSEMBLYAI_ENDPOINT", cfg.Vendors.AssemblyAI.Endpoint)

	if url := strings.TrimSpace(os.Getenv("VOICEGATE_CREDENTIALS_URL")); url != "" {
		if cfg.Credentials.Endpoints == nil {
			cfg.Credentials.Endpoints = map[string]string{}
		}
		cfg.Credentials.Endpoints[cfg.Vendors.Default] = url
	}

	cfg.Audio.RecorderCommand = envOrDefault("VOICEGATE_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("VOICEGATE_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("VOICEGATE_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("VOICEGATE_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("VOICEGATE_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkIntervalMs = envOrDefaultInt("VOICEGATE_CHUNK_INTERVAL_MS", cfg.Audio.ChunkIntervalMs)
	cfg.Audio.Opus = envOrDefaultBool("VOICEGATE_OPUS", cfg.Audio.Opus)

	cfg.Recognizer.ModelPath = envOrDefault("VOICEGATE_WHISPER_MODEL", cfg.Recognizer.ModelPath)
	cfg.Rules.Path = envOrDefault("VOICEGATE_RULES_FILE", cfg.Rules.Path)
	cfg.Session.Language = envOrDefault("VOICEGATE_LANGUAGE", cfg.Session.Language)
	cfg.Session.MinCaptureMs = envOrDefaultInt("VOICEGATE_MIN_CAPTURE_MS", cfg.Session.MinCaptureMs)
	cfg.Session.MinFinalChars = envOrDefaultInt("VOICEGATE_MIN_FINAL_CHARS", cfg.Session.MinFinalChars)
}

func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Credentials.TimeoutMs <= 0 {
		cfg.Credentials.TimeoutMs = 8000
	}
	if cfg.Session.MinCaptureMs <= 0 {
		cfg.Session.MinCaptureMs = 800
	}
	if cfg.Session.MinFinalChars <= 0 {
		cfg.Session.MinFinalChars = 5
	}
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
