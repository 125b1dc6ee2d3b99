package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key when read from the environment.
const EnvPrefix = "VOICEPASTE"

// Config holds configurable parameters.
type Config struct {
	AWSRegion    string `json:"AWS_REGION" mapstructure:"AWS_REGION"`
	AWSProfile   string `json:"AWS_PROFILE" mapstructure:"AWS_PROFILE"`
	AWSAccessKey string `json:"AWS_ACCESS_KEY" mapstructure:"AWS_ACCESS_KEY"`
	AWSSecretKey string `json:"AWS_SECRET_KEY" mapstructure:"AWS_SECRET_KEY"`
	Bucket       string `json:"BUCKET" mapstructure:"BUCKET"`
	S3Endpoint   string `json:"S3_ENDPOINT" mapstructure:"S3_ENDPOINT"`
	S3PathStyle  bool   `json:"S3_PATH_STYLE" mapstructure:"S3_PATH_STYLE"`
	ObjectPrefix string `json:"OBJECT_PREFIX" mapstructure:"OBJECT_PREFIX"`
	JobPrefix    string `json:"JOB_PREFIX" mapstructure:"JOB_PREFIX"`
	Language     string `json:"LANGUAGE" mapstructure:"LANGUAGE"`
	TEXTPath     string `json:"TEXT_PATH" mapstructure:"TEXT_PATH"`

	CONTAINER       string  `json:"CONTAINER" mapstructure:"CONTAINER"`
	CODECS          string  `json:"CODECS" mapstructure:"CODECS"`
	Channels        int     `json:"CHANNELS" mapstructure:"CHANNELS"`
	SAMPLING_RATE   int     `json:"SAMPLING_RATE" mapstructure:"SAMPLING_RATE"`
	FramesPerBuffer int     `json:"FRAMES_PER_BUFFER" mapstructure:"FRAMES_PER_BUFFER"`
	MinRecordSecs   float64 `json:"MIN_RECORD_SECONDS" mapstructure:"MIN_RECORD_SECONDS"`
	MaxRecordSecs   float64 `json:"MAX_RECORD_SECONDS" mapstructure:"MAX_RECORD_SECONDS"`

	PollInterval    float64 `json:"POLL_INTERVAL" mapstructure:"POLL_INTERVAL"`
	PollTimeout     float64 `json:"POLL_TIMEOUT" mapstructure:"POLL_TIMEOUT"`
	RequestTimeout  int     `json:"REQUEST_TIMEOUT" mapstructure:"REQUEST_TIMEOUT"`
	CleanupTimeout  int     `json:"CLEANUP_TIMEOUT" mapstructure:"CLEANUP_TIMEOUT"`
	MaxRetry        int     `json:"MAX_RETRY" mapstructure:"MAX_RETRY"`
	RetryBaseDelay  float64 `json:"RETRY_BASE_DELAY" mapstructure:"RETRY_BASE_DELAY"`
	EnableHTTP2     bool    `json:"ENABLE_HTTP2" mapstructure:"ENABLE_HTTP2"`
	VerifySSL       bool    `json:"VERIFY_SSL" mapstructure:"VERIFY_SSL"`
	MaxInFlight     int     `json:"MAX_IN_FLIGHT" mapstructure:"MAX_IN_FLIGHT"`
	ShutdownTimeout int     `json:"SHUTDOWN_TIMEOUT" mapstructure:"SHUTDOWN_TIMEOUT"`

	Hotkey           string `json:"HOTKEY" mapstructure:"HOTKEY"`
	PasteKey         string `json:"PASTE_KEY" mapstructure:"PASTE_KEY"`
	RestoreClipboard bool   `json:"RESTORE_CLIPBOARD" mapstructure:"RESTORE_CLIPBOARD"`
	Notification     bool   `json:"NOTIFICATION" mapstructure:"NOTIFICATION"`

	LogLevel     string `json:"LOG_LEVEL" mapstructure:"LOG_LEVEL"`
	LogFormat    string `json:"LOG_FORMAT" mapstructure:"LOG_FORMAT"`
	FFMPEG_DEBUG bool   `json:"FFMPEG_DEBUG" mapstructure:"FFMPEG_DEBUG"`
	RECORD_DEBUG bool   `json:"RECORD_DEBUG" mapstructure:"RECORD_DEBUG"`
	HOTKEY_DEBUG bool   `json:"HOTKEY_DEBUG" mapstructure:"HOTKEY_DEBUG"`
	UPLOAD_DEBUG bool   `json:"UPLOAD_DEBUG" mapstructure:"UPLOAD_DEBUG"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AWSRegion:        "",
		AWSProfile:       "",
		AWSAccessKey:     "",
		AWSSecretKey:     "",
		Bucket:           "",
		S3Endpoint:       "",
		S3PathStyle:      false,
		ObjectPrefix:     "",
		JobPrefix:        "voice-to-text-",
		Language:         "en-US",
		TEXTPath:         "results.transcripts[0].transcript",
		CONTAINER:        "wav",
		CODECS:           "",
		Channels:         1,
		SAMPLING_RATE:    16000,
		FramesPerBuffer:  1024,
		MinRecordSecs:    1.0,
		MaxRecordSecs:    0,
		PollInterval:     0.5,
		PollTimeout:      0,
		RequestTimeout:   30,
		CleanupTimeout:   30,
		MaxRetry:         3,
		RetryBaseDelay:   0.5,
		EnableHTTP2:      true,
		VerifySSL:        true,
		MaxInFlight:      1,
		ShutdownTimeout:  30,
		Hotkey:           defaultHotkey(),
		PasteKey:         defaultPasteKey(),
		RestoreClipboard: false,
		Notification:     false,
		LogLevel:         "info",
		LogFormat:        "console",
		FFMPEG_DEBUG:     false,
		RECORD_DEBUG:     false,
		HOTKEY_DEBUG:     false,
		UPLOAD_DEBUG:     false,
	}
}

func defaultHotkey() string {
	if runtime.GOOS == "darwin" {
		return "cmd+shift+space"
	}
	return "ctrl+shift+space"
}

func defaultPasteKey() string {
	if runtime.GOOS == "darwin" {
		return "cmd+v"
	}
	return "ctrl+v"
}

// Load builds a Config from defaults, the optional config file (JSON or YAML)
// and VOICEPASTE_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if err := setDefaults(v, cfg); err != nil {
		return cfg, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config '%s': %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key with viper so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, cfg Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for k, val := range m {
		v.SetDefault(k, val)
	}
	return nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	cfg := DefaultConfig()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	if cfg.Channels < 1 || cfg.Channels > 2 {
		return fmt.Errorf("invalid CHANNELS: %d (allowed 1..2)", cfg.Channels)
	}
	if cfg.SAMPLING_RATE < 8000 || cfg.SAMPLING_RATE > 48000 {
		return fmt.Errorf("invalid SAMPLING_RATE: %d (allowed 8000..48000)", cfg.SAMPLING_RATE)
	}
	if cfg.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid FRAMES_PER_BUFFER: %d (must be > 0)", cfg.FramesPerBuffer)
	}
	if cfg.MinRecordSecs < 0 {
		return fmt.Errorf("invalid MIN_RECORD_SECONDS: %v (must be >= 0)", cfg.MinRecordSecs)
	}
	if cfg.MaxRecordSecs < 0 || (cfg.MaxRecordSecs > 0 && cfg.MaxRecordSecs < cfg.MinRecordSecs) {
		return fmt.Errorf("invalid MAX_RECORD_SECONDS: %v (0 or >= MIN_RECORD_SECONDS)", cfg.MaxRecordSecs)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid POLL_INTERVAL: %v (must be > 0)", cfg.PollInterval)
	}
	if cfg.PollTimeout < 0 {
		return fmt.Errorf("invalid POLL_TIMEOUT: %v (0 disables, otherwise > 0)", cfg.PollTimeout)
	}
	if cfg.MaxRetry < 1 {
		return fmt.Errorf("invalid MAX_RETRY: %d (must be >= 1)", cfg.MaxRetry)
	}
	if cfg.RetryBaseDelay < 0 {
		return fmt.Errorf("invalid RETRY_BASE_DELAY: %v (must be >= 0)", cfg.RetryBaseDelay)
	}
	if cfg.MaxInFlight < 1 {
		return fmt.Errorf("invalid MAX_IN_FLIGHT: %d (must be >= 1)", cfg.MaxInFlight)
	}
	if cfg.Language == "" {
		return fmt.Errorf("LANGUAGE is empty")
	}
	if strings.TrimSpace(cfg.Hotkey) == "" {
		return fmt.Errorf("HOTKEY is empty")
	}
	if strings.TrimSpace(cfg.PasteKey) == "" {
		return fmt.Errorf("PASTE_KEY is empty")
	}

	allowedContainers := map[string]bool{
		"wav":  true,
		"flac": true,
		"ogg":  true,
		"mp3":  true,
		"mp4":  true,
		"m4a":  true,
		"webm": true,
		"amr":  true,
	}
	if !allowedContainers[strings.ToLower(cfg.CONTAINER)] {
		return fmt.Errorf("invalid CONTAINER: %s (allowed: WAV, FLAC, OGG, MP3, MP4, M4A, WEBM, AMR)", cfg.CONTAINER)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "console", "pretty", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (allowed: console, json)", cfg.LogFormat)
	}
	return nil
}

// ContainerExt maps container names to file extensions (lowercase).
func ContainerExt(container string) string {
	c := strings.ToLower(container)
	if c == "" {
		return "wav"
	}
	return c
}
