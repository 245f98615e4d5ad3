package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AudioBackendMalgo  = "malgo"
	AudioBackendFFMPEG = "ffmpeg"
)

// Config stores runtime configuration for the assistant widget.
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	Persona PersonaConfig `yaml:"persona"`
	Photos  PhotosConfig  `yaml:"photos"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-"`
}

type GeminiConfig struct {
	APIKey      string `yaml:"api_key"`
	LiveBaseURL string `yaml:"live_base_url"`
	LiveModel   string `yaml:"live_model"`
	ChatModel   string `yaml:"chat_model"`
	Voice       string `yaml:"voice"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"`
	RecorderCommand string `yaml:"ffmpeg_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
}

type SessionConfig struct {
	FrameSize        int    `yaml:"frame_size"`
	EndCallGraceMS   int    `yaml:"end_call_grace_ms"`
	EmailSendDelayMS int    `yaml:"email_send_delay_ms"`
	EmailSentHoldMS  int    `yaml:"email_sent_hold_ms"`
	ServerGreeting   string `yaml:"server_greeting"`
}

type PersonaConfig struct {
	AssistantName string `yaml:"assistant_name"`
	Company       string `yaml:"company"`
	OwnerName     string `yaml:"owner_name"`
	OwnerPhone    string `yaml:"owner_phone"`
	Style         string `yaml:"style"`
}

// PhotosConfig overrides the show-photo catalog. URLs maps a category key to
// an image URL; Default names the fallback category.
type PhotosConfig struct {
	Default string            `yaml:"default"`
	URLs    map[string]string `yaml:"urls"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
	Key  string `yaml:"key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load resolves configuration from defaults, an optional YAML file and
// environment variables, in increasing priority. A .env file is loaded into
// the environment first without overriding variables already set.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	if err := loadEnvFile(envOrDefault("NORA_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := defaults(home)

	explicitFile := strings.TrimSpace(os.Getenv("NORA_CONFIG_FILE"))
	path := firstNonEmpty(explicitFile, filepath.Join(home, ".config", "nora", "nora.yaml"))
	if err := mergeFile(&cfg, path, explicitFile != ""); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults(home string) Config {
	return Config{
		Gemini: GeminiConfig{
			LiveBaseURL: "wss://generativelanguage.googleapis.com",
			LiveModel:   "gemini-2.5-flash-native-audio-preview-09-2025",
			ChatModel:   "gemini-3-flash-preview",
			Voice:       "Kore",
		},
		Audio: AudioConfig{
			Backend:         AudioBackendMalgo,
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
		},
		Session: SessionConfig{
			FrameSize:        4096,
			EndCallGraceMS:   1500,
			EmailSendDelayMS: 2500,
			EmailSentHoldMS:  5000,
		},
		Memory: MemoryConfig{
			Path: filepath.Join(home, ".config", "nora", "memory.json"),
			Key:  "nora_customer_memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	cfg.Source = path
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Gemini.APIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"), cfg.Gemini.APIKey)
	cfg.Gemini.LiveBaseURL = envOrDefault("NORA_LIVE_BASE_URL", cfg.Gemini.LiveBaseURL)
	cfg.Gemini.LiveModel = envOrDefault("NORA_LIVE_MODEL", cfg.Gemini.LiveModel)
	cfg.Gemini.ChatModel = envOrDefault("NORA_CHAT_MODEL", cfg.Gemini.ChatModel)
	cfg.Gemini.Voice = envOrDefault("NORA_VOICE", cfg.Gemini.Voice)

	cfg.Audio.Backend = strings.ToLower(envOrDefault("NORA_AUDIO_BACKEND", cfg.Audio.Backend))
	cfg.Audio.RecorderCommand = envOrDefault("NORA_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("NORA_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("NORA_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)

	cfg.Session.FrameSize = envOrDefaultInt("NORA_FRAME_SIZE", cfg.Session.FrameSize)
	cfg.Session.EndCallGraceMS = firstNonNegativeInt("NORA_END_CALL_GRACE_MS", cfg.Session.EndCallGraceMS)
	cfg.Session.EmailSendDelayMS = firstNonNegativeInt("NORA_EMAIL_SEND_DELAY_MS", cfg.Session.EmailSendDelayMS)
	cfg.Session.EmailSentHoldMS = firstNonNegativeInt("NORA_EMAIL_SENT_HOLD_MS", cfg.Session.EmailSentHoldMS)
	cfg.Session.ServerGreeting = envOrDefault("NORA_SERVER_GREETING", cfg.Session.ServerGreeting)

	cfg.Memory.Path = envOrDefault("NORA_MEMORY_FILE", cfg.Memory.Path)

	cfg.Logging.Level = strings.ToLower(envOrDefault("NORA_LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(envOrDefault("NORA_LOG_FORMAT", cfg.Logging.Format))

	cfg.Metrics.Addr = envOrDefault("NORA_METRICS_ADDR", cfg.Metrics.Addr)
}

func normalize(cfg *Config) {
	if cfg.Session.FrameSize < 256 {
		cfg.Session.FrameSize = 4096
	}
	if strings.TrimSpace(cfg.Memory.Key) == "" {
		cfg.Memory.Key = "nora_customer_memory"
	}
	cfg.Gemini.LiveBaseURL = strings.TrimRight(cfg.Gemini.LiveBaseURL, "/")
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Photos.Validate(); err != nil {
		return fmt.Errorf("photos config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if strings.TrimSpace(c.Memory.Path) == "" {
		return errors.New("memory config: path is required")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	switch a.Backend {
	case AudioBackendMalgo:
		return nil
	case AudioBackendFFMPEG:
		if strings.TrimSpace(a.RecorderCommand) == "" {
			return errors.New("ffmpeg_command is required for the ffmpeg backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q", a.Backend)
	}
}

func (s *SessionConfig) Validate() error {
	if s.EndCallGraceMS < 0 || s.EmailSendDelayMS < 0 || s.EmailSentHoldMS < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

func (p *PhotosConfig) Validate() error {
	if p.Default == "" {
		return nil
	}
	if len(p.URLs) == 0 {
		return nil
	}
	if _, ok := p.URLs[p.Default]; !ok {
		return fmt.Errorf("default category %q has no url", p.Default)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q", l.Format)
	}
	return nil
}

func (s SessionConfig) EndCallGrace() time.Duration {
	return time.Duration(s.EndCallGraceMS) * time.Millisecond
}

func (s SessionConfig) EmailSendDelay() time.Duration {
	return time.Duration(s.EmailSendDelayMS) * time.Millisecond
}

func (s SessionConfig) EmailSentHold() time.Duration {
	return time.Duration(s.EmailSentHoldMS) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
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

func firstNonNegativeInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
