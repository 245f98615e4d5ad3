package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvKeys = []string{
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "NORA_LIVE_BASE_URL", "NORA_LIVE_MODEL", "NORA_CHAT_MODEL",
	"NORA_VOICE", "NORA_AUDIO_BACKEND", "NORA_FFMPEG_COMMAND", "NORA_AUDIO_INPUT_FORMAT",
	"NORA_AUDIO_INPUT_DEVICE", "NORA_FRAME_SIZE", "NORA_END_CALL_GRACE_MS", "NORA_EMAIL_SEND_DELAY_MS",
	"NORA_EMAIL_SENT_HOLD_MS", "NORA_SERVER_GREETING", "NORA_MEMORY_FILE", "NORA_LOG_LEVEL",
	"NORA_LOG_FORMAT", "NORA_METRICS_ADDR", "NORA_CONFIG_FILE",
}

// isolate points HOME and the env file at a temp dir and clears every key
// Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NORA_ENV_FILE", filepath.Join(home, "absent.env"))
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.Backend != AudioBackendMalgo {
		t.Fatalf("expected malgo backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Session.FrameSize != 4096 {
		t.Fatalf("expected frame size 4096, got %d", cfg.Session.FrameSize)
	}
	if cfg.Session.EndCallGrace() != 1500*time.Millisecond {
		t.Fatalf("unexpected grace %s", cfg.Session.EndCallGrace())
	}
	if cfg.Session.EmailSendDelay() != 2500*time.Millisecond || cfg.Session.EmailSentHold() != 5*time.Second {
		t.Fatalf("unexpected email delays: %+v", cfg.Session)
	}
	if cfg.Gemini.Voice != "Kore" {
		t.Fatalf("unexpected voice %q", cfg.Gemini.Voice)
	}
	if cfg.Memory.Path != filepath.Join(home, ".config", "nora", "memory.json") || cfg.Memory.Key != "nora_customer_memory" {
		t.Fatalf("unexpected memory config: %+v", cfg.Memory)
	}
	if cfg.Source != "" {
		t.Fatalf("expected no config file, got %q", cfg.Source)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	home := isolate(t)
	memory := filepath.Join(home, "mem.json")

	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("NORA_LIVE_BASE_URL", "ws://127.0.0.1:9000/")
	t.Setenv("NORA_LIVE_MODEL", "live-x")
	t.Setenv("NORA_CHAT_MODEL", "chat-x")
	t.Setenv("NORA_VOICE", "Puck")
	t.Setenv("NORA_AUDIO_BACKEND", "FFMPEG")
	t.Setenv("NORA_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("NORA_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("NORA_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("NORA_FRAME_SIZE", "2048")
	t.Setenv("NORA_END_CALL_GRACE_MS", "10")
	t.Setenv("NORA_EMAIL_SEND_DELAY_MS", "20")
	t.Setenv("NORA_EMAIL_SENT_HOLD_MS", "30")
	t.Setenv("NORA_SERVER_GREETING", "say hello")
	t.Setenv("NORA_MEMORY_FILE", memory)
	t.Setenv("NORA_LOG_LEVEL", "DEBUG")
	t.Setenv("NORA_LOG_FORMAT", "json")
	t.Setenv("NORA_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Gemini.APIKey != "test-key" || cfg.Gemini.LiveBaseURL != "ws://127.0.0.1:9000" {
		t.Fatalf("unexpected gemini config: %+v", cfg.Gemini)
	}
	if cfg.Gemini.LiveModel != "live-x" || cfg.Gemini.ChatModel != "chat-x" || cfg.Gemini.Voice != "Puck" {
		t.Fatalf("unexpected models: %+v", cfg.Gemini)
	}
	if cfg.Audio.Backend != AudioBackendFFMPEG || cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Session.FrameSize != 2048 || cfg.Session.EndCallGrace() != 10*time.Millisecond {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Session.EmailSendDelay() != 20*time.Millisecond || cfg.Session.EmailSentHold() != 30*time.Millisecond {
		t.Fatalf("unexpected email delays: %+v", cfg.Session)
	}
	if cfg.Session.ServerGreeting != "say hello" || cfg.Memory.Path != memory {
		t.Fatalf("unexpected overrides: %+v %+v", cfg.Session, cfg.Memory)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Fatalf("unexpected logging/metrics: %+v %+v", cfg.Logging, cfg.Metrics)
	}
}

func TestLoadInvalidNumericValuesFallback(t *testing.T) {
	isolate(t)
	t.Setenv("NORA_FRAME_SIZE", "5")
	t.Setenv("NORA_END_CALL_GRACE_MS", "bad")
	t.Setenv("NORA_EMAIL_SEND_DELAY_MS", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Session.FrameSize != 4096 {
		t.Fatalf("expected frame size fallback, got %d", cfg.Session.FrameSize)
	}
	if cfg.Session.EndCallGrace() != 1500*time.Millisecond {
		t.Fatalf("expected default grace, got %s", cfg.Session.EndCallGrace())
	}
	if cfg.Session.EmailSendDelay() != 2500*time.Millisecond {
		t.Fatalf("expected default send delay, got %s", cfg.Session.EmailSendDelay())
	}
}

func TestLoadReadsYAMLBelowEnv(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".config", "nora", "nora.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	contents := strings.Join([]string{
		"gemini:",
		"  voice: Charon",
		"  chat_model: file-model",
		"persona:",
		"  assistant_name: Layla",
		"photos:",
		"  default: garden",
		"  urls:",
		"    garden: https://example.com/garden.jpg",
		"session:",
		"  end_call_grace_ms: 900",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("NORA_CHAT_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("expected source %q, got %q", path, cfg.Source)
	}
	if cfg.Gemini.Voice != "Charon" || cfg.Gemini.ChatModel != "env-model" {
		t.Fatalf("unexpected precedence: %+v", cfg.Gemini)
	}
	if cfg.Gemini.LiveModel == "" {
		t.Fatalf("defaults lost when merging file")
	}
	if cfg.Persona.AssistantName != "Layla" || cfg.Photos.URLs["garden"] == "" {
		t.Fatalf("unexpected persona/photos: %+v %+v", cfg.Persona, cfg.Photos)
	}
	if cfg.Session.EndCallGrace() != 900*time.Millisecond || cfg.Session.FrameSize != 4096 {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	home := isolate(t)
	t.Setenv("NORA_CONFIG_FILE", filepath.Join(home, "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("NORA_AUDIO_BACKEND", "portaudio")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	t.Setenv("NORA_AUDIO_BACKEND", "")
	t.Setenv("NORA_LOG_LEVEL", "loud")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	home := isolate(t)
	envFile := filepath.Join(home, "test.env")
	if err := os.WriteFile(envFile, []byte("NORA_DOTENV_PROBE=from-file\nNORA_VOICE=Fenrir\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("NORA_ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("NORA_DOTENV_PROBE") })

	if _, err := Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if os.Getenv("NORA_DOTENV_PROBE") != "from-file" {
		t.Fatalf("expected .env value to be loaded")
	}
	// NORA_VOICE is already present (empty) in the environment, so the file
	// must not replace it.
	if os.Getenv("NORA_VOICE") != "" {
		t.Fatalf("expected existing env var to win over .env")
	}
}

func TestPhotosValidate(t *testing.T) {
	t.Parallel()

	ok := PhotosConfig{Default: "a", URLs: map[string]string{"a": "u"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := PhotosConfig{Default: "b", URLs: map[string]string{"a": "u"}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected missing default error")
	}
}
