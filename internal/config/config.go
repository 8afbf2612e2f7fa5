package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind               string   `yaml:"bind"`
	Port               int      `yaml:"port"`
	PublicBaseURL      string   `yaml:"public_base_url"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Artifacts   ArtifactsConfig `yaml:"artifacts"`
	STT         STTConfig       `yaml:"stt"`
	TTS         TTSConfig       `yaml:"tts"`
	Listener    ListenerConfig  `yaml:"listener"`
}

type BusConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Embedded          bool     `yaml:"embedded"`
	Port              int      `yaml:"port"`
	StoreDir          string   `yaml:"store_dir"`
	Servers           []string `yaml:"servers"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	Token             string   `yaml:"token"`
	TLSInsecure       bool     `yaml:"tls_insecure"`
	ConnectTimeout    int      `yaml:"connect_timeout_ms"`
	NavigationSubject string   `yaml:"navigation_subject"`
}

// ArtifactsConfig controls the ledger of generated audio files.
type ArtifactsConfig struct {
	Mode                 string `yaml:"mode"` // ephemeral, sqlite
	Path                 string `yaml:"path"`
	OrphanTTLMinutes     int    `yaml:"orphan_ttl_minutes"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
}

type STTConfig struct {
	Mode         string `yaml:"mode"` // mock, exec, whisper
	Command      string `yaml:"command"`
	ModelPath    string `yaml:"model_path"`
	Language     string `yaml:"language"`
	ChunkSamples int    `yaml:"chunk_samples"`
	UploadDir    string `yaml:"upload_dir"`
}

type TTSConfig struct {
	Mode           string   `yaml:"mode"` // mock, exec, yandex
	Command        string   `yaml:"command"`
	OutputDir      string   `yaml:"output_dir"`
	Extension      string   `yaml:"extension"`
	Rate           int      `yaml:"rate"`
	Voice          int      `yaml:"voice"`
	SampleRate     int      `yaml:"sample_rate"`
	Channels       int      `yaml:"channels"`
	TimeoutMS      int      `yaml:"timeout_ms"`
	YandexAPIKey   string   `yaml:"yandex_api_key"`
	YandexFolderID string   `yaml:"yandex_folder_id"`
	YandexEndpoint string   `yaml:"yandex_endpoint"`
	YandexVoices   []string `yaml:"yandex_voices"`
}

type ListenerConfig struct {
	Recognizer         string `yaml:"recognizer"` // mock, yandex
	Capture            string `yaml:"capture"`    // mock, portaudio
	SampleRate         int    `yaml:"sample_rate"`
	FramesPerBuffer    int    `yaml:"frames_per_buffer"`
	QuietPeriodMS      int    `yaml:"quiet_period_ms"`
	MaxUtteranceMS     int    `yaml:"max_utterance_ms"`
	FailureBackoffMS   int    `yaml:"failure_backoff_ms"`
	RecognizeTimeoutMS int    `yaml:"recognize_timeout_ms"`
	YandexIAMToken     string `yaml:"yandex_iam_token"`
	YandexFolderID     string `yaml:"yandex_folder_id"`
	YandexEndpoint     string `yaml:"yandex_endpoint"`
	Language           string `yaml:"language"`
	ExitFarewell       string `yaml:"exit_farewell"`
	StopFarewell       string `yaml:"stop_farewell"`
}

func Default() Config {
	return Config{
		ServiceName: "akira",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:               "127.0.0.1",
			Port:               5001,
			PublicBaseURL:      "http://127.0.0.1:5001",
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 120,
			MaxUploadBytes:     32 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TraceExporter:  "none",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:           false,
			Embedded:          true,
			Port:              4222,
			StoreDir:          "./data/nats",
			Servers:           []string{"nats://localhost:4222"},
			ConnectTimeout:    2000,
			NavigationSubject: "assistant.navigation",
		},
		Artifacts: ArtifactsConfig{
			Mode:                 "ephemeral",
			Path:                 "./data/akira-artifacts.db",
			OrphanTTLMinutes:     30,
			SweepIntervalSeconds: 60,
		},
		STT: STTConfig{
			Mode:         "mock",
			ModelPath:    "./models/ggml-base.en.bin",
			Language:     "en",
			ChunkSamples: 4000,
		},
		TTS: TTSConfig{
			Mode:           "mock",
			OutputDir:      "./static/audio",
			Extension:      ".wav",
			Rate:           150,
			Voice:          0,
			SampleRate:     22050,
			Channels:       1,
			TimeoutMS:      45000,
			YandexEndpoint: "tts.api.cloud.yandex.net:443",
			YandexVoices:   []string{"marina", "alena", "filipp"},
		},
		Listener: ListenerConfig{
			Recognizer:         "mock",
			Capture:            "mock",
			SampleRate:         16000,
			FramesPerBuffer:    8196,
			QuietPeriodMS:      200,
			MaxUtteranceMS:     10000,
			FailureBackoffMS:   250,
			RecognizeTimeoutMS: 15000,
			YandexEndpoint:     "stt.api.cloud.yandex.net:443",
			Language:           "en-US",
			ExitFarewell:       "Goodbye!",
			StopFarewell:       "Assistant deactivated.",
		},
	}
}

// Load reads path (if set) over the defaults, then applies .env and AKIRA_* overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional; existing environment variables win.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "AKIRA_SERVICE_NAME")
	overrideString(&cfg.Environment, "AKIRA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "AKIRA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "AKIRA_HTTP_PORT")
	overrideString(&cfg.HTTP.PublicBaseURL, "AKIRA_HTTP_PUBLIC_BASE_URL")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "AKIRA_HTTP_CORS_ORIGINS")
	overrideInt(&cfg.HTTP.RateLimitPerMinute, "AKIRA_HTTP_RATE_LIMIT_PER_MINUTE")
	overrideInt64(&cfg.HTTP.MaxUploadBytes, "AKIRA_HTTP_MAX_UPLOAD_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "AKIRA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "AKIRA_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "AKIRA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "AKIRA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "AKIRA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "AKIRA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "AKIRA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "AKIRA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "AKIRA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "AKIRA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "AKIRA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "AKIRA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "AKIRA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "AKIRA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "AKIRA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.NavigationSubject, "AKIRA_BUS_NAVIGATION_SUBJECT")
	overrideString(&cfg.Artifacts.Mode, "AKIRA_ARTIFACTS_MODE")
	overrideString(&cfg.Artifacts.Path, "AKIRA_ARTIFACTS_PATH")
	overrideInt(&cfg.Artifacts.OrphanTTLMinutes, "AKIRA_ARTIFACTS_ORPHAN_TTL_MINUTES")
	overrideInt(&cfg.Artifacts.SweepIntervalSeconds, "AKIRA_ARTIFACTS_SWEEP_INTERVAL_SECONDS")
	overrideString(&cfg.STT.Mode, "AKIRA_STT_MODE")
	overrideString(&cfg.STT.Command, "AKIRA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "AKIRA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "AKIRA_STT_LANGUAGE")
	overrideInt(&cfg.STT.ChunkSamples, "AKIRA_STT_CHUNK_SAMPLES")
	overrideString(&cfg.STT.UploadDir, "AKIRA_STT_UPLOAD_DIR")
	overrideString(&cfg.TTS.Mode, "AKIRA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "AKIRA_TTS_COMMAND")
	overrideString(&cfg.TTS.OutputDir, "AKIRA_TTS_OUTPUT_DIR")
	overrideString(&cfg.TTS.Extension, "AKIRA_TTS_EXTENSION")
	overrideInt(&cfg.TTS.Rate, "AKIRA_TTS_RATE")
	overrideInt(&cfg.TTS.Voice, "AKIRA_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "AKIRA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "AKIRA_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "AKIRA_TTS_TIMEOUT_MS")
	overrideString(&cfg.TTS.YandexAPIKey, "AKIRA_TTS_YANDEX_API_KEY")
	overrideString(&cfg.TTS.YandexFolderID, "AKIRA_TTS_YANDEX_FOLDER_ID")
	overrideString(&cfg.TTS.YandexEndpoint, "AKIRA_TTS_YANDEX_ENDPOINT")
	overrideStringSlice(&cfg.TTS.YandexVoices, "AKIRA_TTS_YANDEX_VOICES")
	overrideString(&cfg.Listener.Recognizer, "AKIRA_LISTENER_RECOGNIZER")
	overrideString(&cfg.Listener.Capture, "AKIRA_LISTENER_CAPTURE")
	overrideInt(&cfg.Listener.SampleRate, "AKIRA_LISTENER_SAMPLE_RATE")
	overrideInt(&cfg.Listener.FramesPerBuffer, "AKIRA_LISTENER_FRAMES_PER_BUFFER")
	overrideInt(&cfg.Listener.QuietPeriodMS, "AKIRA_LISTENER_QUIET_PERIOD_MS")
	overrideInt(&cfg.Listener.MaxUtteranceMS, "AKIRA_LISTENER_MAX_UTTERANCE_MS")
	overrideInt(&cfg.Listener.FailureBackoffMS, "AKIRA_LISTENER_FAILURE_BACKOFF_MS")
	overrideInt(&cfg.Listener.RecognizeTimeoutMS, "AKIRA_LISTENER_RECOGNIZE_TIMEOUT_MS")
	overrideString(&cfg.Listener.YandexIAMToken, "AKIRA_LISTENER_YANDEX_IAM_TOKEN")
	overrideString(&cfg.Listener.YandexFolderID, "AKIRA_LISTENER_YANDEX_FOLDER_ID")
	overrideString(&cfg.Listener.YandexEndpoint, "AKIRA_LISTENER_YANDEX_ENDPOINT")
	overrideString(&cfg.Listener.Language, "AKIRA_LISTENER_LANGUAGE")
	overrideString(&cfg.Listener.ExitFarewell, "AKIRA_LISTENER_EXIT_FAREWELL")
	overrideString(&cfg.Listener.StopFarewell, "AKIRA_LISTENER_STOP_FAREWELL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// Validate reports the first configuration problem, if any.
func Validate(cfg Config) error {
	return validate(cfg)
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.PublicBaseURL == "" {
		return errors.New("http.public_base_url must not be empty")
	}
	if cfg.HTTP.RateLimitPerMinute < 0 {
		return errors.New("http.rate_limit_per_minute must be >= 0")
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		return errors.New("http.max_upload_bytes must be positive")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint is required when trace_exporter is otlp")
		}
	default:
		return fmt.Errorf("telemetry.trace_exporter must be none, stdout or otlp, got %q", cfg.Telemetry.TraceExporter)
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.NavigationSubject == "" {
			return errors.New("bus.navigation_subject must not be empty")
		}
	}
	switch cfg.Artifacts.Mode {
	case "ephemeral":
	case "sqlite":
		if cfg.Artifacts.Path == "" {
			return errors.New("artifacts.path must be set when mode=sqlite")
		}
	default:
		return errors.New("artifacts.mode must be one of ephemeral|sqlite")
	}
	if cfg.Artifacts.OrphanTTLMinutes < 0 {
		return errors.New("artifacts.orphan_ttl_minutes must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "whisper":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|whisper")
	}
	if cfg.STT.Mode == "whisper" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when mode=whisper")
	}
	if cfg.STT.ChunkSamples <= 0 {
		return errors.New("stt.chunk_samples must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	case "yandex":
		if cfg.TTS.YandexAPIKey == "" || cfg.TTS.YandexFolderID == "" {
			return errors.New("tts.yandex_api_key and tts.yandex_folder_id must be set when mode=yandex")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec|yandex")
	}
	if cfg.TTS.OutputDir == "" {
		return errors.New("tts.output_dir must not be empty")
	}
	if !strings.HasPrefix(cfg.TTS.Extension, ".") || len(cfg.TTS.Extension) < 2 {
		return errors.New("tts.extension must start with a dot")
	}
	if cfg.TTS.Rate <= 0 {
		return errors.New("tts.rate must be positive")
	}
	if cfg.TTS.Voice < 0 {
		return errors.New("tts.voice must be >= 0")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	switch cfg.Listener.Recognizer {
	case "mock":
	case "yandex":
		if cfg.Listener.YandexIAMToken == "" || cfg.Listener.YandexFolderID == "" {
			return errors.New("listener.yandex_iam_token and listener.yandex_folder_id must be set when recognizer=yandex")
		}
	default:
		return errors.New("listener.recognizer must be one of mock|yandex")
	}
	switch cfg.Listener.Capture {
	case "mock", "portaudio":
	default:
		return errors.New("listener.capture must be one of mock|portaudio")
	}
	if cfg.Listener.SampleRate <= 0 {
		return errors.New("listener.sample_rate must be positive")
	}
	if cfg.Listener.FramesPerBuffer <= 0 {
		return errors.New("listener.frames_per_buffer must be positive")
	}
	return nil
}
