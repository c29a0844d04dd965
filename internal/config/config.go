package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"

	LLMProviderGemini = "gemini"
	LLMProviderOllama = "ollama"
	LLMProviderNone   = "none"
)

type Config struct {
	APIPort         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	APIKey                     string
	APIRateLimitRPS            float64
	APIRateLimitBurst          int
	APIBackpressureMaxInFlight int
	APIBackpressureWait        time.Duration

	MaxUploadBytes    int64
	MaxConcurrentJobs int
	ExtractionTimeout time.Duration
	SuggestionTimeout time.Duration
	SuggestionCount   int
	JobTTL            time.Duration
	JobSweepInterval  time.Duration

	StorageBackend string
	StoragePath    string
	S3EndpointURL  string
	S3Region       string
	S3Bucket       string
	S3Prefix       string
	S3AccessKey    string
	S3SecretKey    string

	OCREngine         string
	OCRLanguages      []string
	TesseractBinary   string
	PdftoppmBinary    string
	PDFRasterDPI      int
	PDFMaxPages       int
	MinTextLayerChars int
	TempDir           string

	LLMProvider        string
	LLMTemperature     float64
	LLMMaxOutputTokens int
	GeminiAPIKey       string
	GeminiModel        string
	OllamaURL          string
	OllamaModel        string

	NATSURL           string
	NATSSubjectPrefix string

	PostgresDSN string

	ResilienceRetryMaxAttempts    int
	ResilienceRetryInitialBackoff time.Duration
	ResilienceRetryMaxBackoff     time.Duration
	ResilienceBreakerEnabled      bool
	ResilienceBreakerOpenTimeout  time.Duration
}

// Load reads configuration from the environment. When APP_CONFIG_FILE points at a YAML
// file of KEY: value pairs, those values fill keys missing from the environment.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		values, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = values
	}

	cfg := Config{
		APIPort:         src.mustEnv("API_PORT", "8080"),
		LogLevel:        src.mustEnv("LOG_LEVEL", "info"),
		LogFormat:       src.mustEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: src.mustEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		APIKey:                     src.mustEnv("API_KEY", ""),
		APIRateLimitRPS:            src.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:          src.mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIBackpressureMaxInFlight: src.mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 0),
		APIBackpressureWait:        src.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		MaxUploadBytes:    int64(src.mustEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		MaxConcurrentJobs: src.mustEnvInt("MAX_CONCURRENT_JOBS", 4),
		ExtractionTimeout: src.mustEnvDuration("EXTRACTION_TIMEOUT", 2*time.Minute),
		SuggestionTimeout: src.mustEnvDuration("SUGGESTION_TIMEOUT", 30*time.Second),
		SuggestionCount:   src.mustEnvInt("SUGGESTION_COUNT", 5),
		JobTTL:            src.mustEnvDuration("JOB_TTL", 0),
		JobSweepInterval:  src.mustEnvDuration("JOB_SWEEP_INTERVAL", time.Minute),

		StorageBackend: strings.ToLower(src.mustEnv("STORAGE_BACKEND", StorageBackendLocal)),
		StoragePath:    src.mustEnv("STORAGE_PATH", "./data/uploads"),
		S3EndpointURL:  src.mustEnv("S3_ENDPOINT_URL", ""),
		S3Region:       src.mustEnv("S3_REGION", "us-east-1"),
		S3Bucket:       src.mustEnv("S3_BUCKET", ""),
		S3Prefix:       src.mustEnv("S3_PREFIX", "uploads"),
		S3AccessKey:    src.mustEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    src.mustEnv("S3_SECRET_KEY", ""),

		OCREngine:         src.mustEnv("OCR_ENGINE", "gosseract"),
		OCRLanguages:      splitList(src.mustEnv("OCR_LANGUAGES", "eng")),
		TesseractBinary:   src.mustEnv("TESSERACT_BINARY", "tesseract"),
		PdftoppmBinary:    src.mustEnv("PDFTOPPM_BINARY", "pdftoppm"),
		PDFRasterDPI:      src.mustEnvInt("PDF_RASTER_DPI", 200),
		PDFMaxPages:       src.mustEnvInt("PDF_MAX_PAGES", 0),
		MinTextLayerChars: src.mustEnvInt("MIN_TEXT_LAYER_CHARS", 5),
		TempDir:           src.mustEnv("TEMP_DIR", ""),

		LLMProvider:        strings.ToLower(src.mustEnv("LLM_PROVIDER", LLMProviderGemini)),
		LLMTemperature:     src.mustEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxOutputTokens: src.mustEnvInt("LLM_MAX_OUTPUT_TOKENS", 300),
		GeminiAPIKey:       src.mustEnv("GEMINI_API_KEY", ""),
		GeminiModel:        src.mustEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaURL:          src.mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        src.mustEnv("OLLAMA_MODEL", "llama3.1:8b"),

		NATSURL:           src.mustEnv("NATS_URL", ""),
		NATSSubjectPrefix: src.mustEnv("NATS_SUBJECT_PREFIX", "analyzer.jobs"),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		ResilienceRetryMaxAttempts:    src.mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoff: src.mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		ResilienceRetryMaxBackoff:     src.mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", 2*time.Second),
		ResilienceBreakerEnabled:      src.mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerOpenTimeout:  src.mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case StorageBackendLocal:
	case StorageBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	switch c.LLMProvider {
	case LLMProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case LLMProviderOllama, LLMProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_JOBS must be positive"))
	}
	return errors.Join(errs...)
}

type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		if value == nil {
			continue
		}
		out[strings.ToUpper(key)] = fmt.Sprint(value)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go duration strings or plain seconds.
func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
