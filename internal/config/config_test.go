package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("JOB_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Fatalf("expected default upload limit 20MiB, got %d", cfg.MaxUploadBytes)
	}
	if cfg.SuggestionTimeout != 30*time.Second {
		t.Fatalf("expected default suggestion timeout 30s, got %s", cfg.SuggestionTimeout)
	}
	if cfg.JobTTL != 0 {
		t.Fatalf("expected sweeping disabled by default, got %s", cfg.JobTTL)
	}
	if cfg.StorageBackend != StorageBackendLocal {
		t.Fatalf("expected local storage by default, got %q", cfg.StorageBackend)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "Ollama")
	t.Setenv("EXTRACTION_TIMEOUT", "45")
	t.Setenv("SUGGESTION_TIMEOUT", "1500ms")
	t.Setenv("OCR_LANGUAGES", "eng+deu")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMProvider != LLMProviderOllama {
		t.Fatalf("expected provider ollama, got %q", cfg.LLMProvider)
	}
	if cfg.ExtractionTimeout != 45*time.Second {
		t.Fatalf("expected plain seconds to parse, got %s", cfg.ExtractionTimeout)
	}
	if cfg.SuggestionTimeout != 1500*time.Millisecond {
		t.Fatalf("expected duration string to parse, got %s", cfg.SuggestionTimeout)
	}
	if strings.Join(cfg.OCRLanguages, ",") != "eng,deu" {
		t.Fatalf("unexpected languages %v", cfg.OCRLanguages)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadFileFillsMissingKeysAndEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	content := "LLM_PROVIDER: none\nmax_concurrent_jobs: 9\nNATS_SUBJECT_PREFIX: from.file\nAPI_PORT: 9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("MAX_CONCURRENT_JOBS", "")
	t.Setenv("NATS_SUBJECT_PREFIX", "")
	t.Setenv("API_PORT", "8081")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxConcurrentJobs != 9 || cfg.NATSSubjectPrefix != "from.file" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.APIPort != "8081" {
		t.Fatalf("expected env to win over file, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsInvalidChoices(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("STORAGE_BACKEND", "ftp")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") || !strings.Contains(err.Error(), "STORAGE_BACKEND") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
