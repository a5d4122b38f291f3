package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv points LoadConfig at a .env file that does not exist so a
// developer's local file cannot leak into the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateEnv(t)
	for _, key := range []string{"ADDR", "POOL_SIZE", "MASK_THRESHOLD", "CONNECTIVITY", "HISTORY_BACKEND", "ARTIFACT_BACKEND", "SEGMENTER_MODEL", "SEGMENTER_METADATA"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.PoolSize != DefaultPoolSize || cfg.Connectivity != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaskThreshold != 0.5 || cfg.HistoryBackend != "sqlite" || cfg.ArtifactBackend != "local" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if want := filepath.Join("models", "segmenter.json"); cfg.SegmenterMetadata != want {
		t.Fatalf("segmenter metadata = %q, want %q", cfg.SegmenterMetadata, want)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("POOL_SIZE", "2")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("CONNECTIVITY", "4")
	t.Setenv("DEBUG", "true")
	t.Setenv("CLASSIFIER_MODEL", "/opt/models/xray.onnx")
	t.Setenv("CLASSIFIER_METADATA", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PoolSize != 2 || cfg.RequestTimeout != 5*time.Second || cfg.Connectivity != 4 || !cfg.Debug {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ClassifierMetadata != "/opt/models/xray.json" {
		t.Fatalf("classifier metadata = %q", cfg.ClassifierMetadata)
	}
}

func TestLoadConfigFromDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "service.env")
	if err := os.WriteFile(envFile, []byte("RATE_BURST=7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	// godotenv does not override variables that already exist, so make sure
	// the key is absent rather than empty.
	t.Setenv("RATE_BURST", "")
	os.Unsetenv("RATE_BURST")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateBurst != 7 {
		t.Fatalf("rate burst = %d, want 7", cfg.RateBurst)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold above one", map[string]string{"MASK_THRESHOLD": "1.5"}},
		{"bad connectivity", map[string]string{"CONNECTIVITY": "6"}},
		{"pool too large", map[string]string{"POOL_SIZE": "500"}},
		{"unknown history backend", map[string]string{"HISTORY_BACKEND": "mongo"}},
		{"s3 without bucket", map[string]string{"ARTIFACT_BACKEND": "s3", "AWS_BUCKET_NAME": ""}},
		{"redis without address", map[string]string{"HISTORY_BACKEND": "redis", "REDIS_ADDRESS": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
				t.Fatalf("err = %v, want invalid configuration", err)
			}
		})
	}
}

func TestValidateRequiresHistoryDSN(t *testing.T) {
	isolateEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	cfg.HistoryBackend = "postgres"
	cfg.HistoryDSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for postgres without a DSN")
	}

	cfg.HistoryBackend = "none"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("none backend should not need a DSN: %v", err)
	}
}

func TestMetadataPath(t *testing.T) {
	tests := map[string]string{
		"models/segmenter.onnx": "models/segmenter.json",
		"model":                 "model.json",
		"a.b/c.onnx":            "a.b/c.json",
	}
	for in, want := range tests {
		if got := metadataPath(in); got != want {
			t.Errorf("metadataPath(%q) = %q, want %q", in, got, want)
		}
	}
}
