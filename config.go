package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr   string `validate:"required"`
	Debug  bool
	AppEnv string
	LogDir string

	OnnxLibPath        string
	SegmenterModel     string `validate:"required"`
	SegmenterMetadata  string
	ClassifierModel    string `validate:"required"`
	ClassifierMetadata string

	PoolSize       int           `validate:"min=1,max=64"`
	SessionThreads int           `validate:"min=0"`
	AcquireTimeout time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	MaxUploadBytes int64         `validate:"min=1024"`

	MaskThreshold float64 `validate:"gt=0,lt=1"`
	Connectivity  int     `validate:"oneof=4 8"`

	ArtifactBackend string `validate:"oneof=local s3"`
	AnnotationDir   string `validate:"required_if=ArtifactBackend local"`
	UploadDir       string `validate:"required_if=ArtifactBackend local"`
	S3Bucket        string `validate:"required_if=ArtifactBackend s3"`
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	S3AccessKey     string
	S3SecretKey     string

	HistoryBackend string `validate:"oneof=none sqlite postgres redis"`
	HistoryDSN     string
	RedisAddr      string `validate:"required_if=HistoryBackend redis"`
	RedisPassword  string
	RedisDB        int `validate:"min=0"`
	HistoryTTL     time.Duration

	RateLimit float64 `validate:"min=0"`
	RateBurst int     `validate:"min=0"`
}

// LoadConfig reads an optional .env file (ENV_FILE overrides the path) and
// then the process environment.
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	segmenterModel := getEnv("SEGMENTER_MODEL", filepath.Join("models", "segmenter.onnx"))
	classifierModel := getEnv("CLASSIFIER_MODEL", filepath.Join("models", "classifier.onnx"))

	cfg := &Config{
		Addr:   getEnv("ADDR", "127.0.0.1:8080"),
		Debug:  getEnvAsBool("DEBUG", false),
		AppEnv: getEnv("APP_ENV", "development"),
		LogDir: getEnv("LOG_DIR", filepath.Join("storage", "logs")),

		OnnxLibPath:        getEnv("ONNXRUNTIME_LIB", ""),
		SegmenterModel:     segmenterModel,
		SegmenterMetadata:  getEnv("SEGMENTER_METADATA", metadataPath(segmenterModel)),
		ClassifierModel:    classifierModel,
		ClassifierMetadata: getEnv("CLASSIFIER_METADATA", metadataPath(classifierModel)),

		PoolSize:       getEnvAsInt("POOL_SIZE", DefaultPoolSize),
		SessionThreads: getEnvAsInt("SESSION_THREADS", runtime.NumCPU()),
		AcquireTimeout: getEnvAsDuration("ACQUIRE_TIMEOUT", AcquireTimeout),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 10<<20),

		MaskThreshold: getEnvAsFloat("MASK_THRESHOLD", 0.5),
		Connectivity:  getEnvAsInt("CONNECTIVITY", 8),

		ArtifactBackend: getEnv("ARTIFACT_BACKEND", "local"),
		AnnotationDir:   getEnv("ANNOTATION_DIR", filepath.Join("storage", "annotations")),
		UploadDir:       getEnv("UPLOAD_DIR", filepath.Join("storage", "uploads")),
		S3Bucket:        getEnv("AWS_BUCKET_NAME", ""),
		S3Region:        getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:      getEnv("AWS_ENDPOINT", ""),
		S3Prefix:        getEnv("AWS_PREFIX", ""),
		S3AccessKey:     getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),

		HistoryBackend: getEnv("HISTORY_BACKEND", "sqlite"),
		HistoryDSN:     getEnv("HISTORY_DSN", filepath.Join("storage", "history.db")),
		RedisAddr:      getEnv("REDIS_ADDRESS", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		HistoryTTL:     getEnvAsDuration("HISTORY_TTL", 7*24*time.Hour),

		RateLimit: getEnvAsFloat("RATE_LIMIT", 0),
		RateBurst: getEnvAsInt("RATE_BURST", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if (c.HistoryBackend == "sqlite" || c.HistoryBackend == "postgres") && c.HistoryDSN == "" {
		return fmt.Errorf("invalid configuration: HISTORY_DSN is required for %s", c.HistoryBackend)
	}
	return nil
}

// metadataPath is the JSON file stored next to a model: foo.onnx -> foo.json.
func metadataPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
