package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string

	// Upload storage
	StorageBackend string // "local" or "minio"
	UploadsDir     string

	// MinIO (only used when StorageBackend == "minio")
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Ingestion
	ExtractionTimeout time.Duration
	WorkerCount       int
	QueueSize         int

	// Structured extraction: "regex" or "remote"
	ExtractorKind string
	ExtractorURL  string

	// Logging
	LogLevel  string
	LogFormat string // "json" or "pretty"
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	backend := os.Getenv("STORAGE_BACKEND")
	if backend == "" {
		backend = "local"
	}

	uploadsDir := os.Getenv("UPLOADS_DIR")
	if uploadsDir == "" {
		uploadsDir = "./uploads"
	}

	extractorKind := os.Getenv("EXTRACTOR_KIND")
	if extractorKind == "" {
		extractorKind = "regex"
	}

	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StorageBackend: backend,
		UploadsDir:     uploadsDir,

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    envString("MINIO_BUCKET", "resumes"),
		MinIOUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",

		ExtractionTimeout: envDuration("EXTRACTION_TIMEOUT", 30*time.Second),
		WorkerCount:       envInt("WORKER_COUNT", 4),
		QueueSize:         envInt("QUEUE_SIZE", 50),

		ExtractorKind: extractorKind,
		ExtractorURL:  os.Getenv("EXTRACTOR_URL"),

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "json"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, using default")
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment, using default")
		return fallback
	}
	return d
}
