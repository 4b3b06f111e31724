package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"txt-worker/domain"
)

const DefaultAMQPURL = "amqp://localhost:5672"

type Config struct {
	AMQPURL        string
	AckPolicy      domain.AckPolicy
	Mode           domain.Mode
	PrefetchCount  int
	TesseractPath  string
	OCRLanguage    string
	OCRDPI         float64
	OCRConcurrency int

	DatabaseURL    string
	DynamoDBTable  string
	RedisHost      string
	RedisPort      string
	OutputBucket   string
	NotifyQueueURL string
	AWSRegion      string
}

// Load reads configuration from the environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := &Config{
		AMQPURL:        getEnv("AMQP_URL", DefaultAMQPURL),
		AckPolicy:      domain.AckPolicy(getEnv("ACK_POLICY", string(domain.AckOnReceipt))),
		Mode:           domain.Mode(getEnv("EXTRACTION_MODE", string(domain.ModeOCR))),
		TesseractPath:  getEnv("TESSERACT_PATH", "tesseract"),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DynamoDBTable:  os.Getenv("DYNAMODB_TABLE"),
		RedisHost:      os.Getenv("REDIS_HOST"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		OutputBucket:   os.Getenv("OUTPUT_BUCKET"),
		NotifyQueueURL: os.Getenv("NOTIFY_QUEUE_URL"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
	}

	if !cfg.AckPolicy.Valid() {
		return nil, fmt.Errorf("ACK_POLICY must be %q or %q, got %q", domain.AckOnReceipt, domain.AckOnCompletion, cfg.AckPolicy)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("EXTRACTION_MODE must be %q or %q, got %q", domain.ModeOCR, domain.ModeText, cfg.Mode)
	}

	var err error
	if cfg.PrefetchCount, err = getEnvInt("PREFETCH_COUNT", 0); err != nil {
		return nil, err
	}
	if cfg.PrefetchCount < 0 {
		return nil, fmt.Errorf("PREFETCH_COUNT must not be negative")
	}
	if cfg.OCRConcurrency, err = getEnvInt("OCR_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.OCRConcurrency <= 0 {
		cfg.OCRConcurrency = 1
	}

	dpi := getEnv("OCR_DPI", "300")
	cfg.OCRDPI, err = strconv.ParseFloat(dpi, 64)
	if err != nil || cfg.OCRDPI <= 0 {
		return nil, fmt.Errorf("OCR_DPI must be a positive number, got %q", dpi)
	}

	return cfg, nil
}

// getEnv treats a set but empty variable as unset, so KEY=${KEY} in a compose file keeps the default.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
