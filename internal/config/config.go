package config

import (
	"autoservice/internal/services"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment
type Config struct {
	Addr         string `validate:"required,hostname_port"`
	DataDir      string `validate:"required"`
	SettingsFile string `validate:"required"`
	LogLevel     string `validate:"oneof=debug info warn error"`

	AllowedOrigins []string
	RateLimit      RateLimitConfig

	Estimator      services.EstimatorConfig
	FingerprintTTL time.Duration `validate:"gt=0"`
	HistorySize    int           `validate:"gte=1"`
	EventBuffer    int           `validate:"gte=1"`

	RetentionInterval time.Duration `validate:"gt=0"`

	SamplesDSN string
	Redis      RedisConfig
	NATS       NATSConfig
	S3         services.S3Config
}

// RateLimitConfig controls global and per-IP limits
type RateLimitConfig struct {
	RPS      float64 `validate:"gt=0"`
	Burst    int     `validate:"gt=0"`
	PerIPRPS float64 `validate:"gt=0"`
}

// RedisConfig enables the prediction cache when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int           `validate:"gte=0"`
	TTL      time.Duration `validate:"gt=0"`
}

// NATSConfig enables event forwarding when URL is set
type NATSConfig struct {
	URL     string
	Subject string
}

// Load reads envFile (when it exists) and then the environment
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	dataDir := getEnv("AUTOSERVICE_DATA_DIR", defaultDataDir())
	est := services.DefaultEstimatorConfig()
	cfg := &Config{
		Addr:           getEnv("AUTOSERVICE_ADDR", "localhost:8080"),
		DataDir:        dataDir,
		SettingsFile:   getEnv("AUTOSERVICE_SETTINGS_FILE", filepath.Join(dataDir, "settings.yaml")),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
		RateLimit: RateLimitConfig{
			RPS:      getEnvFloat("RATE_LIMIT_RPS", 50),
			Burst:    getEnvInt("RATE_LIMIT_BURST", 100),
			PerIPRPS: getEnvFloat("RATE_LIMIT_PER_IP_RPS", 10),
		},
		Estimator: services.EstimatorConfig{
			Lambda:            getEnvFloat("ESTIMATOR_LAMBDA", est.Lambda),
			WeightClamp:       getEnvFloat("ESTIMATOR_WEIGHT_CLAMP", est.WeightClamp),
			HalfLife:          getEnvDuration("ESTIMATOR_HALF_LIFE", est.HalfLife),
			OutlierMinSamples: getEnvInt("ESTIMATOR_OUTLIER_MIN_SAMPLES", est.OutlierMinSamples),
			IQRMultiplier:     getEnvFloat("ESTIMATOR_IQR_MULTIPLIER", est.IQRMultiplier),
			MinFitSamples:     getEnvInt("ESTIMATOR_MIN_FIT_SAMPLES", est.MinFitSamples),
			DefaultDuration:   getEnvDuration("ESTIMATOR_DEFAULT_DURATION", est.DefaultDuration),
			MinDuration:       getEnvDuration("ESTIMATOR_MIN_DURATION", est.MinDuration),
		},
		FingerprintTTL:    getEnvDuration("FINGERPRINT_TTL", 10*time.Minute),
		HistorySize:       getEnvInt("RUN_HISTORY_SIZE", 20),
		EventBuffer:       getEnvInt("EVENT_BUFFER", 256),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 6*time.Hour),
		SamplesDSN:        getEnv("SAMPLES_DSN", ""),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_PREDICTION_TTL", 10*time.Minute),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", "autoservice.events"),
		},
		S3: services.S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "reports"),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SamplesFile is the JSON lines sample store used without SAMPLES_DSN
func (c *Config) SamplesFile() string {
	return filepath.Join(c.DataDir, "samples.jsonl")
}

// ReportsDir is where reports are saved
func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "autoservice")
	}
	return "autoservice-data"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
