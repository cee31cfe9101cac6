package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	APIURL     string
	StaticDir  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Access and refresh tokens are signed with different keys so that one
	// can be rotated without invalidating the other.
	AccessSecret   string
	RefreshSecret  string
	AccessTokenTTL time.Duration
	BcryptCost     int

	// TokenRetention of zero keeps refresh-token rows forever.
	TokenRetention     time.Duration
	TokenPruneSchedule string

	RedisAddr    string
	PostCacheTTL time.Duration

	// StorageDriver selects the image store: "minio" or "s3".
	StorageDriver  string
	ImageBucket    string
	MaxUploadBytes int64

	// MinIO configuration
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// S3 configuration
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string

	// Notices describes fallbacks Load applied. Load runs before the logger
	// exists, so the caller logs them.
	Notices []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		ServerAddr: getEnvOrDefault("SERVER_ADDR", ":8000"),
		APIURL:     strings.TrimRight(getEnvOrDefault("API_URL", "http://localhost:8000"), "/"),
		StaticDir:  getEnvOrDefault("STATIC_DIR", ""),

		DBHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("DB_PORT", "5432"),
		DBUser:     getEnvOrDefault("DB_USER", "blog"),
		DBPassword: getEnvOrDefault("DB_PASSWORD", "blog_dev_password"),
		DBName:     getEnvOrDefault("DB_NAME", "blog"),
		DBSSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),

		AccessSecret:       getEnvOrDefault("ACCESS_SECRET_KEY", ""),
		RefreshSecret:      getEnvOrDefault("REFRESH_SECRET_KEY", ""),
		TokenPruneSchedule: getEnvOrDefault("TOKEN_PRUNE_SCHEDULE", "@every 1h"),

		RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),

		StorageDriver: strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", "minio")),
		ImageBucket:   getEnvOrDefault("IMAGE_BUCKET", "photos"),

		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),

		S3Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnvOrDefault("S3_ENDPOINT", ""),
		S3AccessKey: getEnvOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnvOrDefault("S3_SECRET_KEY", ""),

		LogLevel:           strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		CORSAllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.AccessTokenTTL, err = getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TokenRetention, err = getEnvAsDuration("TOKEN_RETENTION", 0); err != nil {
		return nil, err
	}
	if cfg.PostCacheTTL, err = getEnvAsDuration("POST_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getEnvAsInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	maxUpload, err := getEnvAsInt("MAX_UPLOAD_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.MinioUseSSL, err = getEnvAsBool("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}
	if cfg.S3UsePathStyle, err = getEnvAsBool("S3_USE_PATH_STYLE", true); err != nil {
		return nil, err
	}

	if cfg.AccessSecret == "" {
		cfg.Notices = append(cfg.Notices, "ACCESS_SECRET_KEY not set, using a random per-process secret")
		cfg.AccessSecret = generateDefaultSecret()
	}
	if cfg.RefreshSecret == "" {
		cfg.Notices = append(cfg.Notices, "REFRESH_SECRET_KEY not set, using a random per-process secret")
		cfg.RefreshSecret = generateDefaultSecret()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that the rest of the application relies on.
func (c *Config) Validate() error {
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("ACCESS_SECRET_KEY and REFRESH_SECRET_KEY must differ")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST %d out of range [4,31]", c.BcryptCost)
	}
	if c.TokenRetention < 0 {
		return errors.New("TOKEN_RETENTION must not be negative")
	}
	switch c.StorageDriver {
	case "minio", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return hex.EncodeToString(bytes)
}
