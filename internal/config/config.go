package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string         `json:"env"`
	Http     HttpConfig     `json:"http"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Auth     AuthConfig     `json:"auth"`
	Photos   PhotoConfig    `json:"photos"`
	Webhook  WebhookConfig  `json:"webhook"`
	Feed     FeedConfig     `json:"feed"`
}

type HttpConfig struct {
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"ssl_mode"`

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Migrate         bool
}

type RedisConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password,omitempty"`
	DB          int           `json:"db"`
	PoolSize    int           `json:"pool_size"`
	DialTimeout time.Duration `json:"dial_timeout"`
	CacheTTL    time.Duration `json:"cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
}

type PhotoConfig struct {
	Store    string `json:"store"` // minio | cloudinary
	MaxBytes int64  `json:"max_bytes"`

	MinioEndpoint       string `json:"minio_endpoint"`
	MinioPublicEndpoint string `json:"minio_public_endpoint"`
	MinioAccessKey      string `json:"-"`
	MinioSecretKey      string `json:"-"`
	MinioBucket         string `json:"minio_bucket"`
	MinioUseSSL         bool   `json:"minio_use_ssl"`

	CloudinaryCloud  string `json:"cloudinary_cloud"`
	CloudinaryKey    string `json:"-"`
	CloudinarySecret string `json:"-"`
	CloudinaryFolder string `json:"cloudinary_folder"`
}

type WebhookConfig struct {
	URL      string `json:"url"`
	Disabled bool   `json:"disabled"`
	Queue    string `json:"queue"`
}

type FeedConfig struct {
	Buffer int `json:"buffer"`
}

func Load() (*Config, error) {

	stdLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdLogger.Warn(".env load warning", slog.Any("error", err))
	}

	cfg := &Config{
		Env: getEnv("ENV", "local"),
		Http: HttpConfig{
			Port:            getEnv("HTTP_PORT", ":8080"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "pg-local"),
			Port:            getEnvInt("POSTGRES_PORT", 5432),
			Database:        getEnv("POSTGRES_DB", "signalhub"),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
			MaxConns:        int32(getEnvInt("POSTGRES_MAX_CONNS", 20)),
			MinConns:        1,
			MaxConnLifetime: 1 * time.Hour,
			Migrate:         getEnvBool("POSTGRES_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "redis-local:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			PoolSize:    getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			CacheTTL:    getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Photos: PhotoConfig{
			Store:               getEnv("PHOTO_STORE", "minio"),
			MaxBytes:            int64(getEnvInt("PHOTO_MAX_BYTES", 5<<20)),
			MinioEndpoint:       getEnv("MINIO_ENDPOINT", "minio-local:9000"),
			MinioPublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", ""),
			MinioAccessKey:      getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			MinioSecretKey:      getEnv("MINIO_SECRET_KEY", "minioadmin"),
			MinioBucket:         getEnv("MINIO_BUCKET", "report-photos"),
			MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),
			CloudinaryCloud:     getEnv("CLOUDINARY_CLOUD_NAME", ""),
			CloudinaryKey:       getEnv("CLOUDINARY_API_KEY", ""),
			CloudinarySecret:    getEnv("CLOUDINARY_API_SECRET", ""),
			CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "signalhub/reports"),
		},
		Webhook: WebhookConfig{
			URL:      getEnv("WEBHOOK_URL", ""),
			Disabled: getEnvBool("WEBHOOK_DISABLED", false),
			Queue:    getEnv("WEBHOOK_QUEUE", "webhooks:report-status"),
		},
		Feed: FeedConfig{
			Buffer: getEnvInt("FEED_BUFFER", 256),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stdLogger.Info("Config loaded successfully",
		slog.String("env", cfg.Env),
		slog.String("http_port", cfg.Http.Port),
		slog.String("postgres_db", cfg.Postgres.Database),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.String("photo_store", cfg.Photos.Store),
		slog.Bool("webhook_disabled", cfg.Webhook.Disabled))

	return cfg, nil
}

func (c *Config) Validate() error {

	if c.Http.Port == "" || c.Http.Port[0] != ':' {
		return errors.New("HTTP_PORT must start with ':' like ':8080'")
	}

	if c.Postgres.Host == "" {
		return errors.New("POSTGRES_HOST required")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET required")
	}

	switch c.Photos.Store {
	case "minio":
	case "cloudinary":
		if c.Photos.CloudinaryCloud == "" || c.Photos.CloudinaryKey == "" || c.Photos.CloudinarySecret == "" {
			return errors.New("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET required for PHOTO_STORE=cloudinary")
		}
	default:
		return errors.New("PHOTO_STORE must be minio or cloudinary")
	}

	if c.Photos.MaxBytes <= 0 {
		return errors.New("PHOTO_MAX_BYTES must be positive")
	}

	if !c.Webhook.Disabled && c.Webhook.URL == "" {
		c.Webhook.Disabled = true
	}

	if c.Feed.Buffer <= 0 {
		c.Feed.Buffer = 256
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
