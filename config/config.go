package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded once in main and injected
// into the components that need it. Environment variables take priority,
// following the 12-factor approach.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	WhatsApp WhatsAppConfig
	Dispatch DispatchConfig
	JWTSecret string
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// StorageConfig configures the S3 bucket used for re-hosted media.
type StorageConfig struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

// WhatsAppConfig holds the process-wide WhatsApp Cloud API settings.
// Per-tenant credentials (phone number id, access token) live on the App
// record; the verify token and app secret are shared across the WABA.
type WhatsAppConfig struct {
	VerifyToken string
	AppSecret   string
	APIVersion  string
}

type DispatchConfig struct {
	PollInterval time.Duration
	Budget       time.Duration
	MaxAttempts  int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8070"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "chatagent"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Region:     getEnv("S3_REGION", "us-east-1"),
			Bucket:     getEnv("S3_BUCKET", "chatagent-cs"),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		},
		WhatsApp: WhatsAppConfig{
			VerifyToken: getEnv("WA_VERIFY_TOKEN", ""),
			AppSecret:   getEnv("WA_APP_SECRET", ""),
			APIVersion:  getEnv("WA_API_VERSION", "v22.0"),
		},
		Dispatch: DispatchConfig{
			PollInterval: getEnvAsDuration("DISPATCH_POLL_INTERVAL_MS", 1000) * time.Millisecond,
			Budget:       getEnvAsDuration("DISPATCH_BUDGET_MS", 120000) * time.Millisecond,
			MaxAttempts:  getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
		},
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// IsDevelopment reports whether the process runs with APP_ENV=development,
// the default for local work.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Validate rejects configurations that would silently weaken security
// outside development. An empty WA_APP_SECRET disables webhook signature
// verification, and an empty JWT_SECRET makes every dashboard token
// forgeable; neither is acceptable in a deployed environment.
func (c *Config) Validate() error {
	if c.IsDevelopment() {
		return nil
	}
	if c.WhatsApp.AppSecret == "" {
		return errors.New("WA_APP_SECRET must be set when APP_ENV is not development: webhook signature verification would be disabled")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set when APP_ENV is not development")
	}
	return nil
}

// DSN builds the Postgres connection string for gorm and the pq listener.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host + " port=" + d.Port + " user=" + d.User +
		" password=" + d.Password + " dbname=" + d.Name + " sslmode=" + d.SSLMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback))
}
