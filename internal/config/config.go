// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	DataDir      string
	DeviceName   string
	InstanceName string // session auto-initialized on startup, "" = none
	StoreBackend string // "sqlite" or "memory"
	Media        MediaConfig
}

// MediaConfig controls the S3-compatible media store.
type MediaConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	expiry := getEnvInt("MEDIA_URL_EXPIRY_SECONDS", 3600)
	if expiry <= 0 {
		expiry = 3600
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/wpp-api.db"),
		DataDir:      getEnv("DATA_DIR", "./data/sessions"),
		DeviceName:   getEnv("DEVICE_NAME", "WppAPI"),
		InstanceName: getEnv("INSTANCE_NAME", "default"),
		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		Media: MediaConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "wpp-media"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
			URLExpiry: time.Duration(expiry) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	switch c.StoreBackend {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"sqlite\" or \"memory\", got %q", c.StoreBackend)
	}
	if c.Media.Bucket == "" {
		return fmt.Errorf("S3_BUCKET cannot be empty")
	}
	return nil
}

// MediaEnabled reports whether an object store endpoint is configured.
// Without one, inbound attachments are recorded but not offloaded.
func (c *Config) MediaEnabled() bool {
	return c.Media.Endpoint != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
