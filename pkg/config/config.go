// Package config provides configuration handling for pixelmuse.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Redis configuration (execution heartbeats)
	Redis RedisConfig `json:"redis"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Cron configuration
	Cron CronConfig `json:"cron"`

	// Providers configuration
	Providers ProvidersConfig `json:"providers"`

	// Assets configuration
	Assets AssetsConfig `json:"assets"`

	// Credits configuration
	Credits CreditsConfig `json:"credits"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use: "memory" or "postgres"
	Type string `json:"type"`

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig contains Redis settings for execution heartbeats
type RedisConfig struct {
	// Enabled turns heartbeat tracking on
	Enabled bool `json:"enabled"`

	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`
}

// CronConfig contains scheduler settings
type CronConfig struct {
	// Secret is the shared secret the external minute-granularity caller
	// must present in the X-Cron-Secret header
	Secret string `json:"secret"`
}

// ProvidersConfig contains generation provider settings
type ProvidersConfig struct {
	// BaseURL of the generation API
	BaseURL string `json:"base_url"`

	// APIKey sent as a bearer token
	APIKey string `json:"api_key"`

	// TextEndpoint handles prompt/caption generation
	TextEndpoint string `json:"text_endpoint"`

	// TextToImageEndpoint handles plain image generation
	TextToImageEndpoint string `json:"text_to_image_endpoint"`

	// ImageToImageEndpoint handles reference-guided image generation
	ImageToImageEndpoint string `json:"image_to_image_endpoint"`

	// VideoEndpoint handles video generation
	VideoEndpoint string `json:"video_endpoint"`
}

// AssetsConfig contains S3-backed asset storage settings
type AssetsConfig struct {
	// Region is the AWS region
	Region string `json:"region"`

	// Bucket holding user media
	Bucket string `json:"bucket"`

	// Endpoint overrides the S3 endpoint (for local development)
	Endpoint string `json:"endpoint"`

	// SignedURLMinutes is the lifetime of presigned URLs
	SignedURLMinutes int `json:"signed_url_minutes"`
}

// CreditsConfig contains credit policy settings
type CreditsConfig struct {
	// MinScheduledBalance is the minimum balance a user must hold for a
	// scheduled run to dispatch
	MinScheduledBalance int `json:"min_scheduled_balance"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "pixelmuse",
				User:     "pixelmuse",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			TokenExpiration: 24,
		},
		Providers: ProvidersConfig{
			TextEndpoint:         "/v1/text",
			TextToImageEndpoint:  "/v1/images/generations",
			ImageToImageEndpoint: "/v1/images/edits",
			VideoEndpoint:        "/v1/videos/generations",
		},
		Assets: AssetsConfig{
			Region:           "us-east-1",
			Bucket:           "pixelmuse-media",
			SignedURLMinutes: 15,
		},
		Credits: CreditsConfig{
			MinScheduledBalance: 5,
		},
	}
	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PIXELMUSE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("PIXELMUSE_CRON_SECRET"); v != "" {
		c.Cron.Secret = v
	}
	if v := os.Getenv("PIXELMUSE_PROVIDER_API_KEY"); v != "" {
		c.Providers.APIKey = v
	}
	if v := os.Getenv("PIXELMUSE_PROVIDER_BASE_URL"); v != "" {
		c.Providers.BaseURL = v
	}
	if v := os.Getenv("PIXELMUSE_POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
