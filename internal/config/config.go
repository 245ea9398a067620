package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
// It is resolved once at startup and passed by pointer to constructors.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Marketplace MarketplaceConfig
	Database    DatabaseConfig
	Session     SessionConfig
	Cache       CacheConfig
	Sync        SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name         string   `envconfig:"APP_NAME" default:"fullstock"`
	Environment  string   `envconfig:"APP_ENV" default:"development"`
	LogLevel     string   `envconfig:"LOG_LEVEL" default:"info"`
	PublicOrigin string   `envconfig:"APP_PUBLIC_ORIGIN" default:"http://localhost:8080"`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
}

// MarketplaceConfig holds Mercado Livre app credentials and endpoints.
// An empty ClientID puts the service in demo mode.
type MarketplaceConfig struct {
	ClientID        string        `envconfig:"ML_CLIENT_ID"`
	ClientSecret    string        `envconfig:"ML_CLIENT_SECRET"`
	RedirectURI     string        `envconfig:"ML_REDIRECT_URI"`
	AuthURL         string        `envconfig:"ML_AUTH_URL" default:"https://auth.mercadolivre.com.br/authorization"`
	APIURL          string        `envconfig:"ML_API_URL" default:"https://api.mercadolibre.com"`
	HTTPTimeout     time.Duration `envconfig:"ML_HTTP_TIMEOUT" default:"30s"`
	MultigetBatch   int           `envconfig:"ML_MULTIGET_BATCH" default:"20"`
	SalesWindowDays int           `envconfig:"ML_SALES_WINDOW_DAYS" default:"30"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path          string `envconfig:"DB_PATH" default:"./data/fullstock.db"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`
}

// SessionConfig holds cookie session and PKCE session settings.
type SessionConfig struct {
	Key    string        `envconfig:"SESSION_KEY"`
	Secure bool          `envconfig:"SESSION_SECURE" default:"false"`
	TTL    time.Duration `envconfig:"SESSION_TTL" default:"10m"`
}

// CacheConfig selects the PKCE verifier store backend.
type CacheConfig struct {
	Type          string `envconfig:"CACHE_TYPE" default:"memory"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SyncConfig holds background sync settings.
type SyncConfig struct {
	Schedule string        `envconfig:"SYNC_CRON"`
	Timeout  time.Duration `envconfig:"SYNC_TIMEOUT" default:"2m"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Key decodes the token encryption key. A nil key means tokens are stored unencrypted.
func (d *DatabaseConfig) Key() ([]byte, error) {
	if d.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(d.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ENCRYPTION_KEY from base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY length: got %d bytes, expected 32 bytes for AES-256", len(key))
	}
	return key, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.Marketplace.ClientID != "" && c.Marketplace.ClientSecret == "" {
		return fmt.Errorf("ML_CLIENT_SECRET is required when ML_CLIENT_ID is set")
	}
	if c.Marketplace.MultigetBatch <= 0 || c.Marketplace.MultigetBatch > 50 {
		return fmt.Errorf("ML_MULTIGET_BATCH must be between 1 and 50, got %d", c.Marketplace.MultigetBatch)
	}
	if c.Marketplace.SalesWindowDays <= 0 {
		return fmt.Errorf("ML_SALES_WINDOW_DAYS must be positive")
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type)
	}
	if _, err := c.Database.Key(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
