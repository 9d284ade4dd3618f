package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creditgate/billing/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Products  map[string]domain.ProductConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Stripe    StripeConfig
	Secrets   SecretsConfig
	Auth      AuthConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	MetricsPort     int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Per-operation deadlines
	LedgerTimeout        time.Duration
	WebhookVerifyTimeout time.Duration
	IntentTimeout        time.Duration
}

// DatabaseConfig holds PostgreSQL configuration. ReadURL points reads at a
// replica; it falls back to URL when unset. All locking work uses URL.
type DatabaseConfig struct {
	URL      string
	ReadURL  string
	MaxConns int32
	MinConns int32
}

// BillingConfig holds the credit pool and pricing settings
type BillingConfig struct {
	DefaultCurrency       string
	DefaultPlanName       string
	FreeUsesPerAccount    int64
	PaidUsesPerPurchase   int64
	PricePerPurchaseMinor int64
}

// StripeConfig holds payment provider configuration. Provider selects the
// active gateway. Empty APIKey or WebhookSecret resolve through the secret
// manager using the corresponding path.
type StripeConfig struct {
	Provider          string
	APIKey            string
	WebhookSecret     string
	PublishableKey    string
	APIKeyPath        string
	WebhookSecretPath string
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	// Manager selects the backend: "env", "aws", or "vault"
	Manager string

	// env/file backend
	BasePath string

	// AWS Secrets Manager backend
	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	// Vault backend
	VaultAddress    string
	VaultAuthMethod string
	VaultToken      string
	VaultRoleID     string
	VaultSecretID   string
	VaultMountPath  string
	VaultNamespace  string

	CacheTTL time.Duration
}

// AuthConfig holds API key authentication settings
type AuthConfig struct {
	APIKeys []string
}

// CORSConfig holds cross-origin settings for the HTTP surface
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig holds per-IP rate limiting settings
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),

			LedgerTimeout:        getEnvAsDuration("LEDGER_TIMEOUT", 10*time.Second),
			WebhookVerifyTimeout: getEnvAsDuration("WEBHOOK_VERIFY_TIMEOUT", 5*time.Second),
			IntentTimeout:        getEnvAsDuration("INTENT_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			ReadURL:  getEnv("DATABASE_READ_URL", ""),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Billing: BillingConfig{
			DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
			DefaultPlanName:       getEnv("DEFAULT_PLAN_NAME", "free"),
			FreeUsesPerAccount:    getEnvAsInt64("FREE_USES_PER_ACCOUNT", 3),
			PaidUsesPerPurchase:   getEnvAsInt64("PAID_USES_PER_PURCHASE", 50),
			PricePerPurchaseMinor: getEnvAsInt64("PRICE_PER_PURCHASE_MINOR", 500),
		},
		Stripe: StripeConfig{
			Provider:          getEnv("PAYMENT_PROVIDER", "stripe"),
			APIKey:            getEnv("STRIPE_API_KEY", ""),
			WebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PublishableKey:    getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			APIKeyPath:        getEnv("STRIPE_API_KEY_SECRET_PATH", "billing/stripe/api_key"),
			WebhookSecretPath: getEnv("STRIPE_WEBHOOK_SECRET_PATH", "billing/stripe/webhook_secret"),
		},
		Secrets: SecretsConfig{
			Manager:         getEnv("SECRET_MANAGER", "env"),
			BasePath:        getEnv("SECRETS_BASE_PATH", "./secrets"),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			AWSProfile:      getEnv("AWS_PROFILE", ""),
			AWSEndpoint:     getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:    getEnv("VAULT_ADDR", ""),
			VaultAuthMethod: getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:      getEnv("VAULT_TOKEN", ""),
			VaultRoleID:     getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:   getEnv("VAULT_SECRET_ID", ""),
			VaultMountPath:  getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultNamespace:  getEnv("VAULT_NAMESPACE", ""),
			CacheTTL:        getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			APIKeys: splitAndTrim(getEnv("API_KEYS", "")),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Products: loadProductConfigs(),
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Database.ReadURL == "" {
		cfg.Database.ReadURL = cfg.Database.URL
	}
	if cfg.Billing.FreeUsesPerAccount < 0 {
		return nil, fmt.Errorf("FREE_USES_PER_ACCOUNT must not be negative")
	}
	if cfg.Billing.PricePerPurchaseMinor <= 0 {
		return nil, fmt.Errorf("PRICE_PER_PURCHASE_MINOR must be positive")
	}
	if cfg.Billing.PaidUsesPerPurchase <= 0 {
		return nil, fmt.Errorf("PAID_USES_PER_PURCHASE must be positive")
	}
	if len(cfg.Billing.DefaultCurrency) != 3 {
		return nil, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}
	for name, product := range cfg.Products {
		if product.PriceMinor <= 0 {
			return nil, fmt.Errorf("PRODUCT_%s_PRICE_MINOR must be positive", strings.ToUpper(name))
		}
	}

	return cfg, nil
}

// loadProductConfigs builds per-product pool settings. Each product reads
// PRODUCT_<NAME>_FREE_INITIAL, _FREE_DAILY, and _PRICE_MINOR.
func loadProductConfigs() map[string]domain.ProductConfig {
	products := make(map[string]domain.ProductConfig)
	for _, productType := range splitAndTrim(getEnv("PRODUCT_TYPES", "web_search")) {
		prefix := "PRODUCT_" + strings.ToUpper(productType) + "_"
		products[productType] = domain.ProductConfig{
			ProductType: productType,
			FreeInitial: getEnvAsInt64(prefix+"FREE_INITIAL", 0),
			FreeDaily:   getEnvAsInt64(prefix+"FREE_DAILY", 0),
			PriceMinor:  getEnvAsInt64(prefix+"PRICE_MINOR", 1),
		}
	}
	return products
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
