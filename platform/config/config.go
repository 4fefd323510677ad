// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetPublicBaseURL() string
	GetVerifierMailbox(documentType string) string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// PaystackConfig provides settings for the payment gateway client.
type PaystackConfig interface {
	GetPaystackBaseURL() string
	GetPaystackSecretKey() string
	GetPaymentCallbackURL() string
	IsPaymentEnabled() bool
}

// InspectionConfig provides settings for the inspection workflow.
type InspectionConfig interface {
	GetInspectionFeeMin() int64
	GetInspectionFeeMax() int64
	GetStalePendingTTL() time.Duration
	IsDealSite() bool
}

// SubscriptionConfig provides settings for the subscription lifecycle sweeps.
type SubscriptionConfig interface {
	GetExpiryWarningDays() int
	GetPublicListingBaseURL() string
	GetAppBaseURL() string
}

// SchedulerConfig provides settings for the asynq scheduler/worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketLOIDocuments() string
	GetMinIOMaxFileSize() int64
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	AppBaseURL           string
	PublicBaseURL        string
	EmailEnabled         bool
	BrevoAPIKey          string
	EmailFromName        string
	EmailFromAddress     string
	PaystackBaseURL      string
	PaystackSecretKey    string
	PaymentCallbackURL   string
	InspectionFeeMin     int64
	InspectionFeeMax     int64
	DealSite             bool
	ExpiryWarningDays    int
	PublicListingBaseURL string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	BucketLOIDocuments   string
	MinIOMaxFileSize     int64
	VerifierMailboxes    map[string]string
	DefaultVerifierEmail string
	StalePendingTTL      time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string    { return c.AppBaseURL }
func (c *Config) GetPublicBaseURL() string { return c.PublicBaseURL }

// GetVerifierMailbox returns the third-party verifier mailbox for a document
// type, falling back to the default verification desk.
func (c *Config) GetVerifierMailbox(documentType string) string {
	if mailbox, ok := c.VerifierMailboxes[strings.ToLower(strings.TrimSpace(documentType))]; ok {
		return mailbox
	}
	return c.DefaultVerifierEmail
}

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// PaystackConfig implementation
func (c *Config) GetPaystackBaseURL() string    { return c.PaystackBaseURL }
func (c *Config) GetPaystackSecretKey() string  { return c.PaystackSecretKey }
func (c *Config) GetPaymentCallbackURL() string { return c.PaymentCallbackURL }
func (c *Config) IsPaymentEnabled() bool        { return c.PaystackSecretKey != "" }

// InspectionConfig implementation
func (c *Config) GetInspectionFeeMin() int64        { return c.InspectionFeeMin }
func (c *Config) GetInspectionFeeMax() int64        { return c.InspectionFeeMax }
func (c *Config) GetStalePendingTTL() time.Duration { return c.StalePendingTTL }
func (c *Config) IsDealSite() bool                  { return c.DealSite }

// SubscriptionConfig implementation
func (c *Config) GetExpiryWarningDays() int       { return c.ExpiryWarningDays }
func (c *Config) GetPublicListingBaseURL() string { return c.PublicListingBaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketLOIDocuments() string { return c.BucketLOIDocuments }
func (c *Config) GetMinIOMaxFileSize() int64         { return c.MinIOMaxFileSize }
func (c *Config) IsMinIOEnabled() bool               { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:4200"),
		PublicBaseURL:        getEnv("PUBLIC_BASE_URL", "http://localhost:4200"),
		EmailEnabled:         emailEnabled && brevoAPIKey != "",
		BrevoAPIKey:          brevoAPIKey,
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Khabiteq Realty"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		PaystackBaseURL:      getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackSecretKey:    getEnv("PAYSTACK_SECRET_KEY", ""),
		PaymentCallbackURL:   getEnv("PAYMENT_CALLBACK_URL", ""),
		InspectionFeeMin:     mustInt64(getEnv("INSPECTION_FEE_MIN", "1000")),
		InspectionFeeMax:     mustInt64(getEnv("INSPECTION_FEE_MAX", "50000")),
		DealSite:             strings.EqualFold(getEnv("DEAL_SITE", "false"), "true"),
		ExpiryWarningDays:    int(mustInt64(getEnv("SUBSCRIPTION_EXPIRY_WARNING_DAYS", "3"))),
		PublicListingBaseURL: getEnv("PUBLIC_LISTING_BASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		BucketLOIDocuments:   getEnv("MINIO_BUCKET_LOI_DOCUMENTS", "loi-documents"),
		MinIOMaxFileSize:     mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "10485760")),
		VerifierMailboxes: map[string]string{
			"certificate-of-occupancy": getEnv("VERIFIER_MAILBOX_OCCUPANCY", ""),
			"deed-of-assignment":       getEnv("VERIFIER_MAILBOX_DEED", ""),
			"survey-plan":              getEnv("VERIFIER_MAILBOX_SURVEY", ""),
		},
		DefaultVerifierEmail: getEnv("VERIFIER_MAILBOX_DEFAULT", ""),
		StalePendingTTL:      mustDuration(getEnv("STALE_PENDING_TTL", "48h")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if emailEnabled && cfg.BrevoAPIKey == "" {
		return nil, fmt.Errorf("BREVO_API_KEY is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.InspectionFeeMin < 1 || cfg.InspectionFeeMax < cfg.InspectionFeeMin {
		return nil, fmt.Errorf("invalid inspection fee bounds")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
