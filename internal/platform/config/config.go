package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	AuditTopic   string

	AdminJWTSecret string

	// Provider API credentials. A provider with an empty token is not registered.
	OnfidoToken    string
	OnfidoBaseURL  string
	SumsubToken    string
	SumsubSecret   string
	SumsubBaseURL  string
	FaceTecToken   string
	FaceTecBaseURL string
	PersonaToken   string
	PersonaBaseURL string

	SanctionsAPIKey  string
	SanctionsBaseURL string

	// Payment collaborator. Empty base URL disables funding checks and
	// refund transfers (development mode).
	PaymentBaseURL string
	PaymentAPIKey  string

	// Hex-encoded Baby Jubjub private key used to sign credentials.
	IssuerPrivateKey string

	RequestTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ATTEST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("ATTEST_ENV")
	if env == "" {
		env = "development"
	}

	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "attest.session.events"
	}

	adminSecret := os.Getenv("ADMIN_JWT_SECRET")
	if adminSecret == "" {
		// Use a default for development - should be overridden in production
		adminSecret = "dev-secret-key-change-in-production"
	}

	requestTimeout := 30 * time.Second
	if s := os.Getenv("REQUEST_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			requestTimeout = d
		}
	}

	return Server{
		Addr:             addr,
		Environment:      env,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		AuditTopic:       auditTopic,
		AdminJWTSecret:   adminSecret,
		OnfidoToken:      os.Getenv("ONFIDO_API_TOKEN"),
		OnfidoBaseURL:    withDefault("ONFIDO_BASE_URL", "https://api.us.onfido.com/v3.6"),
		SumsubToken:      os.Getenv("SUMSUB_API_TOKEN"),
		SumsubSecret:     os.Getenv("SUMSUB_SECRET_KEY"),
		SumsubBaseURL:    withDefault("SUMSUB_BASE_URL", "https://api.sumsub.com"),
		FaceTecToken:     os.Getenv("FACETEC_API_TOKEN"),
		FaceTecBaseURL:   withDefault("FACETEC_BASE_URL", "https://api.facetec.com/api/v3.1"),
		PersonaToken:     os.Getenv("PERSONA_API_TOKEN"),
		PersonaBaseURL:   withDefault("PERSONA_BASE_URL", "https://api.withpersona.com/api/v1"),
		SanctionsAPIKey:  os.Getenv("SANCTIONS_API_KEY"),
		SanctionsBaseURL: withDefault("SANCTIONS_BASE_URL", "https://api.sanctions.io"),
		PaymentBaseURL:   os.Getenv("PAYMENT_BASE_URL"),
		PaymentAPIKey:    os.Getenv("PAYMENT_API_KEY"),
		IssuerPrivateKey: os.Getenv("ISSUER_PRIVATE_KEY"),
		RequestTimeout:   requestTimeout,
	}
}

// RedisConfig holds Redis client configuration.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults around the given URL.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// BlockedIdentifierPrefixes returns the configured screening identifier
// prefixes that force a blocking classification regardless of source type.
func BlockedIdentifierPrefixes() []string {
	raw := os.Getenv("SCREENING_BLOCKED_PREFIXES")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
