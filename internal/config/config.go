package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	DBUrl             string        `envconfig:"DB_URL"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	AdminUsername     string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	AppEnv            string        `envconfig:"APP_ENV" default:"production"`
	Timezone          string        `envconfig:"TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	Currency          string        `envconfig:"CURRENCY" default:"ARS"`
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL"`
	CORSOrigins       string        `envconfig:"CORS_ORIGINS" default:"*"`
	PaymentGateway    string        `envconfig:"PAYMENT_GATEWAY" default:"mercadopago"`
	GatewayTimeout    time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	MercadoPagoAccessToken string `envconfig:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoAPIURL      string `envconfig:"MERCADOPAGO_API_URL" default:"https://api.mercadopago.com"`

	OmisePublicKey  string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey  string `envconfig:"OMISE_SECRET_KEY"`
	OmiseSourceType string `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`

	RabbitURL           string `envconfig:"RABBIT_URL"`
	ReservationExchange string `envconfig:"RESERVATION_EXCHANGE" default:"reservations"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"play-book-app"`
}

// LoadConfig reads .env when present and then the process environment.
// The .env file never overrides variables that are already set.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.AppEnv = normalizeEnv(cfg.AppEnv)
	cfg.PaymentGateway = strings.ToLower(strings.TrimSpace(cfg.PaymentGateway))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.DBUrl) == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}

	switch c.PaymentGateway {
	case "mercadopago":
		if c.MercadoPagoAccessToken == "" {
			return fmt.Errorf("MERCADOPAGO_ACCESS_TOKEN is required for the mercadopago gateway")
		}
	case "omise":
		if c.OmisePublicKey == "" || c.OmiseSecretKey == "" {
			return fmt.Errorf("OMISE_PUBLIC_KEY and OMISE_SECRET_KEY are required for the omise gateway")
		}
	default:
		return fmt.Errorf("unsupported PAYMENT_GATEWAY %q", c.PaymentGateway)
	}
	return nil
}

func (c *Config) Location() *time.Location {
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return location
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
