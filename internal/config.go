package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

const EnvProduction = "production"

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	MercadoPago   MercadoPagoConfig   `mapstructure:"mercadopago"`
	Pix           PixConfig           `mapstructure:"pix"`
	Proofs        ProofConfig         `mapstructure:"proofs"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Cache         CacheConfig         `mapstructure:"cache"`
}

type AppConfig struct {
	Env  string `mapstructure:"env" validate:"required,oneof=development staging production test"`
	Name string `mapstructure:"name"`
}

func (c AppConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

// AuthConfig selects how bearer tokens are verified. Tokens are never issued here.
type AuthConfig struct {
	Mode       string   `mapstructure:"mode" validate:"required,oneof=hmac oidc"`
	JWTSecret  string   `mapstructure:"jwt_secret" validate:"required_if=Mode hmac"`
	Issuer     string   `mapstructure:"issuer" validate:"required_if=Mode oidc"`
	Audience   string   `mapstructure:"audience"`
	ClientID   string   `mapstructure:"client_id" validate:"required_if=Mode oidc"`
	RoleClaim  string   `mapstructure:"role_claim"`
	AdminRoles []string `mapstructure:"admin_roles"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type CheckoutConfig struct {
	SuccessURL string `mapstructure:"success_url" validate:"required,url"`
	CancelURL  string `mapstructure:"cancel_url" validate:"required,url"`
	Currency   string `mapstructure:"currency" validate:"required,len=3"`
}

type StripeConfig struct {
	SecretKey        string        `mapstructure:"secret_key" validate:"required"`
	WebhookSecret    string        `mapstructure:"webhook_secret" validate:"required"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	AllowTestEvents  bool          `mapstructure:"allow_test_events"`
}

type MercadoPagoConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	AccessToken     string        `mapstructure:"access_token" validate:"required"`
	Timeout         time.Duration `mapstructure:"timeout"`
	NotificationURL string        `mapstructure:"notification_url"`
}

type PixConfig struct {
	Key           string        `mapstructure:"key" validate:"required"`
	MerchantName  string        `mapstructure:"merchant_name" validate:"required"`
	MerchantCity  string        `mapstructure:"merchant_city" validate:"required"`
	Description   string        `mapstructure:"description"`
	TTL           time.Duration `mapstructure:"ttl" validate:"required,min=1m"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ProofConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes" validate:"required,min=1"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Region          string `mapstructure:"region" validate:"required"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// ----------------- DEFAULTS -----------------

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "settlement"
	}
	if c.Checkout.Currency == "" {
		c.Checkout.Currency = "BRL"
	}
	if c.Stripe.WebhookTolerance <= 0 {
		c.Stripe.WebhookTolerance = 5 * time.Minute
	}
	if c.MercadoPago.Timeout <= 0 {
		c.MercadoPago.Timeout = 10 * time.Second
	}
	if c.MercadoPago.BaseURL == "" {
		c.MercadoPago.BaseURL = "https://api.mercadopago.com"
	}
	if c.Pix.SweepInterval <= 0 {
		c.Pix.SweepInterval = time.Minute
	}
	if c.Proofs.MaxBytes <= 0 {
		c.Proofs.MaxBytes = 5 << 20
	}
	if c.Proofs.KeyPrefix == "" {
		c.Proofs.KeyPrefix = "proofs"
	}
	if c.Cache.DedupeTTL <= 0 {
		c.Cache.DedupeTTL = 72 * time.Hour
	}
	if c.Auth.RoleClaim == "" {
		c.Auth.RoleClaim = "role"
	}
	if len(c.Auth.AdminRoles) == 0 {
		c.Auth.AdminRoles = []string{"admin"}
	}
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", EnvProduction),
			Name: getEnv("APP_NAME", "settlement"),
		},
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			Mode:       getEnv("AUTH_MODE", "hmac"),
			JWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
			Issuer:     getEnv("AUTH_ISSUER", ""),
			Audience:   getEnv("AUTH_AUDIENCE", ""),
			ClientID:   getEnv("AUTH_CLIENT_ID", ""),
			RoleClaim:  getEnv("AUTH_ROLE_CLAIM", "role"),
			AdminRoles: getEnvAsList("AUTH_ADMIN_ROLES", []string{"admin"}),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Checkout: CheckoutConfig{
			SuccessURL: getEnv("CHECKOUT_SUCCESS_URL", ""),
			CancelURL:  getEnv("CHECKOUT_CANCEL_URL", ""),
			Currency:   getEnv("CHECKOUT_CURRENCY", "BRL"),
		},
		Stripe: StripeConfig{
			SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvAsDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			AllowTestEvents:  getEnv("STRIPE_ALLOW_TEST_EVENTS", "false") == "true",
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL:         getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
			AccessToken:     getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			Timeout:         getEnvAsDuration("MERCADOPAGO_TIMEOUT", 10*time.Second),
			NotificationURL: getEnv("MERCADOPAGO_NOTIFICATION_URL", ""),
		},
		Pix: PixConfig{
			Key:           getEnv("PIX_KEY", ""),
			MerchantName:  getEnv("PIX_MERCHANT_NAME", ""),
			MerchantCity:  getEnv("PIX_MERCHANT_CITY", ""),
			Description:   getEnv("PIX_DESCRIPTION", ""),
			TTL:           getEnvAsDuration("PIX_TTL", 30*time.Minute),
			SweepInterval: getEnvAsDuration("PIX_SWEEP_INTERVAL", time.Minute),
		},
		Proofs: ProofConfig{
			MaxBytes:  int64(getEnvAsInt("PROOF_MAX_BYTES", 5<<20)),
			KeyPrefix: getEnv("PROOF_KEY_PREFIX", "proofs"),
		},
		Storage: StorageConfig{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
		},
		Cache: CacheConfig{
			Enabled:   getEnv("REDIS_ENABLED", "false") == "true",
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			DedupeTTL: getEnvAsDuration("REDIS_DEDUPE_TTL", 72*time.Hour),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

var structValidator = validator.New()

func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var result *multierror.Error

	if err := c.Server.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("server config: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("database config: %w", err))
	}

	if err := c.Stripe.Validate(c.App); err != nil {
		result = multierror.Append(result, fmt.Errorf("stripe config: %w", err))
	}

	if err := c.Pix.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("pix config: %w", err))
	}

	return result.ErrorOrNil()
}

func (c *ServerConfig) Validate() error {
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url %s: %w", c.BaseURL, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// Validate refuses the unsigned test-event path in production.
func (c *StripeConfig) Validate(app AppConfig) error {
	if c.AllowTestEvents && app.IsProduction() {
		return errors.New("allow_test_events cannot be enabled in production")
	}
	if c.WebhookTolerance < 0 {
		return errors.New("webhook_tolerance must not be negative")
	}
	return nil
}

func (c *PixConfig) Validate() error {
	if len(c.Key) > 77 {
		return errors.New("pix key must not exceed 77 characters")
	}
	return nil
}
