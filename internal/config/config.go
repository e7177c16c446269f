package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Caller authentication
	Auth AuthConfig `env:",prefix=AUTH_"`

	// Referral code issuance and redemption
	Referral ReferralConfig `env:",prefix=REFERRAL_"`

	// Wallet and withdrawals
	Wallet WalletConfig `env:",prefix=WALLET_"`

	// Domain event publishing
	Events EventsConfig `env:",prefix=EVENTS_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
	// CORSOrigins lists the browser origins allowed to call the API
	CORSOrigins []string `env:"CORS_ORIGINS,default=http://*,https://*"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=referral"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Migrate  bool   `env:"MIGRATE,default=true"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
	// Store selects the persistence backend: postgres or memory
	Store string `env:"STORE,default=postgres"`
}

// AuthConfig holds the JWT settings shared with the identity provider
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER,default=referral"`
}

// ReferralConfig holds code issuance and redemption limits
type ReferralConfig struct {
	CodeLength          int           `env:"CODE_LENGTH,default=6"`
	CodeTTL             time.Duration `env:"CODE_TTL,default=24h"`
	MaxCodeAttempts     int           `env:"MAX_CODE_ATTEMPTS,default=8"`
	ExpirySweepSchedule string        `env:"EXPIRY_SWEEP_SCHEDULE,default=@every 5m"`
	VerifyRate          float64       `env:"VERIFY_RATE,default=2"` // per second per caller
	VerifyBurst         int           `env:"VERIFY_BURST,default=10"`
}

// WalletConfig holds withdrawal rules. Amounts are minor units.
type WalletConfig struct {
	MinimumWithdrawal int64 `env:"MINIMUM_WITHDRAWAL,default=5000"`
}

// EventsConfig holds RabbitMQ settings. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string `env:"AMQP_URL"`
	Exchange string `env:"EXCHANGE,default=referral_events"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" && !c.App.IsDevelopment() {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required outside development"))
	}
	if c.Referral.CodeLength <= 0 {
		errs = append(errs, errors.New("REFERRAL_CODE_LENGTH must be positive"))
	}
	if c.Referral.MaxCodeAttempts <= 0 {
		errs = append(errs, errors.New("REFERRAL_MAX_CODE_ATTEMPTS must be positive"))
	}
	if c.Referral.CodeTTL <= 0 {
		errs = append(errs, errors.New("REFERRAL_CODE_TTL must be positive"))
	}
	if c.Wallet.MinimumWithdrawal <= 0 {
		errs = append(errs, errors.New("WALLET_MINIMUM_WITHDRAWAL must be positive"))
	}
	switch c.App.Store {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("APP_STORE %q must be postgres or memory", c.App.Store))
	}
	return errors.Join(errs...)
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if c.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
