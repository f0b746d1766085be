package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Plans         map[string]int64    `mapstructure:"plans"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// GatewayConfig holds the PayU merchant credentials and the knobs of the local callback simulator.
type GatewayConfig struct {
	MerchantKey  string          `mapstructure:"merchant_key"`
	MerchantSalt string          `mapstructure:"merchant_salt"`
	StoreTimeout time.Duration   `mapstructure:"store_timeout"`
	WebhookURL   string          `mapstructure:"webhook_url"`
	Simulator    SimulatorConfig `mapstructure:"simulator"`
}

type SimulatorConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SuccessRate    float64       `mapstructure:"success_rate"`
}

type SecurityConfig struct {
	AdminTokenSecret   string        `mapstructure:"admin_token_secret"`
	AdminTokenDuration time.Duration `mapstructure:"admin_token_duration"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultPlans are the credit allotments sold on the pricing page.
func DefaultPlans() map[string]int64 {
	return map[string]int64{
		"STARTER":    270,
		"DAILY":      630,
		"ENTERPRISE": 1260,
	}
}

var ErrMissingMerchantSalt = NewConfigurationError("PAYU_MERCHANT_SALT is not configured", ErrCodeMissingSecret)

// ApplyDefaults fills zero values left by a sparse config file or environment.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}

	if c.Gateway.StoreTimeout == 0 {
		c.Gateway.StoreTimeout = DefaultStoreTimeout
	}
	sim := &c.Gateway.Simulator
	if sim.Workers == 0 {
		sim.Workers = 4
	}
	if sim.QueueSize == 0 {
		sim.QueueSize = 100
	}
	if sim.MaxAttempts == 0 {
		sim.MaxAttempts = 3
	}
	if sim.RequestTimeout == 0 {
		sim.RequestTimeout = 10 * time.Second
	}
	if sim.SuccessRate == 0 {
		sim.SuccessRate = 0.9
	}

	if len(c.Plans) == 0 {
		c.Plans = DefaultPlans()
	}

	if c.Security.AdminTokenDuration == 0 {
		c.Security.AdminTokenDuration = time.Hour
	}

	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// LoadConfigFromEnv builds the configuration purely from environment variables,
// used when running in containers without a config file.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 8080),
			BaseURL:        getEnv("BASE_URL", ""),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", 0),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", 0),
		},
		Database: DatabaseConfig{
			Source:       getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 0),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 0),
		},
		Gateway: GatewayConfig{
			MerchantKey:  getEnv("PAYU_MERCHANT_KEY", ""),
			MerchantSalt: getEnv("PAYU_MERCHANT_SALT", ""),
			StoreTimeout: getEnvAsDuration("PAYU_STORE_TIMEOUT", 0),
			WebhookURL:   getEnv("PAYU_WEBHOOK_URL", ""),
		},
		Plans: getEnvAsPlans("PLAN_CREDITS"),
		Security: SecurityConfig{
			AdminTokenSecret:   getEnv("ADMIN_TOKEN_SECRET", ""),
			AdminTokenDuration: getEnvAsDuration("ADMIN_TOKEN_DURATION", 0),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", ""),
				Format: getEnv("LOG_FORMAT", "json"),
			},
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

// getEnvAsPlans parses "STARTER=270,DAILY=630". Malformed entries are skipped.
func getEnvAsPlans(key string) map[string]int64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	plans := make(map[string]int64)
	for _, pair := range strings.Split(value, ",") {
		name, credits, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(credits), 10, 64)
		if err != nil {
			continue
		}
		plans[strings.ToUpper(strings.TrimSpace(name))] = n
	}
	return plans
}

// ----------------- VALIDATION -----------------

// Validate checks every section and reports all failures at once. The returned
// ConfigurationError wraps the individual failures, so errors.Is(err, ErrMissingMerchantSalt) works.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server config: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database config: %w", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gateway config: %w", err))
	}

	for name, credits := range c.Plans {
		if credits <= 0 {
			errs = append(errs, fmt.Errorf("plans config: plan %s must grant a positive number of credits", name))
		}
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("security config: %w", err))
	}

	if len(errs) > 0 {
		return NewConfigurationError("invalid configuration", ErrCodeInvalidConfig).Wrap(errors.Join(errs...))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *GatewayConfig) Validate() error {
	if strings.TrimSpace(c.MerchantSalt) == "" {
		return ErrMissingMerchantSalt
	}
	if c.MerchantKey == "" {
		return errors.New("merchant_key is required")
	}
	if c.StoreTimeout < 0 {
		return errors.New("store_timeout cannot be negative")
	}
	if c.Simulator.SuccessRate < 0 || c.Simulator.SuccessRate > 1 {
		return errors.New("simulator.success_rate must be between 0 and 1")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.AdminTokenSecret) < 32 {
		return errors.New("admin_token_secret must be at least 32 characters")
	}
	return nil
}
