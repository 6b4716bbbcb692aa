package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Database  DatabaseConfig           `yaml:"database"`
	RabbitMQ  RabbitMQConfig           `yaml:"rabbitmq"`
	Logging   LoggingConfig            `yaml:"logging"`
	App       AppConfig                `yaml:"app"`
	Auth      AuthConfig               `yaml:"auth"`
	Provider  ProviderConfig           `yaml:"provider"`
	Worker    WorkerConfig             `yaml:"worker"`
	Features  map[string]FeatureConfig `yaml:"features"`
	RateLimit RateLimitConfig          `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
// for the usage event stream
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// AuthConfig holds caller token verification settings. The signing secret is
// only ever read from the environment.
type AuthConfig struct {
	JWTSecret string `yaml:"-"`
}

// ProviderConfig holds AI provider settings. The API key is only ever read
// from the environment.
type ProviderConfig struct {
	APIKey string `yaml:"-"`
}

// WorkerConfig holds worker invocation and execution settings
type WorkerConfig struct {
	BaseURL         string        `yaml:"base_url"`
	SharedSecret    string        `yaml:"-"`
	HandoffTimeout  time.Duration `yaml:"handoff_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FeatureConfig holds per-feature pricing, model tiers, and rate limits
type FeatureConfig struct {
	Cost         int           `yaml:"cost"`
	PremiumCost  int           `yaml:"premium_cost"`
	Model        string        `yaml:"model"`
	PremiumModel string        `yaml:"premium_model"`
	MaxRequests  int           `yaml:"max_requests"`
	Window       time.Duration `yaml:"window"`
}

// RateLimitConfig holds the conservative default applied to features without
// an explicit limit
type RateLimitConfig struct {
	DefaultMaxRequests int           `yaml:"default_max_requests"`
	DefaultWindow      time.Duration `yaml:"default_window"`
}

// Load reads and parses the configuration file, then applies environment
// overrides for secrets.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()

	return &config, nil
}

// applyEnv pulls secrets from the environment. DB_PASSWORD overrides the file
// so the yaml can stay credential-free in deployed environments.
func (c *Config) applyEnv() {
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("WORKER_SHARED_SECRET"); v != "" {
		c.Worker.SharedSecret = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
}

// ValidateAPIConfig checks the configuration needed by the api service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.BaseURL == "" {
		return fmt.Errorf("worker base_url is required")
	}

	if c.Worker.HandoffTimeout <= 0 {
		return fmt.Errorf("worker handoff_timeout must be greater than 0")
	}

	if c.Worker.FallbackTimeout <= 0 {
		return fmt.Errorf("worker fallback_timeout must be greater than 0")
	}

	if len(c.Features) == 0 {
		return fmt.Errorf("at least one feature must be configured")
	}

	for name, f := range c.Features {
		if f.Cost <= 0 {
			return fmt.Errorf("feature %q: cost must be greater than 0", name)
		}
		if f.Model == "" {
			return fmt.Errorf("feature %q: model is required", name)
		}
	}

	return nil
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.GenerateTimeout <= 0 {
		return fmt.Errorf("worker generate_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
