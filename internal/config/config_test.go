package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "coach_db", cfg.Database.Database)
				assert.Equal(t, "usage_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "usage_events", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "coach-api-service", cfg.App.Name)
				assert.Equal(t, "http://localhost:8081", cfg.Worker.BaseURL)
				assert.Equal(t, 3*time.Second, cfg.Worker.HandoffTimeout)

				wp, ok := cfg.Features["workout_plan"]
				require.True(t, ok)
				assert.Equal(t, 5, wp.Cost)
				assert.Equal(t, 8, wp.PremiumCost)
				assert.Equal(t, "gemini-1.5-pro", wp.PremiumModel)
				assert.Equal(t, 10, wp.MaxRequests)
				assert.Equal(t, time.Minute, wp.Window)
			}
		})
	}
}

func TestLoad_EnvSecrets(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "env-jwt-secret")
	t.Setenv("GEMINI_API_KEY", "env-api-key")
	t.Setenv("WORKER_SHARED_SECRET", "env-shared-secret")
	t.Setenv("DB_PASSWORD", "env-db-password")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-jwt-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-api-key", cfg.Provider.APIKey)
	assert.Equal(t, "env-shared-secret", cfg.Worker.SharedSecret)
	assert.Equal(t, "env-db-password", cfg.Database.Password)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "coach_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "usage_exchange",
			},
			Queue: QueueConfig{
				Name: "usage_events",
			},
		},
		Worker: WorkerConfig{
			BaseURL:         "http://localhost:8081",
			HandoffTimeout:  3 * time.Second,
			GenerateTimeout: 2 * time.Minute,
			FallbackTimeout: 25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Features: map[string]FeatureConfig{
			"workout_plan": {Cost: 5, Model: "gemini-1.5-flash"},
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing worker base url",
			mutate:    func(c *Config) { c.Worker.BaseURL = "" },
			wantErr:   true,
			errString: "worker base_url is required",
		},
		{
			name:      "missing handoff timeout",
			mutate:    func(c *Config) { c.Worker.HandoffTimeout = 0 },
			wantErr:   true,
			errString: "handoff_timeout",
		},
		{
			name:      "no features configured",
			mutate:    func(c *Config) { c.Features = nil },
			wantErr:   true,
			errString: "at least one feature",
		},
		{
			name: "feature with zero cost",
			mutate: func(c *Config) {
				c.Features["workout_plan"] = FeatureConfig{Cost: 0, Model: "gemini-1.5-flash"}
			},
			wantErr:   true,
			errString: "cost must be greater than 0",
		},
		{
			name: "feature without model",
			mutate: func(c *Config) {
				c.Features["workout_plan"] = FeatureConfig{Cost: 5}
			},
			wantErr:   true,
			errString: "model is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "missing generate timeout",
			mutate:    func(c *Config) { c.Worker.GenerateTimeout = 0 },
			wantErr:   true,
			errString: "generate_timeout",
		},
		{
			name:      "missing shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "shutdown_timeout",
		},
		{
			name:      "missing rabbitmq queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
