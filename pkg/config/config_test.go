package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "unknown event bus", mutate: func(c *Config) { c.EventBus = "rabbitmq" }},
		{name: "kafka without brokers", mutate: func(c *Config) { c.EventBus = "kafka" }},
		{name: "kafka with brokers", mutate: func(c *Config) {
			c.EventBus = "kafka"
			c.KafkaBrokers = []string{"localhost:9092"}
		}, valid: true},
		{name: "broker without port", mutate: func(c *Config) {
			c.EventBus = "kafka"
			c.KafkaBrokers = []string{"localhost"}
		}},
		{name: "stream port equals api port", mutate: func(c *Config) { c.StreamPort = c.Port }},
		{name: "stream disabled", mutate: func(c *Config) { c.StreamPort = 0 }, valid: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }},
		{name: "bad crm url", mutate: func(c *Config) { c.CRMURL = "not a url" }},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crmflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\nevent_bus: kafka\nkafka_brokers: [\"kafka:9092\"]\n"), 0o600))

	cfg, err := LoadFile(path, Default())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "kafka", cfg.EventBus)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), Default())
	assert.Error(t, err)
}
