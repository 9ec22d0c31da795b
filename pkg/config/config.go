// Package config holds the runtime settings of the crmflow commands.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = 9091
	DefaultStreamPort = 9092
	DefaultEventBus   = "gochannel"
	DefaultLogLevel   = "info"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is assembled from command flags, their environment variables and an
// optional YAML file.
type Config struct {
	Port         int      `yaml:"port"          validate:"required,min=1,max=65535"`
	StreamPort   int      `yaml:"stream_port"   validate:"omitempty,min=1,max=65535,nefield=Port"`
	DatabaseURL  string   `yaml:"database_url"  validate:"required"`
	EventBus     string   `yaml:"event_bus"     validate:"required,oneof=gochannel kafka"`
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"required_if=EventBus kafka,dive,hostname_port"`
	RedisURL     string   `yaml:"redis_url"     validate:"omitempty,url"`
	Queue        string   `yaml:"queue"`
	CRMURL       string   `yaml:"crm_url"       validate:"omitempty,url"`
	CRMToken     string   `yaml:"crm_token"`
	WorkerID     string   `yaml:"worker_id"     validate:"required"`
	LogLevel     string   `yaml:"log_level"     validate:"required,oneof=debug info warn error"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "crmflow"
	}

	return Config{
		Port:        DefaultPort,
		StreamPort:  DefaultStreamPort,
		DatabaseURL: "memory://",
		EventBus:    DefaultEventBus,
		WorkerID:    hostname,
		LogLevel:    DefaultLogLevel,
	}
}

// Validate checks c against its struct rules.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// LoadFile overlays the YAML file at path onto base. Keys missing from the
// file keep the values of base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := base

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return base, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, nil
}
