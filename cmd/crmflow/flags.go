package main

import (
	"strings"

	"github.com/dukex/crmflow/pkg/channels/kafka"
	"github.com/dukex/crmflow/pkg/config"
	cli "github.com/urfave/cli/v3"
)

func serverFlags() []cli.Flag {
	defaults := config.Default()

	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML file with settings; flags and environment variables take precedence",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaults.Port,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.IntFlag{
			Name:    "stream-port",
			Usage:   "Port of the WebSocket progress stream (0 disables it)",
			Value:   defaults.StreamPort,
			Sources: cli.EnvVars("STREAM_PORT"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL (file://<dir>, postgres://..., memory://)",
			Value:   defaults.DatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   defaults.EventBus,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers (host:port)",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the trigger queue, notifications and progress fan-out",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "queue",
			Usage:   "Redis list consumed for trigger events",
			Sources: cli.EnvVars("TRIGGER_QUEUE"),
		},
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Worker ID (hostname if not provided)",
			Value:   defaults.WorkerID,
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

func crmFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "crm-url",
			Usage:   "Base URL of the CRM REST API",
			Sources: cli.EnvVars("CRM_URL"),
		},
		&cli.StringFlag{
			Name:    "crm-token",
			Usage:   "Bearer token for the CRM REST API",
			Sources: cli.EnvVars("CRM_TOKEN"),
		},
	}
}

// loadConfig overlays the optional config file with the flags set on command.
func loadConfig(command *cli.Command) (config.Config, error) {
	cfg := config.Default()
	cfg.LogLevel = command.String("log-level")

	if path := command.String("config"); path != "" {
		loaded, err := config.LoadFile(path, cfg)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	if command.IsSet("port") || cfg.Port == 0 {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("stream-port") {
		cfg.StreamPort = command.Int("stream-port")
	}

	overlay := map[string]*string{
		"database-url": &cfg.DatabaseURL,
		"event-bus":    &cfg.EventBus,
		"redis-url":    &cfg.RedisURL,
		"queue":        &cfg.Queue,
		"worker-id":    &cfg.WorkerID,
		"crm-url":      &cfg.CRMURL,
		"crm-token":    &cfg.CRMToken,
	}

	for name, target := range overlay {
		if command.IsSet(name) || *target == "" {
			*target = command.String(name)
		}
	}

	if command.IsSet("kafka-brokers") {
		cfg.KafkaBrokers = kafka.ParseBrokers(strings.Join(command.StringSlice("kafka-brokers"), ","))
	}

	return cfg, cfg.Validate()
}
