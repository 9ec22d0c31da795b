// Command crmflow runs the CRM workflow engine: the HTTP API, the progress
// stream, the trigger sources and the workers executing workflows.
package main

import (
	"context"
	"os"

	"github.com/dukex/crmflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := newApp()

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("crmflow").Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "crmflow",
		Usage:                 "Run and manage CRM automation workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			runCommand(),
			validateCommand(),
			executeCommand(),
		},
	}
}
