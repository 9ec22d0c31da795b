package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/crmflow/pkg/broadcast"
	"github.com/dukex/crmflow/pkg/cmd"
	"github.com/dukex/crmflow/pkg/log"
	"github.com/dukex/crmflow/pkg/persistence/file"
	"github.com/dukex/crmflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func executeCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Aliases:   []string{"x"},
		Usage:     "Run one workflow definition locally and print the execution as JSON",
		ArgsUsage: "<definition file>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "data",
				Usage: "Trigger data as a JSON object",
				Value: "{}",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Fail the execution when it runs longer than this (0 waits forever)",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Print node progress events while running",
			},
		}, crmFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 1 {
				return errors.New("execute takes exactly one definition file")
			}

			definition, err := file.LoadDefinition(command.Args().First())
			if err != nil {
				return err
			}

			var data map[string]any

			err = json.Unmarshal([]byte(command.String("data")), &data)
			if err != nil {
				return fmt.Errorf("invalid --data: %w", err)
			}

			logger := log.WithModule("execute")

			collaborators, err := cmd.NewCollaborators(logger, command.String("crm-url"), command.String("crm-token"), nil)
			if err != nil {
				return err
			}

			out := command.Root().Writer
			opts := []workflow.Option{}
			drained := make(chan struct{})

			var observer *broadcast.ChannelObserver

			if command.Bool("progress") {
				broadcaster := broadcast.NewBroadcaster(logger)
				observer = broadcast.NewChannelObserver("cli", 256)
				broadcaster.Subscribe(observer)

				go func() {
					defer close(drained)

					encoder := json.NewEncoder(out)
					for event := range observer.Events() {
						_ = encoder.Encode(event)
					}
				}()

				opts = append(opts, workflow.WithProgressPublisher(broadcaster))
			} else {
				close(drained)
			}

			if timeout := command.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			engine := workflow.NewEngine(logger, cmd.NewRegistry(logger, collaborators), opts...)

			execution, execErr := engine.Execute(ctx, definition, data, "cli")

			if observer != nil {
				observer.Close()
			}

			<-drained

			if execution == nil {
				return execErr
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")

			err = encoder.Encode(execution)
			if err != nil {
				return err
			}

			return execErr
		},
	}
}
