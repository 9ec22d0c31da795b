package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/crmflow/pkg/cmd"
	"github.com/dukex/crmflow/pkg/log"
	"github.com/dukex/crmflow/pkg/persistence/file"
	"github.com/dukex/crmflow/pkg/registry"
	"github.com/dukex/crmflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidDefinitions = errors.New("invalid workflow definitions")

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate workflow definition files (JSON or YAML)",
		ArgsUsage: "<file or directory>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			paths, err := definitionFiles(command.Args().Slice())
			if err != nil {
				return err
			}

			if len(paths) == 0 {
				return fmt.Errorf("%w: no definition files given", ErrInvalidDefinitions)
			}

			logger := log.WithModule("validate")
			service := services.NewWorkflow(nil, cmd.NewRegistry(logger, registry.Collaborators{}))
			out := command.Root().Writer
			invalid := 0

			for _, path := range paths {
				definition, err := file.LoadDefinition(path)
				if err == nil {
					err = service.Validate(definition)
				}

				if err != nil {
					invalid++

					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)

					continue
				}

				fmt.Fprintf(out, "OK   %s (%s, %d nodes)\n", path, definition.ID, len(definition.Nodes))
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidDefinitions, invalid, len(paths))
			}

			return nil
		},
	}
}

// definitionFiles expands directories into the JSON and YAML files they hold.
func definitionFiles(args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			paths = append(paths, arg)

			continue
		}

		for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}

			paths = append(paths, matches...)
		}
	}

	return paths, nil
}
