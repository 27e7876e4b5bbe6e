package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/conveyor/pkg/definition"
	"github.com/dukex/conveyor/pkg/log"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a definition file without executing it",
		ArgsUsage: "<definition-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			definitionPath := command.Args().First()
			if definitionPath == "" {
				return fmt.Errorf("usage: conveyor validate <definition-file>")
			}

			data, err := os.ReadFile(definitionPath)
			if err != nil {
				return fmt.Errorf("failed to read definition file: %w", err)
			}

			workflows, err := definition.Parse(data)
			if err != nil {
				fmt.Printf("❌ INVALID: %v\n", err)

				return fmt.Errorf("definition file is invalid")
			}

			fmt.Println("Definition Validation Results:")
			fmt.Println("==============================")

			totalJobs := 0

			for _, workflow := range workflows {
				fmt.Printf("\nWorkflow: %s (%d jobs)\n", workflow.ID, len(workflow.Jobs))

				for _, job := range workflow.Jobs {
					fmt.Printf("  Job %s: %d steps", job.ID, len(job.Steps))

					if len(job.Requires) > 0 {
						fmt.Printf(" (requires %v)", job.Requires)
					}

					fmt.Println()

					totalJobs++
				}
			}

			fmt.Printf("\nAll %d workflows and %d jobs are valid! ✅\n", len(workflows), totalJobs)

			return nil
		},
	}
}
