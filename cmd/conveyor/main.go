// Package main provides the conveyor CLI: run, validate and browse CI
// workflow definitions.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/conveyor/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "conveyor",
		Usage:                 "Execute CI workflow definitions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewAPICommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("conveyor").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
