package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/conveyor/pkg/cmd"
	"github.com/dukex/conveyor/pkg/history"
	"github.com/dukex/conveyor/pkg/log"
	"github.com/dukex/conveyor/pkg/web"
)

const defaultPort = 9091

func NewAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Serve the run history API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run history storage URL (file:// or postgres://)",
				Value:   ".conveyor/history",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			apiLogger := log.WithModule("api")

			apiLogger.InfoContext(ctx, "Initializing history API")

			historyStore, err := cmd.NewHistoryStore(ctx, apiLogger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to create history store: %w", err)
			}

			defer func() {
				if closeErr := historyStore.Close(ctx); closeErr != nil {
					apiLogger.ErrorContext(ctx, "Failed to close history store", "error", closeErr)
				}
			}()

			app := newApp(historyStore)

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}
}

func newApp(store history.Store) *fiber.App {
	handlers := web.NewRunHandlers(store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conveyor API")
	})

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)

	app.Get("/health", handlers.HealthCheck)

	return app
}
