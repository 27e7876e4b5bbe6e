package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conveyor/pkg/artifact"
	"github.com/dukex/conveyor/pkg/cache"
	"github.com/dukex/conveyor/pkg/cmd"
	"github.com/dukex/conveyor/pkg/definition"
	"github.com/dukex/conveyor/pkg/executor"
	"github.com/dukex/conveyor/pkg/history"
	"github.com/dukex/conveyor/pkg/log"
	"github.com/dukex/conveyor/pkg/models"
	"github.com/dukex/conveyor/pkg/otelhelper"
	"github.com/dukex/conveyor/pkg/runner"
	"github.com/dukex/conveyor/pkg/scheduler"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute every workflow of a definition file",
		ArgsUsage: "<definition-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Usage:   "Directory checked out into job workspaces",
				Value:   ".",
				Sources: cli.EnvVars("CONVEYOR_SOURCE"),
			},
			&cli.StringFlag{
				Name:    "work-dir",
				Usage:   "Root directory for job workspaces (system temp if empty)",
				Sources: cli.EnvVars("CONVEYOR_WORK_DIR"),
			},
			&cli.StringFlag{
				Name:    "cache-url",
				Usage:   "Cache storage URL (file:// or redis://)",
				Value:   ".conveyor/cache",
				Sources: cli.EnvVars("CONVEYOR_CACHE_URL"),
			},
			&cli.StringFlag{
				Name:    "artifact-url",
				Usage:   "Artifact storage URL",
				Value:   ".conveyor/artifacts",
				Sources: cli.EnvVars("CONVEYOR_ARTIFACT_URL"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run history storage URL (file:// or postgres://)",
				Value:   ".conveyor/history",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "Maximum jobs running at once (number of CPUs if zero)",
				Sources: cli.EnvVars("CONVEYOR_CONCURRENCY"),
			},
			&cli.StringSliceFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Base environment variable for jobs (KEY=VALUE, repeatable)",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("CONVEYOR_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("conveyor").With("action", "run")

	definitionPath := command.Args().First()
	if definitionPath == "" {
		return fmt.Errorf("usage: conveyor run <definition-file>")
	}

	data, err := os.ReadFile(definitionPath)
	if err != nil {
		return fmt.Errorf("failed to read definition file: %w", err)
	}

	workflows, err := definition.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse definition file: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheStore, err := cmd.NewCacheStore(ctx, command.String("cache-url"))
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}

	defer func() {
		if closeErr := cacheStore.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close cache store", "error", closeErr)
		}
	}()

	artifactStore := cmd.NewArtifactStore(command.String("artifact-url"))

	historyStore, err := cmd.NewHistoryStore(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to create history store: %w", err)
	}

	defer func() {
		if closeErr := historyStore.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close history store", "error", closeErr)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	if eventBus != nil {
		defer func() {
			if closeErr := eventBus.Close(); closeErr != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", closeErr)
			}
		}()
	}

	tracer, err := newTracer(ctx, command.Bool("tracing"))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	baseEnv, err := parseBaseEnvironment(command.StringSlice("env"))
	if err != nil {
		return err
	}

	record := &history.RunRecord{
		ID:        "run-" + uuid.New().String()[:8],
		CreatedAt: time.Now().UTC(),
	}

	stepExecutor := executor.NewExecutor(
		cache.NewManager(cacheStore, logger),
		artifact.NewManager(artifactStore, logger),
		command.String("source"),
		logger,
	)

	jobRunner := runner.NewRunner(
		stepExecutor,
		record.ID,
		command.String("work-dir"),
		baseEnv,
		eventBus,
		tracer,
		logger,
	)

	sched := scheduler.NewScheduler(jobRunner, command.Int("concurrency"), eventBus, tracer, logger)

	logger.InfoContext(ctx, "Starting run", "run_id", record.ID, "workflows", len(workflows))

	for _, workflow := range workflows {
		record.Workflows = append(record.Workflows, sched.Run(ctx, workflow))
	}

	record.Aggregate()
	record.Duration = time.Since(record.CreatedAt)

	err = historyStore.SaveRun(ctx, record)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to save run record", "error", err)
	}

	printSummary(record)

	if record.Status == models.JobStatusFailed {
		return fmt.Errorf("run %s failed", record.ID)
	}

	return nil
}

func newTracer(ctx context.Context, enabled bool) (trace.Tracer, error) {
	if !enabled {
		return nil, nil
	}

	return otelhelper.NewTracer(ctx, "conveyor")
}

func parseBaseEnvironment(pairs []string) (map[string]string, error) {
	baseEnv := map[string]string{
		"PATH": os.Getenv("PATH"),
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid environment variable %q, expected KEY=VALUE", pair)
		}

		baseEnv[key] = value
	}

	return baseEnv, nil
}

func printSummary(record *history.RunRecord) {
	fmt.Printf("\nRun %s: %s (%s)\n", record.ID, record.Status, record.Duration.Round(time.Millisecond))

	for _, workflow := range record.Workflows {
		fmt.Printf("\nWorkflow: %s [%s]\n", workflow.WorkflowID, workflow.Status)

		jobIDs := make([]string, 0, len(workflow.Jobs))
		for jobID := range workflow.Jobs {
			jobIDs = append(jobIDs, jobID)
		}

		sort.Strings(jobIDs)

		for _, jobID := range jobIDs {
			outcome := workflow.Jobs[jobID]
			fmt.Printf("  Job %s: %s (%s)\n", jobID, outcome.Status, outcome.Duration.Round(time.Millisecond))

			for _, step := range outcome.Steps {
				marker := "✅"

				switch step.Status {
				case models.StepStatusFailed:
					marker = "❌"
				case models.StepStatusSkipped:
					marker = "⏭️"
				}

				fmt.Printf("    %s %s [%s]\n", marker, step.Name, step.Status)
			}
		}
	}
}
