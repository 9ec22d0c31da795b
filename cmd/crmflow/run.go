package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/crmflow/pkg/broadcast"
	"github.com/dukex/crmflow/pkg/cmd"
	"github.com/dukex/crmflow/pkg/config"
	"github.com/dukex/crmflow/pkg/log"
	"github.com/dukex/crmflow/pkg/otelhelper"
	"github.com/dukex/crmflow/pkg/services"
	"github.com/dukex/crmflow/pkg/triggers"
	"github.com/dukex/crmflow/pkg/triggers/queue"
	"github.com/dukex/crmflow/pkg/triggers/schedule"
	"github.com/dukex/crmflow/pkg/web"
	"github.com/dukex/crmflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API, the progress stream, the trigger sources and the workers",
		Flags:   append(serverFlags(), crmFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, command.Bool("tracing"))
		},
	}
}

func run(ctx context.Context, cfg config.Config, tracing bool) error {
	logger := log.WithModule("crmflow").With("worker_id", cfg.WorkerID)
	logger.InfoContext(ctx, "Initializing crmflow", "port", cfg.Port, "event_bus", cfg.EventBus)

	engineOpts := []workflow.Option{}

	if tracing {
		tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "crmflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		engineOpts = append(engineOpts, workflow.WithTracer(tracer))
	}

	store, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	rdb, err := cmd.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}

	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	collaborators, err := cmd.NewCollaborators(logger, cfg.CRMURL, cfg.CRMToken, rdb)
	if err != nil {
		return err
	}

	reg := cmd.NewRegistry(logger, collaborators)

	broadcaster := broadcast.NewBroadcaster(logger)
	if rdb != nil {
		broadcaster.Subscribe(broadcast.NewRedisObserver(rdb, broadcast.DefaultRedisChannel))
	}

	engineOpts = append(engineOpts,
		workflow.WithExecutionRepository(store.Executions()),
		workflow.WithProgressPublisher(broadcaster),
	)
	engine := workflow.NewEngine(logger, reg, engineOpts...)

	bus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, "crmflow", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	dispatcher := triggers.NewDispatcher(logger)
	scheduler := schedule.NewSource(dispatcher, logger)
	manager := workflow.NewManager(cfg.WorkerID, logger, store.Workflows(), engine, bus, scheduler)

	err = manager.Start(ctx, dispatcher)
	if err != nil {
		return err
	}

	err = scheduler.Start(ctx)
	if err != nil {
		return err
	}

	var queueSource *queue.Source

	if rdb != nil {
		queueSource = queue.NewSource(rdb, cfg.Queue, dispatcher, logger)

		err = queueSource.Start(ctx)
		if err != nil {
			return err
		}
	}

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(store, reg),
		engine,
		dispatcher,
		manager,
		validator.New(validator.WithRequiredStructEnabled()),
	)
	app := web.NewApp(handlers)

	errs := make(chan error, 2)

	go func() {
		errs <- app.Listen(":" + strconv.Itoa(cfg.Port))
	}()

	var stream *http.Server

	if cfg.StreamPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/ws", broadcast.NewHandler(broadcaster, logger))

		stream = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.StreamPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := stream.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down crmflow")
	case err = <-errs:
		logger.Error("Server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, logger, app.ShutdownWithContext, stream, scheduler, queueSource, manager)

	return err
}

func shutdown(
	ctx context.Context,
	logger *slog.Logger,
	stopAPI func(context.Context) error,
	stream *http.Server,
	scheduler *schedule.Source,
	queueSource *queue.Source,
	manager *workflow.Manager,
) {
	if err := stopAPI(ctx); err != nil {
		logger.Error("Failed to stop API", "error", err)
	}

	if stream != nil {
		if err := stream.Shutdown(ctx); err != nil {
			logger.Error("Failed to stop stream server", "error", err)
		}
	}

	if err := scheduler.Stop(ctx); err != nil {
		logger.Error("Failed to stop schedule source", "error", err)
	}

	if queueSource != nil {
		if err := queueSource.Stop(ctx); err != nil {
			logger.Error("Failed to stop queue source", "error", err)
		}
	}

	if err := manager.Wait(ctx); err != nil {
		logger.Error("Executions still running at shutdown", "error", err)
	}
}
