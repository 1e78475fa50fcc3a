package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/autosave"
	"github.com/dukex/chatflow/pkg/channels/kafka"
	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/config"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/sample"
	"github.com/dukex/chatflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// loadConfig reads the settings file, when given, and applies the flags that
// were set explicitly on top of it.
func loadConfig(command *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := command.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("database-url") {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("store-key") {
		cfg.StoreKey = command.String("store-key")
	}

	if command.IsSet("log-level") {
		cfg.LogLevel = command.String("log-level")
	}

	if command.IsSet("event-bus") {
		cfg.EventBus = command.String("event-bus")
	}

	if command.IsSet("kafka-brokers") {
		cfg.KafkaBrokers = kafka.ParseBrokers(command.String("kafka-brokers"))
	}

	if command.IsSet("mode") {
		cfg.Mode = command.String("mode")
	}

	if command.IsSet("sample-file") {
		cfg.SampleFile = command.String("sample-file")
	}

	if command.IsSet("backup-schedule") {
		cfg.BackupSchedule = command.String("backup-schedule")
	}

	if command.IsSet("otel") {
		cfg.Otel = command.Bool("otel")
	}

	if command.IsSet("autosave") {
		cfg.Autosave.Enabled = command.Bool("autosave")
	}

	if command.IsSet("autosave-interval") {
		cfg.Autosave.Interval = command.Duration("autosave-interval")
	}

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// session is everything a command needs to work on the persisted flow.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	backend  persistence.Persistence
	store    *persistence.Store
	eventBus eventbus.EventBus
	flow     *services.Flow
	shutdown func(context.Context) error
}

type sessionOption func(*sessionOptions)

type sessionOptions struct {
	quiet bool
}

// quietLogs drops log output, for commands that own the terminal.
func quietLogs() sessionOption {
	return func(o *sessionOptions) {
		o.quiet = true
	}
}

func openSession(ctx context.Context, command *cli.Command, module string, opts ...sessionOption) (*session, error) {
	var options sessionOptions
	for _, opt := range opts {
		opt(&options)
	}

	cfg, err := loadConfig(command)
	if err != nil {
		return nil, err
	}

	if options.quiet {
		slog.SetDefault(log.Discard())
	} else {
		log.Setup(cfg.LogLevel)
	}

	s := &session{
		cfg:    cfg,
		logger: log.WithModule(module),
	}

	storeOpts := []persistence.StoreOption{
		persistence.WithKey(cfg.StoreKey),
		persistence.WithLogger(log.WithModule("store")),
	}

	if cfg.Otel {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "chatflow-"+module)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		s.shutdown = shutdown
		storeOpts = append(storeOpts, persistence.WithTracer(tracer))
	}

	s.backend, err = cmd.NewPersistence(ctx, s.logger, cfg.DatabaseURL)
	if err != nil {
		s.Close(ctx)

		return nil, err
	}

	s.store = persistence.NewStore(s.backend, storeOpts...)

	s.eventBus, err = cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, log.WithModule("eventbus"))
	if err != nil {
		s.Close(ctx)

		return nil, err
	}

	flowOpts := []services.FlowOption{
		services.WithLogger(log.WithModule("flow")),
		services.WithPublisher(s.eventBus),
		services.WithMode(models.Mode(cfg.Mode)),
		services.WithAutosave(
			autosave.WithEnabled(cfg.Autosave.Enabled),
			autosave.WithInterval(cfg.Autosave.Interval),
			autosave.WithLogger(log.WithModule("autosave")),
		),
	}

	if cfg.SampleFile != "" {
		flowOpts = append(flowOpts, services.WithSample(sampleFromFile(cfg.SampleFile)))
	}

	s.flow = services.NewFlow(s.store, flowOpts...)

	return s, nil
}

// bootstrap loads the persisted flow, or the sample when there is none.
func (s *session) bootstrap(ctx context.Context) error {
	persisted, err := s.flow.Bootstrap(ctx)
	if err != nil {
		return err
	}

	state := s.flow.State()
	s.logger.InfoContext(ctx, "Flow loaded",
		"key", s.store.Key(),
		"persisted", persisted,
		"nodes", len(state.Nodes),
		"edges", len(state.Edges))

	return nil
}

// Close tears the session down. A pending autosave is discarded.
func (s *session) Close(ctx context.Context) {
	if s.flow != nil {
		s.flow.Close()
	}

	if s.eventBus != nil {
		if err := s.eventBus.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}

	if s.backend != nil {
		if err := s.backend.Close(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	if s.shutdown != nil {
		// ctx may already be cancelled by a signal
		if err := s.shutdown(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}
}

func sampleFromFile(path string) services.SampleSource {
	return func() (*models.FlowState, error) {
		data, err := sample.FromFile(path)
		if err != nil {
			return nil, err
		}

		return data.Flow(), nil
	}
}
