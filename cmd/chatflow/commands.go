package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/dukex/chatflow/pkg/backup"
	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/config"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/render"
	"github.com/dukex/chatflow/pkg/tui"
	cli "github.com/urfave/cli/v3"
)

// ErrLocalEventBus is returned by watch when the configured bus cannot reach
// events published by another process.
var ErrLocalEventBus = errors.New("event bus only carries events inside one process")

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the flow API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   config.DefaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "backup-schedule",
				Usage:   "Cron schedule for copying the persisted flow aside",
				Sources: cli.EnvVars("BACKUP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "log-events",
				Usage:   "Log every flow event the server publishes",
				Sources: cli.EnvVars("LOG_EVENTS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "api")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			s.logger.InfoContext(ctx, "Initializing Chatflow API")

			if err := s.bootstrap(ctx); err != nil {
				return err
			}

			if s.cfg.BackupSchedule != "" {
				target := persistence.NewStore(s.backend,
					persistence.WithKey(s.cfg.StoreKey+backup.Suffix),
					persistence.WithLogger(log.WithModule("backup-store")))

				b, err := backup.New(s.store, target, s.cfg.BackupSchedule, log.WithModule("backup"))
				if err != nil {
					return err
				}

				if err := b.Start(ctx); err != nil {
					return err
				}
				defer b.Stop()
			}

			if command.Bool("log-events") {
				if err := s.watchEvents(ctx, nil); err != nil {
					return err
				}
			}

			api := NewAPI(s.logger, s.flow)

			if err := api.Start(ctx, s.cfg.Port); err != nil {
				s.logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}
}

func EditCommand() *cli.Command {
	return &cli.Command{
		Name:    "edit",
		Aliases: []string{"e"},
		Usage:   "Edit the flow in the terminal",
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "tui", quietLogs())
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.bootstrap(ctx); err != nil {
				return err
			}

			return tui.Run(ctx, s.flow)
		},
	}
}

func ResetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Delete the persisted flow so the sample is shown again",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Persist the sample right away",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "reset")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			state, err := s.flow.Reset(ctx)
			if err != nil {
				return err
			}

			if command.Bool("save") && !s.flow.Save(ctx) {
				return fmt.Errorf("failed to save flow under %s", s.store.Key())
			}

			s.logger.InfoContext(ctx, "Flow reset", "key", s.store.Key(), "nodes", len(state.Nodes))

			return nil
		},
	}
}

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Render the flow as a PNG image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, - for stdout",
				Value:   "flow.png",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "export")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.bootstrap(ctx); err != nil {
				return err
			}

			output := command.String("output")
			if output == "-" {
				return render.EncodePNG(os.Stdout, s.flow.State())
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}

			if err := render.EncodePNG(file, s.flow.State()); err != nil {
				_ = file.Close()

				return err
			}

			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			s.logger.InfoContext(ctx, "Flow exported", "output", output)

			return nil
		},
	}
}

func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the flow as JSON",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "persisted",
				Usage: "Print only the persisted record, without the sample fallback",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			s, err := openSession(ctx, command, "inspect")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			state := s.store.Load(ctx)

			if !command.Bool("persisted") {
				if err := s.bootstrap(ctx); err != nil {
					return err
				}

				state = s.flow.State()
			}

			if state == nil {
				return fmt.Errorf("no flow persisted under %s", s.store.Key())
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(state)
		},
	}
}

func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Log flow events published on the event bus",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Only log these event types, e.g. flow.saved",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var eventTypes []events.EventType

			for _, name := range command.StringSlice("type") {
				eventType := events.EventType(name)
				if !slices.Contains(events.Types, eventType) {
					return fmt.Errorf("unknown event type %q", name)
				}

				eventTypes = append(eventTypes, eventType)
			}

			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			if !cmd.CrossProcess(cfg.EventBus) {
				return fmt.Errorf("%w: %q; use --event-bus kafka or serve --log-events", ErrLocalEventBus, cfg.EventBus)
			}

			s, err := openSession(ctx, command, "watch")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			if err := s.watchEvents(ctx, eventTypes); err != nil {
				return err
			}

			<-ctx.Done()

			return nil
		},
	}
}

// watchEvents logs flow events of the given types, or all of them when none
// are given, until ctx is done.
func (s *session) watchEvents(ctx context.Context, eventTypes []events.EventType) error {
	err := s.eventBus.Handle(func(ctx context.Context, event eventbus.Event) error {
		s.logger.InfoContext(ctx, "Flow event",
			"type", event.GetType(),
			"flow_key", event.GetFlowKey(),
			"event", event)

		return nil
	}, eventTypes...)
	if err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	if err := s.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	s.logger.InfoContext(ctx, "Watching flow events", "bus", s.cfg.EventBus, "types", eventTypes)

	return nil
}
