package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/chatflow/pkg/autosave"
	"github.com/dukex/chatflow/pkg/config"
	"github.com/dukex/chatflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "chatflow",
		Usage:                 "Edit and serve chatbot conversation flows",
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			EditCommand(),
			ResetCommand(),
			ExportCommand(),
			InspectCommand(),
			WatchCommand(),
		},
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		stop()
		panic(err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML settings file",
			Sources: cli.EnvVars("CHATFLOW_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL for persistence (file://, memory://, redis://, postgres://)",
			Value:   config.DefaultDatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "store-key",
			Usage:   "Key of the persisted flow record",
			Value:   persistence.StateKey,
			Sources: cli.EnvVars("STORE_KEY"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   config.DefaultLogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers when --event-bus=kafka",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "mode",
			Usage:   "Initial interaction mode (edit, view)",
			Value:   "edit",
			Sources: cli.EnvVars("FLOW_MODE"),
		},
		&cli.StringFlag{
			Name:    "sample-file",
			Usage:   "JSON document used when nothing is persisted",
			Sources: cli.EnvVars("SAMPLE_FILE"),
		},
		&cli.BoolFlag{
			Name:    "autosave",
			Usage:   "Write the flow after each quiet interval",
			Value:   true,
			Sources: cli.EnvVars("AUTOSAVE"),
		},
		&cli.DurationFlag{
			Name:    "autosave-interval",
			Usage:   "Quiet interval before an automatic save",
			Value:   autosave.DefaultInterval,
			Sources: cli.EnvVars("AUTOSAVE_INTERVAL"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}
