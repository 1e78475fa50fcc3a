package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/channels/kafka"
	"github.com/dukex/chatflow/pkg/eventbus"
)

const serviceName = "chatflow"

// CrossProcess reports whether provider carries events between processes.
// The in-process channel only reaches subscribers of the publishing process.
func CrossProcess(provider string) bool {
	return provider == "kafka"
}

// NewEventBus builds the bus named by provider. An empty provider selects the
// in-process channel.
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, brokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
