// Package kafka connects the event bus to Kafka through watermill.
package kafka

import (
	"errors"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var brokers []string

	for _, broker := range strings.Split(raw, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}

// CreateChannel builds a publisher and subscriber pair. Messages are keyed by
// flow so every event of one flow lands on the same partition.
func CreateChannel(
	logger watermill.LoggerAdapter,
	brokers []string,
	serviceName string,
) (*kafka.Publisher, *kafka.Subscriber, error) {
	if len(brokers) == 0 {
		return nil, nil, ErrNoBrokers
	}

	marshaler := newMarshaler()

	subscriber, err := kafka.NewSubscriber(subscriberConfig(brokers, serviceName, marshaler), logger)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := kafka.NewPublisher(publisherConfig(brokers, marshaler), logger)
	if err != nil {
		_ = subscriber.Close()

		return nil, nil, err
	}

	return publisher, subscriber, nil
}

func newMarshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(partitionKey)
}

func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}

// subscriberConfig starts new consumer groups at the newest offset; a watcher
// only cares about edits made after it joined.
func subscriberConfig(brokers []string, serviceName string, unmarshaler kafka.Unmarshaler) kafka.SubscriberConfig {
	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest

	return kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           unmarshaler,
		OverwriteSaramaConfig: saramaConfig,
		ConsumerGroup:         "cg-" + serviceName,
		OTELEnabled:           true,
	}
}

func publisherConfig(brokers []string, marshaler kafka.Marshaler) kafka.PublisherConfig {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	return kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: saramaConfig,
		OTELEnabled:           true,
	}
}
