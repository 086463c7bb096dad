// Package eventsvc publishes auth events to a message broker.
package eventsvc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/trezcool/masomo-portals/core"
)

// messageWriter is the part of *kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(conf *core.Config) (*KafkaPublisher, error) {
	if len(conf.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(conf.Kafka.Brokers...),
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topicPrefix: conf.Kafka.TopicPrefix,
	}, nil
}

// Topic returns the topic events of eventType are written to.
func (p *KafkaPublisher) Topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return strings.TrimSuffix(p.topicPrefix, ".") + "." + eventType
}

// Publish JSON encodes payload and writes it keyed by partitionKey.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload interface{}, partitionKey string) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.Topic(eventType),
		Key:     []byte(partitionKey),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
		Time:    time.Now().UTC(),
	})
	return errors.Wrapf(err, "writing %s event", eventType)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
