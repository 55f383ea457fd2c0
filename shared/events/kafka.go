package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topic names used when EVENT_BUS=kafka. Transaction outcomes get their own
// topics so downstream consumers can subscribe to only the outcome they need.
var kafkaTopics = map[string]string{
	TransactionCompleted:          "transaction-completed",
	TransactionFailed:             "transaction-failed",
	TransactionCompensationFailed: "transaction-compensation-failed",
	BalanceUpdated:                "account-balance-events",
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes the same envelope as RedisPublisher to Kafka.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	msg, err := buildMessage(stream, eventType, data)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s to kafka topic %s: %w", eventType, msg.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(stream, eventType string, data any) (kafka.Message, error) {
	value, err := encodeEvent(eventType, data)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Topic: topicFor(stream, eventType),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if keyed, ok := data.(Keyed); ok {
		msg.Key = []byte(keyed.PartitionKey())
	}
	return msg, nil
}

func topicFor(stream, eventType string) string {
	if topic, ok := kafkaTopics[eventType]; ok {
		return topic
	}
	return strings.ReplaceAll(stream, ".", "-")
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber consumes one event type's topic through a consumer group.
// Offsets are linear, so a message whose handler fails is logged and
// committed with the rest; consumers must tolerate missed events.
type KafkaSubscriber struct {
	reader  messageReader
	topic   string
	handler Handler
	logger  *zap.SugaredLogger
}

func NewKafkaSubscriber(brokers []string, group, eventType string, handler Handler, logger *zap.SugaredLogger) *KafkaSubscriber {
	topic := topicFor("", eventType)
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  group,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		topic:   topic,
		handler: handler,
		logger:  logger,
	}
}

// Start blocks until ctx is cancelled.
func (s *KafkaSubscriber) Start(ctx context.Context) error {
	s.logger.Infow("kafka subscriber started", "topic", s.topic)
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infow("kafka subscriber stopping", "topic", s.topic)
				return ctx.Err()
			}
			s.logger.Warnw("error fetching message", "topic", s.topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.logger.Warnw("failed to unmarshal event", "topic", s.topic, "offset", msg.Offset, "error", err)
		} else if err := s.handler(ctx, event); err != nil {
			s.logger.Warnw("failed to process message", "topic", s.topic, "offset", msg.Offset, "error", err)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			s.logger.Warnw("failed to commit offset", "topic", s.topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}
