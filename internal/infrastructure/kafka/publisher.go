package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nerrad567/smart-watering-core/internal/infrastructure/config"
)

var (
	// ErrInvalidTopic is returned for device topics that cannot be mapped to a Kafka topic.
	ErrInvalidTopic = errors.New("kafka: invalid topic")

	// ErrPublishFailed wraps broker write failures.
	ErrPublishFailed = errors.New("kafka: publish failed")

	// ErrNoBrokers is returned by NewPublisher without any broker address.
	ErrNoBrokers = errors.New("kafka: no brokers configured")
)

const maxTopicLength = 249

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes keyed command messages. Safe for concurrent use.
type Publisher struct {
	writer messageWriter
}

// NewPublisher builds a writer for cfg.Brokers. No connection is made until
// the first Publish.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	timeout := time.Duration(cfg.WriteTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		WriteTimeout:           timeout,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &Publisher{writer: w}, nil
}

// Publish writes payload to the Kafka topic derived from deviceTopic, keyed
// by deviceID. It blocks until the configured acks are received.
func (p *Publisher) Publish(ctx context.Context, deviceTopic, deviceID string, payload []byte) error {
	topic, err := TopicName(deviceTopic)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(deviceID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close flushes pending messages and closes broker connections.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// TopicName maps a device topic such as "farm-a/pump-1/cmd" to the Kafka
// topic "farm-a.pump-1.cmd".
func TopicName(deviceTopic string) (string, error) {
	name := strings.Trim(deviceTopic, "/")
	name = strings.ReplaceAll(name, "/", ".")

	if name == "" || name == "." || name == ".." || len(name) > maxTopicLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, deviceTopic)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidTopic, deviceTopic)
		}
	}
	return name, nil
}
