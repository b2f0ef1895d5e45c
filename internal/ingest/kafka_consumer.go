package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/shahzaib974/attendance-service/internal/domain"
	"github.com/shahzaib974/attendance-service/internal/service"
	"github.com/shahzaib974/attendance-service/pkg/log"
)

// ConfluentConsumer implements RoomEventConsumer using confluent-kafka-go.
// It is an alternative delivery path for the same lifecycle events the
// webhook endpoint receives.
type ConfluentConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  RoomEventHandler
	doneCh   chan struct{}
}

// NewConfluentConsumer creates a new Kafka consumer for room events.
func NewConfluentConsumer(brokers, topic, groupID string, handler RoomEventHandler) (*ConfluentConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &ConfluentConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins consuming messages from Kafka.
func (cc *ConfluentConsumer) Start(ctx context.Context) error {
	if err := cc.consumer.Subscribe(cc.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	logger := log.L()

	logger.Info().Str("topic", cc.topic).Msg("kafka consumer subscribed")

	go cc.consumeLoop(ctx)

	return nil
}

func (cc *ConfluentConsumer) consumeLoop(ctx context.Context) {
	defer close(cc.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger := log.L()
			logger.Info().Msg("kafka consumer shutting down")
			return
		default:
			msg, err := cc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				// Timeout is expected, continue
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				logger := log.L()
				logger.Error().Err(err).Msg("kafka consumer error")
				continue
			}

			cc.processMessage(ctx, msg)
		}
	}
}

func (cc *ConfluentConsumer) processMessage(ctx context.Context, msg *kafka.Message) {
	var raw domain.RawEvent
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		logger := log.L()
		logger.Warn().Err(err).Msg("failed to unmarshal room event, skipping")
		return
	}

	if err := cc.handler.ProcessEvent(ctx, &raw); err != nil {
		// An unresolvable room cannot succeed on redelivery; drop it.
		// Store failures are left to the broker's redelivery.
		if errors.Is(err, service.ErrRoomRequired) {
			logger := log.L()
			logger.Warn().Str(log.FieldEvent, raw.Event).Msg("room event without room key, dropped")
			return
		}
		logger := log.L()
		logger.Error().Err(err).Str(log.FieldEvent, raw.Event).Msg("failed to handle room event")
	}
}

// Close stops the consumer and releases resources.
func (cc *ConfluentConsumer) Close() error {
	if err := cc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	<-cc.doneCh
	return nil
}
