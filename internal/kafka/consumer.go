package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer reads payment events as a member of a consumer group.
type EventConsumer struct {
	reader messageReader
	logger *slog.Logger
}

func NewEventConsumer(brokers []string, groupID, topic string, logger *slog.Logger) *EventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *EventConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run hands each payment event to handle until ctx ends or handle fails. An offset is
// committed once its event is handled. Messages that are not valid events are logged,
// committed and skipped.
func (c *EventConsumer) Run(ctx context.Context, handle func(context.Context, PaymentEvent) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		var event PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.ErrorContext(ctx, "skipping undecodable payment event",
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err))
		} else if err := handle(ctx, event); err != nil {
			c.logger.ErrorContext(ctx, "payment event handler failed",
				slog.String("type", event.Type),
				slog.String("booking_id", event.BookingID),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err))
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}
