package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	EventPaymentInitiated = "payment_initiated"
	EventPaymentOrphaned  = "payment_orphaned"
	EventPaymentConfirmed = "payment_confirmed"
	EventPaymentFailed    = "payment_failed"
	EventBookingCancelled = "booking_cancelled"
)

// PaymentEvent is the message published for every payment and booking transition.
// It is keyed by booking id so all events of a booking land on one partition.
type PaymentEvent struct {
	Type              string    `json:"type"`
	PaymentID         string    `json:"payment_id,omitempty"`
	BookingID         string    `json:"booking_id"`
	UserID            string    `json:"user_id"`
	PhoneNumber       string    `json:"phone_number,omitempty"`
	Amount            int64     `json:"amount,omitempty"`
	RouteFrom         string    `json:"route_from,omitempty"`
	RouteTo           string    `json:"route_to,omitempty"`
	SeatNumber        int       `json:"seat_number,omitempty"`
	TravelDate        string    `json:"travel_date,omitempty"`
	Status            string    `json:"status"`
	MerchantRequestID string    `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	ReceiptNumber     string    `json:"receipt_number,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewPaymentEvent builds an event from a payment and, when known, its booking.
func NewPaymentEvent(eventType string, p *domain.Payment, b *domain.Booking) PaymentEvent {
	event := PaymentEvent{Type: eventType, OccurredAt: time.Now().UTC()}
	if p != nil {
		event.PaymentID = p.ID
		event.BookingID = p.BookingID
		event.UserID = p.UserID
		event.PhoneNumber = p.PhoneNumber
		event.Amount = p.Amount
		event.Status = string(p.Status)
		event.MerchantRequestID = p.MerchantRequestID
		event.CheckoutRequestID = p.CheckoutRequestID
		event.ReceiptNumber = p.ReceiptNumber
	}
	if b != nil {
		event.BookingID = b.ID
		event.UserID = b.UserID
		event.RouteFrom = b.RouteFrom
		event.RouteTo = b.RouteTo
		event.SeatNumber = b.SeatNumber
		event.TravelDate = b.Date.Format(domain.DateLayout)
		if p == nil {
			event.Status = string(b.Status)
		}
	}
	return event
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.DebugContext(ctx, "published to kafka", slog.String("topic", topic), slog.String("key", key))
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and lists partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}
	return nil
}
