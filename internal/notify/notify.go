package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/transkenya/internal/kafka"
)

// Sender turns payment events into passenger notifications and operator alerts.
// Delivery is a structured log line; an SMS gateway can be plugged in behind Deliver.
type Sender struct {
	logger  *slog.Logger
	Deliver func(ctx context.Context, phone, message string) error
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sender{logger: logger}
	s.Deliver = s.logDelivery
	return s
}

func (s *Sender) Send(ctx context.Context, event kafka.PaymentEvent) error {
	if event.Type == kafka.EventPaymentOrphaned {
		s.logger.ErrorContext(ctx, "operator alert: push sent without a local payment record",
			slog.String("payment_id", event.PaymentID),
			slog.String("booking_id", event.BookingID),
			slog.String("user_id", event.UserID),
			slog.String("merchant_request_id", event.MerchantRequestID),
			slog.String("checkout_request_id", event.CheckoutRequestID),
			slog.Int64("amount", event.Amount),
		)
		return nil
	}

	message := Message(event)
	if message == "" || event.PhoneNumber == "" {
		return nil
	}
	return s.Deliver(ctx, event.PhoneNumber, message)
}

func (s *Sender) logDelivery(ctx context.Context, phone, message string) error {
	s.logger.InfoContext(ctx, "notification sent", slog.String("phone", phone), slog.String("message", message))
	return nil
}

// Message renders the passenger-facing text for an event, or "" when nothing is sent.
func Message(event kafka.PaymentEvent) string {
	trip := ""
	if event.RouteFrom != "" {
		trip = fmt.Sprintf(" for %s to %s on %s, seat %d", event.RouteFrom, event.RouteTo, event.TravelDate, event.SeatNumber)
	}
	switch event.Type {
	case kafka.EventPaymentInitiated:
		return fmt.Sprintf("Enter your M-Pesa PIN to pay KES %d%s.", event.Amount, trip)
	case kafka.EventPaymentConfirmed:
		return fmt.Sprintf("Payment received (receipt %s). Your booking%s is confirmed.", event.ReceiptNumber, trip)
	case kafka.EventPaymentFailed:
		return fmt.Sprintf("Your M-Pesa payment%s did not go through. The seat has been released.", trip)
	case kafka.EventBookingCancelled:
		return fmt.Sprintf("Your booking%s has been cancelled.", trip)
	default:
		return ""
	}
}
