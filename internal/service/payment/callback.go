package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Callback is the outcome the gateway posts to the callback URL.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
}

type ReconcileReport struct {
	Checked      int `json:"checked"`
	Confirmed    int `json:"confirmed"`
	Failed       int `json:"failed"`
	StillPending int `json:"stillPending"`
	// NeedsReview counts intents without gateway ids. The push may have reached the payer,
	// so they are left for an operator.
	NeedsReview int `json:"needsReview"`
	Errors      int `json:"errors"`
}

// HandleCallback settles the payment named by the callback. Repeated deliveries of a settled
// payment are no-ops.
func (s *PaymentService) HandleCallback(ctx context.Context, cb Callback) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.HandleCallback", trace.WithAttributes(
		attribute.String("mpesa.checkout_request_id", cb.CheckoutRequestID),
		attribute.Int("mpesa.result_code", cb.ResultCode),
	))
	defer span.End()

	if cb.CheckoutRequestID == "" {
		return nil, domain.ValidationError{Field: "CheckoutRequestID", Msg: "is required"}
	}

	var payment *domain.Payment
	err := s.store(ctx, "find payment", func(ctx context.Context) error {
		var err error
		payment, err = s.payments.GetByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		return err
	})
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.ErrorContext(ctx, "callback for unknown payment",
				slog.String("merchant_request_id", cb.MerchantRequestID),
				slog.String("checkout_request_id", cb.CheckoutRequestID),
				slog.Int("result_code", cb.ResultCode),
				slog.String("receipt_number", cb.ReceiptNumber))
		}
		return nil, err
	}
	if payment.Status.Terminal() {
		return payment, nil
	}

	status := domain.PaymentStatusFailed
	if cb.ResultCode == 0 {
		status = domain.PaymentStatusConfirmed
	}
	return s.settle(ctx, payment, status, cb.ReceiptNumber, cb.ResultDesc)
}

// Reconcile resolves payments left open for longer than olderThan. Pending and orphaned
// payments are queried at the gateway. Intents without a checkout id are never failed
// automatically: whether their push went out is unknown.
func (s *PaymentService) Reconcile(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "payment.Reconcile")
	defer span.End()

	var open []domain.Payment
	err := s.store(ctx, "list open payments", func(ctx context.Context) error {
		var err error
		open, err = s.payments.ListOpenBefore(ctx, s.now().Add(-olderThan))
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	var token string
	for i := range open {
		p := &open[i]
		report.Checked++

		if p.CheckoutRequestID == "" {
			s.logger.ErrorContext(ctx, "reconcile: payment intent without gateway ids needs manual review",
				slog.String("payment_id", p.ID),
				slog.String("booking_id", p.BookingID),
				slog.String("status", string(p.Status)),
				slog.Time("updated_at", p.UpdatedAt))
			report.NeedsReview++
			continue
		}

		if token == "" {
			token, err = s.tokens.Token(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "reconcile: gateway authentication failed", slog.Any("error", err))
				return report, fmt.Errorf("reconcile: %w", err)
			}
		}

		result, err := s.gateway.QueryPush(ctx, token, p.CheckoutRequestID)
		if err != nil {
			if mpesa.IsStillProcessing(err) {
				report.StillPending++
				continue
			}
			s.logger.WarnContext(ctx, "reconcile: push query failed",
				slog.String("payment_id", p.ID),
				slog.String("checkout_request_id", p.CheckoutRequestID),
				slog.Any("error", err))
			report.Errors++
			continue
		}

		status := domain.PaymentStatusFailed
		if result.Succeeded() {
			status = domain.PaymentStatusConfirmed
		}
		if _, err := s.settle(ctx, p, status, "", result.ResultDesc); err != nil {
			report.Errors++
			continue
		}
		if status == domain.PaymentStatusConfirmed {
			report.Confirmed++
		} else {
			report.Failed++
		}
	}

	s.logger.InfoContext(ctx, "reconcile finished",
		slog.Int("checked", report.Checked),
		slog.Int("confirmed", report.Confirmed),
		slog.Int("failed", report.Failed),
		slog.Int("still_pending", report.StillPending),
		slog.Int("needs_review", report.NeedsReview),
		slog.Int("errors", report.Errors))
	return report, nil
}

// settle moves the payment to a terminal status and the booking along with it.
func (s *PaymentService) settle(ctx context.Context, payment *domain.Payment, status domain.PaymentStatus, receipt, desc string) (*domain.Payment, error) {
	var resolved *domain.Payment
	err := s.store(ctx, "resolve payment", func(ctx context.Context) error {
		var err error
		resolved, err = s.payments.Resolve(ctx, payment.ID, status, receipt, desc)
		return err
	})
	if domain.IsConflict(err) {
		// Settled concurrently by another delivery or the sweep.
		return payment, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve payment",
			slog.String("payment_id", payment.ID), slog.Any("error", err))
		return nil, err
	}

	booking := s.settleBooking(ctx, resolved)

	eventType := kafka.EventPaymentFailed
	if status == domain.PaymentStatusConfirmed {
		eventType = kafka.EventPaymentConfirmed
	}
	s.publish(ctx, eventType, resolved, booking)
	s.logger.InfoContext(ctx, "payment settled",
		slog.String("payment_id", resolved.ID),
		slog.String("booking_id", resolved.BookingID),
		slog.String("status", string(resolved.Status)),
		slog.String("receipt_number", resolved.ReceiptNumber))
	return resolved, nil
}

func (s *PaymentService) settleBooking(ctx context.Context, payment *domain.Payment) *domain.Booking {
	var current *domain.Booking
	err := s.store(ctx, "get booking", func(ctx context.Context) error {
		var err error
		current, err = s.bookings.GetByID(ctx, payment.BookingID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "booking of settled payment not loaded",
			slog.String("payment_id", payment.ID),
			slog.String("booking_id", payment.BookingID),
			slog.Any("error", err))
		return nil
	}

	target := domain.BookingStatusCancelled
	if payment.Status == domain.PaymentStatusConfirmed {
		if current.Status == domain.BookingStatusCancelled {
			s.logger.ErrorContext(ctx, "payment confirmed for a cancelled booking; refund required",
				slog.String("payment_id", payment.ID),
				slog.String("booking_id", current.ID),
				slog.String("receipt_number", payment.ReceiptNumber),
				slog.Int64("amount", payment.Amount))
			return current
		}
		target = domain.BookingStatusConfirmed
	} else if current.Status == domain.BookingStatusConfirmed {
		// A failed retry must not undo an earlier successful payment.
		return current
	}
	if current.Status == target {
		return current
	}

	var updated *domain.Booking
	err = s.store(ctx, "update booking", func(ctx context.Context) error {
		var err error
		updated, err = s.bookings.UpdateStatus(ctx, current.ID, target)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update booking after payment",
			slog.String("booking_id", current.ID),
			slog.String("status", string(target)),
			slog.Any("error", err))
		return current
	}
	if target == domain.BookingStatusCancelled {
		s.dropHold(ctx, updated)
	}
	return updated
}
