package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/Domenick1991/transkenya/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultStoreTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/Domenick1991/transkenya/internal/service/payment")

type PaymentUseCase interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	HandleCallback(ctx context.Context, cb Callback) (*domain.Payment, error)
	Reconcile(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type Gateway interface {
	InitiatePush(ctx context.Context, token string, req mpesa.PushRequest) (*mpesa.PushResponse, error)
	QueryPush(ctx context.Context, token, checkoutRequestID string) (*mpesa.PushStatus, error)
}

type RouteFinder interface {
	Find(origin, destination string) []domain.IndexedRoute
}

// SeatHolder is a short-lived advisory hold in front of the store's seat constraint.
type SeatHolder interface {
	AcquireSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string, ttl time.Duration) (bool, error)
	ReleaseSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingDetails struct {
	RouteFrom  string `json:"routeFrom"`
	RouteTo    string `json:"routeTo"`
	SeatNumber int    `json:"seatNumber"`
	Date       string `json:"date"`
}

type PaymentRequest struct {
	PhoneNumber    string         `json:"phoneNumber"`
	Amount         int64          `json:"amount"`
	BookingID      string         `json:"bookingId"`
	UserID         string         `json:"userId"`
	BookingDetails BookingDetails `json:"bookingDetails"`
}

type PaymentResult struct {
	PaymentID         string `json:"paymentId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	// Replayed is set when an earlier submitted payment was returned instead of a new push.
	Replayed bool `json:"-"`
}

type Stage string

const (
	StageReceived      Stage = "received"
	StageAuthenticated Stage = "authenticated"
	StagePushSubmitted Stage = "push_submitted"
	StageRecorded      Stage = "recorded"
)

// StageError reports the last stage an invocation reached before failing.
type StageError struct {
	Stage Stage
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("payment failed after stage %s: %v", e.Stage, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }

type PaymentService struct {
	bookings     repository.BookingRepository
	payments     repository.PaymentRepository
	routes       RouteFinder
	tokens       TokenProvider
	gateway      Gateway
	holds        SeatHolder
	holdTTL      time.Duration
	producer     Producer
	topic        string
	storeTimeout time.Duration
	newID        func() string
	now          func() time.Time
	logger       *slog.Logger
}

type PaymentServiceOption func(*PaymentService)

// WithSeatHolds enables the advisory seat hold held for ttl while a payment is started.
func WithSeatHolds(holds SeatHolder, ttl time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		s.holds = holds
		s.holdTTL = ttl
	}
}

func WithEvents(producer Producer, topic string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.producer = producer
		s.topic = topic
	}
}

func WithStoreTimeout(d time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) PaymentServiceOption {
	return func(s *PaymentService) {
		s.logger = logger
	}
}

func WithIDGenerator(newID func() string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.newID = newID
	}
}

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

func NewPaymentService(
	bookings repository.BookingRepository,
	payments repository.PaymentRepository,
	routes RouteFinder,
	tokens TokenProvider,
	gateway Gateway,
	opts ...PaymentServiceOption,
) *PaymentService {
	s := &PaymentService{
		bookings:     bookings,
		payments:     payments,
		routes:       routes,
		tokens:       tokens,
		gateway:      gateway,
		storeTimeout: defaultStoreTimeout,
		newID:        uuid.NewString,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiatePayment starts an STK push for a booking. The gateway is called at most once per
// invocation; once the push is accepted a local failure surfaces as OrphanedPushError.
func (s *PaymentService) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "payment.InitiatePayment", trace.WithAttributes(
		attribute.String("booking.id", req.BookingID),
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	session, err := s.validate(req)
	if err != nil {
		return nil, s.fail(span, StageReceived, err)
	}

	replay, err := s.replay(ctx, req)
	if err != nil {
		return nil, s.fail(span, StageReceived, err)
	}
	if replay != nil {
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		return replay, nil
	}

	booking := session.Booking(req.BookingID, req.UserID)
	if err := s.holdSeat(ctx, booking); err != nil {
		return nil, s.fail(span, StageReceived, err)
	}

	payment := &domain.Payment{
		ID:          s.newID(),
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		Amount:      req.Amount,
		PhoneNumber: session.PhoneNumber,
	}
	if err := s.store(ctx, "create payment intent", func(ctx context.Context) error {
		return s.payments.CreateIntent(ctx, payment)
	}); err != nil {
		// A conflicting intent owns the booking; leave its seat alone.
		if !domain.IsConflict(err) {
			s.releaseSeat(ctx, booking)
		}
		return nil, s.fail(span, StageReceived, err)
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID))

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "gateway authentication failed",
			slog.String("payment_id", payment.ID),
			slog.String("booking_id", booking.ID),
			slog.Any("error", err))
		s.abort(ctx, booking, payment, "authentication failed")
		return nil, s.fail(span, StageReceived, err)
	}

	push, err := s.gateway.InitiatePush(ctx, token, mpesa.PushRequest{
		Amount:      req.Amount,
		PhoneNumber: session.PhoneNumber,
		Description: fmt.Sprintf("Booking: %s to %s", booking.RouteFrom, booking.RouteTo),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "push rejected",
			slog.String("payment_id", payment.ID),
			slog.String("booking_id", booking.ID),
			slog.Any("error", err))
		s.abort(ctx, booking, payment, "push not accepted")
		return nil, s.fail(span, StageAuthenticated, err)
	}

	// The payer already has the prompt, so recording must not follow the caller's cancellation.
	recordCtx := context.WithoutCancel(ctx)
	var recorded *domain.Payment
	err = s.store(recordCtx, "record payment", func(ctx context.Context) error {
		var err error
		recorded, err = s.payments.MarkSubmitted(ctx, payment.ID, push.MerchantRequestID, push.CheckoutRequestID)
		return err
	})
	if err != nil {
		orphan := domain.OrphanedPushError{
			PaymentID:         payment.ID,
			BookingID:         booking.ID,
			UserID:            booking.UserID,
			PhoneNumber:       payment.PhoneNumber,
			Amount:            payment.Amount,
			MerchantRequestID: push.MerchantRequestID,
			CheckoutRequestID: push.CheckoutRequestID,
			Err:               err,
		}
		s.reportOrphan(recordCtx, orphan, booking)
		return nil, s.fail(span, StagePushSubmitted, orphan)
	}

	s.publish(ctx, kafka.EventPaymentInitiated, recorded, booking)
	s.logger.InfoContext(ctx, "payment initiated",
		slog.String("payment_id", recorded.ID),
		slog.String("booking_id", booking.ID),
		slog.String("checkout_request_id", recorded.CheckoutRequestID))

	return &PaymentResult{
		PaymentID:         recorded.ID,
		MerchantRequestID: recorded.MerchantRequestID,
		CheckoutRequestID: recorded.CheckoutRequestID,
	}, nil
}

func (s *PaymentService) validate(req PaymentRequest) (*domain.BookingSession, error) {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, domain.ValidationError{Field: "phoneNumber", Msg: "is required", Err: domain.ErrInvalidPhoneNumber}
	}
	phone, err := mpesa.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ValidationError{Field: "amount", Msg: "must be a positive whole number of shillings"}
	}
	if strings.TrimSpace(req.BookingID) == "" {
		return nil, domain.ValidationError{Field: "bookingId", Msg: "is required"}
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ValidationError{Field: "userId", Msg: "is required"}
	}

	details := req.BookingDetails
	if strings.TrimSpace(details.RouteFrom) == "" || strings.TrimSpace(details.RouteTo) == "" {
		return nil, domain.ValidationError{Field: "bookingDetails", Msg: "routeFrom and routeTo are required"}
	}
	if details.SeatNumber < 1 {
		return nil, domain.ValidationError{Field: "seatNumber", Msg: "must be at least 1"}
	}
	date, err := domain.ParseDate(details.Date)
	if err != nil {
		return nil, err
	}

	route, err := s.matchRoute(details, req.Amount)
	if err != nil {
		return nil, err
	}
	return domain.NewBookingSession(route, date, details.SeatNumber, phone)
}

// matchRoute picks the catalog route for the pair whose fare equals amount. Several
// departures may share a pair; any of them with a matching fare is accepted.
func (s *PaymentService) matchRoute(details BookingDetails, amount int64) (domain.Route, error) {
	if s.routes == nil {
		return domain.Route{
			Origin:      strings.TrimSpace(details.RouteFrom),
			Destination: strings.TrimSpace(details.RouteTo),
			Price:       amount,
		}, nil
	}
	candidates := s.routes.Find(details.RouteFrom, details.RouteTo)
	if len(candidates) == 0 {
		return domain.Route{}, domain.ValidationError{
			Field: "bookingDetails",
			Msg:   fmt.Sprintf("no route from %s to %s", details.RouteFrom, details.RouteTo),
		}
	}
	for _, c := range candidates {
		if c.Price == amount {
			return c.Route, nil
		}
	}
	return domain.Route{}, domain.ValidationError{
		Field: "amount",
		Msg:   fmt.Sprintf("does not match the fare of KES %d", candidates[0].Price),
	}
}

// replay returns the earlier result when the booking already has a submitted payment.
func (s *PaymentService) replay(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	var existing *domain.Payment
	err := s.store(ctx, "latest payment", func(ctx context.Context) error {
		var err error
		existing, err = s.payments.LatestForBooking(ctx, req.BookingID)
		return err
	})
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.UserID != req.UserID {
		return nil, domain.ConflictError{Resource: "booking", Msg: "booking " + req.BookingID + " belongs to another user"}
	}

	switch existing.Status {
	case domain.PaymentStatusPending:
		return &PaymentResult{
			PaymentID:         existing.ID,
			MerchantRequestID: existing.MerchantRequestID,
			CheckoutRequestID: existing.CheckoutRequestID,
			Replayed:          true,
		}, nil
	case domain.PaymentStatusInitiated:
		return nil, domain.ConflictError{Resource: "payment", Msg: "a payment for this booking is already in progress"}
	case domain.PaymentStatusOrphaned:
		return nil, domain.ConflictError{Resource: "payment", Msg: "a payment for this booking is awaiting reconciliation"}
	case domain.PaymentStatusConfirmed:
		return nil, domain.ConflictError{Resource: "payment", Msg: "this booking is already paid"}
	}
	return nil, nil
}

func (s *PaymentService) holdSeat(ctx context.Context, booking *domain.Booking) error {
	held := false
	if s.holds != nil {
		ok, err := s.holds.AcquireSeatHold(ctx, booking.RouteFrom, booking.RouteTo, booking.Date, booking.SeatNumber, booking.ID, s.holdTTL)
		switch {
		case err != nil:
			// The store constraint still guards the seat.
			s.logger.WarnContext(ctx, "seat hold unavailable", slog.Any("error", err))
		case !ok:
			return domain.SeatConflictError{
				RouteFrom:  booking.RouteFrom,
				RouteTo:    booking.RouteTo,
				Date:       booking.Date.Format(domain.DateLayout),
				SeatNumber: booking.SeatNumber,
			}
		default:
			held = true
		}
	}

	err := s.store(ctx, "create booking", func(ctx context.Context) error {
		return s.bookings.CreatePending(ctx, booking)
	})
	// On a conflict the booking and its hold belong to another invocation.
	if err != nil && held && !domain.IsConflict(err) {
		s.dropHold(ctx, booking)
	}
	return err
}

// abort cancels the booking and fails the intent after the gateway refused the payment.
func (s *PaymentService) abort(ctx context.Context, booking *domain.Booking, payment *domain.Payment, reason string) {
	ctx = context.WithoutCancel(ctx)
	err := s.store(ctx, "fail payment intent", func(ctx context.Context) error {
		_, err := s.payments.Resolve(ctx, payment.ID, domain.PaymentStatusFailed, "", reason)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark payment intent failed",
			slog.String("payment_id", payment.ID), slog.Any("error", err))
	}
	s.releaseSeat(ctx, booking)
}

func (s *PaymentService) releaseSeat(ctx context.Context, booking *domain.Booking) {
	ctx = context.WithoutCancel(ctx)
	err := s.store(ctx, "cancel booking", func(ctx context.Context) error {
		_, err := s.bookings.UpdateStatus(ctx, booking.ID, domain.BookingStatusCancelled)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to release seat",
			slog.String("booking_id", booking.ID), slog.Any("error", err))
	}
	s.dropHold(ctx, booking)
}

func (s *PaymentService) dropHold(ctx context.Context, booking *domain.Booking) {
	if s.holds == nil {
		return
	}
	if err := s.holds.ReleaseSeatHold(ctx, booking.RouteFrom, booking.RouteTo, booking.Date, booking.SeatNumber, booking.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to release seat hold", slog.String("booking_id", booking.ID), slog.Any("error", err))
	}
}

// reportOrphan flags the intent as orphaned with its gateway ids so the callback and the
// sweep can still settle it, then raises the operator alert.
func (s *PaymentService) reportOrphan(ctx context.Context, orphan domain.OrphanedPushError, booking *domain.Booking) {
	err := s.store(ctx, "flag orphaned payment", func(ctx context.Context) error {
		_, err := s.payments.MarkOrphaned(ctx, orphan.PaymentID, orphan.MerchantRequestID, orphan.CheckoutRequestID)
		return err
	})
	flagged := err == nil
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to flag orphaned payment",
			slog.String("payment_id", orphan.PaymentID), slog.Any("error", err))
	}

	s.logger.ErrorContext(ctx, "push sent but payment not recorded; manual reconciliation required",
		slog.Bool("flagged", flagged),
		slog.String("payment_id", orphan.PaymentID),
		slog.String("booking_id", orphan.BookingID),
		slog.String("user_id", orphan.UserID),
		slog.String("phone_number", orphan.PhoneNumber),
		slog.Int64("amount", orphan.Amount),
		slog.String("merchant_request_id", orphan.MerchantRequestID),
		slog.String("checkout_request_id", orphan.CheckoutRequestID),
		slog.Any("error", orphan.Err))

	s.publish(ctx, kafka.EventPaymentOrphaned, &domain.Payment{
		ID:                orphan.PaymentID,
		BookingID:         orphan.BookingID,
		UserID:            orphan.UserID,
		Amount:            orphan.Amount,
		PhoneNumber:       orphan.PhoneNumber,
		MerchantRequestID: orphan.MerchantRequestID,
		CheckoutRequestID: orphan.CheckoutRequestID,
		Status:            domain.PaymentStatusOrphaned,
	}, booking)
}

func (s *PaymentService) publish(ctx context.Context, eventType string, p *domain.Payment, b *domain.Booking) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.NewPaymentEvent(eventType, p, b)
	if err := s.producer.Publish(context.WithoutCancel(ctx), s.topic, event.BookingID, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish payment event",
			slog.String("type", eventType),
			slog.String("booking_id", event.BookingID),
			slog.Any("error", err))
	}
}

// store runs fn under the store timeout and classifies its error.
func (s *PaymentService) store(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return domain.StoreError(op, fn(ctx))
}

func (s *PaymentService) fail(span trace.Span, stage Stage, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("payment.failed_stage", string(stage)))
	var staged StageError
	if errors.As(err, &staged) {
		return err
	}
	return StageError{Stage: stage, Err: err}
}

var _ PaymentUseCase = (*PaymentService)(nil)
