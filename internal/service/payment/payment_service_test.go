package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/Domenick1991/transkenya/internal/repository/memrepo"
	"github.com/Domenick1991/transkenya/internal/service/routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const topic = "payment-events"

var travelDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memrepo.Store
	tokens   *MockTokenProvider
	gateway  *MockGateway
	producer *MockProducer
	service  *PaymentService
}

func newFixture(t *testing.T, opts ...PaymentServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    memrepo.New(),
		tokens:   new(MockTokenProvider),
		gateway:  new(MockGateway),
		producer: new(MockProducer),
	}
	f.producer.On("Publish", mock.Anything, topic, mock.Anything, mock.Anything).Return(nil).Maybe()

	var seq int64
	base := []PaymentServiceOption{
		WithEvents(f.producer, topic),
		WithIDGenerator(func() string { return fmt.Sprintf("p%d", atomic.AddInt64(&seq, 1)) }),
	}
	f.service = NewPaymentService(
		f.store.BookingRepo(),
		f.store.PaymentRepo(),
		routes.NewCatalog(nil),
		f.tokens,
		f.gateway,
		append(base, opts...)...,
	)
	return f
}

func request(bookingID string, seat int) PaymentRequest {
	return PaymentRequest{
		PhoneNumber: "0712345678",
		Amount:      2000,
		BookingID:   bookingID,
		UserID:      "u1",
		BookingDetails: BookingDetails{
			RouteFrom:  "Nairobi",
			RouteTo:    "Mombasa",
			SeatNumber: seat,
			Date:       "2025-06-01",
		},
	}
}

var expectedPush = mpesa.PushRequest{
	Amount:      2000,
	PhoneNumber: "254712345678",
	Description: "Booking: Nairobi to Mombasa",
}

func TestInitiatePayment_Success(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil).Once()

	result, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.NoError(t, err)
	assert.Equal(t, "p1", result.PaymentID)
	assert.Equal(t, "m1", result.MerchantRequestID)
	assert.Equal(t, "c1", result.CheckoutRequestID)
	assert.False(t, result.Replayed)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "254712345678", payments[0].PhoneNumber)
	assert.Equal(t, domain.PaymentStatusPending, payments[0].Status)
	assert.Equal(t, int64(2000), payments[0].Amount)
	assert.Equal(t, "b1", payments[0].BookingID)
	assert.Equal(t, "u1", payments[0].UserID)
	assert.Equal(t, "c1", payments[0].CheckoutRequestID)

	booking, ok := f.store.Booking("b1")
	require.True(t, ok)
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)
	assert.Equal(t, 15, booking.SeatNumber)
	assert.Equal(t, travelDate, booking.Date)
	assert.Equal(t, int64(2000), booking.Price)

	f.tokens.AssertNumberOfCalls(t, "Token", 1)
	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
	assert.Equal(t, []string{kafka.EventPaymentInitiated}, f.producer.eventTypes())
	assert.Equal(t, "b1", f.producer.events()[0].BookingID)
}

func TestInitiatePayment_InvalidPhoneMakesNoCalls(t *testing.T) {
	for _, phone := range []string{"", "12345", "0812345678", "+1 555 123 4567"} {
		t.Run(phone, func(t *testing.T) {
			f := newFixture(t)
			req := request("b1", 15)
			req.PhoneNumber = phone

			_, err := f.service.InitiatePayment(context.Background(), req)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			assert.ErrorIs(t, err, domain.ErrInvalidPhoneNumber)

			var staged StageError
			require.ErrorAs(t, err, &staged)
			assert.Equal(t, StageReceived, staged.Stage)

			f.tokens.AssertNotCalled(t, "Token", mock.Anything)
			f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)
			assert.Zero(t, f.store.Calls(memrepo.OpCreatePending))
			assert.Empty(t, f.store.Payments())
		})
	}
}

func TestInitiatePayment_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PaymentRequest)
		field  string
	}{
		{"zero amount", func(r *PaymentRequest) { r.Amount = 0 }, "amount"},
		{"negative amount", func(r *PaymentRequest) { r.Amount = -5 }, "amount"},
		{"fare mismatch", func(r *PaymentRequest) { r.Amount = 1500 }, "amount"},
		{"missing booking id", func(r *PaymentRequest) { r.BookingID = " " }, "bookingId"},
		{"missing user id", func(r *PaymentRequest) { r.UserID = "" }, "userId"},
		{"missing route", func(r *PaymentRequest) { r.BookingDetails.RouteTo = "" }, "bookingDetails"},
		{"unknown route", func(r *PaymentRequest) { r.BookingDetails.RouteTo = "Lamu" }, "bookingDetails"},
		{"seat zero", func(r *PaymentRequest) { r.BookingDetails.SeatNumber = 0 }, "seatNumber"},
		{"seat beyond bus", func(r *PaymentRequest) { r.BookingDetails.SeatNumber = 45 }, "seatNumber"},
		{"bad date", func(r *PaymentRequest) { r.BookingDetails.Date = "01/06/2025" }, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := request("b1", 15)
			tt.mutate(&req)

			_, err := f.service.InitiatePayment(context.Background(), req)
			var verr domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)
			assert.Zero(t, f.store.Calls(memrepo.OpCreatePending))
		})
	}
}

func TestInitiatePayment_ConcurrentSameSeat(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil)
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil)

	const n = 12
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.service.InitiatePayment(context.Background(), request(fmt.Sprintf("b%d", i), 15))
		}(i)
	}
	close(start)
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case domain.IsSeatConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
	assert.Len(t, f.store.Payments(), 1)
}

func TestInitiatePayment_RecordFailureIsOrphaned(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memrepo.OpMarkSubmitted, errors.New("connection reset"))
	f.tokens.On("Token", mock.Anything).Return("tok", nil).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil).Once()

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.Error(t, err)

	var orphan domain.OrphanedPushError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "p1", orphan.PaymentID)
	assert.Equal(t, "b1", orphan.BookingID)
	assert.Equal(t, "u1", orphan.UserID)
	assert.Equal(t, "m1", orphan.MerchantRequestID)
	assert.Equal(t, "c1", orphan.CheckoutRequestID)
	assert.True(t, domain.IsStoreUnavailable(err))
	assert.False(t, domain.Retryable(err))

	var staged StageError
	require.ErrorAs(t, err, &staged)
	assert.Equal(t, StagePushSubmitted, staged.Stage)

	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
	assert.Equal(t, []string{kafka.EventPaymentOrphaned}, f.producer.eventTypes())
	assert.Equal(t, "c1", f.producer.events()[0].CheckoutRequestID)

	// The seat stays taken: the payer may still complete the push.
	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusOrphaned, payments[0].Status)
	assert.Equal(t, "m1", payments[0].MerchantRequestID)
	assert.Equal(t, "c1", payments[0].CheckoutRequestID)

	_, err = f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsConflict(err))
	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
}

func TestInitiatePayment_RecordsAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.tokens.On("Token", mock.Anything).Return("tok", nil).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Run(func(mock.Arguments) { cancel() }).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil).Once()

	result, err := f.service.InitiatePayment(ctx, request("b1", 15))
	require.NoError(t, err)
	assert.Equal(t, "c1", result.CheckoutRequestID)
	assert.Equal(t, domain.PaymentStatusPending, f.store.Payments()[0].Status)
}

func TestInitiatePayment_ConcurrentSameBooking(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil)
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil)

	const n = 8
	results := make([]*PaymentResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.service.InitiatePayment(context.Background(), request("b1", 15))
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	for i, err := range errs {
		switch {
		case err == nil:
			assert.Equal(t, "p1", results[i].PaymentID)
			if !results[i].Replayed {
				fresh++
			}
		case domain.IsConflict(err):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, fresh)
	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
	assert.Len(t, f.store.Payments(), 1)

	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)
}

// A second request arriving after the first created the booking but before it wrote the
// intent must not push again or release the first request's seat.
func TestInitiatePayment_BookingClaimedByConcurrentRequest(t *testing.T) {
	holds := new(MockSeatHolder)
	holds.On("AcquireSeatHold", mock.Anything, "Nairobi", "Mombasa", travelDate, 15, "b1", 2*time.Minute).Return(true, nil).Once()

	f := newFixture(t, WithSeatHolds(holds, 2*time.Minute))
	f.store.PutBooking(domain.Booking{
		ID:         "b1",
		UserID:     "u1",
		RouteFrom:  "Nairobi",
		RouteTo:    "Mombasa",
		SeatNumber: 15,
		Date:       travelDate,
		Price:      2000,
		Status:     domain.BookingStatusPaymentPending,
	})

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsConflict(err))

	f.tokens.AssertNotCalled(t, "Token", mock.Anything)
	f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)
	holds.AssertNotCalled(t, "ReleaseSeatHold", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.store.Payments())

	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)
}

func TestInitiatePayment_OpenIntentKeepsSeat(t *testing.T) {
	f := newFixture(t)
	// Another payment for b1 is open but not yet visible to the replay check.
	f.store.PutPayment(domain.Payment{ID: "other", BookingID: "b1", UserID: "u1", Amount: 2000, Status: domain.PaymentStatusPending})
	f.store.Fail(memrepo.OpLatestForBooking, domain.NotFoundError{Resource: "payment for booking", ID: "b1"})

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsConflict(err))
	f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)

	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)
}

func TestInitiatePayment_AuthFailureReleasesSeat(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("", domain.AuthError{Err: errors.New("invalid credentials")}).Once()

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.Error(t, err)
	assert.True(t, domain.IsAuth(err))
	f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusFailed, payments[0].Status)
	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
}

func TestInitiatePayment_PushFailureReleasesSeat(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil)
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(nil, domain.GatewayError{Code: "400.002.02", Message: "Invalid Amount"}).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m2", CheckoutRequestID: "c2", ResponseCode: "0"}, nil).Once()

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.Error(t, err)
	assert.True(t, domain.IsGateway(err))
	assert.True(t, domain.Retryable(err))
	var staged StageError
	require.ErrorAs(t, err, &staged)
	assert.Equal(t, StageAuthenticated, staged.Stage)

	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)

	result, err := f.service.InitiatePayment(context.Background(), request("b2", 15))
	require.NoError(t, err)
	assert.Equal(t, "c2", result.CheckoutRequestID)
}

func TestInitiatePayment_RetryAfterFailureRevivesBooking(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil)
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(nil, domain.NetworkError{Op: "initiate push", Err: errors.New("reset")}).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m2", CheckoutRequestID: "c2", ResponseCode: "0"}, nil).Once()

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.True(t, domain.IsNetwork(err))

	result, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.NoError(t, err)
	assert.Equal(t, "p2", result.PaymentID)

	booking, _ := f.store.Booking("b1")
	assert.Equal(t, domain.BookingStatusPaymentPending, booking.Status)
}

func TestInitiatePayment_ReplaysSubmittedPayment(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Token", mock.Anything).Return("tok", nil).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(&mpesa.PushResponse{MerchantRequestID: "m1", CheckoutRequestID: "c1", ResponseCode: "0"}, nil).Once()

	first, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.NoError(t, err)

	second, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.CheckoutRequestID, second.CheckoutRequestID)

	f.gateway.AssertNumberOfCalls(t, "InitiatePush", 1)
	assert.Len(t, f.store.Payments(), 1)
}

func TestInitiatePayment_IntentInProgressConflicts(t *testing.T) {
	f := newFixture(t)
	f.store.PutPayment(domain.Payment{ID: "p0", BookingID: "b1", UserID: "u1", Amount: 2000, Status: domain.PaymentStatusInitiated})

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsConflict(err))
	f.tokens.AssertNotCalled(t, "Token", mock.Anything)
	f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiatePayment_StoreTimeout(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memrepo.OpCreatePending, context.DeadlineExceeded)

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsTimeout(err))
	f.gateway.AssertNotCalled(t, "InitiatePush", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiatePayment_SeatHoldTaken(t *testing.T) {
	holds := new(MockSeatHolder)
	holds.On("AcquireSeatHold", mock.Anything, "Nairobi", "Mombasa", travelDate, 15, "b1", 2*time.Minute).Return(false, nil).Once()

	f := newFixture(t, WithSeatHolds(holds, 2*time.Minute))

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsSeatConflict(err))
	assert.Zero(t, f.store.Calls(memrepo.OpCreatePending))
	holds.AssertExpectations(t)
}

func TestInitiatePayment_SeatHoldReleasedOnFailure(t *testing.T) {
	holds := new(MockSeatHolder)
	holds.On("AcquireSeatHold", mock.Anything, "Nairobi", "Mombasa", travelDate, 15, "b1", 2*time.Minute).Return(true, nil).Once()
	holds.On("ReleaseSeatHold", mock.Anything, "Nairobi", "Mombasa", travelDate, 15, "b1").Return(nil).Once()

	f := newFixture(t, WithSeatHolds(holds, 2*time.Minute))
	f.tokens.On("Token", mock.Anything).Return("tok", nil).Once()
	f.gateway.On("InitiatePush", mock.Anything, "tok", expectedPush).
		Return(nil, domain.TimeoutError{Op: "initiate push"}).Once()

	_, err := f.service.InitiatePayment(context.Background(), request("b1", 15))
	assert.True(t, domain.IsTimeout(err))
	holds.AssertExpectations(t)
}
