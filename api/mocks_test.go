package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/service/booking"
	"github.com/Domenick1991/transkenya/internal/service/payment"
	"github.com/Domenick1991/transkenya/internal/service/seats"
	"github.com/stretchr/testify/mock"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) InitiatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.PaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentResult), args.Error(1)
}

func (m *MockPaymentUseCase) HandleCallback(ctx context.Context, cb payment.Callback) (*domain.Payment, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentUseCase) Reconcile(ctx context.Context, olderThan time.Duration) (*payment.ReconcileReport, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ReconcileReport), args.Error(1)
}

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) ListForUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Stats(ctx context.Context, userID string) (*booking.Stats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Stats), args.Error(1)
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	args := m.Called(ctx, userID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockSeatUseCase struct {
	mock.Mock
}

func (m *MockSeatUseCase) BookedSeats(ctx context.Context, route domain.Route, date time.Time) (domain.SeatSet, error) {
	args := m.Called(ctx, route, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.SeatSet), args.Error(1)
}

func (m *MockSeatUseCase) Availability(ctx context.Context, index int, date time.Time) (*seats.Availability, error) {
	args := m.Called(ctx, index, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seats.Availability), args.Error(1)
}
