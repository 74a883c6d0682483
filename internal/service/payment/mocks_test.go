package payment

import (
	"context"
	"time"

	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/stretchr/testify/mock"
)

type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePush(ctx context.Context, token string, req mpesa.PushRequest) (*mpesa.PushResponse, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.PushResponse), args.Error(1)
}

func (m *MockGateway) QueryPush(ctx context.Context, token, checkoutRequestID string) (*mpesa.PushStatus, error) {
	args := m.Called(ctx, token, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.PushStatus), args.Error(1)
}

type MockSeatHolder struct {
	mock.Mock
}

func (m *MockSeatHolder) AcquireSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, routeFrom, routeTo, date, seat, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockSeatHolder) ReleaseSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string) error {
	args := m.Called(ctx, routeFrom, routeTo, date, seat, owner)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// events returns the published events in order.
func (m *MockProducer) events() []kafka.PaymentEvent {
	var out []kafka.PaymentEvent
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			out = append(out, call.Arguments.Get(3).(kafka.PaymentEvent))
		}
	}
	return out
}

func (m *MockProducer) eventTypes() []string {
	var out []string
	for _, e := range m.events() {
		out = append(out, e.Type)
	}
	return out
}
