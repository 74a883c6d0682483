package booking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/kafka"
	"github.com/Domenick1991/transkenya/internal/repository"
)

type BookingUseCase interface {
	ListForUser(ctx context.Context, userID string) ([]domain.Booking, error)
	Stats(ctx context.Context, userID string) (*Stats, error)
	CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
}

type Cache interface {
	ReleaseSeatHold(ctx context.Context, routeFrom, routeTo string, date time.Time, seat int, owner string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Stats is the dashboard summary of a user's bookings.
type Stats struct {
	TotalBookings   int   `json:"totalBookings"`
	TotalRevenue    int64 `json:"totalRevenue"`
	ActiveRoutes    int   `json:"activeRoutes"`
	MonthlyBookings int   `json:"monthlyBookings"`
}

type BookingService struct {
	bookings     repository.BookingRepository
	cache        Cache
	producer     Producer
	topic        string
	activeRoutes int
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

type BookingServiceOption func(*BookingService)

func WithCache(cache Cache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

func WithEvents(producer Producer, topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.topic = topic
	}
}

func WithStoreTimeout(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

// NewBookingService builds the service; activeRoutes is the size of the route catalog.
func NewBookingService(bookings repository.BookingRepository, activeRoutes int, opts ...BookingServiceOption) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		activeRoutes: activeRoutes,
		storeTimeout: 5 * time.Second,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ListForUser returns the user's bookings, newest first.
func (s *BookingService) ListForUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ValidationError{Field: "userId", Msg: "is required"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.StoreError("list bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) Stats(ctx context.Context, userID string) (*Stats, error) {
	bookings, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stats := &Stats{TotalBookings: len(bookings), ActiveRoutes: s.activeRoutes}
	for _, b := range bookings {
		if b.Active() {
			stats.TotalRevenue += b.Price
		}
		if b.CreatedAt.Year() == now.Year() && b.CreatedAt.Month() == now.Month() {
			stats.MonthlyBookings++
		}
	}
	return stats, nil
}

// CancelBooking cancels the caller's own booking. Another user's booking is reported as
// missing. Cancelling twice returns the cancelled booking.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, domain.StoreError("get booking", err)
	}
	if current.UserID != userID {
		return nil, domain.NotFoundError{Resource: "booking", ID: bookingID}
	}
	if current.Status == domain.BookingStatusCancelled {
		return current, nil
	}

	updated, err := s.bookings.UpdateStatus(ctx, bookingID, domain.BookingStatusCancelled)
	if err != nil {
		return nil, domain.StoreError("cancel booking", err)
	}
	if s.cache != nil {
		if err := s.cache.ReleaseSeatHold(ctx, updated.RouteFrom, updated.RouteTo, updated.Date, updated.SeatNumber, updated.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to release seat hold", slog.String("booking_id", updated.ID), slog.Any("error", err))
		}
	}
	if current.Status == domain.BookingStatusConfirmed {
		s.logger.InfoContext(ctx, "paid booking cancelled; refund may be due",
			slog.String("booking_id", updated.ID),
			slog.Int64("price", updated.Price))
	}
	s.publish(ctx, updated)
	return updated, nil
}

func (s *BookingService) publish(ctx context.Context, booking *domain.Booking) {
	if s.producer == nil || s.topic == "" {
		return
	}
	event := kafka.NewPaymentEvent(kafka.EventBookingCancelled, nil, booking)
	if err := s.producer.Publish(context.WithoutCancel(ctx), s.topic, booking.ID, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish booking_cancelled", slog.String("booking_id", booking.ID), slog.Any("error", err))
	}
}

var _ BookingUseCase = (*BookingService)(nil)
