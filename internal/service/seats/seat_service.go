package seats

import (
	"context"
	"sort"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/repository"
)

const defaultStoreTimeout = 5 * time.Second

type SeatUseCase interface {
	BookedSeats(ctx context.Context, route domain.Route, date time.Time) (domain.SeatSet, error)
	Availability(ctx context.Context, index int, date time.Time) (*Availability, error)
}

type RouteLookup interface {
	Get(index int) (*domain.IndexedRoute, error)
}

// Availability is the seat map of one route on one date.
type Availability struct {
	Route     domain.IndexedRoute `json:"route"`
	Date      string              `json:"date"`
	Booked    []int               `json:"bookedSeats"`
	Available int                 `json:"availableSeats"`
}

type SeatService struct {
	bookings repository.BookingRepository
	routes   RouteLookup
	timeout  time.Duration
}

func NewSeatService(bookings repository.BookingRepository, routes RouteLookup, timeout time.Duration) *SeatService {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &SeatService{bookings: bookings, routes: routes, timeout: timeout}
}

// BookedSeats returns the seats held by active bookings. It only reads.
func (s *SeatService) BookedSeats(ctx context.Context, route domain.Route, date time.Time) (domain.SeatSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seats, err := s.bookings.BookedSeats(ctx, route.Origin, route.Destination, date)
	if err != nil {
		return nil, domain.StoreError("booked seats", err)
	}
	return domain.NewSeatSet(seats...), nil
}

func (s *SeatService) Availability(ctx context.Context, index int, date time.Time) (*Availability, error) {
	route, err := s.routes.Get(index)
	if err != nil {
		return nil, err
	}
	booked, err := s.BookedSeats(ctx, route.Route, date)
	if err != nil {
		return nil, err
	}

	seats := make([]int, 0, len(booked))
	for seat := range booked {
		seats = append(seats, seat)
	}
	sort.Ints(seats)

	total := route.TotalSeats
	if total <= 0 {
		total = domain.DefaultTotalSeats
	}
	available := total - len(seats)
	if available < 0 {
		available = 0
	}
	return &Availability{
		Route:     *route,
		Date:      date.Format(domain.DateLayout),
		Booked:    seats,
		Available: available,
	}, nil
}

var _ SeatUseCase = (*SeatService)(nil)
