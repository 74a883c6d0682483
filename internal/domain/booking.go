package domain

import "time"

type BookingStatus string

const (
	BookingStatusPaymentPending BookingStatus = "payment_pending"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

// DateLayout is the wire format of travel dates.
const DateLayout = "2006-01-02"

type Booking struct {
	ID         string
	UserID     string
	RouteFrom  string
	RouteTo    string
	SeatNumber int
	Date       time.Time
	Price      int64
	Status     BookingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Active reports whether the booking still occupies its seat.
func (b Booking) Active() bool {
	return b.Status != BookingStatusCancelled
}

// ParseDate parses a travel date and normalizes it to midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ValidationError{Field: "date", Msg: "must be formatted as YYYY-MM-DD", Err: err}
	}
	return d.UTC(), nil
}

// SeatSet is the set of seat numbers taken on a route and date.
type SeatSet map[int]struct{}

func NewSeatSet(seats ...int) SeatSet {
	set := make(SeatSet, len(seats))
	for _, s := range seats {
		set[s] = struct{}{}
	}
	return set
}

func (s SeatSet) Has(seat int) bool {
	_, ok := s[seat]
	return ok
}
