package domain

import (
	"fmt"
	"time"
)

// BookingSession is a user's in-progress selection. It lives only for the duration of a
// request and is never persisted.
type BookingSession struct {
	Route       Route
	Date        time.Time
	SeatNumber  int
	PhoneNumber string
}

func NewBookingSession(route Route, date time.Time, seat int, phone string) (*BookingSession, error) {
	total := route.TotalSeats
	if total <= 0 {
		total = DefaultTotalSeats
	}
	if seat < 1 || seat > total {
		return nil, ValidationError{Field: "seatNumber", Msg: fmt.Sprintf("must be between 1 and %d", total)}
	}
	if date.IsZero() {
		return nil, ValidationError{Field: "date", Msg: "is required"}
	}
	return &BookingSession{Route: route, Date: date, SeatNumber: seat, PhoneNumber: phone}, nil
}

func (s BookingSession) Price() int64 {
	return s.Route.Price
}

// Booking materializes the session as a booking awaiting payment.
func (s BookingSession) Booking(id, userID string) *Booking {
	return &Booking{
		ID:         id,
		UserID:     userID,
		RouteFrom:  s.Route.Origin,
		RouteTo:    s.Route.Destination,
		SeatNumber: s.SeatNumber,
		Date:       s.Date,
		Price:      s.Price(),
		Status:     BookingStatusPaymentPending,
	}
}
