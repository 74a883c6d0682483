package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const (
	activeSeatConstraint  = "bookings_active_seat_key"
	openPaymentConstraint = "payments_open_booking_key"
	uniqueViolation       = "23505"
)

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// seatConflict maps a violation of the live-seat index to SeatConflictError.
func seatConflict(err error, b *domain.Booking) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeSeatConstraint {
		return domain.SeatConflictError{
			RouteFrom:  b.RouteFrom,
			RouteTo:    b.RouteTo,
			Date:       b.Date.Format(domain.DateLayout),
			SeatNumber: b.SeatNumber,
			Err:        err,
		}
	}
	return err
}

// openPaymentConflict maps a second open payment for one booking to ConflictError.
func openPaymentConflict(err error, bookingID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openPaymentConstraint {
		return domain.ConflictError{Resource: "payment", Msg: "a payment for booking " + bookingID + " is already in progress"}
	}
	return err
}
