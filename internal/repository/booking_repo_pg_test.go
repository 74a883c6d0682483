package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool)
	assert.NotNil(t, repo)
}

func TestNewPaymentRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewPaymentRepository(pool)
	assert.NotNil(t, repo)
}

func TestSeatConflict(t *testing.T) {
	booking := &domain.Booking{RouteFrom: "Nairobi", RouteTo: "Mombasa", SeatNumber: 15, Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}

	err := seatConflict(&pgconn.PgError{Code: uniqueViolation, ConstraintName: activeSeatConstraint}, booking)
	var conflict domain.SeatConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, "2025-06-01", conflict.Date)
	assert.Equal(t, 15, conflict.SeatNumber)

	other := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "bookings_pkey"}
	assert.False(t, domain.IsSeatConflict(seatConflict(other, booking)))

	plain := errors.New("boom")
	assert.Equal(t, plain, seatConflict(plain, booking))
}

func TestOpenPaymentConflict(t *testing.T) {
	err := openPaymentConflict(&pgconn.PgError{Code: uniqueViolation, ConstraintName: openPaymentConstraint}, "b1")
	assert.True(t, domain.IsConflict(err))
	assert.Contains(t, err.Error(), "b1")

	seat := &pgconn.PgError{Code: uniqueViolation, ConstraintName: activeSeatConstraint}
	assert.False(t, domain.IsConflict(openPaymentConflict(seat, "b1")))
	assert.NoError(t, openPaymentConflict(nil, "b1"))
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	assert.Contains(t, schema, activeSeatConstraint)
	assert.Contains(t, schema, "WHERE status <> 'cancelled'")
	assert.Contains(t, schema, openPaymentConstraint)
	assert.Contains(t, schema, "WHERE status IN ('initiated', 'pending', 'orphaned')")
}
