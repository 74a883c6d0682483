package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	// CreatePending inserts the booking in payment_pending, or revives the caller's own
	// cancelled booking with the same id. A booking that is still active yields
	// domain.ConflictError and a taken seat yields domain.SeatConflictError.
	CreatePending(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error)
	BookedSeats(ctx context.Context, routeFrom, routeTo string, date time.Time) ([]int, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, user_id, route_from, route_to, seat_number, travel_date, price, status, created_at, updated_at`

func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) error {
	booking.Status = domain.BookingStatusPaymentPending
	err := r.db.QueryRow(ctx, `INSERT INTO bookings (id, user_id, route_from, route_to, seat_number, travel_date, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			route_from = EXCLUDED.route_from,
			route_to = EXCLUDED.route_to,
			seat_number = EXCLUDED.seat_number,
			travel_date = EXCLUDED.travel_date,
			price = EXCLUDED.price,
			status = EXCLUDED.status,
			updated_at = now()
		WHERE bookings.user_id = EXCLUDED.user_id AND bookings.status = $9
		RETURNING created_at, updated_at`,
		booking.ID, booking.UserID, booking.RouteFrom, booking.RouteTo, booking.SeatNumber, booking.Date, booking.Price, booking.Status,
		domain.BookingStatusCancelled).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConflictError{Resource: "booking", Msg: "booking " + booking.ID + " is already active or belongs to another user"}
	}
	if err != nil {
		return seatConflict(err, booking)
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "booking", ID: id}
	}
	return b, err
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+bookingColumns, status, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, seatConflict(err, &domain.Booking{ID: id})
	}
	return b, nil
}

func (r *PGBookingRepository) BookedSeats(ctx context.Context, routeFrom, routeTo string, date time.Time) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT seat_number FROM bookings WHERE route_from=$1 AND route_to=$2 AND travel_date=$3 AND status <> $4`,
		routeFrom, routeTo, date, domain.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]int, 0)
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.RouteFrom, &b.RouteTo, &b.SeatNumber, &b.Date, &b.Price, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
