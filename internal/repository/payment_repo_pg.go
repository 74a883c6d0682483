package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository interface {
	// CreateIntent records the write-ahead intent in status initiated. A booking that
	// already has an open payment yields domain.ConflictError.
	CreateIntent(ctx context.Context, payment *domain.Payment) error
	// MarkSubmitted moves an initiated payment to pending and stores the gateway ids.
	MarkSubmitted(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error)
	// MarkOrphaned moves an initiated payment to orphaned and stores the gateway ids.
	MarkOrphaned(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error)
	// Resolve moves an open payment to a terminal status. A payment that is already
	// terminal yields domain.ConflictError.
	Resolve(ctx context.Context, id string, status domain.PaymentStatus, receipt, resultDesc string) (*domain.Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error)
	// LatestForBooking returns the newest payment of the booking that has not failed.
	LatestForBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	// ListOpenBefore returns initiated, pending and orphaned payments last touched before deadline.
	ListOpenBefore(ctx context.Context, deadline time.Time) ([]domain.Payment, error)
}

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, booking_id, user_id, amount, phone_number, merchant_request_id, checkout_request_id, status, receipt_number, result_description, created_at, updated_at`

func (r *PGPaymentRepository) CreateIntent(ctx context.Context, payment *domain.Payment) error {
	payment.Status = domain.PaymentStatusInitiated
	err := r.db.QueryRow(ctx, `INSERT INTO payments (id, booking_id, user_id, amount, phone_number, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		payment.ID, payment.BookingID, payment.UserID, payment.Amount, payment.PhoneNumber, payment.Status).
		Scan(&payment.CreatedAt, &payment.UpdatedAt)
	return openPaymentConflict(err, payment.BookingID)
}

func (r *PGPaymentRepository) MarkSubmitted(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	return r.submit(ctx, domain.PaymentStatusPending, id, merchantRequestID, checkoutRequestID)
}

func (r *PGPaymentRepository) MarkOrphaned(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	return r.submit(ctx, domain.PaymentStatusOrphaned, id, merchantRequestID, checkoutRequestID)
}

func (r *PGPaymentRepository) submit(ctx context.Context, status domain.PaymentStatus, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `UPDATE payments
		SET status=$1, merchant_request_id=$2, checkout_request_id=$3, updated_at=now()
		WHERE id=$4 AND status=$5
		RETURNING `+paymentColumns,
		status, merchantRequestID, checkoutRequestID, id, domain.PaymentStatusInitiated))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ConflictError{Resource: "payment", Msg: "payment " + id + " is not awaiting submission"}
	}
	return p, err
}

func (r *PGPaymentRepository) Resolve(ctx context.Context, id string, status domain.PaymentStatus, receipt, resultDesc string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `UPDATE payments
		SET status=$1, receipt_number=$2, result_description=$3, updated_at=now()
		WHERE id=$4 AND status IN ($5, $6, $7)
		RETURNING `+paymentColumns,
		status, receipt, resultDesc, id, domain.PaymentStatusInitiated, domain.PaymentStatusPending, domain.PaymentStatusOrphaned))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ConflictError{Resource: "payment", Msg: "payment " + id + " is already resolved"}
	}
	return p, err
}

func (r *PGPaymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id=$1`, checkoutRequestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "payment", ID: checkoutRequestID}
	}
	return p, err
}

func (r *PGPaymentRepository) LatestForBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE booking_id=$1 AND status <> $2
		ORDER BY created_at DESC LIMIT 1`, bookingID, domain.PaymentStatusFailed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "payment for booking", ID: bookingID}
	}
	return p, err
}

func (r *PGPaymentRepository) ListOpenBefore(ctx context.Context, deadline time.Time) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status IN ($1, $2, $3) AND updated_at <= $4
		ORDER BY updated_at`, domain.PaymentStatusInitiated, domain.PaymentStatusPending, domain.PaymentStatusOrphaned, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var open []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		open = append(open, *p)
	}
	return open, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.Amount, &p.PhoneNumber, &p.MerchantRequestID, &p.CheckoutRequestID,
		&p.Status, &p.ReceiptNumber, &p.ResultDescription, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
