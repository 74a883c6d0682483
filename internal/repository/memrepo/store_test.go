package memrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var travelDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newBooking(id, user string, seat int) *domain.Booking {
	return &domain.Booking{ID: id, UserID: user, RouteFrom: "Nairobi", RouteTo: "Mombasa", SeatNumber: seat, Date: travelDate, Price: 2000}
}

func TestCreatePending_SeatConstraint(t *testing.T) {
	store := New()
	repo := store.BookingRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreatePending(ctx, newBooking("b1", "u1", 15)))
	assert.True(t, domain.IsSeatConflict(repo.CreatePending(ctx, newBooking("b2", "u2", 15))))

	_, err := repo.UpdateStatus(ctx, "b1", domain.BookingStatusCancelled)
	require.NoError(t, err)
	require.NoError(t, repo.CreatePending(ctx, newBooking("b2", "u2", 15)))
}

func TestCreatePending_RevivesOwnBookingOnly(t *testing.T) {
	store := New()
	repo := store.BookingRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreatePending(ctx, newBooking("b1", "u1", 15)))
	// Still payment_pending: a concurrent request for b1 cannot take it over.
	assert.True(t, domain.IsConflict(repo.CreatePending(ctx, newBooking("b1", "u1", 15))))

	_, err := repo.UpdateStatus(ctx, "b1", domain.BookingStatusCancelled)
	require.NoError(t, err)

	assert.True(t, domain.IsConflict(repo.CreatePending(ctx, newBooking("b1", "u2", 15))))
	require.NoError(t, repo.CreatePending(ctx, newBooking("b1", "u1", 16)))

	b, ok := store.Booking("b1")
	require.True(t, ok)
	assert.Equal(t, domain.BookingStatusPaymentPending, b.Status)
	assert.Equal(t, 16, b.SeatNumber)

	_, err = repo.UpdateStatus(ctx, "b1", domain.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.True(t, domain.IsConflict(repo.CreatePending(ctx, newBooking("b1", "u1", 16))))
}

func TestPaymentLifecycle(t *testing.T) {
	store := New()
	repo := store.PaymentRepo()
	ctx := context.Background()

	p := &domain.Payment{ID: "p1", BookingID: "b1", UserID: "u1", Amount: 2000, PhoneNumber: "254712345678"}
	require.NoError(t, repo.CreateIntent(ctx, p))
	assert.Equal(t, domain.PaymentStatusInitiated, p.Status)

	latest, err := repo.LatestForBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "p1", latest.ID)

	submitted, err := repo.MarkSubmitted(ctx, "p1", "m1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, submitted.Status)

	_, err = repo.MarkSubmitted(ctx, "p1", "m1", "c1")
	assert.True(t, domain.IsConflict(err))

	found, err := repo.GetByCheckoutRequestID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)

	resolved, err := repo.Resolve(ctx, "p1", domain.PaymentStatusFailed, "", "Request cancelled by user")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, resolved.Status)

	_, err = repo.Resolve(ctx, "p1", domain.PaymentStatusConfirmed, "R1", "")
	assert.True(t, domain.IsConflict(err))

	_, err = repo.LatestForBooking(ctx, "b1")
	assert.True(t, domain.IsNotFound(err))
}

func TestCreateIntent_OneOpenPaymentPerBooking(t *testing.T) {
	store := New()
	repo := store.PaymentRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "p1", BookingID: "b1"}))
	assert.True(t, domain.IsConflict(repo.CreateIntent(ctx, &domain.Payment{ID: "p2", BookingID: "b1"})))
	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "p3", BookingID: "b2"}))

	_, err := repo.MarkOrphaned(ctx, "p1", "m1", "c1")
	require.NoError(t, err)
	assert.True(t, domain.IsConflict(repo.CreateIntent(ctx, &domain.Payment{ID: "p2", BookingID: "b1"})))

	_, err = repo.Resolve(ctx, "p1", domain.PaymentStatusFailed, "", "cancelled")
	require.NoError(t, err)
	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "p2", BookingID: "b1"}))
	assert.Len(t, store.Payments(), 3)
}

func TestMarkOrphaned(t *testing.T) {
	store := New()
	repo := store.PaymentRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "p1", BookingID: "b1"}))
	orphaned, err := repo.MarkOrphaned(ctx, "p1", "m1", "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusOrphaned, orphaned.Status)
	assert.Equal(t, "c1", orphaned.CheckoutRequestID)

	_, err = repo.MarkSubmitted(ctx, "p1", "m1", "c1")
	assert.True(t, domain.IsConflict(err))

	found, err := repo.GetByCheckoutRequestID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)

	open, err := repo.ListOpenBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, open, 1)

	confirmed, err := repo.Resolve(ctx, "p1", domain.PaymentStatusConfirmed, "R1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusConfirmed, confirmed.Status)
}

func TestListOpenBefore(t *testing.T) {
	store := New()
	now := time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now.Add(-time.Hour) })
	repo := store.PaymentRepo()
	ctx := context.Background()

	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "old", BookingID: "b1"}))
	store.SetClock(func() time.Time { return now })
	require.NoError(t, repo.CreateIntent(ctx, &domain.Payment{ID: "new", BookingID: "b2"}))

	open, err := repo.ListOpenBefore(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "old", open[0].ID)
}

func TestFaultInjection(t *testing.T) {
	store := New()
	boom := errors.New("boom")
	store.Fail(OpBookedSeats, boom)

	_, err := store.BookingRepo().BookedSeats(context.Background(), "Nairobi", "Mombasa", travelDate)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.Calls(OpBookedSeats))

	store.Fail(OpBookedSeats, nil)
	_, err = store.BookingRepo().BookedSeats(context.Background(), "Nairobi", "Mombasa", travelDate)
	assert.NoError(t, err)
}
