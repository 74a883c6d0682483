// Package memrepo is an in-memory record store with the same constraints as the
// PostgreSQL schema. It backs tests and local runs without a database.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/repository"
)

// Operation names accepted by Store.Fail.
const (
	OpCreatePending    = "CreatePending"
	OpGetBooking       = "GetByID"
	OpUpdateBooking    = "UpdateStatus"
	OpBookedSeats      = "BookedSeats"
	OpListByUser       = "ListByUser"
	OpCreateIntent     = "CreateIntent"
	OpMarkSubmitted    = "MarkSubmitted"
	OpMarkOrphaned     = "MarkOrphaned"
	OpResolve          = "Resolve"
	OpGetByCheckout    = "GetByCheckoutRequestID"
	OpLatestForBooking = "LatestForBooking"
	OpListOpenBefore   = "ListOpenBefore"
)

type Store struct {
	mu       sync.Mutex
	bookings map[string]domain.Booking
	payments map[string]domain.Payment
	order    []string
	faults   map[string]error
	calls    map[string]int
	now      func() time.Time
}

func New() *Store {
	return &Store{
		bookings: make(map[string]domain.Booking),
		payments: make(map[string]domain.Payment),
		faults:   make(map[string]error),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// SetClock replaces the clock stamping created/updated times.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Calls returns how often op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Payments returns a snapshot of all payments in insertion order.
func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Payment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.payments[id])
	}
	return out
}

// PutBooking stores b as-is, bypassing constraints. Used to seed fixtures.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// PutPayment stores p as-is. Used to seed fixtures.
func (s *Store) PutPayment(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.payments[p.ID] = p
}

// Booking returns a snapshot of the booking with id.
func (s *Store) Booking(id string) (domain.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *Store) BookingRepo() repository.BookingRepository { return bookingRepo{s} }

func (s *Store) PaymentRepo() repository.PaymentRepository { return paymentRepo{s} }

// enter locks the store and returns the injected fault for op, if any.
func (s *Store) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.faults[op]
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) CreatePending(ctx context.Context, b *domain.Booking) error {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCreatePending); err != nil {
		return err
	}

	existing, exists := s.bookings[b.ID]
	if exists && (existing.UserID != b.UserID || existing.Status != domain.BookingStatusCancelled) {
		return domain.ConflictError{Resource: "booking", Msg: "booking " + b.ID + " is already active or belongs to another user"}
	}
	for id, other := range s.bookings {
		if id == b.ID || !other.Active() {
			continue
		}
		if other.RouteFrom == b.RouteFrom && other.RouteTo == b.RouteTo && other.Date.Equal(b.Date) && other.SeatNumber == b.SeatNumber {
			return domain.SeatConflictError{
				RouteFrom:  b.RouteFrom,
				RouteTo:    b.RouteTo,
				Date:       b.Date.Format(domain.DateLayout),
				SeatNumber: b.SeatNumber,
			}
		}
	}

	now := s.now()
	b.Status = domain.BookingStatusPaymentPending
	b.CreatedAt = now
	if exists {
		b.CreatedAt = existing.CreatedAt
	}
	b.UpdatedAt = now
	s.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetBooking); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.NotFoundError{Resource: "booking", ID: id}
	}
	return &b, nil
}

func (r bookingRepo) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpUpdateBooking); err != nil {
		return nil, err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.NotFoundError{Resource: "booking", ID: id}
	}
	b.Status = status
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	return &b, nil
}

// BookedSeats returns seats in map iteration order, like an unordered query.
func (r bookingRepo) BookedSeats(ctx context.Context, routeFrom, routeTo string, date time.Time) ([]int, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpBookedSeats); err != nil {
		return nil, err
	}
	seats := make([]int, 0)
	for _, b := range s.bookings {
		if b.Active() && b.RouteFrom == routeFrom && b.RouteTo == routeTo && b.Date.Equal(date) {
			seats = append(seats, b.SeatNumber)
		}
	}
	return seats, nil
}

func (r bookingRepo) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListByUser); err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) CreateIntent(ctx context.Context, p *domain.Payment) error {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCreateIntent); err != nil {
		return err
	}
	for _, other := range s.payments {
		if other.BookingID == p.BookingID && !other.Status.Terminal() {
			return domain.ConflictError{Resource: "payment", Msg: "a payment for booking " + p.BookingID + " is already in progress"}
		}
	}
	now := s.now()
	p.Status = domain.PaymentStatusInitiated
	p.CreatedAt = now
	p.UpdatedAt = now
	s.payments[p.ID] = *p
	s.order = append(s.order, p.ID)
	return nil
}

func (r paymentRepo) MarkSubmitted(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	return r.submit(ctx, OpMarkSubmitted, domain.PaymentStatusPending, id, merchantRequestID, checkoutRequestID)
}

func (r paymentRepo) MarkOrphaned(ctx context.Context, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	return r.submit(ctx, OpMarkOrphaned, domain.PaymentStatusOrphaned, id, merchantRequestID, checkoutRequestID)
}

func (r paymentRepo) submit(ctx context.Context, op string, status domain.PaymentStatus, id, merchantRequestID, checkoutRequestID string) (*domain.Payment, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, op); err != nil {
		return nil, err
	}
	p, ok := s.payments[id]
	if !ok || p.Status != domain.PaymentStatusInitiated {
		return nil, domain.ConflictError{Resource: "payment", Msg: "payment " + id + " is not awaiting submission"}
	}
	p.Status = status
	p.MerchantRequestID = merchantRequestID
	p.CheckoutRequestID = checkoutRequestID
	p.UpdatedAt = s.now()
	s.payments[id] = p
	return &p, nil
}

func (r paymentRepo) Resolve(ctx context.Context, id string, status domain.PaymentStatus, receipt, resultDesc string) (*domain.Payment, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResolve); err != nil {
		return nil, err
	}
	p, ok := s.payments[id]
	if !ok || p.Status.Terminal() {
		return nil, domain.ConflictError{Resource: "payment", Msg: "payment " + id + " is already resolved"}
	}
	p.Status = status
	p.ReceiptNumber = receipt
	p.ResultDescription = resultDesc
	p.UpdatedAt = s.now()
	s.payments[id] = p
	return &p, nil
}

func (r paymentRepo) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetByCheckout); err != nil {
		return nil, err
	}
	for _, p := range s.payments {
		if checkoutRequestID != "" && p.CheckoutRequestID == checkoutRequestID {
			return &p, nil
		}
	}
	return nil, domain.NotFoundError{Resource: "payment", ID: checkoutRequestID}
}

func (r paymentRepo) LatestForBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpLatestForBooking); err != nil {
		return nil, err
	}
	for i := len(s.order) - 1; i >= 0; i-- {
		p := s.payments[s.order[i]]
		if p.BookingID == bookingID && p.Status != domain.PaymentStatusFailed {
			return &p, nil
		}
	}
	return nil, domain.NotFoundError{Resource: "payment for booking", ID: bookingID}
}

func (r paymentRepo) ListOpenBefore(ctx context.Context, deadline time.Time) ([]domain.Payment, error) {
	s := r.s
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListOpenBefore); err != nil {
		return nil, err
	}
	var open []domain.Payment
	for _, id := range s.order {
		p := s.payments[id]
		if !p.Status.Terminal() && !p.UpdatedAt.After(deadline) {
			open = append(open, p)
		}
	}
	return open, nil
}

var (
	_ repository.BookingRepository = bookingRepo{}
	_ repository.PaymentRepository = paymentRepo{}
)
