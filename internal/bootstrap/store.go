package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/transkenya/config"
	"github.com/Domenick1991/transkenya/internal/repository"
	"github.com/Domenick1991/transkenya/internal/repository/memrepo"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories with whatever must be closed on exit.
type Store struct {
	Bookings repository.BookingRepository
	Payments repository.PaymentRepository
	Ping     func(ctx context.Context) error
	Close    func()
}

// OpenStore connects to PostgreSQL and applies the schema. Without database settings it
// falls back to the in-memory store, which loses everything on restart.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if !cfg.Configured() {
		logger.Warn("no database configured, using the in-memory store")
		mem := memrepo.New()
		return &Store{
			Bookings: mem.BookingRepo(),
			Payments: mem.PaymentRepo(),
			Ping:     func(context.Context) error { return nil },
			Close:    func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{
		Bookings: repository.NewBookingRepository(pool),
		Payments: repository.NewPaymentRepository(pool),
		Ping:     pool.Ping,
		Close:    pool.Close,
	}, nil
}
