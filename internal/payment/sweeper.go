package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"
)

const TimeoutCancelReason = "Payment timed out"

// Canceller is the part of the manager the sweeper drives.
type Canceller interface {
	PaymentSetCancelledStatus(ctx context.Context, paymentID int64, reason string) (*Payment, error)
}

// Sweeper cancels active payments whose cancel deadline has passed.
type Sweeper struct {
	finder    OverdueFinder
	canceller Canceller
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(finder OverdueFinder, canceller Canceller, interval time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		finder:    finder,
		canceller: canceller,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce cancels one batch of overdue payments and returns how many were cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.finder.ListOverduePayments(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		_, err := s.canceller.PaymentSetCancelledStatus(ctx, id, TimeoutCancelReason)
		switch {
		case err == nil:
			cancelled++
		case stderrors.Is(err, ErrNotActive), stderrors.Is(err, ErrConcurrentUpdate):
			s.logger.Debug("overdue payment already settled", "payment_id", id)
		default:
			s.logger.Error("failed to cancel overdue payment", "error", err, "payment_id", id)
		}
	}
	if cancelled > 0 {
		s.logger.Info("cancelled overdue payments", "count", cancelled)
	}
	return cancelled, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("payment sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("payment sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
