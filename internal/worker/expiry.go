package worker

import (
	"context"
	"time"

	"holidaysync/internal/redisclient"
	"holidaysync/internal/util"

	"go.uber.org/zap"
)

const (
	expiryLockKey   = "booking-expiry-sweep"
	expiryBatchSize = 100
)

// Expirer cancels PENDING bookings older than a cutoff
type Expirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Locker guards the sweep so only one instance runs it at a time
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*redisclient.Lock, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// ExpiryWorker periodically releases the seats of unpaid bookings
type ExpiryWorker struct {
	expirer  Expirer
	locker   Locker
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewExpiryWorker creates a worker that expires bookings left PENDING longer
// than ttl. locker may be nil on a single instance deployment.
func NewExpiryWorker(expirer Expirer, locker Locker, ttl, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{
		expirer:  expirer,
		locker:   locker,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start sweeps every interval until ctx is cancelled
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting expiry worker",
		zap.Duration("pending_ttl", w.ttl),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("Expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one expiry pass and returns how many bookings it cancelled
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	if w.locker != nil {
		lock, err := w.locker.AcquireLock(ctx, expiryLockKey, w.interval)
		if err != nil {
			return 0, err
		}
		if lock == nil {
			w.logger.Debug("Expiry sweep running elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.Background(), lock); err != nil {
				w.logger.Warn("Failed to release expiry lock", zap.Error(err))
			}
		}()
	}

	return w.expirer.ExpirePending(ctx, w.now().Add(-w.ttl), expiryBatchSize)
}
