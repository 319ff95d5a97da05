package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sweeper is the background reaper. Each tick runs three independent phases:
// expired leases go back to the pool and their orders fail, stale pending
// orders are unwound, and abandoned pending charges are expired. A phase
// failing never stops the others; whatever was missed is retried next tick.
type Sweeper struct {
	pool    *PoolService
	orders  *OrderService
	ledger  *LedgerService
	metrics *MetricsCollector
	logger  *logrus.Logger

	interval   time.Duration
	pendingTTL time.Duration
	chargesTTL time.Duration
}

func NewSweeper(
	pool *PoolService,
	orders *OrderService,
	ledger *LedgerService,
	metrics *MetricsCollector,
	logger *logrus.Logger,
	interval, pendingTTL, chargesTTL time.Duration,
) *Sweeper {
	return &Sweeper{
		pool:       pool,
		orders:     orders,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		pendingTTL: pendingTTL,
		chargesTTL: chargesTTL,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick. One sweep runs
// immediately at startup so a restart does not wait a full interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Infof("Sweeper started, interval %s", s.interval)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs all three phases once.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	// Orders are failed while their numbers are still held, so a number
	// cannot be re-claimed and get its fresh order swept by mistake. Failing
	// an order releases its number; ReleaseExpired frees the rest.
	expired, err := s.pool.ExpiredLeases(ctx, now)
	if err != nil {
		s.logger.Errorf("Sweep lease phase failed: %v", err)
	} else if len(expired) > 0 {
		ids := make([]primitive.ObjectID, 0, len(expired))
		for _, phone := range expired {
			ids = append(ids, phone.ID)
		}

		failed, err := s.orders.FailByPhoneIDs(ctx, ids, "lease expired")
		if err != nil {
			s.logger.Errorf("Sweep order-fail phase failed: %v", err)
		} else if failed > 0 {
			s.metrics.IncrementSweeperFailedOrders(failed)
		}

		s.pool.ReleaseExpired(ctx, expired)
	}

	expiredOrders, err := s.orders.ExpirePending(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		s.logger.Errorf("Sweep pending-order phase failed: %v", err)
	} else if expiredOrders > 0 {
		s.metrics.IncrementSweeperFailedOrders(expiredOrders)
	}

	if _, err := s.ledger.ExpireStalePending(ctx, now.Add(-s.chargesTTL)); err != nil {
		s.logger.Errorf("Sweep pending-charge phase failed: %v", err)
	}
}
