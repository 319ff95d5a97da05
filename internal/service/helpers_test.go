package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	testMetricsOnce sync.Once
	testMetrics     *MetricsCollector
)

// newTestMetrics returns a process-wide collector. Prometheus registration is
// global, so constructing one per test would panic on duplicates.
func newTestMetrics() *MetricsCollector {
	testMetricsOnce.Do(func() {
		testMetrics = NewMetricsCollector()
	})
	return testMetrics
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubScheduler records scheduled polls instead of publishing them.
type stubScheduler struct {
	mu    sync.Mutex
	polls []codePollJob
}

func (s *stubScheduler) SchedulePoll(_ context.Context, orderID primitive.ObjectID, leaseID string, attempt int, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, codePollJob{OrderID: orderID, LeaseID: leaseID, Attempt: attempt})
	return nil
}

func (s *stubScheduler) scheduled() []codePollJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]codePollJob(nil), s.polls...)
}

// newOfflineCache returns a CacheService whose Redis is unreachable. Every
// lookup errors out fast, which exercises the Mongo fallback path the cache is
// documented to have.
func newOfflineCache() *CacheService {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
	return NewCacheService(client, newTestLogger())
}
