package service

import (
	"context"
	"fmt"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gonum.org/v1/gonum/stat"
)

const (
	statsSampleSize  = 500
	statsExportLimit = 50
	statsExportEvery = 5 * time.Minute
)

// StatsService computes per-service delivery statistics from recent completed
// orders. Read path only; nothing here mutates state.
type StatsService struct {
	orderRepo   repository.OrderRepository
	catalogRepo repository.CatalogRepository
	metrics     *MetricsCollector
	logger      *logrus.Logger
}

func NewStatsService(
	orderRepo repository.OrderRepository,
	catalogRepo repository.CatalogRepository,
	metrics *MetricsCollector,
	logger *logrus.Logger,
) *StatsService {
	return &StatsService{
		orderRepo:   orderRepo,
		catalogRepo: catalogRepo,
		metrics:     metrics,
		logger:      logger,
	}
}

// ServiceStats summarizes the most recent completed orders for a service:
// how many, how long codes took to arrive, and what they cost.
func (s *StatsService) ServiceStats(ctx context.Context, serviceID primitive.ObjectID) (*models.ServiceStats, error) {
	orders, err := s.orderRepo.FindCompletedByService(ctx, serviceID, statsSampleSize)
	if err != nil {
		return nil, fmt.Errorf("load completed orders: %w", err)
	}

	stats := &models.ServiceStats{ServiceID: serviceID}
	if len(orders) == 0 {
		return stats, nil
	}

	durations := make([]float64, 0, len(orders))
	prices := make([]float64, 0, len(orders))
	for _, order := range orders {
		if order.EndTime == nil {
			continue
		}
		durations = append(durations, order.EndTime.Sub(order.StartTime).Seconds())
		prices = append(prices, order.Price)
	}

	stats.CompletedOrders = len(durations)
	if len(durations) == 0 {
		return stats, nil
	}

	stats.MeanDuration = stat.Mean(durations, nil)
	stats.MeanPrice = stat.Mean(prices, nil)
	if len(durations) > 1 {
		stats.StdDevDuration = stat.StdDev(durations, nil)
	}

	return stats, nil
}

// Run periodically publishes per-service stats as Prometheus gauges, most
// popular services first. Blocks until ctx is cancelled.
func (s *StatsService) Run(ctx context.Context) {
	s.logger.Infof("Stats exporter started, interval %s", statsExportEvery)

	s.export(ctx)

	ticker := time.NewTicker(statsExportEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stats exporter stopped")
			return
		case <-ticker.C:
			s.export(ctx)
		}
	}
}

func (s *StatsService) export(ctx context.Context) {
	services, err := s.catalogRepo.PopularServices(ctx, statsExportLimit)
	if err != nil {
		s.logger.Errorf("Stats export failed to list services: %v", err)
		return
	}

	for _, svc := range services {
		stats, err := s.ServiceStats(ctx, svc.ID)
		if err != nil {
			s.logger.Warnf("Stats export failed for service %s: %v", svc.ID.Hex(), err)
			continue
		}
		if stats.CompletedOrders == 0 {
			continue
		}
		s.metrics.SetServiceStats(svc.ID.Hex(), stats.MeanDuration, stats.MeanPrice)
	}
}
