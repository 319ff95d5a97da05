package service

import (
	"context"
	"testing"
	"time"

	"numpool/internal/models"
	"numpool/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func completedOrder(serviceID primitive.ObjectID, duration time.Duration, price float64) *models.Order {
	start := time.Now().Add(-time.Hour)
	end := start.Add(duration)
	return &models.Order{
		ID:        primitive.NewObjectID(),
		ServiceID: serviceID,
		Status:    models.OrderStatusCompleted,
		Price:     price,
		StartTime: start,
		EndTime:   &end,
	}
}

func TestServiceStats_EmptySample(t *testing.T) {
	orderRepo := new(testutil.MockOrderRepository)
	catalogRepo := new(testutil.MockCatalogRepository)
	serviceID := primitive.NewObjectID()

	orderRepo.On("FindCompletedByService", mock.Anything, serviceID, int64(statsSampleSize)).
		Return([]*models.Order{}, nil)

	svc := NewStatsService(orderRepo, catalogRepo, newTestMetrics(), newTestLogger())
	stats, err := svc.ServiceStats(context.Background(), serviceID)
	require.NoError(t, err)
	assert.Zero(t, stats.CompletedOrders)
	assert.Zero(t, stats.MeanDuration)
}

func TestServiceStats_ComputesMeans(t *testing.T) {
	orderRepo := new(testutil.MockOrderRepository)
	catalogRepo := new(testutil.MockCatalogRepository)
	serviceID := primitive.NewObjectID()

	orders := []*models.Order{
		completedOrder(serviceID, 30*time.Second, 0.10),
		completedOrder(serviceID, 60*time.Second, 0.20),
		completedOrder(serviceID, 90*time.Second, 0.30),
	}
	orderRepo.On("FindCompletedByService", mock.Anything, serviceID, int64(statsSampleSize)).
		Return(orders, nil)

	svc := NewStatsService(orderRepo, catalogRepo, newTestMetrics(), newTestLogger())
	stats, err := svc.ServiceStats(context.Background(), serviceID)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.CompletedOrders)
	assert.InDelta(t, 60.0, stats.MeanDuration, 0.001)
	assert.InDelta(t, 0.20, stats.MeanPrice, 0.001)
	assert.InDelta(t, 30.0, stats.StdDevDuration, 0.001)
}

func TestServiceStats_SkipsOrdersWithoutEndTime(t *testing.T) {
	orderRepo := new(testutil.MockOrderRepository)
	catalogRepo := new(testutil.MockCatalogRepository)
	serviceID := primitive.NewObjectID()

	dangling := completedOrder(serviceID, time.Minute, 0.10)
	dangling.EndTime = nil
	orders := []*models.Order{
		dangling,
		completedOrder(serviceID, 40*time.Second, 0.20),
	}
	orderRepo.On("FindCompletedByService", mock.Anything, serviceID, int64(statsSampleSize)).
		Return(orders, nil)

	svc := NewStatsService(orderRepo, catalogRepo, newTestMetrics(), newTestLogger())
	stats, err := svc.ServiceStats(context.Background(), serviceID)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.CompletedOrders)
	assert.InDelta(t, 40.0, stats.MeanDuration, 0.001)
}
