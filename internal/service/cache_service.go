package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"numpool/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CacheService fronts hot reads with Redis. Everything here is best effort;
// callers fall back to Mongo on a miss or a Redis error.
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCacheService(client *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{
		client: client,
		logger: logger,
	}
}

func (s *CacheService) SetOrder(ctx context.Context, order *models.Order, ttl time.Duration) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("order:%s", order.ID.Hex())
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	key := fmt.Sprintf("order:%s", id.Hex())
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal([]byte(data), &order); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *CacheService) DeleteOrder(ctx context.Context, id primitive.ObjectID) error {
	key := fmt.Sprintf("order:%s", id.Hex())
	return s.client.Del(ctx, key).Err()
}

func (s *CacheService) SetBalance(ctx context.Context, userID primitive.ObjectID, balance float64, ttl time.Duration) error {
	key := fmt.Sprintf("balance:%s", userID.Hex())
	return s.client.Set(ctx, key, strconv.FormatFloat(balance, 'f', 2, 64), ttl).Err()
}

func (s *CacheService) GetBalance(ctx context.Context, userID primitive.ObjectID) (float64, bool, error) {
	key := fmt.Sprintf("balance:%s", userID.Hex())
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	balance, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, err
	}

	return balance, true, nil
}

// InvalidateBalance drops the cached balance after any ledger write so the
// next read recomputes from Mongo.
func (s *CacheService) InvalidateBalance(ctx context.Context, userID primitive.ObjectID) {
	key := fmt.Sprintf("balance:%s", userID.Hex())
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warnf("Failed to invalidate balance cache for %s: %v", userID.Hex(), err)
	}
}

func (s *CacheService) SetPricing(ctx context.Context, entry *models.PricingEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("pricing:%s:%s", entry.CountryID.Hex(), entry.ServiceID.Hex())
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) GetPricing(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error) {
	key := fmt.Sprintf("pricing:%s:%s", countryID.Hex(), serviceID.Hex())
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry models.PricingEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

func (s *CacheService) DeletePricing(ctx context.Context, countryID, serviceID primitive.ObjectID) error {
	key := fmt.Sprintf("pricing:%s:%s", countryID.Hex(), serviceID.Hex())
	return s.client.Del(ctx, key).Err()
}
