package repository

import (
	"context"
	"fmt"
	"time"

	"numpool/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PricingRepository owns the pricing collection, one entry per
// country/service pair.
type PricingRepository interface {
	Create(ctx context.Context, entry *models.PricingEntry) error
	FindByPair(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error)
	FindByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.PricingEntry, error)
	FindByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.PricingEntry, error)
	UpdateCurrentPrice(ctx context.Context, countryID, serviceID primitive.ObjectID, price float64) (bool, error)
	ReplaceDiscounts(ctx context.Context, countryID, serviceID primitive.ObjectID, tiers []models.BulkDiscount) (bool, error)
	SyncBasePrice(ctx context.Context, serviceID primitive.ObjectID, newBase float64) (int64, error)
	CreateIndexes(ctx context.Context) error
}

type pricingRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewPricingRepository(db *mongo.Database, logger *logrus.Logger) PricingRepository {
	return &pricingRepository{
		collection: db.Collection("pricing"),
		logger:     logger,
	}
}

func (r *pricingRepository) Create(ctx context.Context, entry *models.PricingEntry) error {
	entry.LastUpdated = time.Now()
	if entry.BulkDiscounts == nil {
		entry.BulkDiscounts = []models.BulkDiscount{}
	}

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to insert pricing entry: %w", err)
	}

	entry.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *pricingRepository) FindByPair(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error) {
	filter := bson.M{
		"country_id": countryID,
		"service_id": serviceID,
	}

	var entry models.PricingEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pricing entry: %w", err)
	}

	return &entry, nil
}

func (r *pricingRepository) FindByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.PricingEntry, error) {
	return r.findEntries(ctx, bson.M{"service_id": serviceID})
}

func (r *pricingRepository) FindByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.PricingEntry, error) {
	return r.findEntries(ctx, bson.M{"country_id": countryID})
}

func (r *pricingRepository) findEntries(ctx context.Context, filter bson.M) ([]*models.PricingEntry, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find pricing entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.PricingEntry
	for cursor.Next(ctx) {
		var entry models.PricingEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to decode pricing entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// UpdateCurrentPrice refuses to drop the current price below base by matching
// only entries whose base price is at or below the new value.
func (r *pricingRepository) UpdateCurrentPrice(ctx context.Context, countryID, serviceID primitive.ObjectID, price float64) (bool, error) {
	filter := bson.M{
		"country_id": countryID,
		"service_id": serviceID,
		"base_price": bson.M{"$lte": price},
	}
	update := bson.M{
		"$set": bson.M{
			"current_price": price,
			"last_updated":  time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update current price: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *pricingRepository) ReplaceDiscounts(ctx context.Context, countryID, serviceID primitive.ObjectID, tiers []models.BulkDiscount) (bool, error) {
	filter := bson.M{
		"country_id": countryID,
		"service_id": serviceID,
	}
	update := bson.M{
		"$set": bson.M{
			"bulk_discounts": tiers,
			"last_updated":   time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to replace discounts: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// SyncBasePrice rewrites base_price for every entry of a service and raises
// current_price to max(current_price, newBase) in the same server-side
// pipeline update, preserving base <= current.
func (r *pricingRepository) SyncBasePrice(ctx context.Context, serviceID primitive.ObjectID, newBase float64) (int64, error) {
	filter := bson.M{
		"service_id": serviceID,
		"base_price": bson.M{"$ne": newBase},
	}
	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"base_price":    newBase,
			"current_price": bson.M{"$max": bson.A{"$current_price", newBase}},
			"last_updated":  "$$NOW",
		}},
	}

	result, err := r.collection.UpdateMany(ctx, filter, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sync base prices: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *pricingRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "country_id", Value: 1}, {Key: "service_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "service_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
