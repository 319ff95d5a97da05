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

// OrderRepository owns the orders collection. The lifecycle writes (Complete,
// Fail) are conditional on the current status, so an order can never leave a
// terminal state no matter how callers and the sweeper interleave.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Activate(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	Complete(ctx context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error)
	Fail(ctx context.Context, id primitive.ObjectID, reason string, now time.Time) (bool, error)
	FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.Order, error)
	FindActiveByPhoneIDs(ctx context.Context, phoneIDs []primitive.ObjectID) ([]*models.Order, error)
	FindActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Order, error)
	FindByPhoneNumber(ctx context.Context, phoneID primitive.ObjectID) ([]*models.Order, error)
	FindCompletedByService(ctx context.Context, serviceID primitive.ObjectID, limit int64) ([]*models.Order, error)
	CreateIndexes(ctx context.Context) error
}

type orderRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewOrderRepository(db *mongo.Database, logger *logrus.Logger) OrderRepository {
	return &orderRepository{
		collection: db.Collection("orders"),
		logger:     logger,
	}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	return &order, nil
}

// Activate moves a pending order to active. Returns false without side effect
// when the order is not currently pending.
func (r *orderRepository) Activate(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.OrderStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.OrderStatusActive,
			"updated_at": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to activate order: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// Complete moves an active order to completed. Returns false without side
// effect when the order is not currently active.
func (r *orderRepository) Complete(ctx context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.OrderStatusActive,
	}
	update := bson.M{
		"$set": bson.M{
			"status":            models.OrderStatusCompleted,
			"verification_code": code,
			"end_time":          now,
			"updated_at":        now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to complete order: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// Fail moves a pending or active order to failed. No-op on terminal orders.
func (r *orderRepository) Fail(ctx context.Context, id primitive.ObjectID, reason string, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []models.OrderStatus{models.OrderStatusPending, models.OrderStatusActive}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":         models.OrderStatusFailed,
			"failure_reason": reason,
			"end_time":       now,
			"updated_at":     now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to fail order: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *orderRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.Order, error) {
	filter := bson.M{
		"status":     models.OrderStatusPending,
		"created_at": bson.M{"$lt": cutoff},
	}

	return r.findOrders(ctx, filter, nil)
}

func (r *orderRepository) FindActiveByPhoneIDs(ctx context.Context, phoneIDs []primitive.ObjectID) ([]*models.Order, error) {
	if len(phoneIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"status":          bson.M{"$in": []models.OrderStatus{models.OrderStatusPending, models.OrderStatusActive}},
		"phone_number_id": bson.M{"$in": phoneIDs},
	}

	return r.findOrders(ctx, filter, nil)
}

func (r *orderRepository) FindActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Order, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  bson.M{"$in": []models.OrderStatus{models.OrderStatusPending, models.OrderStatusActive}},
	}

	return r.findOrders(ctx, filter, nil)
}

func (r *orderRepository) FindByPhoneNumber(ctx context.Context, phoneID primitive.ObjectID) ([]*models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}})
	return r.findOrders(ctx, bson.M{"phone_number_id": phoneID}, opts)
}

func (r *orderRepository) FindCompletedByService(ctx context.Context, serviceID primitive.ObjectID, limit int64) ([]*models.Order, error) {
	filter := bson.M{
		"service_id": serviceID,
		"status":     models.OrderStatusCompleted,
	}
	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: -1}}).SetLimit(limit)

	return r.findOrders(ctx, filter, opts)
}

func (r *orderRepository) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Order, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*models.Order
	for cursor.Next(ctx) {
		var order models.Order
		if err := cursor.Decode(&order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, &order)
	}

	return orders, nil
}

func (r *orderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "phone_number_id", Value: 1}, {Key: "start_time", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "status", Value: 1}, {Key: "end_time", Value: -1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
