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

// TransactionFilter narrows FindByUser queries.
type TransactionFilter struct {
	Type   models.TransactionType
	Status models.TransactionStatus
	Limit  int64
	Skip   int64
}

// TransactionRepository owns the transactions collection. Balance is computed
// server-side with an aggregation so it stays cheap as the history grows.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error)
	Settle(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) (bool, error)
	Balance(ctx context.Context, userID primitive.ObjectID) (float64, error)
	TotalDeposits(ctx context.Context, userID primitive.ObjectID) (float64, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID, filter TransactionFilter) ([]*models.Transaction, error)
	FindByOrder(ctx context.Context, orderID primitive.ObjectID) ([]*models.Transaction, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
	CreateIndexes(ctx context.Context) error
}

type transactionRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewTransactionRepository(db *mongo.Database, logger *logrus.Logger) TransactionRepository {
	return &transactionRepository{
		collection: db.Collection("transactions"),
		logger:     logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = time.Now()
	if tx.Status == "" {
		tx.Status = models.TransactionStatusPending
	}
	if tx.PaymentDetails == nil {
		tx.PaymentDetails = map[string]interface{}{}
	}

	result, err := r.collection.InsertOne(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	tx.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&tx)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}

	return &tx, nil
}

// Settle is the single allowed status transition. The pending guard makes it
// one-shot: settling an already-settled transaction modifies nothing.
func (r *transactionRepository) Settle(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.TransactionStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to settle transaction: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// Balance is sum(completed deposits) - sum(completed withdrawals) -
// sum(completed purchases), grouped server-side.
func (r *transactionRepository) Balance(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{
			"user_id": userID,
			"status":  models.TransactionStatusCompleted,
		}},
		{"$group": bson.M{
			"_id":   "$type",
			"total": bson.M{"$sum": "$amount"},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate balance: %w", err)
	}
	defer cursor.Close(ctx)

	var balance float64
	for cursor.Next(ctx) {
		var row struct {
			Type  models.TransactionType `bson:"_id"`
			Total float64                `bson:"total"`
		}
		if err := cursor.Decode(&row); err != nil {
			return 0, fmt.Errorf("failed to decode balance row: %w", err)
		}

		switch row.Type {
		case models.TransactionTypeDeposit:
			balance += row.Total
		case models.TransactionTypeWithdrawal, models.TransactionTypePurchase:
			balance -= row.Total
		}
	}

	return balance, nil
}

func (r *transactionRepository) TotalDeposits(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{
			"user_id": userID,
			"type":    models.TransactionTypeDeposit,
			"status":  models.TransactionStatusCompleted,
		}},
		{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate deposits: %w", err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var row struct {
			Total float64 `bson:"total"`
		}
		if err := cursor.Decode(&row); err != nil {
			return 0, fmt.Errorf("failed to decode deposit total: %w", err)
		}
		return row.Total, nil
	}

	return 0, nil
}

func (r *transactionRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, filter TransactionFilter) ([]*models.Transaction, error) {
	query := bson.M{"user_id": userID}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(filter.Skip).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var txs []*models.Transaction
	for cursor.Next(ctx) {
		var tx models.Transaction
		if err := cursor.Decode(&tx); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		txs = append(txs, &tx)
	}

	return txs, nil
}

func (r *transactionRepository) FindByOrder(ctx context.Context, orderID primitive.ObjectID) ([]*models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var txs []*models.Transaction
	for cursor.Next(ctx) {
		var tx models.Transaction
		if err := cursor.Decode(&tx); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		txs = append(txs, &tx)
	}

	return txs, nil
}

func (r *transactionRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":     models.TransactionStatusPending,
		"created_at": bson.M{"$lt": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.TransactionStatusFailed,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending transactions: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *transactionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "type", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
