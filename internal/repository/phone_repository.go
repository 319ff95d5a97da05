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

// PhoneRepository owns the phone_numbers collection. ClaimAvailable is the
// only operation the pool's correctness depends on: it is a single
// find-and-modify round trip, so two concurrent claims can never both match
// the same free document.
type PhoneRepository interface {
	Create(ctx context.Context, phone *models.PhoneNumber) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error)
	FindByNumber(ctx context.Context, number string) (*models.PhoneNumber, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.PhoneNumber, error)
	ClaimAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (*models.PhoneNumber, error)
	Assign(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (bool, error)
	Release(ctx context.Context, id primitive.ObjectID) (bool, error)
	PushMessage(ctx context.Context, id primitive.ObjectID, msg models.SMSMessage) (bool, error)
	ExtendExpiration(ctx context.Context, id primitive.ObjectID, until time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PhoneStatus) (bool, error)
	FindExpiredLeases(ctx context.Context, now time.Time) ([]*models.PhoneNumber, error)
	CountAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (int64, error)
	CreateIndexes(ctx context.Context) error
}

type phoneRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewPhoneRepository(db *mongo.Database, logger *logrus.Logger) PhoneRepository {
	return &phoneRepository{
		collection: db.Collection("phone_numbers"),
		logger:     logger,
	}
}

func (r *phoneRepository) Create(ctx context.Context, phone *models.PhoneNumber) error {
	phone.CreatedAt = time.Now()
	phone.UpdatedAt = time.Now()
	if phone.Status == "" {
		phone.Status = models.PhoneStatusActive
	}
	if phone.SMSReceived == nil {
		phone.SMSReceived = []models.SMSMessage{}
	}

	result, err := r.collection.InsertOne(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to insert phone number: %w", err)
	}

	phone.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *phoneRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error) {
	var phone models.PhoneNumber
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&phone)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find phone number: %w", err)
	}

	return &phone, nil
}

func (r *phoneRepository) FindByNumber(ctx context.Context, number string) (*models.PhoneNumber, error) {
	var phone models.PhoneNumber
	err := r.collection.FindOne(ctx, bson.M{"number": number}).Decode(&phone)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find phone number: %w", err)
	}

	return &phone, nil
}

func (r *phoneRepository) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.PhoneNumber, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"current_user": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to find phone numbers: %w", err)
	}
	defer cursor.Close(ctx)

	var phones []*models.PhoneNumber
	for cursor.Next(ctx) {
		var phone models.PhoneNumber
		if err := cursor.Decode(&phone); err != nil {
			return nil, fmt.Errorf("failed to decode phone number: %w", err)
		}
		phones = append(phones, &phone)
	}

	return phones, nil
}

// ClaimAvailable atomically selects one eligible number and marks it used in
// the same server-side operation. Candidates are ordered by expiration_time
// ascending so retries see a stable tie-break and numbers closest to expiry
// get used first. Returns (nil, nil) when the pool is exhausted.
func (r *phoneRepository) ClaimAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (*models.PhoneNumber, error) {
	filter := bson.M{
		"service_id":      serviceID,
		"country_id":      countryID,
		"status":          models.PhoneStatusActive,
		"is_used":         false,
		"expiration_time": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"is_used":    true,
			"updated_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "expiration_time", Value: 1}}).
		SetReturnDocument(options.After)

	var phone models.PhoneNumber
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&phone)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim phone number: %w", err)
	}

	return &phone, nil
}

// Assign binds a claimed number to a user. The current_user guard makes the
// bind lose cleanly if another caller already holds the number.
func (r *phoneRepository) Assign(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (bool, error) {
	filter := bson.M{
		"_id":          id,
		"current_user": nil,
	}
	update := bson.M{
		"$set": bson.M{
			"current_user": userID,
			"is_used":      true,
			"last_used":    now,
			"updated_at":   now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to assign phone number: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// Release clears the lease. Matching on is_used makes it idempotent: releasing
// an already-free number modifies nothing and reports false.
func (r *phoneRepository) Release(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id":     id,
		"is_used": true,
	}
	update := bson.M{
		"$set": bson.M{
			"is_used":      false,
			"current_user": nil,
			"updated_at":   time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to release phone number: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// PushMessage appends to the inbound history regardless of lease state.
func (r *phoneRepository) PushMessage(ctx context.Context, id primitive.ObjectID, msg models.SMSMessage) (bool, error) {
	update := bson.M{
		"$push": bson.M{"sms_received": msg},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("failed to push sms message: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *phoneRepository) ExtendExpiration(ctx context.Context, id primitive.ObjectID, until time.Time) (bool, error) {
	update := bson.M{
		"$set": bson.M{
			"expiration_time": until,
			"updated_at":      time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("failed to extend expiration: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *phoneRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PhoneStatus) (bool, error) {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("failed to update phone status: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *phoneRepository) FindExpiredLeases(ctx context.Context, now time.Time) ([]*models.PhoneNumber, error) {
	filter := bson.M{
		"is_used":         true,
		"expiration_time": bson.M{"$lt": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired leases: %w", err)
	}
	defer cursor.Close(ctx)

	var phones []*models.PhoneNumber
	for cursor.Next(ctx) {
		var phone models.PhoneNumber
		if err := cursor.Decode(&phone); err != nil {
			return nil, fmt.Errorf("failed to decode phone number: %w", err)
		}
		phones = append(phones, &phone)
	}

	return phones, nil
}

func (r *phoneRepository) CountAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (int64, error) {
	filter := bson.M{
		"service_id":      serviceID,
		"country_id":      countryID,
		"status":          models.PhoneStatusActive,
		"is_used":         false,
		"expiration_time": bson.M{"$gt": now},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count available numbers: %w", err)
	}

	return count, nil
}

func (r *phoneRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Claim path: equality on service/country/status/is_used plus the
			// expiration range and sort.
			Keys: bson.D{
				{Key: "service_id", Value: 1},
				{Key: "country_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "is_used", Value: 1},
				{Key: "expiration_time", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "current_user", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "is_used", Value: 1}, {Key: "expiration_time", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
