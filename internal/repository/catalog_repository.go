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

// CatalogRepository serves read-mostly service/country browse data plus the
// per-service success-rate and popularity counters maintained by the order
// lifecycle.
type CatalogRepository interface {
	CreateService(ctx context.Context, svc *models.Service) error
	FindServiceByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error)
	PopularServices(ctx context.Context, limit int64) ([]*models.Service, error)
	ServicesByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.Service, error)
	SetSuccessRate(ctx context.Context, id primitive.ObjectID, rate float64) (bool, error)
	IncrementPopularity(ctx context.Context, id primitive.ObjectID, delta float64) (bool, error)

	CreateCountry(ctx context.Context, country *models.Country) error
	FindCountryByID(ctx context.Context, id primitive.ObjectID) (*models.Country, error)
	ActiveCountries(ctx context.Context) ([]*models.Country, error)
	CountriesByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.Country, error)
	SearchCountries(ctx context.Context, query string, limit int64) ([]*models.Country, error)

	CreateSMSLog(ctx context.Context, log *models.SMSLog) error
	SMSLogsByNumber(ctx context.Context, number string, limit int64) ([]*models.SMSLog, error)

	CreateIndexes(ctx context.Context) error
}

type catalogRepository struct {
	services  *mongo.Collection
	countries *mongo.Collection
	smsLogs   *mongo.Collection
	logger    *logrus.Logger
}

func NewCatalogRepository(db *mongo.Database, logger *logrus.Logger) CatalogRepository {
	return &catalogRepository{
		services:  db.Collection("services"),
		countries: db.Collection("countries"),
		smsLogs:   db.Collection("sms_logs"),
		logger:    logger,
	}
}

func (r *catalogRepository) CreateService(ctx context.Context, svc *models.Service) error {
	svc.LastUpdated = time.Now()
	if svc.AvailableCountries == nil {
		svc.AvailableCountries = []primitive.ObjectID{}
	}

	result, err := r.services.InsertOne(ctx, svc)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}

	svc.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *catalogRepository) FindServiceByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	var svc models.Service
	err := r.services.FindOne(ctx, bson.M{"_id": id}).Decode(&svc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find service: %w", err)
	}

	return &svc, nil
}

func (r *catalogRepository) PopularServices(ctx context.Context, limit int64) ([]*models.Service, error) {
	opts := options.Find().SetSort(bson.D{{Key: "popularity", Value: -1}}).SetLimit(limit)

	cursor, err := r.services.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find popular services: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeServices(ctx, cursor)
}

func (r *catalogRepository) ServicesByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.Service, error) {
	cursor, err := r.services.Find(ctx, bson.M{"available_countries": countryID})
	if err != nil {
		return nil, fmt.Errorf("failed to find services by country: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeServices(ctx, cursor)
}

func (r *catalogRepository) SetSuccessRate(ctx context.Context, id primitive.ObjectID, rate float64) (bool, error) {
	update := bson.M{
		"$set": bson.M{
			"success_rate": rate,
			"last_updated": time.Now(),
		},
	}

	result, err := r.services.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("failed to set success rate: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *catalogRepository) IncrementPopularity(ctx context.Context, id primitive.ObjectID, delta float64) (bool, error) {
	result, err := r.services.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"popularity": delta}})
	if err != nil {
		return false, fmt.Errorf("failed to increment popularity: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *catalogRepository) CreateCountry(ctx context.Context, country *models.Country) error {
	if country.AvailableServices == nil {
		country.AvailableServices = []primitive.ObjectID{}
	}

	result, err := r.countries.InsertOne(ctx, country)
	if err != nil {
		return fmt.Errorf("failed to insert country: %w", err)
	}

	country.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *catalogRepository) FindCountryByID(ctx context.Context, id primitive.ObjectID) (*models.Country, error) {
	var country models.Country
	err := r.countries.FindOne(ctx, bson.M{"_id": id}).Decode(&country)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find country: %w", err)
	}

	return &country, nil
}

func (r *catalogRepository) ActiveCountries(ctx context.Context) ([]*models.Country, error) {
	cursor, err := r.countries.Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to find active countries: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeCountries(ctx, cursor)
}

func (r *catalogRepository) CountriesByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.Country, error) {
	filter := bson.M{
		"available_services": serviceID,
		"is_active":          true,
	}

	cursor, err := r.countries.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find countries by service: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeCountries(ctx, cursor)
}

func (r *catalogRepository) SearchCountries(ctx context.Context, query string, limit int64) ([]*models.Country, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"name": bson.M{"$regex": query, "$options": "i"}},
			{"code": bson.M{"$regex": query, "$options": "i"}},
		},
		"is_active": true,
	}
	opts := options.Find().SetLimit(limit)

	cursor, err := r.countries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search countries: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeCountries(ctx, cursor)
}

func (r *catalogRepository) CreateSMSLog(ctx context.Context, log *models.SMSLog) error {
	log.ReceivedAt = time.Now()

	result, err := r.smsLogs.InsertOne(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to insert sms log: %w", err)
	}

	log.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *catalogRepository) SMSLogsByNumber(ctx context.Context, number string, limit int64) ([]*models.SMSLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}).SetLimit(limit)

	cursor, err := r.smsLogs.Find(ctx, bson.M{"number": number}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sms logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []*models.SMSLog
	for cursor.Next(ctx) {
		var log models.SMSLog
		if err := cursor.Decode(&log); err != nil {
			return nil, fmt.Errorf("failed to decode sms log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, nil
}

func (r *catalogRepository) CreateIndexes(ctx context.Context) error {
	serviceIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "popularity", Value: -1}}},
		{Keys: bson.D{{Key: "available_countries", Value: 1}}},
	}
	if _, err := r.services.Indexes().CreateMany(ctx, serviceIndexes); err != nil {
		return fmt.Errorf("failed to create service indexes: %w", err)
	}

	countryIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "available_services", Value: 1}, {Key: "is_active", Value: 1}}},
	}
	if _, err := r.countries.Indexes().CreateMany(ctx, countryIndexes); err != nil {
		return fmt.Errorf("failed to create country indexes: %w", err)
	}

	smsLogIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "number", Value: 1}, {Key: "received_at", Value: -1}}},
	}
	if _, err := r.smsLogs.Indexes().CreateMany(ctx, smsLogIndexes); err != nil {
		return fmt.Errorf("failed to create sms log indexes: %w", err)
	}

	return nil
}

func decodeServices(ctx context.Context, cursor *mongo.Cursor) ([]*models.Service, error) {
	var services []*models.Service
	for cursor.Next(ctx) {
		var svc models.Service
		if err := cursor.Decode(&svc); err != nil {
			return nil, fmt.Errorf("failed to decode service: %w", err)
		}
		services = append(services, &svc)
	}
	return services, nil
}

func decodeCountries(ctx context.Context, cursor *mongo.Cursor) ([]*models.Country, error) {
	var countries []*models.Country
	for cursor.Next(ctx) {
		var country models.Country
		if err := cursor.Decode(&country); err != nil {
			return nil, fmt.Errorf("failed to decode country: %w", err)
		}
		countries = append(countries, &country)
	}
	return countries, nil
}
