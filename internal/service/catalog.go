package service

import (
	"context"
	"fmt"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// successRateAlpha is the EWMA weight for one order outcome. Small on purpose:
// a single failure moves a 95% rate by under a point.
const successRateAlpha = 0.01

// CatalogService serves the service/country browse surface and keeps the
// per-service quality counters fresh as orders terminate.
type CatalogService struct {
	catalogRepo repository.CatalogRepository
	logger      *logrus.Logger
}

func NewCatalogService(catalogRepo repository.CatalogRepository, logger *logrus.Logger) *CatalogService {
	return &CatalogService{
		catalogRepo: catalogRepo,
		logger:      logger,
	}
}

func (s *CatalogService) Service(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	svc, err := s.catalogRepo.FindServiceByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find service: %w", err)
	}
	return svc, nil
}

func (s *CatalogService) PopularServices(ctx context.Context, limit int64) ([]*models.Service, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.catalogRepo.PopularServices(ctx, limit)
}

func (s *CatalogService) ServicesByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.Service, error) {
	return s.catalogRepo.ServicesByCountry(ctx, countryID)
}

func (s *CatalogService) Country(ctx context.Context, id primitive.ObjectID) (*models.Country, error) {
	country, err := s.catalogRepo.FindCountryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find country: %w", err)
	}
	return country, nil
}

func (s *CatalogService) ActiveCountries(ctx context.Context) ([]*models.Country, error) {
	return s.catalogRepo.ActiveCountries(ctx)
}

func (s *CatalogService) CountriesByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.Country, error) {
	return s.catalogRepo.CountriesByService(ctx, serviceID)
}

func (s *CatalogService) SearchCountries(ctx context.Context, query string, limit int64) ([]*models.Country, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", models.ErrValidation)
	}
	if limit <= 0 {
		limit = 20
	}
	return s.catalogRepo.SearchCountries(ctx, query, limit)
}

// RecordOutcome folds one terminal order into the service's success rate and
// bumps popularity. Failures to update are logged, not propagated; the order
// lifecycle must not depend on catalog bookkeeping.
func (s *CatalogService) RecordOutcome(ctx context.Context, serviceID primitive.ObjectID, succeeded bool) {
	svc, err := s.catalogRepo.FindServiceByID(ctx, serviceID)
	if err != nil || svc == nil {
		s.logger.Warnf("Cannot record outcome for service %s: %v", serviceID.Hex(), err)
		return
	}

	outcome := 0.0
	if succeeded {
		outcome = 1.0
	}
	rate := svc.SuccessRate*(1-successRateAlpha) + outcome*successRateAlpha

	if _, err := s.catalogRepo.SetSuccessRate(ctx, serviceID, rate); err != nil {
		s.logger.Warnf("Failed to update success rate for %s: %v", serviceID.Hex(), err)
	}

	if succeeded {
		if _, err := s.catalogRepo.IncrementPopularity(ctx, serviceID, 1); err != nil {
			s.logger.Warnf("Failed to bump popularity for %s: %v", serviceID.Hex(), err)
		}
	}
}

// LogInboundMessage writes one entry to the global message log.
func (s *CatalogService) LogInboundMessage(ctx context.Context, number, content, from string) error {
	return s.catalogRepo.CreateSMSLog(ctx, &models.SMSLog{
		Number:  number,
		Content: content,
		From:    from,
	})
}

func (s *CatalogService) MessagesForNumber(ctx context.Context, number string, limit int64) ([]*models.SMSLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.catalogRepo.SMSLogsByNumber(ctx, number, limit)
}
