package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const pricingCacheTTL = 5 * time.Minute

// PricingService resolves unit prices and maintains the per-pair price book.
type PricingService struct {
	pricingRepo repository.PricingRepository
	cache       *CacheService
	logger      *logrus.Logger
}

func NewPricingService(pricingRepo repository.PricingRepository, cache *CacheService, logger *logrus.Logger) *PricingService {
	return &PricingService{
		pricingRepo: pricingRepo,
		cache:       cache,
		logger:      logger,
	}
}

// Resolve returns the unit price for quantity numbers of the pair. Tier
// discounts apply only when strictly cheaper than the current price.
func (s *PricingService) Resolve(ctx context.Context, countryID, serviceID primitive.ObjectID, quantity int) (float64, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("%w: quantity must be at least 1", models.ErrValidation)
	}

	entry, err := s.lookup(ctx, countryID, serviceID)
	if err != nil {
		return 0, err
	}

	return entry.PriceFor(quantity), nil
}

// Quote prices a whole batch: unit price times quantity, rounded to cents.
func (s *PricingService) Quote(ctx context.Context, countryID, serviceID primitive.ObjectID, quantity int) (float64, error) {
	unit, err := s.Resolve(ctx, countryID, serviceID, quantity)
	if err != nil {
		return 0, err
	}
	return roundCents(unit * float64(quantity)), nil
}

func (s *PricingService) Entry(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error) {
	return s.lookup(ctx, countryID, serviceID)
}

// EntriesForCountry lists every priced service in a country, uncached.
func (s *PricingService) EntriesForCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.PricingEntry, error) {
	entries, err := s.pricingRepo.FindByCountry(ctx, countryID)
	if err != nil {
		return nil, fmt.Errorf("find pricing by country: %w", err)
	}
	return entries, nil
}

func (s *PricingService) Create(ctx context.Context, entry *models.PricingEntry) error {
	if entry.BasePrice <= 0 {
		return fmt.Errorf("%w: base price must be positive", models.ErrValidation)
	}
	if entry.CurrentPrice < entry.BasePrice {
		return fmt.Errorf("%w: current price below base price", models.ErrValidation)
	}
	if err := validateTiers(entry.BulkDiscounts, entry.CurrentPrice); err != nil {
		return err
	}

	if err := s.pricingRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("create pricing: %w", err)
	}
	return nil
}

// SetCurrentPrice moves the current price for a pair. Rejected below base.
func (s *PricingService) SetCurrentPrice(ctx context.Context, countryID, serviceID primitive.ObjectID, price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive", models.ErrValidation)
	}

	updated, err := s.pricingRepo.UpdateCurrentPrice(ctx, countryID, serviceID, price)
	if err != nil {
		return fmt.Errorf("set current price: %w", err)
	}
	if !updated {
		// Either the pair is unknown or the price undercuts the floor.
		entry, lookupErr := s.pricingRepo.FindByPair(ctx, countryID, serviceID)
		if lookupErr != nil {
			return fmt.Errorf("set current price: %w", lookupErr)
		}
		if entry == nil {
			return models.ErrPricingNotFound
		}
		return fmt.Errorf("%w: price %.2f below base price %.2f", models.ErrValidation, price, entry.BasePrice)
	}

	s.invalidate(ctx, countryID, serviceID)
	return nil
}

// ReplaceDiscounts swaps the whole tier list for a pair after validating it.
func (s *PricingService) ReplaceDiscounts(ctx context.Context, countryID, serviceID primitive.ObjectID, tiers []models.BulkDiscount) error {
	entry, err := s.pricingRepo.FindByPair(ctx, countryID, serviceID)
	if err != nil {
		return fmt.Errorf("replace discounts: %w", err)
	}
	if entry == nil {
		return models.ErrPricingNotFound
	}

	if err := validateTiers(tiers, entry.CurrentPrice); err != nil {
		return err
	}

	found, err := s.pricingRepo.ReplaceDiscounts(ctx, countryID, serviceID, tiers)
	if err != nil {
		return fmt.Errorf("replace discounts: %w", err)
	}
	if !found {
		return models.ErrPricingNotFound
	}

	s.invalidate(ctx, countryID, serviceID)
	return nil
}

// SyncBasePrice raises the base price floor for every pair of a service.
// Current prices already above the new base are untouched.
func (s *PricingService) SyncBasePrice(ctx context.Context, serviceID primitive.ObjectID, newBase float64) (int64, error) {
	if newBase <= 0 {
		return 0, fmt.Errorf("%w: base price must be positive", models.ErrValidation)
	}

	updated, err := s.pricingRepo.SyncBasePrice(ctx, serviceID, newBase)
	if err != nil {
		return 0, fmt.Errorf("sync base price: %w", err)
	}

	entries, err := s.pricingRepo.FindByService(ctx, serviceID)
	if err == nil {
		for _, entry := range entries {
			s.invalidate(ctx, entry.CountryID, entry.ServiceID)
		}
	}

	s.logger.Infof("Synced base price %.2f across %d pairs for service %s", newBase, updated, serviceID.Hex())
	return updated, nil
}

func (s *PricingService) lookup(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error) {
	if cached, err := s.cache.GetPricing(ctx, countryID, serviceID); err == nil && cached != nil {
		return cached, nil
	}

	entry, err := s.pricingRepo.FindByPair(ctx, countryID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("find pricing: %w", err)
	}
	if entry == nil {
		return nil, models.ErrPricingNotFound
	}

	if err := s.cache.SetPricing(ctx, entry, pricingCacheTTL); err != nil {
		s.logger.Warnf("Failed to cache pricing %s/%s: %v", countryID.Hex(), serviceID.Hex(), err)
	}

	return entry, nil
}

func (s *PricingService) invalidate(ctx context.Context, countryID, serviceID primitive.ObjectID) {
	if err := s.cache.DeletePricing(ctx, countryID, serviceID); err != nil {
		s.logger.Warnf("Failed to drop pricing cache %s/%s: %v", countryID.Hex(), serviceID.Hex(), err)
	}
}

// validateTiers enforces the shape invariant: min quantities strictly
// increasing from at least 2, per-unit prices positive and strictly
// decreasing, and every tier cheaper than the current price.
func validateTiers(tiers []models.BulkDiscount, currentPrice float64) error {
	prevQty := 1
	prevPrice := currentPrice

	for i, tier := range tiers {
		if tier.MinQuantity <= prevQty {
			return fmt.Errorf("%w: tier %d min quantity %d not increasing", models.ErrValidation, i, tier.MinQuantity)
		}
		if tier.PricePer <= 0 {
			return fmt.Errorf("%w: tier %d price must be positive", models.ErrValidation, i)
		}
		if tier.PricePer >= prevPrice {
			return fmt.Errorf("%w: tier %d price %.2f not decreasing", models.ErrValidation, i, tier.PricePer)
		}
		prevQty = tier.MinQuantity
		prevPrice = tier.PricePer
	}

	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
