//go:build integration

package repository

import (
	"numpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *RepositoryIntegrationSuite) newPricingEntry(serviceID primitive.ObjectID, base, current float64) *models.PricingEntry {
	entry := &models.PricingEntry{
		CountryID:    primitive.NewObjectID(),
		ServiceID:    serviceID,
		BasePrice:    base,
		CurrentPrice: current,
	}
	s.Require().NoError(s.pricing.Create(s.ctx, entry))
	return entry
}

func (s *RepositoryIntegrationSuite) TestUpdateCurrentPrice_FloorsAtBase() {
	serviceID := primitive.NewObjectID()
	entry := s.newPricingEntry(serviceID, 0.10, 0.15)

	// Below base is rejected server-side.
	updated, err := s.pricing.UpdateCurrentPrice(s.ctx, entry.CountryID, serviceID, 0.05)
	s.Require().NoError(err)
	s.False(updated)

	updated, err = s.pricing.UpdateCurrentPrice(s.ctx, entry.CountryID, serviceID, 0.20)
	s.Require().NoError(err)
	s.True(updated)

	got, err := s.pricing.FindByPair(s.ctx, entry.CountryID, serviceID)
	s.Require().NoError(err)
	s.Equal(0.20, got.CurrentPrice)
	s.Equal(0.10, got.BasePrice)
}

func (s *RepositoryIntegrationSuite) TestSyncBasePrice_RaisesFloorPreservingMarkup() {
	serviceID := primitive.NewObjectID()
	cheap := s.newPricingEntry(serviceID, 0.10, 0.12)
	marked := s.newPricingEntry(serviceID, 0.10, 0.50)
	other := s.newPricingEntry(primitive.NewObjectID(), 0.10, 0.12)

	updated, err := s.pricing.SyncBasePrice(s.ctx, serviceID, 0.20)
	s.Require().NoError(err)
	s.Equal(int64(2), updated)

	// Current price below the new base is lifted to it.
	got, err := s.pricing.FindByPair(s.ctx, cheap.CountryID, serviceID)
	s.Require().NoError(err)
	s.Equal(0.20, got.BasePrice)
	s.Equal(0.20, got.CurrentPrice)

	// Current price already above the new base keeps its markup.
	got, err = s.pricing.FindByPair(s.ctx, marked.CountryID, serviceID)
	s.Require().NoError(err)
	s.Equal(0.20, got.BasePrice)
	s.Equal(0.50, got.CurrentPrice)

	// Other services are untouched.
	got, err = s.pricing.FindByPair(s.ctx, other.CountryID, other.ServiceID)
	s.Require().NoError(err)
	s.Equal(0.10, got.BasePrice)
}

func (s *RepositoryIntegrationSuite) TestReplaceDiscounts() {
	serviceID := primitive.NewObjectID()
	entry := s.newPricingEntry(serviceID, 0.10, 0.15)

	tiers := []models.BulkDiscount{
		{MinQuantity: 10, PricePer: 0.08},
		{MinQuantity: 100, PricePer: 0.06},
	}
	found, err := s.pricing.ReplaceDiscounts(s.ctx, entry.CountryID, serviceID, tiers)
	s.Require().NoError(err)
	s.True(found)

	got, err := s.pricing.FindByPair(s.ctx, entry.CountryID, serviceID)
	s.Require().NoError(err)
	s.Equal(tiers, got.BulkDiscounts)

	// Unknown pair reports not found.
	found, err = s.pricing.ReplaceDiscounts(s.ctx, primitive.NewObjectID(), serviceID, tiers)
	s.Require().NoError(err)
	s.False(found)
}

func (s *RepositoryIntegrationSuite) TestPricingPairUniqueness() {
	serviceID := primitive.NewObjectID()
	entry := s.newPricingEntry(serviceID, 0.10, 0.15)

	dup := &models.PricingEntry{
		CountryID:    entry.CountryID,
		ServiceID:    serviceID,
		BasePrice:    0.10,
		CurrentPrice: 0.15,
	}
	s.Error(s.pricing.Create(s.ctx, dup))
}
