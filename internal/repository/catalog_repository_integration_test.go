//go:build integration

package repository

import (
	"numpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *RepositoryIntegrationSuite) TestPopularServices_SortedByPopularity() {
	for _, svc := range []*models.Service{
		{Name: "Telegram", Popularity: 50},
		{Name: "WhatsApp", Popularity: 120},
		{Name: "Viber", Popularity: 10},
	} {
		s.Require().NoError(s.catalogs.CreateService(s.ctx, svc))
	}

	services, err := s.catalogs.PopularServices(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(services, 2)
	s.Equal("WhatsApp", services[0].Name)
	s.Equal("Telegram", services[1].Name)
}

func (s *RepositoryIntegrationSuite) TestIncrementPopularity() {
	svc := &models.Service{Name: "Telegram", Popularity: 10}
	s.Require().NoError(s.catalogs.CreateService(s.ctx, svc))

	found, err := s.catalogs.IncrementPopularity(s.ctx, svc.ID, 1)
	s.Require().NoError(err)
	s.True(found)

	got, err := s.catalogs.FindServiceByID(s.ctx, svc.ID)
	s.Require().NoError(err)
	s.Equal(float64(11), got.Popularity)
}

func (s *RepositoryIntegrationSuite) TestSearchCountries_MatchesNameAndCode() {
	for _, country := range []*models.Country{
		{Name: "United States", Code: "US", IsActive: true},
		{Name: "United Kingdom", Code: "GB", IsActive: true},
		{Name: "Indonesia", Code: "ID", IsActive: true},
	} {
		s.Require().NoError(s.catalogs.CreateCountry(s.ctx, country))
	}

	byName, err := s.catalogs.SearchCountries(s.ctx, "united", 10)
	s.Require().NoError(err)
	s.Len(byName, 2)

	byCode, err := s.catalogs.SearchCountries(s.ctx, "gb", 10)
	s.Require().NoError(err)
	s.Require().Len(byCode, 1)
	s.Equal("United Kingdom", byCode[0].Name)
}

func (s *RepositoryIntegrationSuite) TestCountryCodeUniqueness() {
	s.Require().NoError(s.catalogs.CreateCountry(s.ctx, &models.Country{Name: "United States", Code: "US", IsActive: true}))
	s.Error(s.catalogs.CreateCountry(s.ctx, &models.Country{Name: "Duplicate", Code: "US", IsActive: true}))
}

func (s *RepositoryIntegrationSuite) TestServicesByCountry() {
	countryID := primitive.NewObjectID()

	inCountry := &models.Service{Name: "Telegram", AvailableCountries: []primitive.ObjectID{countryID}}
	s.Require().NoError(s.catalogs.CreateService(s.ctx, inCountry))
	s.Require().NoError(s.catalogs.CreateService(s.ctx, &models.Service{Name: "WhatsApp"}))

	services, err := s.catalogs.ServicesByCountry(s.ctx, countryID)
	s.Require().NoError(err)
	s.Require().Len(services, 1)
	s.Equal("Telegram", services[0].Name)
}
