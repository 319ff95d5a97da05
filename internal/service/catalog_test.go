package service

import (
	"context"
	"testing"

	"numpool/internal/models"
	"numpool/pkg/testutil"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CatalogServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *testutil.MockCatalogRepository
	service *CatalogService
}

func (s *CatalogServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = new(testutil.MockCatalogRepository)
	s.service = NewCatalogService(s.repo, newTestLogger())
}

func TestCatalogServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}

func (s *CatalogServiceTestSuite) TestPopularServices_DefaultLimit() {
	s.repo.On("PopularServices", mock.Anything, int64(20)).Return([]*models.Service{}, nil)

	_, err := s.service.PopularServices(s.ctx, 0)
	s.NoError(err)
	s.repo.AssertCalled(s.T(), "PopularServices", mock.Anything, int64(20))
}

func (s *CatalogServiceTestSuite) TestSearchCountries_RejectsEmptyQuery() {
	_, err := s.service.SearchCountries(s.ctx, "", 10)
	s.ErrorIs(err, models.ErrValidation)
	s.repo.AssertNotCalled(s.T(), "SearchCountries")
}

func (s *CatalogServiceTestSuite) TestRecordOutcome_SuccessNudgesRateUp() {
	serviceID := primitive.NewObjectID()

	s.repo.On("FindServiceByID", mock.Anything, serviceID).Return(&models.Service{
		ID:          serviceID,
		SuccessRate: 0.90,
	}, nil)
	s.repo.On("SetSuccessRate", mock.Anything, serviceID, mock.MatchedBy(func(rate float64) bool {
		// 0.90*0.99 + 1*0.01
		return rate > 0.90 && rate < 0.902
	})).Return(true, nil)
	s.repo.On("IncrementPopularity", mock.Anything, serviceID, float64(1)).Return(true, nil)

	s.service.RecordOutcome(s.ctx, serviceID, true)

	s.repo.AssertExpectations(s.T())
}

func (s *CatalogServiceTestSuite) TestRecordOutcome_FailureNudgesRateDown() {
	serviceID := primitive.NewObjectID()

	s.repo.On("FindServiceByID", mock.Anything, serviceID).Return(&models.Service{
		ID:          serviceID,
		SuccessRate: 0.90,
	}, nil)
	s.repo.On("SetSuccessRate", mock.Anything, serviceID, mock.MatchedBy(func(rate float64) bool {
		// 0.90*0.99 + 0*0.01
		return rate > 0.89 && rate < 0.90
	})).Return(true, nil)

	s.service.RecordOutcome(s.ctx, serviceID, false)

	s.repo.AssertNotCalled(s.T(), "IncrementPopularity")
}

func (s *CatalogServiceTestSuite) TestRecordOutcome_UnknownServiceIsNoop() {
	serviceID := primitive.NewObjectID()
	s.repo.On("FindServiceByID", mock.Anything, serviceID).Return(nil, nil)

	s.service.RecordOutcome(s.ctx, serviceID, true)

	s.repo.AssertNotCalled(s.T(), "SetSuccessRate")
}
