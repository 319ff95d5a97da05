//go:build integration

package repository

import (
	"time"

	"numpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *RepositoryIntegrationSuite) newOrder(status models.OrderStatus) *models.Order {
	order := &models.Order{
		UserID:        primitive.NewObjectID(),
		ServiceID:     primitive.NewObjectID(),
		CountryID:     primitive.NewObjectID(),
		PhoneNumberID: primitive.NewObjectID(),
		TransactionID: primitive.NewObjectID(),
		Price:         0.15,
		Status:        status,
		StartTime:     time.Now(),
	}
	s.Require().NoError(s.orders.Create(s.ctx, order))
	return order
}

func (s *RepositoryIntegrationSuite) TestOrderLifecycle_HappyPath() {
	order := s.newOrder(models.OrderStatusPending)

	activated, err := s.orders.Activate(s.ctx, order.ID, time.Now())
	s.Require().NoError(err)
	s.True(activated)

	completed, err := s.orders.Complete(s.ctx, order.ID, "4832", time.Now())
	s.Require().NoError(err)
	s.True(completed)

	got, err := s.orders.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCompleted, got.Status)
	s.Equal("4832", got.VerificationCode)
	s.NotNil(got.EndTime)
}

func (s *RepositoryIntegrationSuite) TestActivate_OnlyFromPending() {
	order := s.newOrder(models.OrderStatusActive)

	activated, err := s.orders.Activate(s.ctx, order.ID, time.Now())
	s.Require().NoError(err)
	s.False(activated)
}

func (s *RepositoryIntegrationSuite) TestComplete_OnlyFromActive() {
	order := s.newOrder(models.OrderStatusPending)

	completed, err := s.orders.Complete(s.ctx, order.ID, "4832", time.Now())
	s.Require().NoError(err)
	s.False(completed)

	got, err := s.orders.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusPending, got.Status)
	s.Empty(got.VerificationCode)
}

func (s *RepositoryIntegrationSuite) TestFail_FromPendingAndActive_OnceOnly() {
	pending := s.newOrder(models.OrderStatusPending)
	active := s.newOrder(models.OrderStatusActive)

	for _, order := range []*models.Order{pending, active} {
		failed, err := s.orders.Fail(s.ctx, order.ID, "lease expired", time.Now())
		s.Require().NoError(err)
		s.True(failed)

		// Replay is a no-op and keeps the original reason.
		failed, err = s.orders.Fail(s.ctx, order.ID, "other reason", time.Now())
		s.Require().NoError(err)
		s.False(failed)

		got, err := s.orders.FindByID(s.ctx, order.ID)
		s.Require().NoError(err)
		s.Equal(models.OrderStatusFailed, got.Status)
		s.Equal("lease expired", got.FailureReason)
	}
}

func (s *RepositoryIntegrationSuite) TestFail_NeverTouchesCompleted() {
	order := s.newOrder(models.OrderStatusPending)

	_, err := s.orders.Activate(s.ctx, order.ID, time.Now())
	s.Require().NoError(err)
	_, err = s.orders.Complete(s.ctx, order.ID, "4832", time.Now())
	s.Require().NoError(err)

	failed, err := s.orders.Fail(s.ctx, order.ID, "too late", time.Now())
	s.Require().NoError(err)
	s.False(failed)
}

func (s *RepositoryIntegrationSuite) TestFindStalePending_RespectsCutoff() {
	stale := s.newOrder(models.OrderStatusPending)
	time.Sleep(100 * time.Millisecond)
	cutoff := time.Now()
	s.newOrder(models.OrderStatusPending)

	found, err := s.orders.FindStalePending(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(stale.ID, found[0].ID)
}

func (s *RepositoryIntegrationSuite) TestFindActiveByPhoneIDs() {
	first := s.newOrder(models.OrderStatusActive)
	second := s.newOrder(models.OrderStatusActive)
	s.newOrder(models.OrderStatusCompleted)

	found, err := s.orders.FindActiveByPhoneIDs(s.ctx, []primitive.ObjectID{first.PhoneNumberID, second.PhoneNumberID})
	s.Require().NoError(err)
	s.Len(found, 2)
}
