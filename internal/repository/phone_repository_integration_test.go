//go:build integration

package repository

import (
	"fmt"
	"sync"
	"time"

	"numpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *RepositoryIntegrationSuite) seedNumbers(serviceID, countryID primitive.ObjectID, count int) []*models.PhoneNumber {
	phones := make([]*models.PhoneNumber, 0, count)
	for i := 0; i < count; i++ {
		phone := &models.PhoneNumber{
			Number:         fmt.Sprintf("20255501%02d", i),
			ServiceID:      serviceID,
			CountryID:      countryID,
			Status:         models.PhoneStatusActive,
			ExpirationTime: time.Now().Add(time.Duration(10+i) * time.Minute),
		}
		s.Require().NoError(s.phones.Create(s.ctx, phone))
		phones = append(phones, phone)
	}
	return phones
}

// The pool invariant: N concurrent claims over M numbers hand out exactly M
// numbers, each to exactly one claimer.
func (s *RepositoryIntegrationSuite) TestClaimAvailable_Atomicity() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()
	s.seedNumbers(serviceID, countryID, 5)

	const claimers = 20
	var wg sync.WaitGroup
	claimed := make(chan primitive.ObjectID, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			phone, err := s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
			if err == nil && phone != nil {
				claimed <- phone.ID
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := map[primitive.ObjectID]bool{}
	for id := range claimed {
		s.False(seen[id], "number %s claimed twice", id.Hex())
		seen[id] = true
	}
	s.Len(seen, 5)

	count, err := s.phones.CountAvailable(s.ctx, serviceID, countryID, time.Now())
	s.NoError(err)
	s.Zero(count)
}

func (s *RepositoryIntegrationSuite) TestClaimAvailable_PrefersSoonestExpiry() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()
	phones := s.seedNumbers(serviceID, countryID, 3)

	claimed, err := s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Equal(phones[0].ID, claimed.ID)
	s.True(claimed.IsUsed)
}

func (s *RepositoryIntegrationSuite) TestClaimAvailable_SkipsExpiredAndUsed() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()

	expired := &models.PhoneNumber{
		Number:         "2025550199",
		ServiceID:      serviceID,
		CountryID:      countryID,
		Status:         models.PhoneStatusActive,
		ExpirationTime: time.Now().Add(-time.Minute),
	}
	s.Require().NoError(s.phones.Create(s.ctx, expired))

	claimed, err := s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
	s.NoError(err)
	s.Nil(claimed)
}

func (s *RepositoryIntegrationSuite) TestReleaseThenReclaim() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	otherUser := primitive.NewObjectID()
	s.seedNumbers(serviceID, countryID, 1)

	phone, err := s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
	s.Require().NoError(err)
	s.Require().NotNil(phone)

	bound, err := s.phones.Assign(s.ctx, phone.ID, userID, time.Now())
	s.Require().NoError(err)
	s.Require().True(bound)

	released, err := s.phones.Release(s.ctx, phone.ID)
	s.Require().NoError(err)
	s.True(released)

	// Second release is a no-op.
	released, err = s.phones.Release(s.ctx, phone.ID)
	s.Require().NoError(err)
	s.False(released)

	// The released number is claimable and bindable again.
	phone, err = s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
	s.Require().NoError(err)
	s.Require().NotNil(phone)

	bound, err = s.phones.Assign(s.ctx, phone.ID, otherUser, time.Now())
	s.Require().NoError(err)
	s.True(bound)

	got, err := s.phones.FindByID(s.ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(otherUser, *got.CurrentUser)
}

func (s *RepositoryIntegrationSuite) TestAssign_GuardsAgainstDoubleBind() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()
	s.seedNumbers(serviceID, countryID, 1)

	phone, err := s.phones.ClaimAvailable(s.ctx, serviceID, countryID, time.Now())
	s.Require().NoError(err)

	bound, err := s.phones.Assign(s.ctx, phone.ID, primitive.NewObjectID(), time.Now())
	s.Require().NoError(err)
	s.True(bound)

	bound, err = s.phones.Assign(s.ctx, phone.ID, primitive.NewObjectID(), time.Now())
	s.Require().NoError(err)
	s.False(bound)
}

func (s *RepositoryIntegrationSuite) TestPushMessage_AppendsHistory() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()
	phones := s.seedNumbers(serviceID, countryID, 1)

	found, err := s.phones.PushMessage(s.ctx, phones[0].ID, models.SMSMessage{
		Content:    "Your code is 4832",
		From:       "carrier",
		ReceivedAt: time.Now(),
	})
	s.Require().NoError(err)
	s.True(found)

	got, err := s.phones.FindByID(s.ctx, phones[0].ID)
	s.Require().NoError(err)
	s.Len(got.SMSReceived, 1)
	s.Equal("Your code is 4832", got.SMSReceived[0].Content)
}

func (s *RepositoryIntegrationSuite) TestFindExpiredLeases() {
	serviceID := primitive.NewObjectID()
	countryID := primitive.NewObjectID()

	stale := &models.PhoneNumber{
		Number:         "2025550150",
		ServiceID:      serviceID,
		CountryID:      countryID,
		Status:         models.PhoneStatusActive,
		IsUsed:         true,
		ExpirationTime: time.Now().Add(-time.Minute),
	}
	s.Require().NoError(s.phones.Create(s.ctx, stale))
	s.seedNumbers(serviceID, countryID, 2)

	expired, err := s.phones.FindExpiredLeases(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(stale.ID, expired[0].ID)
}
