package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"numpool/internal/models"
	"numpool/pkg/testutil"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SweeperTestSuite struct {
	suite.Suite
	ctx         context.Context
	orderRepo   *testutil.MockOrderRepository
	phoneRepo   *testutil.MockPhoneRepository
	txRepo      *testutil.MockTransactionRepository
	pricingRepo *testutil.MockPricingRepository
	catalogRepo *testutil.MockCatalogRepository
	sweeper     *Sweeper

	mu     sync.Mutex
	events []string
}

func (s *SweeperTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.orderRepo = new(testutil.MockOrderRepository)
	s.phoneRepo = new(testutil.MockPhoneRepository)
	s.txRepo = new(testutil.MockTransactionRepository)
	s.pricingRepo = new(testutil.MockPricingRepository)
	s.catalogRepo = new(testutil.MockCatalogRepository)
	s.events = nil

	logger := newTestLogger()
	cache := newOfflineCache()
	metrics := newTestMetrics()

	carrier, _ := newTestCarrier(s.T(), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errno":0,"errmsg":"","ret":{}}`)
	})

	pool := NewPoolService(s.phoneRepo, carrier, metrics, logger, 20*time.Minute)
	pricing := NewPricingService(s.pricingRepo, cache, logger)
	ledger := NewLedgerService(s.txRepo, cache, logger)
	catalog := NewCatalogService(s.catalogRepo, logger)

	orders := NewOrderService(
		s.orderRepo,
		pool,
		pricing,
		ledger,
		catalog,
		carrier,
		&stubScheduler{},
		cache,
		metrics,
		logger,
		15*time.Second,
		3,
	)

	s.sweeper = NewSweeper(pool, orders, ledger, metrics, logger, time.Minute, 5*time.Minute, 30*time.Minute)
}

func TestSweeperTestSuite(t *testing.T) {
	suite.Run(t, new(SweeperTestSuite))
}

func (s *SweeperTestSuite) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *SweeperTestSuite) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// An expired lease with a live order: the order must be failed while the
// number is still held, so a concurrent re-claim can never produce a fresh
// order that the same sweep then kills.
func (s *SweeperTestSuite) TestSweep_FailsOrdersBeforeReleasingNumbers() {
	phone := &models.PhoneNumber{
		ID:             primitive.NewObjectID(),
		Number:         "2025550123",
		CarrierLeaseID: "lease-3",
		Status:         models.PhoneStatusActive,
		IsUsed:         true,
		ExpirationTime: time.Now().Add(-time.Minute),
	}
	order := &models.Order{
		ID:            primitive.NewObjectID(),
		UserID:        primitive.NewObjectID(),
		ServiceID:     primitive.NewObjectID(),
		CountryID:     primitive.NewObjectID(),
		PhoneNumberID: phone.ID,
		TransactionID: primitive.NewObjectID(),
		Price:         0.15,
		Status:        models.OrderStatusActive,
		StartTime:     time.Now().Add(-30 * time.Minute),
	}

	s.phoneRepo.On("FindExpiredLeases", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]*models.PhoneNumber{phone}, nil)
	s.orderRepo.On("FindActiveByPhoneIDs", mock.Anything, []primitive.ObjectID{phone.ID}).
		Return([]*models.Order{order}, nil)
	s.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
	s.orderRepo.On("Fail", mock.Anything, order.ID, "lease expired", mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) { s.record("order-failed") }).
		Return(true, nil)

	s.txRepo.On("Settle", mock.Anything, order.TransactionID, models.TransactionStatusFailed).Return(true, nil)
	s.txRepo.On("FindByID", mock.Anything, order.TransactionID).Return(&models.Transaction{
		ID:     order.TransactionID,
		UserID: order.UserID,
		Status: models.TransactionStatusFailed,
	}, nil)
	s.catalogRepo.On("FindServiceByID", mock.Anything, order.ServiceID).Return(&models.Service{
		ID:          order.ServiceID,
		SuccessRate: 0.9,
	}, nil)
	s.catalogRepo.On("SetSuccessRate", mock.Anything, order.ServiceID, mock.AnythingOfType("float64")).Return(true, nil)

	// First release comes from the order's own teardown, the second from the
	// expired-lease batch finding the number already free.
	s.phoneRepo.On("Release", mock.Anything, phone.ID).
		Run(func(mock.Arguments) { s.record("number-released") }).
		Return(true, nil).Once()
	s.phoneRepo.On("Release", mock.Anything, phone.ID).
		Run(func(mock.Arguments) { s.record("number-released") }).
		Return(false, nil)

	s.orderRepo.On("FindStalePending", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Order{}, nil)
	s.txRepo.On("ExpireStalePending", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	s.sweeper.Sweep(s.ctx)

	events := s.recorded()
	s.Require().NotEmpty(events)
	s.Equal("order-failed", events[0])
	s.Contains(events, "number-released")

	s.orderRepo.AssertCalled(s.T(), "Fail", mock.Anything, order.ID, "lease expired", mock.AnythingOfType("time.Time"))
}

func (s *SweeperTestSuite) TestSweep_PhasesSurviveLeaseFailure() {
	s.phoneRepo.On("FindExpiredLeases", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(nil, fmt.Errorf("find failed"))
	s.orderRepo.On("FindStalePending", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Order{}, nil)
	s.txRepo.On("ExpireStalePending", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)

	s.sweeper.Sweep(s.ctx)

	s.orderRepo.AssertCalled(s.T(), "FindStalePending", mock.Anything, mock.AnythingOfType("time.Time"))
	s.txRepo.AssertCalled(s.T(), "ExpireStalePending", mock.Anything, mock.AnythingOfType("time.Time"))
}
