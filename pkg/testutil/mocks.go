package testutil

import (
	"context"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockPhoneRepository is a testify mock for repository.PhoneRepository.
type MockPhoneRepository struct {
	mock.Mock
}

func (m *MockPhoneRepository) Create(ctx context.Context, phone *models.PhoneNumber) error {
	args := m.Called(ctx, phone)
	return args.Error(0)
}

func (m *MockPhoneRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PhoneNumber, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PhoneNumber), args.Error(1)
}

func (m *MockPhoneRepository) FindByNumber(ctx context.Context, number string) (*models.PhoneNumber, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PhoneNumber), args.Error(1)
}

func (m *MockPhoneRepository) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.PhoneNumber, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PhoneNumber), args.Error(1)
}

func (m *MockPhoneRepository) ClaimAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (*models.PhoneNumber, error) {
	args := m.Called(ctx, serviceID, countryID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PhoneNumber), args.Error(1)
}

func (m *MockPhoneRepository) Assign(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockPhoneRepository) Release(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPhoneRepository) PushMessage(ctx context.Context, id primitive.ObjectID, msg models.SMSMessage) (bool, error) {
	args := m.Called(ctx, id, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockPhoneRepository) ExtendExpiration(ctx context.Context, id primitive.ObjectID, until time.Time) (bool, error) {
	args := m.Called(ctx, id, until)
	return args.Bool(0), args.Error(1)
}

func (m *MockPhoneRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.PhoneStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockPhoneRepository) FindExpiredLeases(ctx context.Context, now time.Time) ([]*models.PhoneNumber, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PhoneNumber), args.Error(1)
}

func (m *MockPhoneRepository) CountAvailable(ctx context.Context, serviceID, countryID primitive.ObjectID, now time.Time) (int64, error) {
	args := m.Called(ctx, serviceID, countryID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPhoneRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockOrderRepository is a testify mock for repository.OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) Activate(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) Complete(ctx context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, code, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) Fail(ctx context.Context, id primitive.ObjectID, reason string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, reason, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]*models.Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) FindActiveByPhoneIDs(ctx context.Context, phoneIDs []primitive.ObjectID) ([]*models.Order, error) {
	args := m.Called(ctx, phoneIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) FindActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByPhoneNumber(ctx context.Context, phoneID primitive.ObjectID) ([]*models.Order, error) {
	args := m.Called(ctx, phoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) FindCompletedByService(ctx context.Context, serviceID primitive.ObjectID, limit int64) ([]*models.Order, error) {
	args := m.Called(ctx, serviceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTransactionRepository is a testify mock for repository.TransactionRepository.
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Settle(ctx context.Context, id primitive.ObjectID, status models.TransactionStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) Balance(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockTransactionRepository) TotalDeposits(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockTransactionRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) FindByOrder(ctx context.Context, orderID primitive.ObjectID) ([]*models.Transaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPricingRepository is a testify mock for repository.PricingRepository.
type MockPricingRepository struct {
	mock.Mock
}

func (m *MockPricingRepository) Create(ctx context.Context, entry *models.PricingEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPricingRepository) FindByPair(ctx context.Context, countryID, serviceID primitive.ObjectID) (*models.PricingEntry, error) {
	args := m.Called(ctx, countryID, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PricingEntry), args.Error(1)
}

func (m *MockPricingRepository) FindByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.PricingEntry, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PricingEntry), args.Error(1)
}

func (m *MockPricingRepository) FindByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.PricingEntry, error) {
	args := m.Called(ctx, countryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PricingEntry), args.Error(1)
}

func (m *MockPricingRepository) UpdateCurrentPrice(ctx context.Context, countryID, serviceID primitive.ObjectID, price float64) (bool, error) {
	args := m.Called(ctx, countryID, serviceID, price)
	return args.Bool(0), args.Error(1)
}

func (m *MockPricingRepository) ReplaceDiscounts(ctx context.Context, countryID, serviceID primitive.ObjectID, tiers []models.BulkDiscount) (bool, error) {
	args := m.Called(ctx, countryID, serviceID, tiers)
	return args.Bool(0), args.Error(1)
}

func (m *MockPricingRepository) SyncBasePrice(ctx context.Context, serviceID primitive.ObjectID, newBase float64) (int64, error) {
	args := m.Called(ctx, serviceID, newBase)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPricingRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCatalogRepository is a testify mock for repository.CatalogRepository.
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) CreateService(ctx context.Context, svc *models.Service) error {
	args := m.Called(ctx, svc)
	return args.Error(0)
}

func (m *MockCatalogRepository) FindServiceByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *MockCatalogRepository) PopularServices(ctx context.Context, limit int64) ([]*models.Service, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

func (m *MockCatalogRepository) ServicesByCountry(ctx context.Context, countryID primitive.ObjectID) ([]*models.Service, error) {
	args := m.Called(ctx, countryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

func (m *MockCatalogRepository) SetSuccessRate(ctx context.Context, id primitive.ObjectID, rate float64) (bool, error) {
	args := m.Called(ctx, id, rate)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) IncrementPopularity(ctx context.Context, id primitive.ObjectID, delta float64) (bool, error) {
	args := m.Called(ctx, id, delta)
	return args.Bool(0), args.Error(1)
}

func (m *MockCatalogRepository) CreateCountry(ctx context.Context, country *models.Country) error {
	args := m.Called(ctx, country)
	return args.Error(0)
}

func (m *MockCatalogRepository) FindCountryByID(ctx context.Context, id primitive.ObjectID) (*models.Country, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Country), args.Error(1)
}

func (m *MockCatalogRepository) ActiveCountries(ctx context.Context) ([]*models.Country, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Country), args.Error(1)
}

func (m *MockCatalogRepository) CountriesByService(ctx context.Context, serviceID primitive.ObjectID) ([]*models.Country, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Country), args.Error(1)
}

func (m *MockCatalogRepository) SearchCountries(ctx context.Context, query string, limit int64) ([]*models.Country, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Country), args.Error(1)
}

func (m *MockCatalogRepository) CreateSMSLog(ctx context.Context, log *models.SMSLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockCatalogRepository) SMSLogsByNumber(ctx context.Context, number string, limit int64) ([]*models.SMSLog, error) {
	args := m.Called(ctx, number, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SMSLog), args.Error(1)
}

func (m *MockCatalogRepository) CreateIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
