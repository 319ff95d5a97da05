package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const orderCacheTTL = 10 * time.Minute

var verificationCodePattern = regexp.MustCompile(`^\d{4,8}$`)

// PollScheduler enqueues delayed carrier code polls for an order.
type PollScheduler interface {
	SchedulePoll(ctx context.Context, orderID primitive.ObjectID, leaseID string, attempt int, delay time.Duration) error
}

// OrderService drives the lease lifecycle: claim a number, charge for it,
// wait for the verification code, settle. Every transition is conditional in
// Mongo, so replays and races resolve to ErrInvalidState instead of double
// writes.
type OrderService struct {
	orderRepo repository.OrderRepository
	pool      *PoolService
	pricing   *PricingService
	ledger    *LedgerService
	catalog   *CatalogService
	carrier   *CarrierClient
	retries   PollScheduler
	cache     *CacheService
	metrics   *MetricsCollector
	logger    *logrus.Logger

	pollInterval time.Duration
	maxPolls     int
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	pool *PoolService,
	pricing *PricingService,
	ledger *LedgerService,
	catalog *CatalogService,
	carrier *CarrierClient,
	retries PollScheduler,
	cache *CacheService,
	metrics *MetricsCollector,
	logger *logrus.Logger,
	pollInterval time.Duration,
	maxPolls int,
) *OrderService {
	return &OrderService{
		orderRepo:    orderRepo,
		pool:         pool,
		pricing:      pricing,
		ledger:       ledger,
		catalog:      catalog,
		carrier:      carrier,
		retries:      retries,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// Open resolves a price, claims a number, and opens a charged order for it.
// The claim happens first: it is the only contended step, and everything after
// it can be compensated by releasing the number. Post-claim writes run on a
// background context so a dropped client connection cannot strand the lease.
func (s *OrderService) Open(ctx context.Context, userID, serviceID, countryID primitive.ObjectID, clientIP string) (*models.Order, error) {
	price, err := s.pricing.Resolve(ctx, countryID, serviceID, 1)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < price {
		return nil, fmt.Errorf("%w: balance %.2f below price %.2f", models.ErrValidation, balance, price)
	}

	phone, err := s.pool.Claim(ctx, serviceID, countryID, userID)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	orderID := primitive.NewObjectID()

	tx, err := s.ledger.RecordPurchase(wctx, userID, orderID, price)
	if err != nil {
		s.compensate(phone.ID, orderID, "charge failed")
		return nil, err
	}

	order := &models.Order{
		ID:            orderID,
		UserID:        userID,
		ServiceID:     serviceID,
		CountryID:     countryID,
		PhoneNumberID: phone.ID,
		TransactionID: tx.ID,
		Price:         price,
		Status:        models.OrderStatusPending,
		StartTime:     now,
		IPAddress:     clientIP,
	}

	if err := s.orderRepo.Create(wctx, order); err != nil {
		s.compensate(phone.ID, orderID, "order write failed")
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Activation is the commit point. If the process dies before this write
	// the sweeper finds the pending order and unwinds it.
	activated, err := s.orderRepo.Activate(wctx, orderID, time.Now())
	if err != nil || !activated {
		s.compensate(phone.ID, orderID, "activation failed")
		if err == nil {
			err = models.ErrConflict
		}
		return nil, fmt.Errorf("activate order: %w", err)
	}
	order.Status = models.OrderStatusActive

	if err := s.cache.SetOrder(wctx, order, orderCacheTTL); err != nil {
		s.logger.Warnf("Failed to cache order %s: %v", orderID.Hex(), err)
	}

	if err := s.retries.SchedulePoll(wctx, orderID, phone.CarrierLeaseID, 1, s.pollInterval); err != nil {
		s.logger.Errorf("Failed to schedule first poll for order %s: %v", orderID.Hex(), err)
	}

	s.metrics.IncrementOrdersOpened(serviceID.Hex(), countryID.Hex())
	s.metrics.RecordOrderPrice(serviceID.Hex(), price)
	s.logger.Infof("Opened order %s: number %s for user %s at %.2f", orderID.Hex(), phone.Number, userID.Hex(), price)

	return order, nil
}

// SubmitCode completes an active order with a verification code. The code must
// be 4 to 8 digits. Completion is one shot: a replay or a race with the
// sweeper returns ErrInvalidState.
func (s *OrderService) SubmitCode(ctx context.Context, orderID primitive.ObjectID, code string) (*models.Order, error) {
	if !verificationCodePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: code must be 4-8 digits", models.ErrValidation)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, models.ErrOrderNotFound
	}

	now := time.Now()
	completed, err := s.orderRepo.Complete(ctx, orderID, code, now)
	if err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	if !completed {
		return nil, models.ErrInvalidState
	}

	s.finalize(order, models.OrderStatusCompleted, now)

	order.Status = models.OrderStatusCompleted
	order.VerificationCode = code
	order.EndTime = &now
	return order, nil
}

// Fail moves a pending or active order to failed and unwinds its charge and
// number. Idempotent at the caller level: a second Fail sees ErrInvalidState.
func (s *OrderService) Fail(ctx context.Context, orderID primitive.ObjectID, reason string) (*models.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, models.ErrOrderNotFound
	}

	now := time.Now()
	failed, err := s.orderRepo.Fail(ctx, orderID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("fail order: %w", err)
	}
	if !failed {
		return nil, models.ErrInvalidState
	}

	s.finalize(order, models.OrderStatusFailed, now)
	s.metrics.IncrementOrdersFailed(order.ServiceID.Hex(), order.CountryID.Hex(), reason)

	order.Status = models.OrderStatusFailed
	order.FailureReason = reason
	order.EndTime = &now
	return order, nil
}

// Get serves an order, cache first.
func (s *OrderService) Get(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error) {
	if cached, err := s.cache.GetOrder(ctx, orderID); err == nil && cached != nil {
		return cached, nil
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ActiveForUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Order, error) {
	return s.orderRepo.FindActiveByUser(ctx, userID)
}

func (s *OrderService) HistoryForNumber(ctx context.Context, phoneID primitive.ObjectID) ([]*models.Order, error) {
	return s.orderRepo.FindByPhoneNumber(ctx, phoneID)
}

// PollCode fetches the carrier-side message for an order's lease. A found code
// completes the order; an empty poll reschedules until the attempt budget runs
// out, then fails the order.
func (s *OrderService) PollCode(ctx context.Context, orderID primitive.ObjectID, leaseID string, attempt int) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if order == nil || order.Status.Terminal() {
		return nil
	}

	code, raw, err := s.carrier.FetchCode(ctx, leaseID)
	if err != nil {
		s.logger.Warnf("Carrier poll failed for order %s: %v", orderID.Hex(), err)
	}

	if code != "" {
		msg := models.SMSMessage{Content: raw, From: "carrier", ReceivedAt: time.Now()}
		if recErr := s.pool.RecordMessage(ctx, order.PhoneNumberID, msg); recErr != nil {
			s.logger.Warnf("Failed to record message for order %s: %v", orderID.Hex(), recErr)
		}

		if _, subErr := s.SubmitCode(ctx, orderID, code); subErr != nil {
			if subErr == models.ErrInvalidState {
				return nil
			}
			return subErr
		}
		return nil
	}

	if attempt >= s.maxPolls {
		_, failErr := s.Fail(ctx, orderID, "no code received")
		if failErr == models.ErrInvalidState {
			return nil
		}
		return failErr
	}

	return s.retries.SchedulePoll(ctx, orderID, leaseID, attempt+1, s.pollInterval)
}

// ExpirePending fails every pending order older than the cutoff, releasing
// its number. These are orders whose open flow died before activation.
func (s *OrderService) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.orderRepo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending orders: %w", err)
	}

	failed := 0
	for _, order := range stale {
		if _, err := s.Fail(ctx, order.ID, "abandoned before activation"); err != nil {
			if err != models.ErrInvalidState {
				s.logger.Errorf("Failed to expire pending order %s: %v", order.ID.Hex(), err)
			}
			continue
		}
		failed++
	}

	return failed, nil
}

// FailByPhoneIDs fails the live orders riding on the given numbers. The
// sweeper calls this for lapsed leases before releasing the numbers, so a
// re-claimed number can never have its fresh order swept.
func (s *OrderService) FailByPhoneIDs(ctx context.Context, phoneIDs []primitive.ObjectID, reason string) (int, error) {
	orders, err := s.orderRepo.FindActiveByPhoneIDs(ctx, phoneIDs)
	if err != nil {
		return 0, fmt.Errorf("find orders by phone: %w", err)
	}

	failed := 0
	for _, order := range orders {
		if _, err := s.Fail(ctx, order.ID, reason); err != nil {
			if err != models.ErrInvalidState {
				s.logger.Errorf("Failed to fail order %s for expired number: %v", order.ID.Hex(), err)
			}
			continue
		}
		failed++
	}

	return failed, nil
}

// IngestInbound records a delivered message against a phone and, when the
// body carries a verification code, submits it to the order bound to that
// number. Returns the completed order, or nil when nothing matched.
func (s *OrderService) IngestInbound(ctx context.Context, phoneID primitive.ObjectID, msg models.SMSMessage) (*models.Order, error) {
	if err := s.pool.RecordMessage(ctx, phoneID, msg); err != nil {
		return nil, err
	}

	code := extractCode(msg.Content)
	if code == "" {
		return nil, nil
	}

	orders, err := s.orderRepo.FindActiveByPhoneIDs(ctx, []primitive.ObjectID{phoneID})
	if err != nil {
		return nil, fmt.Errorf("find bound order: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	order, err := s.SubmitCode(ctx, orders[0].ID, code)
	if err != nil {
		if err == models.ErrInvalidState {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// finalize runs the post-transition bookkeeping shared by completion and
// failure: settle the charge, free the number, fold the outcome into catalog
// stats. All best effort on a background context; the order's own transition
// already committed.
func (s *OrderService) finalize(order *models.Order, status models.OrderStatus, endedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	txStatus := models.TransactionStatusCompleted
	if status == models.OrderStatusFailed {
		txStatus = models.TransactionStatusFailed
	}
	if err := s.ledger.Settle(ctx, order.TransactionID, txStatus); err != nil && err != models.ErrInvalidState {
		s.logger.Errorf("Failed to settle transaction %s for order %s: %v", order.TransactionID.Hex(), order.ID.Hex(), err)
	}

	if _, err := s.pool.Release(ctx, order.PhoneNumberID); err != nil {
		s.logger.Errorf("Failed to release number for order %s: %v", order.ID.Hex(), err)
	}

	s.catalog.RecordOutcome(ctx, order.ServiceID, status == models.OrderStatusCompleted)

	if err := s.cache.DeleteOrder(ctx, order.ID); err != nil {
		s.logger.Warnf("Failed to drop order cache %s: %v", order.ID.Hex(), err)
	}

	duration := endedAt.Sub(order.StartTime).Seconds()
	s.metrics.RecordOrderDuration(order.ServiceID.Hex(), string(status), duration)
	if status == models.OrderStatusCompleted {
		s.metrics.IncrementOrdersCompleted(order.ServiceID.Hex(), order.CountryID.Hex())
	}

	s.logger.Infof("Order %s reached %s after %.0fs", order.ID.Hex(), status, duration)
}

// compensate unwinds a partially opened order: the number goes back to the
// pool and whatever got written is failed. Runs detached from the request.
func (s *OrderService) compensate(phoneID, orderID primitive.ObjectID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.pool.Release(ctx, phoneID); err != nil {
		s.logger.Errorf("Compensation release failed for %s: %v", phoneID.Hex(), err)
	}

	if _, err := s.orderRepo.Fail(ctx, orderID, reason, time.Now()); err != nil {
		s.logger.Errorf("Compensation fail failed for order %s: %v", orderID.Hex(), err)
	}
}
