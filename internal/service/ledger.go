package service

import (
	"context"
	"fmt"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const balanceCacheTTL = 30 * time.Second

// LedgerService is the append-only money trail. Balances are always derived
// from the entries, never stored; the only mutation an entry ever sees is its
// pending -> completed/failed settlement.
type LedgerService struct {
	txRepo repository.TransactionRepository
	cache  *CacheService
	logger *logrus.Logger
}

func NewLedgerService(txRepo repository.TransactionRepository, cache *CacheService, logger *logrus.Logger) *LedgerService {
	return &LedgerService{
		txRepo: txRepo,
		cache:  cache,
		logger: logger,
	}
}

// Deposit records a credit for the user. Completed immediately; gateways that
// confirm asynchronously should record a pending deposit and settle it later.
func (s *LedgerService) Deposit(ctx context.Context, userID primitive.ObjectID, amount float64, method string, details map[string]interface{}) (*models.Transaction, error) {
	return s.record(ctx, &models.Transaction{
		UserID:         userID,
		Amount:         amount,
		Type:           models.TransactionTypeDeposit,
		Status:         models.TransactionStatusCompleted,
		PaymentMethod:  method,
		PaymentDetails: details,
	})
}

// Withdraw records a debit. Rejected when it would push the derived balance
// negative.
func (s *LedgerService) Withdraw(ctx context.Context, userID primitive.ObjectID, amount float64, method string) (*models.Transaction, error) {
	amount = roundCents(amount)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %.2f below withdrawal %.2f", models.ErrValidation, balance, amount)
	}

	return s.record(ctx, &models.Transaction{
		UserID:        userID,
		Amount:        amount,
		Type:          models.TransactionTypeWithdrawal,
		Status:        models.TransactionStatusPending,
		PaymentMethod: method,
	})
}

// RecordPurchase writes the pending charge behind an order. The order link is
// mandatory so no purchase can exist without an order explaining it.
func (s *LedgerService) RecordPurchase(ctx context.Context, userID, orderID primitive.ObjectID, amount float64) (*models.Transaction, error) {
	if orderID.IsZero() {
		return nil, fmt.Errorf("%w: purchase requires an order", models.ErrValidation)
	}

	return s.record(ctx, &models.Transaction{
		UserID:  userID,
		Amount:  amount,
		Type:    models.TransactionTypePurchase,
		Status:  models.TransactionStatusPending,
		OrderID: &orderID,
	})
}

// Settle moves a pending entry to its final status. One shot: a second settle
// on the same entry returns ErrInvalidState.
func (s *LedgerService) Settle(ctx context.Context, txID primitive.ObjectID, status models.TransactionStatus) error {
	if status != models.TransactionStatusCompleted && status != models.TransactionStatusFailed {
		return fmt.Errorf("%w: settle status must be terminal", models.ErrValidation)
	}

	settled, err := s.txRepo.Settle(ctx, txID, status)
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if !settled {
		tx, lookupErr := s.txRepo.FindByID(ctx, txID)
		if lookupErr != nil {
			return fmt.Errorf("settle transaction: %w", lookupErr)
		}
		if tx == nil {
			return models.ErrTransactionNotFound
		}
		return models.ErrInvalidState
	}

	if tx, err := s.txRepo.FindByID(ctx, txID); err == nil && tx != nil {
		s.cache.InvalidateBalance(ctx, tx.UserID)
	}

	return nil
}

// Balance derives the user's balance: completed deposits minus completed
// withdrawals and purchases. Pending entries do not count.
func (s *LedgerService) Balance(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	if cached, ok, err := s.cache.GetBalance(ctx, userID); err == nil && ok {
		return cached, nil
	}

	balance, err := s.txRepo.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("derive balance: %w", err)
	}

	if err := s.cache.SetBalance(ctx, userID, balance, balanceCacheTTL); err != nil {
		s.logger.Warnf("Failed to cache balance for %s: %v", userID.Hex(), err)
	}

	return balance, nil
}

func (s *LedgerService) TotalDeposits(ctx context.Context, userID primitive.ObjectID) (float64, error) {
	total, err := s.txRepo.TotalDeposits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("total deposits: %w", err)
	}
	return total, nil
}

func (s *LedgerService) History(ctx context.Context, userID primitive.ObjectID, filter repository.TransactionFilter) ([]*models.Transaction, error) {
	txs, err := s.txRepo.FindByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) ByOrder(ctx context.Context, orderID primitive.ObjectID) ([]*models.Transaction, error) {
	txs, err := s.txRepo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("transactions by order: %w", err)
	}
	return txs, nil
}

// ExpireStalePending fails pending entries older than the cutoff. Called from
// the sweeper so abandoned charges do not sit pending forever.
func (s *LedgerService) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	expired, err := s.txRepo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}
	if expired > 0 {
		s.logger.Infof("Expired %d stale pending transactions", expired)
	}
	return expired, nil
}

func (s *LedgerService) record(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	tx.Amount = roundCents(tx.Amount)
	if tx.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	s.cache.InvalidateBalance(ctx, tx.UserID)
	return tx, nil
}
