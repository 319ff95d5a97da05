//go:build integration

package repository

import (
	"time"

	"numpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *RepositoryIntegrationSuite) newTransaction(userID primitive.ObjectID, txType models.TransactionType, status models.TransactionStatus, amount float64) *models.Transaction {
	tx := &models.Transaction{
		UserID: userID,
		Amount: amount,
		Type:   txType,
		Status: status,
	}
	s.Require().NoError(s.txs.Create(s.ctx, tx))
	return tx
}

func (s *RepositoryIntegrationSuite) TestBalance_SignedSumOfCompletedOnly() {
	userID := primitive.NewObjectID()

	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusCompleted, 50.00)
	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusCompleted, 10.00)
	s.newTransaction(userID, models.TransactionTypeWithdrawal, models.TransactionStatusCompleted, 5.00)
	s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusCompleted, 0.15)
	// Pending and failed entries never count.
	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusPending, 100.00)
	s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusFailed, 0.15)
	// Other users never count.
	s.newTransaction(primitive.NewObjectID(), models.TransactionTypeDeposit, models.TransactionStatusCompleted, 999.00)

	balance, err := s.txs.Balance(s.ctx, userID)
	s.Require().NoError(err)
	s.InDelta(54.85, balance, 0.001)
}

func (s *RepositoryIntegrationSuite) TestBalance_EmptyLedger() {
	balance, err := s.txs.Balance(s.ctx, primitive.NewObjectID())
	s.Require().NoError(err)
	s.Zero(balance)
}

func (s *RepositoryIntegrationSuite) TestTotalDeposits() {
	userID := primitive.NewObjectID()

	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusCompleted, 50.00)
	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusCompleted, 25.00)
	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusPending, 10.00)
	s.newTransaction(userID, models.TransactionTypeWithdrawal, models.TransactionStatusCompleted, 5.00)

	total, err := s.txs.TotalDeposits(s.ctx, userID)
	s.Require().NoError(err)
	s.InDelta(75.00, total, 0.001)
}

func (s *RepositoryIntegrationSuite) TestSettle_OneShot() {
	userID := primitive.NewObjectID()
	tx := s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusPending, 0.15)

	settled, err := s.txs.Settle(s.ctx, tx.ID, models.TransactionStatusCompleted)
	s.Require().NoError(err)
	s.True(settled)

	// A settled entry never transitions again.
	settled, err = s.txs.Settle(s.ctx, tx.ID, models.TransactionStatusFailed)
	s.Require().NoError(err)
	s.False(settled)

	got, err := s.txs.FindByID(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusCompleted, got.Status)
}

func (s *RepositoryIntegrationSuite) TestFindByUser_Filters() {
	userID := primitive.NewObjectID()

	s.newTransaction(userID, models.TransactionTypeDeposit, models.TransactionStatusCompleted, 50.00)
	s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusPending, 0.15)
	s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusCompleted, 0.20)

	purchases, err := s.txs.FindByUser(s.ctx, userID, TransactionFilter{Type: models.TransactionTypePurchase})
	s.Require().NoError(err)
	s.Len(purchases, 2)

	pending, err := s.txs.FindByUser(s.ctx, userID, TransactionFilter{Status: models.TransactionStatusPending})
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *RepositoryIntegrationSuite) TestExpireStalePending() {
	userID := primitive.NewObjectID()

	stale := s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusPending, 0.15)
	time.Sleep(100 * time.Millisecond)
	cutoff := time.Now()
	fresh := s.newTransaction(userID, models.TransactionTypePurchase, models.TransactionStatusPending, 0.15)

	expired, err := s.txs.ExpireStalePending(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(int64(1), expired)

	got, err := s.txs.FindByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusFailed, got.Status)

	got, err = s.txs.FindByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusPending, got.Status)
}
