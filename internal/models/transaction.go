package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypePurchase   TransactionType = "purchase"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one ledger entry. Entries are immutable once written except
// for the single pending -> completed/failed status transition. OrderID is
// mandatory for purchases so the ledger never carries a charge without an
// order behind it.
type Transaction struct {
	ID             primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID     `bson:"user_id" json:"user_id"`
	Amount         float64                `bson:"amount" json:"amount"`
	Type           TransactionType        `bson:"type" json:"type"`
	Status         TransactionStatus      `bson:"status" json:"status"`
	PaymentMethod  string                 `bson:"payment_method" json:"payment_method"`
	PaymentDetails map[string]interface{} `bson:"payment_details" json:"payment_details"`
	OrderID        *primitive.ObjectID    `bson:"order_id" json:"order_id"`
	CreatedAt      time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `bson:"updated_at" json:"updated_at"`
}
