package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Order tracks one number lease end to end. EndTime is set exactly when the
// order reaches a terminal status, never before.
type Order struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"user_id" json:"user_id"`
	ServiceID        primitive.ObjectID `bson:"service_id" json:"service_id"`
	CountryID        primitive.ObjectID `bson:"country_id" json:"country_id"`
	PhoneNumberID    primitive.ObjectID `bson:"phone_number_id" json:"phone_number_id"`
	TransactionID    primitive.ObjectID `bson:"transaction_id" json:"transaction_id"`
	Price            float64            `bson:"price" json:"price"`
	Status           OrderStatus        `bson:"status" json:"status"`
	StartTime        time.Time          `bson:"start_time" json:"start_time"`
	EndTime          *time.Time         `bson:"end_time" json:"end_time"`
	VerificationCode string             `bson:"verification_code" json:"verification_code"`
	FailureReason    string             `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	IPAddress        string             `bson:"ip_address" json:"ip_address"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}
