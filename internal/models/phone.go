package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SMSMessage is one inbound message recorded against a phone number. Messages
// may arrive after the lease nominally ended (carrier delivery delay), so the
// history is append-only and independent of lease state.
type SMSMessage struct {
	Content    string    `bson:"content" json:"content"`
	From       string    `bson:"from" json:"from"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
}

type PhoneStatus string

const (
	PhoneStatusActive   PhoneStatus = "active"
	PhoneStatusInactive PhoneStatus = "inactive"
	PhoneStatusBanned   PhoneStatus = "banned"
)

// PhoneNumber is a pool-owned number. IsUsed=true always implies a claim is in
// flight; CurrentUser is set once the claim is bound to a caller.
type PhoneNumber struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Number         string              `bson:"number" json:"number"`
	CountryID      primitive.ObjectID  `bson:"country_id" json:"country_id"`
	ServiceID      primitive.ObjectID  `bson:"service_id" json:"service_id"`
	Provider       string              `bson:"provider" json:"provider"`
	CarrierLeaseID string              `bson:"carrier_lease_id" json:"carrier_lease_id"`
	Status         PhoneStatus         `bson:"status" json:"status"`
	IsUsed         bool                `bson:"is_used" json:"is_used"`
	CurrentUser    *primitive.ObjectID `bson:"current_user" json:"current_user"`
	ExpirationTime time.Time           `bson:"expiration_time" json:"expiration_time"`
	LastUsed       *time.Time          `bson:"last_used" json:"last_used"`
	SMSReceived    []SMSMessage        `bson:"sms_received" json:"sms_received"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// SMSLog is the global inbound-message log, one document per received message.
type SMSLog struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Number     string             `bson:"number" json:"number"`
	Content    string             `bson:"content" json:"content"`
	From       string             `bson:"from" json:"from"`
	ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
}
