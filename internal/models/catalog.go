package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Service is a catalog entry for a third-party service numbers are leased for.
type Service struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name               string               `bson:"name" json:"name"`
	Icon               string               `bson:"icon" json:"icon"`
	BasePrice          float64              `bson:"base_price" json:"base_price"`
	CurrentPrice       float64              `bson:"current_price" json:"current_price"`
	AvailableCountries []primitive.ObjectID `bson:"available_countries" json:"available_countries"`
	SuccessRate        float64              `bson:"success_rate" json:"success_rate"`
	Popularity         float64              `bson:"popularity" json:"popularity"`
	IsFreeAllowed      bool                 `bson:"is_free_allowed" json:"is_free_allowed"`
	FreeDailyLimit     int                  `bson:"free_daily_limit" json:"free_daily_limit"`
	LastUpdated        time.Time            `bson:"last_updated" json:"last_updated"`
}

// Country is a catalog entry for a supported country.
type Country struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name              string               `bson:"name" json:"name"`
	Code              string               `bson:"code" json:"code"`
	FlagIcon          string               `bson:"flag_icon" json:"flag_icon"`
	IsActive          bool                 `bson:"is_active" json:"is_active"`
	PhoneCode         string               `bson:"phone_code" json:"phone_code"`
	AvailableServices []primitive.ObjectID `bson:"available_services" json:"available_services"`
}

// ServiceStats is the per-service aggregate computed by the stats worker.
type ServiceStats struct {
	ServiceID       primitive.ObjectID `json:"service_id"`
	CompletedOrders int                `json:"completed_orders"`
	MeanDuration    float64            `json:"mean_duration_seconds"`
	StdDevDuration  float64            `json:"stddev_duration_seconds"`
	MeanPrice       float64            `json:"mean_price"`
}
