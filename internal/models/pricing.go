package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BulkDiscount is one quantity tier. The tier list on a PricingEntry is kept
// sorted with strictly increasing MinQuantity and strictly decreasing PricePer;
// the invariant is enforced when tiers are written, not when prices are read.
type BulkDiscount struct {
	MinQuantity int     `bson:"min_quantity" json:"min_quantity"`
	PricePer    float64 `bson:"price_per" json:"price_per"`
}

// PricingEntry holds the price book for one country/service pair.
// CurrentPrice never drops below BasePrice.
type PricingEntry struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CountryID     primitive.ObjectID `bson:"country_id" json:"country_id"`
	ServiceID     primitive.ObjectID `bson:"service_id" json:"service_id"`
	BasePrice     float64            `bson:"base_price" json:"base_price"`
	CurrentPrice  float64            `bson:"current_price" json:"current_price"`
	BulkDiscounts []BulkDiscount     `bson:"bulk_discounts" json:"bulk_discounts"`
	LastUpdated   time.Time          `bson:"last_updated" json:"last_updated"`
}

// PriceFor resolves the best unit price for the given quantity: the current
// price, unless a qualifying tier is strictly cheaper. Tiers are assumed
// pre-sorted ascending by MinQuantity.
func (p *PricingEntry) PriceFor(quantity int) float64 {
	best := p.CurrentPrice
	for _, tier := range p.BulkDiscounts {
		if quantity >= tier.MinQuantity && tier.PricePer < best {
			best = tier.PricePer
		}
	}
	return best
}
