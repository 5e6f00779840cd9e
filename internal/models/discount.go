package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountFlat    DiscountType = "flat"
	DiscountPercent DiscountType = "percent"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountFlat, DiscountPercent:
		return true
	default:
		return false
	}
}

// Savings is the discount value applied to price: flat amounts and
// percentages are both capped at the price and never negative.
func (t DiscountType) Savings(amount, price decimal.Decimal) decimal.Decimal {
	if price.IsNegative() || amount.IsNegative() {
		return decimal.Zero
	}
	var savings decimal.Decimal
	switch t {
	case DiscountFlat:
		savings = amount
	case DiscountPercent:
		savings = amount.Div(decimal.NewFromInt(100)).Mul(price)
	default:
		return decimal.Zero
	}
	return decimal.Min(savings, price)
}

type Discount struct {
	bun.BaseModel `bun:"table:discounts"`

	ID             string          `bun:"id,pk" json:"id"`
	EventID        string          `bun:"event_id,notnull,unique:discount_event_code" json:"event_id"`
	Name           string          `bun:"name,notnull" json:"name"`
	Code           string          `bun:"code,notnull,unique:discount_event_code" json:"code"`
	Type           DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	Amount         decimal.Decimal `bun:"amount,type:decimal(10,2),notnull" json:"amount"`
	AvailableStart time.Time       `bun:"available_start,notnull" json:"available_start"`
	AvailableEnd   time.Time       `bun:"available_end,notnull" json:"available_end"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// DiscountOption marks a CatalogOption as eligible for a Discount.
type DiscountOption struct {
	bun.BaseModel `bun:"table:discount_options"`

	DiscountID string `bun:"discount_id,pk"`
	OptionID   string `bun:"option_id,pk"`
}
