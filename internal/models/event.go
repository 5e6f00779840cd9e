package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// APIType separates live processor traffic from test-mode traffic.
type APIType string

const (
	APITypeLive APIType = "live"
	APITypeTest APIType = "test"
)

func (a APIType) Valid() bool {
	switch a {
	case APITypeLive, APITypeTest:
		return true
	default:
		return false
	}
}

type Organization struct {
	bun.BaseModel `bun:"table:organizations"`

	ID           string    `bun:"id,pk" json:"id"`
	Name         string    `bun:"name,notnull" json:"name"`
	LastModified time.Time `bun:"last_modified,notnull" json:"last_modified"`
}

// Event carries the configuration the ledger reads: currency, cart timeout,
// fee percentage and processor mode.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                    string          `bun:"id,pk" json:"id"`
	OrganizationID        string          `bun:"organization_id,notnull" json:"organization_id"`
	Name                  string          `bun:"name,notnull" json:"name"`
	Currency              string          `bun:"currency,notnull" json:"currency"`
	CartTimeoutMinutes    int             `bun:"cart_timeout_minutes,notnull" json:"cart_timeout_minutes"`
	ApplicationFeePercent decimal.Decimal `bun:"application_fee_percent,type:decimal(5,2),notnull" json:"application_fee_percent"`
	APIType               APIType         `bun:"api_type,notnull" json:"api_type"`
	StripeAccountID       string          `bun:"stripe_account_id,nullzero" json:"stripe_account_id,omitempty"`
	CheckPaymentAllowed   bool            `bun:"check_payment_allowed,notnull" json:"check_payment_allowed"`
	LastModified          time.Time       `bun:"last_modified,notnull" json:"last_modified"`
}

// CartTimeout returns the event's cart lifetime.
func (e *Event) CartTimeout() time.Duration {
	return time.Duration(e.CartTimeoutMinutes) * time.Minute
}
