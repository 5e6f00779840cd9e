package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order is an attendee's ledger for one event. PersonID is empty for
// anonymous orders resolved through a session.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string     `bun:"id,pk" json:"id"`
	EventID       string     `bun:"event_id,notnull,unique:order_event_code" json:"event_id"`
	PersonID      string     `bun:"person_id,nullzero" json:"person_id,omitempty"`
	Code          string     `bun:"code,notnull,unique:order_event_code" json:"code"`
	CartStartTime *time.Time `bun:"cart_start_time" json:"cart_start_time,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Identity is the caller an order is resolved for. Either field may be empty.
type Identity struct {
	PersonID     string
	SessionToken string
}

func (i Identity) Authenticated() bool {
	return i.PersonID != ""
}

type AddItemRequest struct {
	OptionID string `json:"option_id"`
}

type AddDiscountRequest struct {
	Code string `json:"code"`
	// Force skips the validity window; organizers only.
	Force bool `json:"force"`
}
