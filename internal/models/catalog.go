package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type CatalogItem struct {
	bun.BaseModel `bun:"table:catalog_items"`

	ID          string `bun:"id,pk" json:"id"`
	EventID     string `bun:"event_id,notnull" json:"event_id"`
	Name        string `bun:"name,notnull" json:"name"`
	Description string `bun:"description" json:"description"`
}

// CatalogOption is a purchasable variant of a CatalogItem. A nil TotalNumber
// means unlimited capacity.
type CatalogOption struct {
	bun.BaseModel `bun:"table:catalog_options"`

	ID             string          `bun:"id,pk" json:"id"`
	ItemID         string          `bun:"item_id,notnull" json:"item_id"`
	Name           string          `bun:"name,notnull" json:"name"`
	Price          decimal.Decimal `bun:"price,type:decimal(10,2),notnull" json:"price"`
	TotalNumber    *int            `bun:"total_number" json:"total_number,omitempty"`
	AvailableStart time.Time       `bun:"available_start,notnull" json:"available_start"`
	AvailableEnd   time.Time       `bun:"available_end,notnull" json:"available_end"`

	Item *CatalogItem `bun:"rel:belongs-to,join:item_id=id" json:"item,omitempty"`
}

// IsAvailableAt reports whether now falls inside [AvailableStart, AvailableEnd).
func (o *CatalogOption) IsAvailableAt(now time.Time) bool {
	return !now.Before(o.AvailableStart) && now.Before(o.AvailableEnd)
}
