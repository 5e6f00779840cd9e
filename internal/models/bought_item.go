package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BoughtItemStatus string

const (
	StatusReserved    BoughtItemStatus = "reserved"
	StatusUnpaid      BoughtItemStatus = "unpaid"
	StatusBought      BoughtItemStatus = "bought"
	StatusRefunded    BoughtItemStatus = "refunded"
	StatusTransferred BoughtItemStatus = "transferred"
)

// CartStatuses are the statuses a purchase settles.
var CartStatuses = []BoughtItemStatus{StatusReserved, StatusUnpaid}

// CapacityStatuses count against an option's remaining capacity.
var CapacityStatuses = []BoughtItemStatus{StatusReserved, StatusUnpaid, StatusBought}

// PurchasedStatuses mark an item that has been paid for at some point.
var PurchasedStatuses = []BoughtItemStatus{StatusBought, StatusRefunded, StatusTransferred}

func (s BoughtItemStatus) Valid() bool {
	switch s {
	case StatusReserved, StatusUnpaid, StatusBought, StatusRefunded, StatusTransferred:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s BoughtItemStatus) CanTransitionTo(next BoughtItemStatus) bool {
	switch s {
	case StatusReserved:
		return next == StatusUnpaid || next == StatusBought
	case StatusUnpaid:
		return next == StatusBought
	case StatusBought:
		return next == StatusRefunded || next == StatusTransferred
	case StatusRefunded, StatusTransferred:
		return false
	default:
		return false
	}
}

func (s BoughtItemStatus) CountsAgainstCapacity() bool {
	switch s {
	case StatusReserved, StatusUnpaid, StatusBought:
		return true
	case StatusRefunded, StatusTransferred:
		return false
	default:
		return false
	}
}

func (s BoughtItemStatus) IsPurchased() bool {
	switch s {
	case StatusBought, StatusRefunded, StatusTransferred:
		return true
	case StatusReserved, StatusUnpaid:
		return false
	default:
		return false
	}
}

// ItemSnapshot is the catalog data frozen onto a BoughtItem at reservation.
type ItemSnapshot struct {
	ItemName        string          `bun:"item_name,notnull" json:"item_name"`
	ItemDescription string          `bun:"item_description" json:"item_description"`
	OptionName      string          `bun:"item_option_name,notnull" json:"item_option_name"`
	Price           decimal.Decimal `bun:"price,type:decimal(10,2),notnull" json:"price"`
}

// NewItemSnapshot copies name, description and price from option. The
// option's Item relation must be loaded.
func NewItemSnapshot(option *CatalogOption) ItemSnapshot {
	snap := ItemSnapshot{
		OptionName: option.Name,
		Price:      option.Price,
	}
	if option.Item != nil {
		snap.ItemName = option.Item.Name
		snap.ItemDescription = option.Item.Description
	}
	return snap
}

// BoughtItem is one line item of an order. OptionID is a soft reference and
// is cleared if the catalog option is deleted; the snapshot stays.
type BoughtItem struct {
	bun.BaseModel `bun:"table:bought_items"`

	ID         string           `bun:"id,pk" json:"id"`
	OrderID    string           `bun:"order_id,notnull" json:"order_id"`
	OptionID   string           `bun:"item_option_id,nullzero" json:"item_option_id,omitempty"`
	Status     BoughtItemStatus `bun:"status,notnull" json:"status"`
	AttendeeID string           `bun:"attendee_id,nullzero" json:"attendee_id,omitempty"`
	ItemSnapshot
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	Discounts []BoughtItemDiscount `bun:"rel:has-many,join:id=bought_item_id" json:"discounts,omitempty"`
}

// Savings sums the savings of every attached discount.
func (b *BoughtItem) Savings() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Discounts {
		total = total.Add(b.Discounts[i].Savings(b.Price))
	}
	return total
}

// DiscountSnapshot is the discount data frozen onto an attachment.
type DiscountSnapshot struct {
	Name   string          `bun:"name,notnull" json:"name"`
	Code   string          `bun:"code,notnull,unique:item_discount_code" json:"code"`
	Type   DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	Amount decimal.Decimal `bun:"amount,type:decimal(10,2),notnull" json:"amount"`
}

func NewDiscountSnapshot(d *Discount) DiscountSnapshot {
	return DiscountSnapshot{Name: d.Name, Code: d.Code, Type: d.Type, Amount: d.Amount}
}

// BoughtItemDiscount attaches a frozen discount to a line item. At most one
// attachment per (item, code).
type BoughtItemDiscount struct {
	bun.BaseModel `bun:"table:bought_item_discounts"`

	ID           string `bun:"id,pk" json:"id"`
	BoughtItemID string `bun:"bought_item_id,notnull,unique:item_discount_code" json:"bought_item_id"`
	DiscountID   string `bun:"discount_id,nullzero" json:"discount_id,omitempty"`
	DiscountSnapshot
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
}

func (d *BoughtItemDiscount) Savings(price decimal.Decimal) decimal.Decimal {
	return d.Type.Savings(d.Amount, price)
}
