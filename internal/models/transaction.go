package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionRefund   TransactionType = "refund"
	TransactionTransfer TransactionType = "transfer"
	TransactionOther    TransactionType = "other"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionRefund, TransactionTransfer, TransactionOther:
		return true
	default:
		return false
	}
}

type TransactionMethod string

const (
	MethodStripe       TransactionMethod = "stripe"
	MethodBankTransfer TransactionMethod = "bank_transfer"
	MethodCash         TransactionMethod = "cash"
	MethodCheck        TransactionMethod = "check"
	MethodFake         TransactionMethod = "fake"
	MethodNone         TransactionMethod = "none"
)

func (m TransactionMethod) Valid() bool {
	switch m {
	case MethodStripe, MethodBankTransfer, MethodCash, MethodCheck, MethodFake, MethodNone:
		return true
	default:
		return false
	}
}

// HasProcessor reports whether money moves through an external processor.
func (m TransactionMethod) HasProcessor() bool {
	switch m {
	case MethodStripe, MethodBankTransfer, MethodFake:
		return true
	case MethodCash, MethodCheck, MethodNone:
		return false
	default:
		return false
	}
}

// IsRefundable reports whether a purchase made with m can be refunded.
// Bank transfers have no programmatic refund path.
func (m TransactionMethod) IsRefundable() bool {
	switch m {
	case MethodStripe, MethodFake, MethodCash, MethodCheck, MethodNone:
		return true
	case MethodBankTransfer:
		return false
	default:
		return false
	}
}

// IsManual reports whether organizers may enter payments with m by hand.
func (m TransactionMethod) IsManual() bool {
	switch m {
	case MethodCash, MethodCheck, MethodNone:
		return true
	case MethodStripe, MethodBankTransfer, MethodFake:
		return false
	default:
		return false
	}
}

// Transaction is an immutable ledger entry. Amount is positive for
// purchases and negative for refunds.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID                   string            `bun:"id,pk" json:"id"`
	EventID              string            `bun:"event_id,notnull" json:"event_id"`
	OrderID              string            `bun:"order_id,nullzero" json:"order_id,omitempty"`
	CreatedBy            string            `bun:"created_by,nullzero" json:"created_by,omitempty"`
	Method               TransactionMethod `bun:"method,notnull" json:"method"`
	Type                 TransactionType   `bun:"transaction_type,notnull" json:"transaction_type"`
	Amount               decimal.Decimal   `bun:"amount,type:decimal(10,2),notnull" json:"amount"`
	ApplicationFee       decimal.Decimal   `bun:"application_fee,type:decimal(10,2),notnull" json:"application_fee"`
	ProcessingFee        decimal.Decimal   `bun:"processing_fee,type:decimal(10,2),notnull" json:"processing_fee"`
	IsConfirmed          bool              `bun:"is_confirmed,notnull" json:"is_confirmed"`
	RelatedTransactionID string            `bun:"related_transaction_id,nullzero" json:"related_transaction_id,omitempty"`
	RemoteID             string            `bun:"remote_id,nullzero" json:"remote_id,omitempty"`
	CardID               string            `bun:"card_id,nullzero" json:"card_id,omitempty"`
	APIType              APIType           `bun:"api_type,notnull" json:"api_type"`
	Timestamp            time.Time         `bun:"timestamp,notnull" json:"timestamp"`
}

// TransactionBoughtItem links a transaction to the line items it settled,
// refunded or transferred.
type TransactionBoughtItem struct {
	bun.BaseModel `bun:"table:transaction_bought_items"`

	TransactionID string `bun:"transaction_id,pk" json:"transaction_id"`
	BoughtItemID  string `bun:"bought_item_id,pk" json:"bought_item_id"`
}

type CreditCard struct {
	bun.BaseModel `bun:"table:credit_cards"`

	ID           string    `bun:"id,pk" json:"id"`
	PersonID     string    `bun:"person_id,nullzero" json:"person_id,omitempty"`
	StripeCardID string    `bun:"stripe_card_id,notnull" json:"stripe_card_id"`
	Brand        string    `bun:"brand" json:"brand"`
	Last4        string    `bun:"last4" json:"last4"`
	ExpMonth     int64     `bun:"exp_month" json:"exp_month"`
	ExpYear      int64     `bun:"exp_year" json:"exp_year"`
	AddedAt      time.Time `bun:"added_at,notnull" json:"added_at"`
}
