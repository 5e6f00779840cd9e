package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LedgerOrderPaid       = "order_paid"
	LedgerPaymentRecorded = "payment_recorded"
	LedgerRefundIssued    = "refund_issued"
	LedgerCartExpired     = "cart_expired"
	LedgerItemTransferred = "item_transferred"
	LedgerTxnConfirmed    = "transaction_confirmed"
)

// LedgerEvent is published to Kafka and streamed over SSE whenever the
// ledger changes.
type LedgerEvent struct {
	Type          string          `json:"type"`
	EventID       string          `json:"event_id"`
	OrderID       string          `json:"order_id,omitempty"`
	OrderCode     string          `json:"order_code,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Method        string          `json:"method,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ItemIDs       []string        `json:"item_ids,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CheckReceived is consumed when an organizer's back office records that a
// mailed check has cleared.
type CheckReceived struct {
	TransactionID string `json:"transaction_id"`
}
