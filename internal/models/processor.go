package models

import (
	"github.com/shopspring/decimal"
)

// Fee line types reported by a processor's balance breakdown.
const (
	FeeApplication = "application_fee"
	FeeProcessor   = "stripe_fee"
)

type FeeLine struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// SumFees totals the lines of the given type.
func SumFees(lines []FeeLine, feeType string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Type == feeType {
			total = total.Add(l.Amount)
		}
	}
	return total
}

type CardDetails struct {
	RemoteID string `json:"remote_id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

type ChargeRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Token          string
	ApplicationFee decimal.Decimal
	Account        string
	Description    string
}

// ChargeResult is a processor confirmation of a successful charge.
type ChargeResult struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	RemoteID string          `json:"remote_id"`
	Fees     []FeeLine       `json:"fees"`
	Card     *CardDetails    `json:"card,omitempty"`
}

// ProcessorRefund asks a processor to return part of a prior charge.
type ProcessorRefund struct {
	RemoteID string
	Amount   decimal.Decimal
	Currency string
	Account  string
}

// RefundResult is a processor confirmation of a refund. Fee amounts are as
// the processor reports them.
type RefundResult struct {
	Amount               decimal.Decimal `json:"amount"`
	ApplicationFeeRefund decimal.Decimal `json:"application_fee_refund"`
	RemoteID             string          `json:"remote_id"`
	Fees                 []FeeLine       `json:"fees"`
}

type CheckoutRequest struct {
	Method TransactionMethod `json:"method"`
	Token  string            `json:"token"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Items  []string         `json:"items,omitempty"`
}

type ManualPaymentRequest struct {
	Amount decimal.Decimal   `json:"amount"`
	Method TransactionMethod `json:"method"`
}

type TransferRequest struct {
	ToOrderID string `json:"to_order_id"`
}
