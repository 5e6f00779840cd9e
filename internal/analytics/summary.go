package analytics

import (
	"ms-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// SummaryInput is everything Summarize needs about one order.
// Transactions are expected newest first.
type SummaryInput struct {
	Transactions []models.Transaction
	Items        []models.BoughtItem
	Links        []models.TransactionBoughtItem
}

// Bucket groups the items a single transaction touched. Transaction is nil
// for the bucket of items that were never invoiced.
type Bucket struct {
	Transaction  *models.Transaction         `json:"transaction"`
	Items        []models.BoughtItem         `json:"items"`
	Discounts    []models.BoughtItemDiscount `json:"discounts"`
	GrossCost    decimal.Decimal             `json:"gross_cost"`
	TotalSavings decimal.Decimal             `json:"total_savings"`
	NetCost      decimal.Decimal             `json:"net_cost"`
}

type Summary struct {
	Buckets                  []Bucket        `json:"buckets"`
	GrossCost                decimal.Decimal `json:"gross_cost"`
	TotalSavings             decimal.Decimal `json:"total_savings"`
	NetCost                  decimal.Decimal `json:"net_cost"`
	TotalPayments            decimal.Decimal `json:"total_payments"`
	TotalRefunds             decimal.Decimal `json:"total_refunds"`
	NetBalance               decimal.Decimal `json:"net_balance"`
	UnconfirmedCheckPayments bool            `json:"unconfirmed_check_payments"`
}

// costMultiplier is how a bucket's items count toward the order's cost.
// Transfers move items without moving money.
func costMultiplier(t models.TransactionType) (decimal.Decimal, bool) {
	switch t {
	case models.TransactionPurchase, models.TransactionOther:
		return decimal.NewFromInt(1), true
	case models.TransactionRefund:
		return decimal.NewFromInt(-1), true
	case models.TransactionTransfer:
		return decimal.Zero, false
	default:
		return decimal.Zero, false
	}
}

// Summarize computes the per-transaction breakdown and order totals. It has
// no side effects; callers clear expired carts before building the input.
func Summarize(in SummaryInput) *Summary {
	itemsByID := make(map[string]*models.BoughtItem, len(in.Items))
	for i := range in.Items {
		itemsByID[in.Items[i].ID] = &in.Items[i]
	}

	linked := make(map[string][]string, len(in.Transactions))
	invoiced := make(map[string]bool, len(in.Links))
	for _, l := range in.Links {
		linked[l.TransactionID] = append(linked[l.TransactionID], l.BoughtItemID)
		invoiced[l.BoughtItemID] = true
	}

	sum := &Summary{
		GrossCost:     decimal.Zero,
		TotalSavings:  decimal.Zero,
		NetCost:       decimal.Zero,
		TotalPayments: decimal.Zero,
		TotalRefunds:  decimal.Zero,
	}

	// the open bucket comes first and only exists when it holds items
	open := Bucket{}
	for i := range in.Items {
		if !invoiced[in.Items[i].ID] {
			open.Items = append(open.Items, in.Items[i])
		}
	}
	if len(open.Items) > 0 {
		fillBucket(&open, decimal.NewFromInt(1), true)
		sum.Buckets = append(sum.Buckets, open)
	}

	for i := range in.Transactions {
		txn := &in.Transactions[i]
		b := Bucket{Transaction: txn}
		for _, id := range linked[txn.ID] {
			if it, ok := itemsByID[id]; ok {
				b.Items = append(b.Items, *it)
			}
		}
		mult, counts := costMultiplier(txn.Type)
		fillBucket(&b, mult, counts)
		sum.Buckets = append(sum.Buckets, b)

		switch txn.Type {
		case models.TransactionRefund:
			sum.TotalRefunds = sum.TotalRefunds.Add(txn.Amount)
		case models.TransactionPurchase, models.TransactionTransfer, models.TransactionOther:
			sum.TotalPayments = sum.TotalPayments.Add(txn.Amount)
			if txn.Method == models.MethodCheck && !txn.IsConfirmed {
				sum.UnconfirmedCheckPayments = true
			}
		}
	}

	for _, b := range sum.Buckets {
		sum.GrossCost = sum.GrossCost.Add(b.GrossCost)
		sum.TotalSavings = sum.TotalSavings.Add(b.TotalSavings)
	}
	sum.NetCost = sum.GrossCost.Add(sum.TotalSavings)
	sum.NetBalance = sum.NetCost.Sub(sum.TotalPayments.Add(sum.TotalRefunds))
	return sum
}

func fillBucket(b *Bucket, mult decimal.Decimal, counts bool) {
	gross := decimal.Zero
	savings := decimal.Zero
	for _, it := range b.Items {
		gross = gross.Add(it.Price)
		for _, d := range it.Discounts {
			b.Discounts = append(b.Discounts, d)
			savings = savings.Add(d.Savings(it.Price))
		}
	}
	if !counts {
		b.GrossCost, b.TotalSavings, b.NetCost = decimal.Zero, decimal.Zero, decimal.Zero
		return
	}
	b.GrossCost = gross.Mul(mult)
	b.TotalSavings = savings.Neg().Mul(mult)
	b.NetCost = b.GrossCost.Add(b.TotalSavings)
}
