package analytics

import (
	"testing"
	"time"

	"ms-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(id, price string, status models.BoughtItemStatus, discounts ...models.BoughtItemDiscount) models.BoughtItem {
	return models.BoughtItem{
		ID:           id,
		OrderID:      "order-1",
		Status:       status,
		ItemSnapshot: models.ItemSnapshot{ItemName: "Admission", OptionName: id, Price: dec(price)},
		Discounts:    discounts,
	}
}

func flat(itemID, amount string) models.BoughtItemDiscount {
	return models.BoughtItemDiscount{
		ID:               "d-" + itemID,
		BoughtItemID:     itemID,
		DiscountSnapshot: models.DiscountSnapshot{Name: "Ten off", Code: "FLAT10", Type: models.DiscountFlat, Amount: dec(amount)},
	}
}

func txn(id string, typ models.TransactionType, method models.TransactionMethod, amount string, confirmed bool) models.Transaction {
	return models.Transaction{
		ID:          id,
		OrderID:     "order-1",
		Type:        typ,
		Method:      method,
		Amount:      dec(amount),
		IsConfirmed: confirmed,
		Timestamp:   time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
	}
}

func links(txnID string, itemIDs ...string) []models.TransactionBoughtItem {
	out := make([]models.TransactionBoughtItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		out = append(out, models.TransactionBoughtItem{TransactionID: txnID, BoughtItemID: id})
	}
	return out
}

func TestSummarize_OpenCartWithDiscount(t *testing.T) {
	sum := Summarize(SummaryInput{
		Items: []models.BoughtItem{
			item("pass", "50.00", models.StatusReserved, flat("pass", "10")),
			item("dinner", "30.00", models.StatusReserved),
		},
	})

	require.Len(t, sum.Buckets, 1)
	open := sum.Buckets[0]
	assert.Nil(t, open.Transaction)
	assert.Len(t, open.Items, 2)
	assert.Len(t, open.Discounts, 1)

	assert.Equal(t, "80.00", sum.GrossCost.StringFixed(2))
	assert.Equal(t, "-10.00", sum.TotalSavings.StringFixed(2))
	assert.Equal(t, "70.00", sum.NetCost.StringFixed(2))
	assert.Equal(t, "70.00", sum.NetBalance.StringFixed(2))
	assert.False(t, sum.UnconfirmedCheckPayments)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(SummaryInput{})
	assert.Empty(t, sum.Buckets)
	assert.True(t, sum.NetCost.IsZero())
	assert.True(t, sum.NetBalance.IsZero())
}

func TestSummarize_PaidThenRefunded(t *testing.T) {
	items := []models.BoughtItem{
		item("pass", "50.00", models.StatusRefunded, flat("pass", "10")),
		item("dinner", "30.00", models.StatusRefunded),
	}
	purchase := txn("t-1", models.TransactionPurchase, models.MethodStripe, "70", true)
	refund := txn("t-2", models.TransactionRefund, models.MethodStripe, "-70", true)

	sum := Summarize(SummaryInput{
		Transactions: []models.Transaction{refund, purchase},
		Items:        items,
		Links:        append(links("t-1", "pass", "dinner"), links("t-2", "pass", "dinner")...),
	})

	require.Len(t, sum.Buckets, 2, "no open bucket once every item is invoiced")
	assert.Equal(t, "t-2", sum.Buckets[0].Transaction.ID)
	assert.Equal(t, "-70.00", sum.Buckets[0].NetCost.StringFixed(2))
	assert.Equal(t, "70.00", sum.Buckets[1].NetCost.StringFixed(2))

	assert.True(t, sum.GrossCost.IsZero())
	assert.True(t, sum.NetCost.IsZero())
	assert.Equal(t, "70.00", sum.TotalPayments.StringFixed(2))
	assert.Equal(t, "-70.00", sum.TotalRefunds.StringFixed(2))
	assert.True(t, sum.NetBalance.IsZero())
}

func TestSummarize_PartialPaymentLeavesOpenBucketFirst(t *testing.T) {
	sum := Summarize(SummaryInput{
		Transactions: []models.Transaction{txn("t-1", models.TransactionPurchase, models.MethodStripe, "50", true)},
		Items: []models.BoughtItem{
			item("pass", "50.00", models.StatusBought),
			item("dinner", "30.00", models.StatusReserved),
		},
		Links: links("t-1", "pass"),
	})

	require.Len(t, sum.Buckets, 2)
	assert.Nil(t, sum.Buckets[0].Transaction)
	assert.Equal(t, "dinner", sum.Buckets[0].Items[0].ID)
	assert.Equal(t, "30.00", sum.NetBalance.StringFixed(2))
}

func TestSummarize_TransferBucketCostsNothing(t *testing.T) {
	sum := Summarize(SummaryInput{
		Transactions: []models.Transaction{txn("t-in", models.TransactionTransfer, models.MethodNone, "0", true)},
		Items:        []models.BoughtItem{item("copy", "50.00", models.StatusBought)},
		Links:        links("t-in", "copy"),
	})

	require.Len(t, sum.Buckets, 1)
	assert.True(t, sum.Buckets[0].GrossCost.IsZero())
	assert.True(t, sum.NetCost.IsZero())
	assert.True(t, sum.NetBalance.IsZero())
}

func TestSummarize_ManualPaymentWithoutItems(t *testing.T) {
	sum := Summarize(SummaryInput{
		Transactions: []models.Transaction{txn("t-1", models.TransactionPurchase, models.MethodCash, "25", true)},
	})
	require.Len(t, sum.Buckets, 1)
	assert.Empty(t, sum.Buckets[0].Items)
	assert.Equal(t, "-25.00", sum.NetBalance.StringFixed(2))
}

func TestSummarize_UnconfirmedCheck(t *testing.T) {
	sum := Summarize(SummaryInput{
		Transactions: []models.Transaction{txn("t-1", models.TransactionPurchase, models.MethodCheck, "80", false)},
		Items: []models.BoughtItem{
			item("pass", "50.00", models.StatusBought),
			item("dinner", "30.00", models.StatusBought),
		},
		Links: links("t-1", "pass", "dinner"),
	})
	assert.True(t, sum.UnconfirmedCheckPayments)
	assert.True(t, sum.NetBalance.IsZero())

	confirmed := Summarize(SummaryInput{
		Transactions: []models.Transaction{txn("t-1", models.TransactionPurchase, models.MethodCheck, "80", true)},
	})
	assert.False(t, confirmed.UnconfirmedCheckPayments)
}
