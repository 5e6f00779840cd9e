package tickets

import (
	"context"
	"testing"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db/dbtest"
	qr "ms-ledger/internal/tickets/qr_genrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fix := dbtest.Seed(t, store, t0)
	o := dbtest.NewOrder(t, store, fix.Event.ID, "person-1", t0)
	item := dbtest.NewItem(t, store, o.ID, fix.Pass, fix.Item, models.StatusBought, t0)

	svc := NewPassService(store, qr.NewQRGenerator("secret"), logger.Discard(), func() time.Time { return t0 })

	pass, png, err := svc.Issue(ctx, item.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	assert.Equal(t, o.Code, pass.OrderCode)
	assert.Equal(t, fix.Event.ID, pass.EventID)
	assert.Equal(t, "Weekend pass", pass.OptionName)
	assert.Equal(t, t0, pass.IssuedAt)

	payload, err := svc.QR.Payload(*pass)
	require.NoError(t, err)
	verified, err := svc.Verify(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, item.ID, verified.ItemID)

	_, err = store.UpdateBoughtItemStatus(ctx, []string{item.ID}, []models.BoughtItemStatus{models.StatusBought}, models.StatusRefunded)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, payload)
	assert.True(t, models.IsValidation(err), "refunded items no longer pass")

	_, _, err = svc.Issue(ctx, item.ID)
	assert.True(t, models.IsValidation(err))
}

func TestIssue_RejectsUnpaidAndMissingItems(t *testing.T) {
	ctx := context.Background()
	store := dbtest.New(t)
	fix := dbtest.Seed(t, store, t0)
	o := dbtest.NewOrder(t, store, fix.Event.ID, "", t0)
	reserved := dbtest.NewItem(t, store, o.ID, fix.Dinner, fix.Item, models.StatusReserved, t0)

	svc := NewPassService(store, qr.NewQRGenerator("secret"), logger.Discard(), nil)

	_, _, err := svc.Issue(ctx, reserved.ID)
	assert.True(t, models.IsValidation(err))

	_, _, err = svc.Issue(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrItemNotFound)

	_, err = svc.Verify(ctx, "garbage")
	assert.True(t, models.IsValidation(err))
}
