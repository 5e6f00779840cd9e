package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"
	"ms-ledger/internal/order/db/dbtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestGetOrderByID(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	created := dbtest.NewOrder(t, store, f.Event.ID, "", now)

	order, err := store.GetOrderByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Code, order.Code)
	assert.Empty(t, order.PersonID)
	assert.Nil(t, order.CartStartTime)

	_, err = store.GetOrderByID(ctx, "non-existent")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOrder_Conflicts(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	first := dbtest.NewOrder(t, store, f.Event.ID, "person-1", now)

	sameCode := &models.Order{ID: uuid.NewString(), EventID: f.Event.ID, Code: first.Code, CreatedAt: now}
	err := store.CreateOrder(ctx, sameCode)
	assert.ErrorIs(t, err, models.ErrConflict)

	samePerson := &models.Order{ID: uuid.NewString(), EventID: f.Event.ID, PersonID: "person-1", Code: "ZZZZZZZZ", CreatedAt: now}
	err = store.CreateOrder(ctx, samePerson)
	assert.ErrorIs(t, err, models.ErrConflict)

	// anonymous orders never collide on person
	dbtest.NewOrder(t, store, f.Event.ID, "", now)
	dbtest.NewOrder(t, store, f.Event.ID, "", now)

	byPerson, err := store.GetOrderByPerson(ctx, f.Event.ID, "person-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byPerson.ID)
}

func TestAnonymousOrderLookupAndClaim(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	anon := dbtest.NewOrder(t, store, f.Event.ID, "", now)

	found, err := store.GetAnonymousOrderByCode(ctx, f.Event.ID, anon.Code)
	require.NoError(t, err)
	assert.Equal(t, anon.ID, found.ID)

	require.NoError(t, store.SetOrderPerson(ctx, anon.ID, "person-9"))
	_, err = store.GetAnonymousOrderByCode(ctx, f.Event.ID, anon.Code)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	// already owned
	err = store.SetOrderPerson(ctx, anon.ID, "person-10")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDeleteReservedItems_OnlyReserved(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	reserved := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusReserved, now)
	dbtest.NewItem(t, store, o.ID, f.Dinner, f.Item, models.StatusReserved, now)
	bought := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusBought, now)

	require.NoError(t, store.CreateItemDiscount(ctx, &models.BoughtItemDiscount{
		ID:               uuid.NewString(),
		BoughtItemID:     reserved.ID,
		DiscountID:       f.Discount.ID,
		DiscountSnapshot: models.NewDiscountSnapshot(f.Discount),
		Timestamp:        now,
	}))

	n, err := store.DeleteReservedItems(ctx, o.ID, []string{reserved.ID, bought.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.DeleteReservedItems(ctx, o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := store.ListBoughtItems(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, bought.ID, items[0].ID)

	n, err = store.DeleteReservedItems(ctx, o.ID, []string{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListBoughtItems_LoadsDiscountsAndFiltersStatus(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	pass := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusReserved, now)
	dbtest.NewItem(t, store, o.ID, f.Dinner, f.Item, models.StatusBought, now.Add(time.Second))

	attachment := &models.BoughtItemDiscount{
		ID:               uuid.NewString(),
		BoughtItemID:     pass.ID,
		DiscountID:       f.Discount.ID,
		DiscountSnapshot: models.NewDiscountSnapshot(f.Discount),
		Timestamp:        now,
	}
	require.NoError(t, store.CreateItemDiscount(ctx, attachment))

	dup := *attachment
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, store.CreateItemDiscount(ctx, &dup), models.ErrConflict)

	reserved, err := store.ListBoughtItems(ctx, o.ID, models.StatusReserved)
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, "Weekend pass", reserved[0].OptionName)
	assert.Equal(t, "Admission", reserved[0].ItemName)
	assert.True(t, reserved[0].Price.Equal(dbtest.Money("50")))
	require.Len(t, reserved[0].Discounts, 1)
	assert.Equal(t, "FLAT10", reserved[0].Discounts[0].Code)

	all, err := store.ListBoughtItems(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := store.CountBoughtItems(ctx, o.ID, models.PurchasedStatuses...)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateBoughtItemStatus_RespectsFrom(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	a := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusReserved, now)
	b := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusRefunded, now)

	n, err := store.UpdateBoughtItemStatus(ctx, []string{a.ID, b.ID}, models.CartStatuses, models.StatusBought)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetBoughtItem(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, got.Status)
}

func TestTransactions_LinksRefundsAndConfirmation(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	item := dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusBought, now)

	purchase := &models.Transaction{
		ID:        uuid.NewString(),
		EventID:   f.Event.ID,
		OrderID:   o.ID,
		Method:    models.MethodCheck,
		Type:      models.TransactionPurchase,
		Amount:    dbtest.Money("50.00"),
		APIType:   models.APITypeTest,
		Timestamp: now,
	}
	require.NoError(t, store.CreateTransaction(ctx, purchase, []string{item.ID}))

	refund := &models.Transaction{
		ID:                   uuid.NewString(),
		EventID:              f.Event.ID,
		OrderID:              o.ID,
		Method:               models.MethodCheck,
		Type:                 models.TransactionRefund,
		Amount:               dbtest.Money("-20.00"),
		IsConfirmed:          true,
		RelatedTransactionID: purchase.ID,
		APIType:              models.APITypeTest,
		Timestamp:            now.Add(time.Minute),
	}
	require.NoError(t, store.CreateTransaction(ctx, refund, nil))

	txns, err := store.ListTransactionsByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, refund.ID, txns[0].ID, "newest first")

	sum, err := store.SumRelatedAmounts(ctx, purchase.ID, models.TransactionRefund)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", sum.StringFixed(2))

	none, err := store.SumRelatedAmounts(ctx, refund.ID, models.TransactionRefund)
	require.NoError(t, err)
	assert.True(t, none.IsZero())

	ids, err := store.ListTransactionItemIDs(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{item.ID}, ids)

	links, err := store.ListTransactionLinks(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	unconfirmed, err := store.CountUnconfirmedTransactions(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unconfirmed)

	changed, err := store.ConfirmTransaction(ctx, purchase.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.ConfirmTransaction(ctx, purchase.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestListExpiredCartOrders(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	stale := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	fresh := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	dbtest.NewOrder(t, store, f.Event.ID, "", now)

	staleStart := now.Add(-20 * time.Minute)
	freshStart := now.Add(-5 * time.Minute)
	require.NoError(t, store.SetCartStartTime(ctx, stale.ID, &staleStart))
	require.NoError(t, store.SetCartStartTime(ctx, fresh.ID, &freshStart))

	expired, err := store.ListExpiredCartOrders(ctx, f.Event.ID, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	events, err := store.ListEventsWithOpenCarts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{f.Event.ID}, events)

	require.NoError(t, store.SetCartStartTime(ctx, stale.ID, nil))
	reloaded, err := store.GetOrderByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CartStartTime)
}

func TestDeleteCatalogOption_KeepsSnapshot(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	item := dbtest.NewItem(t, store, o.ID, f.Dinner, f.Item, models.StatusBought, now)

	require.NoError(t, store.DeleteCatalogOption(ctx, f.Dinner.ID))

	got, err := store.GetBoughtItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OptionID)
	assert.Equal(t, "Dinner", got.OptionName)
	assert.True(t, got.Price.Equal(dbtest.Money("30")))

	_, err = store.GetCatalogOption(ctx, f.Dinner.ID)
	assert.ErrorIs(t, err, models.ErrOptionNotFound)
}

func TestTouchEvent(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	require.NoError(t, store.TouchEvent(ctx, f.Event.ID, now))

	event, err := store.GetEvent(ctx, f.Event.ID)
	require.NoError(t, err)
	assert.True(t, event.LastModified.Equal(now))
}

func TestRunInTx_RollsBack(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		start := now
		if err := tx.SetCartStartTime(ctx, o.ID, &start); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reloaded, err := store.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CartStartTime)
}

func TestCatalogCountsAndDiscountLookup(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store, now)
	ctx := context.Background()

	o := dbtest.NewOrder(t, store, f.Event.ID, "", now)
	dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusReserved, now)
	dbtest.NewItem(t, store, o.ID, f.Pass, f.Item, models.StatusRefunded, now)

	n, err := store.CountItemsForOption(ctx, f.Pass.ID, models.CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	option, err := store.GetCatalogOption(ctx, f.Pass.ID)
	require.NoError(t, err)
	require.NotNil(t, option.Item)
	assert.Equal(t, "Admission", option.Item.Name)

	d, err := store.GetDiscountByCode(ctx, f.Event.ID, "FLAT10")
	require.NoError(t, err)
	assert.Equal(t, f.Discount.ID, d.ID)

	_, err = store.GetDiscountByCode(ctx, f.Event.ID, "NOPE")
	assert.ErrorIs(t, err, models.ErrDiscountNotFound)

	exists, err := store.DiscountCodeExists(ctx, f.Event.ID, "FLAT10")
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := store.ListDiscountOptionIDs(ctx, f.Discount.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.Pass.ID}, ids)
}
