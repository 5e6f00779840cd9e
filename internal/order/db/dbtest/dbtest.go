// Package dbtest builds in-memory sqlite ledgers for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New opens a fresh in-memory database with the ledger schema.
func New(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// one connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.Migrate(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	return &db.DB{Bun: bunDB}
}

// Fixture is a seeded event with two options and one discount.
type Fixture struct {
	Org      *models.Organization
	Event    *models.Event
	Item     *models.CatalogItem
	Pass     *models.CatalogOption
	Dinner   *models.CatalogOption
	Discount *models.Discount
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Seed creates an event whose "Weekend pass" costs 50.00 and "Dinner" costs
// 30.00. Discount FLAT10 takes 10.00 off the pass only.
func Seed(t *testing.T, d *db.DB, now time.Time) *Fixture {
	t.Helper()
	ctx := context.Background()

	f := &Fixture{}
	f.Org = &models.Organization{ID: uuid.NewString(), Name: "Swing Society", LastModified: now.Add(-time.Hour)}
	f.Event = &models.Event{
		ID:                    uuid.NewString(),
		OrganizationID:        f.Org.ID,
		Name:                  "Lindy Weekend",
		Currency:              "usd",
		CartTimeoutMinutes:    15,
		ApplicationFeePercent: Money("2.5"),
		APIType:               models.APITypeTest,
		CheckPaymentAllowed:   true,
		LastModified:          now.Add(-time.Hour),
	}
	f.Item = &models.CatalogItem{ID: uuid.NewString(), EventID: f.Event.ID, Name: "Admission", Description: "Full weekend"}
	capacity := 100
	f.Pass = &models.CatalogOption{
		ID:             uuid.NewString(),
		ItemID:         f.Item.ID,
		Name:           "Weekend pass",
		Price:          Money("50.00"),
		TotalNumber:    &capacity,
		AvailableStart: now.Add(-24 * time.Hour),
		AvailableEnd:   now.Add(24 * time.Hour),
	}
	f.Dinner = &models.CatalogOption{
		ID:             uuid.NewString(),
		ItemID:         f.Item.ID,
		Name:           "Dinner",
		Price:          Money("30.00"),
		AvailableStart: now.Add(-24 * time.Hour),
		AvailableEnd:   now.Add(24 * time.Hour),
	}
	f.Discount = &models.Discount{
		ID:             uuid.NewString(),
		EventID:        f.Event.ID,
		Name:           "Ten off",
		Code:           "FLAT10",
		Type:           models.DiscountFlat,
		Amount:         Money("10"),
		AvailableStart: now.Add(-24 * time.Hour),
		AvailableEnd:   now.Add(24 * time.Hour),
		CreatedAt:      now,
	}

	must(t, d.CreateOrganization(ctx, f.Org))
	must(t, d.CreateEvent(ctx, f.Event))
	must(t, d.CreateCatalogItem(ctx, f.Item))
	must(t, d.CreateCatalogOption(ctx, f.Pass))
	must(t, d.CreateCatalogOption(ctx, f.Dinner))
	must(t, d.CreateDiscount(ctx, f.Discount, []string{f.Pass.ID}))

	return f
}

// NewOrder inserts an empty order for the fixture event.
func NewOrder(t *testing.T, d *db.DB, eventID, personID string, now time.Time) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:        uuid.NewString(),
		EventID:   eventID,
		PersonID:  personID,
		Code:      uuid.NewString()[:8],
		CreatedAt: now,
	}
	must(t, d.CreateOrder(context.Background(), o))
	return o
}

// NewItem inserts a line item with the option's snapshot.
func NewItem(t *testing.T, d *db.DB, orderID string, option *models.CatalogOption, item *models.CatalogItem, status models.BoughtItemStatus, now time.Time) *models.BoughtItem {
	t.Helper()
	opt := *option
	opt.Item = item
	bi := &models.BoughtItem{
		ID:           uuid.NewString(),
		OrderID:      orderID,
		OptionID:     option.ID,
		Status:       status,
		ItemSnapshot: models.NewItemSnapshot(&opt),
		CreatedAt:    now,
	}
	must(t, d.CreateBoughtItem(context.Background(), bi))
	return bi
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
}
