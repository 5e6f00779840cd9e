package analytics

import (
	"context"

	"ms-ledger/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun bun.IDB
}

// NewDB creates a new analytics DB handler
func NewDB(db bun.IDB) *DB {
	return &DB{bun: db}
}

// ListEventTransactions returns every ledger entry of the events, oldest first.
func (db *DB) ListEventTransactions(ctx context.Context, eventIDs []string) ([]models.Transaction, error) {
	var txns []models.Transaction
	if len(eventIDs) == 0 {
		return txns, nil
	}
	err := db.bun.NewSelect().
		Model(&txns).
		Where("event_id IN (?)", bun.In(eventIDs)).
		OrderExpr("? ASC, ? ASC", bun.Ident("timestamp"), bun.Ident("id")).
		Scan(ctx)
	return txns, err
}

// ListEventItems returns the line items of every order of the events, with
// their discount attachments.
func (db *DB) ListEventItems(ctx context.Context, eventIDs []string) ([]models.BoughtItem, error) {
	var items []models.BoughtItem
	if len(eventIDs) == 0 {
		return items, nil
	}
	orders := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("id").
		Where("event_id IN (?)", bun.In(eventIDs))
	err := db.bun.NewSelect().
		Model(&items).
		Relation("Discounts").
		Where("bought_item.order_id IN (?)", orders).
		Order("bought_item.created_at ASC", "bought_item.id ASC").
		Scan(ctx)
	return items, err
}

// ListEventOrders pages through an event's orders by creation time.
func (db *DB) ListEventOrders(ctx context.Context, eventID string, opts EventOrderOptions) ([]models.Order, error) {
	var orders []models.Order
	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}
	q := db.bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", eventID).
		Order("created_at "+direction, "id "+direction)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	err := q.Scan(ctx)
	return orders, err
}

func (db *DB) ListOrganizationEvents(ctx context.Context, organizationID string) ([]models.Event, error) {
	var events []models.Event
	err := db.bun.NewSelect().
		Model(&events).
		Where("organization_id = ?", organizationID).
		Order("name ASC").
		Scan(ctx)
	return events, err
}
