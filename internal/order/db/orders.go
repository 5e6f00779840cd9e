package db

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- ORDERS ----------------

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.conn().NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrOrderNotFound)
	}
	return &order, nil
}

// GetOrderByPerson → the person's order for an event
func (d *DB) GetOrderByPerson(ctx context.Context, eventID, personID string) (*models.Order, error) {
	var order models.Order
	err := d.conn().NewSelect().
		Model(&order).
		Where("event_id = ?", eventID).
		Where("person_id = ?", personID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrOrderNotFound)
	}
	return &order, nil
}

// GetAnonymousOrderByCode → an unowned order by its per-event code
func (d *DB) GetAnonymousOrderByCode(ctx context.Context, eventID, code string) (*models.Order, error) {
	var order models.Order
	err := d.conn().NewSelect().
		Model(&order).
		Where("event_id = ?", eventID).
		Where("code = ?", code).
		Where("person_id IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrOrderNotFound)
	}
	return &order, nil
}

// LockOrder → re-read an order inside a transaction, row-locked on postgres
func (d *DB) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	q := d.conn().NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1)
	if err := d.forUpdate(q).Scan(ctx); err != nil {
		return nil, notFound(err, models.ErrOrderNotFound)
	}
	return &order, nil
}

// CreateOrder → insert new order; duplicate code or person yields ErrConflict
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.conn().NewInsert().Model(order).Exec(ctx)
	return conflict(err, "create order")
}

func (d *DB) SetOrderPerson(ctx context.Context, orderID, personID string) error {
	res, err := d.conn().NewUpdate().
		Model((*models.Order)(nil)).
		Set("person_id = ?", personID).
		Where("id = ?", orderID).
		Where("person_id IS NULL").
		Exec(ctx)
	if err != nil {
		return conflict(err, "claim order")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim order %s: %w", orderID, models.ErrConflict)
	}
	return nil
}

func (d *DB) SetCartStartTime(ctx context.Context, orderID string, at *time.Time) error {
	q := d.conn().NewUpdate().
		Model((*models.Order)(nil)).
		Where("id = ?", orderID)
	if at == nil {
		q = q.Set("cart_start_time = NULL")
	} else {
		q = q.Set("cart_start_time = ?", *at)
	}
	_, err := q.Exec(ctx)
	return err
}

// ListExpiredCartOrders → orders of an event whose cart started before the cutoff
func (d *DB) ListExpiredCartOrders(ctx context.Context, eventID string, startedBefore time.Time) ([]models.Order, error) {
	var candidates []models.Order
	err := d.conn().NewSelect().
		Model(&candidates).
		Where("event_id = ?", eventID).
		Where("cart_start_time IS NOT NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	// compared in Go; sqlite stores timestamps as text
	expired := candidates[:0]
	for _, o := range candidates {
		if o.CartStartTime.Before(startedBefore) {
			expired = append(expired, o)
		}
	}
	return expired, nil
}

// ListEventsWithOpenCarts → ids of events that have at least one running cart timer
func (d *DB) ListEventsWithOpenCarts(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.conn().NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("DISTINCT event_id").
		Where("cart_start_time IS NOT NULL").
		Scan(ctx, &ids)
	return ids, err
}

// ---------------- LINE ITEMS ----------------

func (d *DB) CreateBoughtItem(ctx context.Context, item *models.BoughtItem) error {
	_, err := d.conn().NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) GetBoughtItem(ctx context.Context, id string) (*models.BoughtItem, error) {
	var item models.BoughtItem
	err := d.conn().NewSelect().
		Model(&item).
		Relation("Discounts").
		Where("bought_item.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrItemNotFound)
	}
	return &item, nil
}

// ListBoughtItems → items of an order with their discounts, optionally filtered by status
func (d *DB) ListBoughtItems(ctx context.Context, orderID string, statuses ...models.BoughtItemStatus) ([]models.BoughtItem, error) {
	var items []models.BoughtItem
	q := d.conn().NewSelect().
		Model(&items).
		Relation("Discounts").
		Where("bought_item.order_id = ?", orderID).
		Order("bought_item.created_at ASC", "bought_item.id ASC")
	if len(statuses) > 0 {
		q = q.Where("bought_item.status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) ListBoughtItemsByID(ctx context.Context, ids []string) ([]models.BoughtItem, error) {
	var items []models.BoughtItem
	if len(ids) == 0 {
		return items, nil
	}
	err := d.conn().NewSelect().
		Model(&items).
		Relation("Discounts").
		Where("bought_item.id IN (?)", bun.In(ids)).
		Order("bought_item.created_at ASC", "bought_item.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DB) CountBoughtItems(ctx context.Context, orderID string, statuses ...models.BoughtItemStatus) (int, error) {
	q := d.conn().NewSelect().
		Model((*models.BoughtItem)(nil)).
		Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	return q.Count(ctx)
}

// DeleteReservedItems → delete RESERVED items of an order and their discount
// attachments. A nil ids slice deletes every reserved item.
func (d *DB) DeleteReservedItems(ctx context.Context, orderID string, ids []string) (int, error) {
	sel := d.conn().NewSelect().
		Model((*models.BoughtItem)(nil)).
		Column("id").
		Where("order_id = ?", orderID).
		Where("status = ?", models.StatusReserved)
	if ids != nil {
		if len(ids) == 0 {
			return 0, nil
		}
		sel = sel.Where("id IN (?)", bun.In(ids))
	}
	var doomed []string
	if err := sel.Scan(ctx, &doomed); err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}
	if _, err := d.conn().NewDelete().
		Model((*models.BoughtItemDiscount)(nil)).
		Where("bought_item_id IN (?)", bun.In(doomed)).
		Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete item discounts: %w", err)
	}
	res, err := d.conn().NewDelete().
		Model((*models.BoughtItem)(nil)).
		Where("id IN (?)", bun.In(doomed)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete reserved items: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UpdateBoughtItemStatus → move items currently in one of from to status to
func (d *DB) UpdateBoughtItemStatus(ctx context.Context, ids []string, from []models.BoughtItemStatus, to models.BoughtItemStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := d.conn().NewUpdate().
		Model((*models.BoughtItem)(nil)).
		Set("status = ?", to).
		Where("id IN (?)", bun.In(ids)).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CreateItemDiscount → attach a discount snapshot; a repeat code yields ErrConflict
func (d *DB) CreateItemDiscount(ctx context.Context, attachment *models.BoughtItemDiscount) error {
	_, err := d.conn().NewInsert().Model(attachment).Exec(ctx)
	return conflict(err, "attach discount")
}
