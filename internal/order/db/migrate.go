package db

import (
	"context"
	"fmt"

	"ms-ledger/internal/models"

	"github.com/uptrace/bun"
)

var tables = []interface{}{
	(*models.Organization)(nil),
	(*models.Event)(nil),
	(*models.CatalogItem)(nil),
	(*models.CatalogOption)(nil),
	(*models.Discount)(nil),
	(*models.DiscountOption)(nil),
	(*models.Order)(nil),
	(*models.BoughtItem)(nil),
	(*models.BoughtItemDiscount)(nil),
	(*models.Transaction)(nil),
	(*models.TransactionBoughtItem)(nil),
	(*models.CreditCard)(nil),
}

// Migrate creates the ledger tables from the models. Postgres deployments use
// the SQL migrations instead; this serves sqlite development and tests.
func Migrate(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().Model((*models.Order)(nil)).Unique().
			Index("orders_event_person_idx").Column("event_id", "person_id"),
		db.NewCreateIndex().Model((*models.BoughtItem)(nil)).
			Index("bought_items_order_status_idx").Column("order_id", "status"),
		db.NewCreateIndex().Model((*models.Transaction)(nil)).
			Index("transactions_order_idx").Column("order_id"),
		db.NewCreateIndex().Model((*models.Transaction)(nil)).
			Index("transactions_related_idx").Column("related_transaction_id"),
	}
	for _, idx := range indexes {
		if _, err := idx.IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
