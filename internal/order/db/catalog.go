package db

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- EVENTS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.conn().NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrEventNotFound)
	}
	return &event, nil
}

// TouchEvent bumps last_modified on the event and its organization.
func (d *DB) TouchEvent(ctx context.Context, eventID string, at time.Time) error {
	event, err := d.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if _, err := d.conn().NewUpdate().
		Model((*models.Event)(nil)).
		Set("last_modified = ?", at).
		Where("id = ?", eventID).
		Exec(ctx); err != nil {
		return fmt.Errorf("touch event: %w", err)
	}
	if _, err := d.conn().NewUpdate().
		Model((*models.Organization)(nil)).
		Set("last_modified = ?", at).
		Where("id = ?", event.OrganizationID).
		Exec(ctx); err != nil {
		return fmt.Errorf("touch organization: %w", err)
	}
	return nil
}

func (d *DB) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := d.conn().NewInsert().Model(org).Exec(ctx)
	return err
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.conn().NewInsert().Model(event).Exec(ctx)
	return err
}

// ---------------- CATALOG ----------------

// GetCatalogOption loads an option together with its item.
func (d *DB) GetCatalogOption(ctx context.Context, id string) (*models.CatalogOption, error) {
	var option models.CatalogOption
	err := d.conn().NewSelect().
		Model(&option).
		Relation("Item").
		Where("catalog_option.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrOptionNotFound)
	}
	return &option, nil
}

func (d *DB) CountItemsForOption(ctx context.Context, optionID string, statuses []models.BoughtItemStatus) (int, error) {
	return d.conn().NewSelect().
		Model((*models.BoughtItem)(nil)).
		Where("item_option_id = ?", optionID).
		Where("status IN (?)", bun.In(statuses)).
		Count(ctx)
}

func (d *DB) CreateCatalogItem(ctx context.Context, item *models.CatalogItem) error {
	_, err := d.conn().NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) CreateCatalogOption(ctx context.Context, option *models.CatalogOption) error {
	_, err := d.conn().NewInsert().Model(option).Exec(ctx)
	return err
}

// DeleteCatalogOption removes an option. Line items keep their snapshot and
// lose the reference.
func (d *DB) DeleteCatalogOption(ctx context.Context, id string) error {
	return d.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		t := tx.(*DB)
		if _, err := t.conn().NewUpdate().
			Model((*models.BoughtItem)(nil)).
			Set("item_option_id = NULL").
			Where("item_option_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := t.conn().NewDelete().
			Model((*models.DiscountOption)(nil)).
			Where("option_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		_, err := t.conn().NewDelete().
			Model((*models.CatalogOption)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
}

// ---------------- DISCOUNTS ----------------

func (d *DB) GetDiscount(ctx context.Context, id string) (*models.Discount, error) {
	var discount models.Discount
	err := d.conn().NewSelect().
		Model(&discount).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrDiscountNotFound)
	}
	return &discount, nil
}

func (d *DB) GetDiscountByCode(ctx context.Context, eventID, code string) (*models.Discount, error) {
	var discount models.Discount
	err := d.conn().NewSelect().
		Model(&discount).
		Where("event_id = ?", eventID).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrDiscountNotFound)
	}
	return &discount, nil
}

func (d *DB) DiscountCodeExists(ctx context.Context, eventID, code string) (bool, error) {
	return d.conn().NewSelect().
		Model((*models.Discount)(nil)).
		Where("event_id = ?", eventID).
		Where("code = ?", code).
		Exists(ctx)
}

func (d *DB) ListDiscountOptionIDs(ctx context.Context, discountID string) ([]string, error) {
	var ids []string
	err := d.conn().NewSelect().
		Model((*models.DiscountOption)(nil)).
		Column("option_id").
		Where("discount_id = ?", discountID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateDiscount inserts the discount and its eligible options.
func (d *DB) CreateDiscount(ctx context.Context, discount *models.Discount, optionIDs []string) error {
	return d.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		t := tx.(*DB)
		if _, err := t.conn().NewInsert().Model(discount).Exec(ctx); err != nil {
			return conflict(err, "create discount")
		}
		if len(optionIDs) == 0 {
			return nil
		}
		links := make([]models.DiscountOption, 0, len(optionIDs))
		for _, id := range optionIDs {
			links = append(links, models.DiscountOption{DiscountID: discount.ID, OptionID: id})
		}
		_, err := t.conn().NewInsert().Model(&links).Exec(ctx)
		return err
	})
}
