package order

import (
	"context"
	"fmt"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
)

// AddDiscount attaches d to every eligible cart item of order that does not
// already carry its code. It reports whether anything was attached; an
// unavailable discount yields false without error.
func (s *OrderService) AddDiscount(ctx context.Context, order *models.Order, d *models.Discount) (bool, error) {
	return s.addDiscount(ctx, order, d, false)
}

// ForceDiscount attaches d ignoring its availability window. Organizer use.
func (s *OrderService) ForceDiscount(ctx context.Context, order *models.Order, d *models.Discount) (bool, error) {
	return s.addDiscount(ctx, order, d, true)
}

// AddDiscountByCode looks the code up on the order's event and attaches it.
func (s *OrderService) AddDiscountByCode(ctx context.Context, order *models.Order, code string) (bool, *models.Discount, error) {
	d, err := s.DB.GetDiscountByCode(ctx, order.EventID, code)
	if err != nil {
		return false, nil, err
	}
	attached, err := s.AddDiscount(ctx, order, d)
	return attached, d, err
}

func (s *OrderService) addDiscount(ctx context.Context, order *models.Order, d *models.Discount, force bool) (bool, error) {
	var attached bool
	err := s.withCartLock(ctx, order.ID, func(ctx context.Context) error {
		var err error
		attached, err = s.attachDiscount(ctx, order, d, force)
		return err
	})
	return attached, err
}

func (s *OrderService) attachDiscount(ctx context.Context, order *models.Order, d *models.Discount, force bool) (bool, error) {
	if d.EventID != order.EventID {
		return false, models.NewValidationError("discount", "discount %s belongs to another event", d.Code)
	}

	var attached []string
	var removed int
	var expired bool

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		fresh, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		event, err := tx.GetEvent(ctx, fresh.EventID)
		if err != nil {
			return err
		}
		if removed, expired, err = s.expireIfStale(ctx, tx, fresh, event); err != nil {
			return err
		}
		*order = *fresh

		items, err := tx.ListBoughtItems(ctx, fresh.ID, models.CartStatuses...)
		if err != nil {
			return err
		}
		options, err := tx.ListDiscountOptionIDs(ctx, d.ID)
		if err != nil {
			return err
		}

		result := s.Discounts.Evaluate(d, options, items, s.now(), force)
		if !result.IsValid {
			s.Logger.LogCart("DISCOUNT", fresh.ID, fmt.Sprintf("Discount %s not applied: %s", d.Code, result.Reason))
			return nil
		}

		now := s.now()
		for _, itemID := range result.ApplicableItems {
			attachment := &models.BoughtItemDiscount{
				ID:               uuid.NewString(),
				BoughtItemID:     itemID,
				DiscountID:       d.ID,
				DiscountSnapshot: models.NewDiscountSnapshot(d),
				Timestamp:        now,
			}
			if err := tx.CreateItemDiscount(ctx, attachment); err != nil {
				return err
			}
		}
		attached = result.ApplicableItems
		return nil
	})
	if err != nil {
		return false, err
	}

	if expired {
		s.cartExpired(ctx, order, removed, "lazy")
	}
	if len(attached) > 0 {
		s.Logger.LogCart("DISCOUNT", order.ID, fmt.Sprintf("Discount %s attached to %d items (forced=%t)", d.Code, len(attached), force))
	}
	return len(attached) > 0, nil
}
