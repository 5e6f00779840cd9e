package order

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/models"
	"ms-ledger/internal/monitoring"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
)

// CartExpiresAt is cart_start_time + timeout, or nil when no cart is open.
func CartExpiresAt(order *models.Order, timeout time.Duration) *time.Time {
	if order.CartStartTime == nil {
		return nil
	}
	at := order.CartStartTime.Add(timeout)
	return &at
}

// CartIsExpired reports whether now is strictly past the open cart's expiry.
func CartIsExpired(order *models.Order, timeout time.Duration, now time.Time) bool {
	expiresAt := CartExpiresAt(order, timeout)
	return expiresAt != nil && now.After(*expiresAt)
}

func (s *OrderService) cartTimeout(event *models.Event) time.Duration {
	if event.CartTimeoutMinutes > 0 {
		return event.CartTimeout()
	}
	return s.defaultCartTimeout
}

// CartExpireTime returns when the order's cart expires, or nil.
func (s *OrderService) CartExpireTime(ctx context.Context, order *models.Order) (*time.Time, error) {
	event, err := s.DB.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	return CartExpiresAt(order, s.cartTimeout(event)), nil
}

// CartIsExpired reports whether the order's cart has expired now.
func (s *OrderService) CartIsExpired(ctx context.Context, order *models.Order) (bool, error) {
	event, err := s.DB.GetEvent(ctx, order.EventID)
	if err != nil {
		return false, err
	}
	return CartIsExpired(order, s.cartTimeout(event), s.now()), nil
}

// clearCart deletes the reserved items and closes the cart. Callers hold tx.
func clearCart(ctx context.Context, tx db.Store, order *models.Order) (int, error) {
	n, err := tx.DeleteReservedItems(ctx, order.ID, nil)
	if err != nil {
		return 0, err
	}
	if order.CartStartTime != nil {
		if err := tx.SetCartStartTime(ctx, order.ID, nil); err != nil {
			return 0, err
		}
		order.CartStartTime = nil
	}
	return n, nil
}

// expireIfStale clears the cart inside tx when it has expired. order must be
// freshly loaded in tx.
func (s *OrderService) expireIfStale(ctx context.Context, tx db.Store, order *models.Order, event *models.Event) (int, bool, error) {
	if !CartIsExpired(order, s.cartTimeout(event), s.now()) {
		return 0, false, nil
	}
	n, err := clearCart(ctx, tx, order)
	if err != nil {
		return 0, false, fmt.Errorf("clear expired cart: %w", err)
	}
	return n, true, nil
}

func (s *OrderService) cartExpired(ctx context.Context, order *models.Order, removed int, trigger string) {
	monitoring.RecordCartsExpired(trigger, 1)
	s.Logger.LogCart("EXPIRE", order.ID, fmt.Sprintf("Expired cart cleared (%s), %d reserved items removed", trigger, removed))
	s.publish(ctx, models.LedgerEvent{
		Type:      models.LedgerCartExpired,
		EventID:   order.EventID,
		OrderID:   order.ID,
		OrderCode: order.Code,
	})
}

// ExpireCartIfStale is the lazy expiry check every cart reader runs first.
// It reports whether a cart was cleared and refreshes order in place.
func (s *OrderService) ExpireCartIfStale(ctx context.Context, order *models.Order) (bool, error) {
	return s.expireCart(ctx, order, "lazy")
}

// expireCart leaves an order alone while someone else holds its lock; a
// running checkout owns its cart until it finishes.
func (s *OrderService) expireCart(ctx context.Context, order *models.Order, trigger string) (bool, error) {
	var removed int
	var expired bool
	locked, err := s.tryCartLock(ctx, order.ID, func(ctx context.Context) error {
		return s.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
			fresh, err := tx.LockOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			event, err := tx.GetEvent(ctx, fresh.EventID)
			if err != nil {
				return err
			}
			removed, expired, err = s.expireIfStale(ctx, tx, fresh, event)
			*order = *fresh
			return err
		})
	})
	if err != nil {
		return false, err
	}
	if !locked {
		s.Logger.Debug("CART", fmt.Sprintf("Order %s is checking out, expiry skipped (%s)", order.ID, trigger))
		return false, nil
	}
	if expired {
		s.cartExpired(ctx, order, removed, trigger)
	}
	return expired, nil
}

// AddToCart reserves one unit of option on order. Capacity is not enforced
// here; see CatalogService.CheckAvailable.
func (s *OrderService) AddToCart(ctx context.Context, order *models.Order, optionID string) (*models.BoughtItem, error) {
	var item *models.BoughtItem
	err := s.withCartLock(ctx, order.ID, func(ctx context.Context) error {
		var err error
		item, err = s.addToCart(ctx, order, optionID)
		return err
	})
	return item, err
}

func (s *OrderService) addToCart(ctx context.Context, order *models.Order, optionID string) (*models.BoughtItem, error) {
	var item *models.BoughtItem
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
		option, err := tx.GetCatalogOption(ctx, optionID)
		if err != nil {
			return err
		}
		if option.Item == nil || option.Item.EventID != fresh.EventID {
			return models.NewValidationError("option_id", "option %s does not belong to event %s", optionID, fresh.EventID)
		}

		if removed, expired, err = s.expireIfStale(ctx, tx, fresh, event); err != nil {
			return err
		}

		now := s.now()
		item = &models.BoughtItem{
			ID:           uuid.NewString(),
			OrderID:      fresh.ID,
			OptionID:     option.ID,
			Status:       models.StatusReserved,
			ItemSnapshot: models.NewItemSnapshot(option),
			CreatedAt:    now,
		}
		if err := tx.CreateBoughtItem(ctx, item); err != nil {
			return fmt.Errorf("reserve item: %w", err)
		}

		if fresh.CartStartTime == nil {
			if err := tx.SetCartStartTime(ctx, fresh.ID, &now); err != nil {
				return err
			}
			fresh.CartStartTime = &now
		}
		*order = *fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.cartExpired(ctx, order, removed, "lazy")
	}
	monitoring.RecordCartOperation("add")
	s.Logger.LogCart("ADD", order.ID, fmt.Sprintf("Reserved %s / %s at %s", item.ItemName, item.OptionName, item.Price.StringFixed(2)))
	return item, nil
}

// RemoveFromCart deletes a reserved item of this order and closes the cart
// when nothing reserved remains.
func (s *OrderService) RemoveFromCart(ctx context.Context, order *models.Order, itemID string) error {
	return s.withCartLock(ctx, order.ID, func(ctx context.Context) error {
		return s.removeFromCart(ctx, order, itemID)
	})
}

func (s *OrderService) removeFromCart(ctx context.Context, order *models.Order, itemID string) error {
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
		if expired {
			return nil
		}

		item, err := tx.GetBoughtItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.OrderID != fresh.ID {
			return fmt.Errorf("item %s on order %s: %w", itemID, fresh.ID, models.ErrItemNotFound)
		}
		if item.Status != models.StatusReserved {
			return models.NewValidationError("item_id", "item %s is %s and cannot be removed from the cart", itemID, item.Status)
		}

		if _, err := tx.DeleteReservedItems(ctx, fresh.ID, []string{itemID}); err != nil {
			return err
		}

		left, err := tx.CountBoughtItems(ctx, fresh.ID, models.StatusReserved)
		if err != nil {
			return err
		}
		if left == 0 && fresh.CartStartTime != nil {
			if err := tx.SetCartStartTime(ctx, fresh.ID, nil); err != nil {
				return err
			}
			fresh.CartStartTime = nil
		}
		*order = *fresh
		return nil
	})
	if err != nil {
		return err
	}

	if expired {
		s.cartExpired(ctx, order, removed, "lazy")
		return nil
	}
	monitoring.RecordCartOperation("remove")
	s.Logger.LogCart("REMOVE", order.ID, fmt.Sprintf("Removed item %s", itemID))
	return nil
}

// DeleteCart removes every reserved item and closes the cart. Idempotent.
func (s *OrderService) DeleteCart(ctx context.Context, order *models.Order) error {
	return s.withCartLock(ctx, order.ID, func(ctx context.Context) error {
		return s.deleteCart(ctx, order)
	})
}

func (s *OrderService) deleteCart(ctx context.Context, order *models.Order) error {
	var removed int
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		fresh, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		removed, err = clearCart(ctx, tx, fresh)
		*order = *fresh
		return err
	})
	if err != nil {
		return err
	}
	monitoring.RecordCartOperation("delete")
	s.Logger.LogCart("DELETE", order.ID, fmt.Sprintf("Cart deleted, %d reserved items removed", removed))
	return nil
}

// MarkCartPaid settles every reserved or unpaid item against txn and closes
// the cart. It joins the caller's transaction when s is bound to one.
func (s *OrderService) MarkCartPaid(ctx context.Context, order *models.Order, txn *models.Transaction) ([]string, error) {
	var ids []string
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		items, err := tx.ListBoughtItems(ctx, order.ID, models.CartStatuses...)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		return s.WithStore(tx).SettleItems(ctx, order, txn, ids)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SettleItems marks exactly ids BOUGHT against txn. Each id must still be a
// RESERVED or UNPAID item of order; otherwise the cart changed after it was
// priced and nothing is settled. The cart closes once nothing reserved is
// left on it.
func (s *OrderService) SettleItems(ctx context.Context, order *models.Order, txn *models.Transaction, ids []string) error {
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		if _, err := tx.LockOrder(ctx, order.ID); err != nil {
			return err
		}
		items, err := tx.ListBoughtItemsByID(ctx, ids)
		if err != nil {
			return err
		}
		settleable := 0
		for _, it := range items {
			if it.OrderID == order.ID && (it.Status == models.StatusReserved || it.Status == models.StatusUnpaid) {
				settleable++
			}
		}
		if settleable != len(ids) {
			return fmt.Errorf("cart of order %s changed after pricing, %d of %d items still payable: %w",
				order.ID, settleable, len(ids), models.ErrConflict)
		}

		if err := tx.LinkTransactionItems(ctx, txn.ID, ids); err != nil {
			return err
		}
		n, err := tx.UpdateBoughtItemStatus(ctx, ids, models.CartStatuses, models.StatusBought)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return fmt.Errorf("settled %d of %d cart items on order %s: %w", n, len(ids), order.ID, models.ErrConflict)
		}

		left, err := tx.CountBoughtItems(ctx, order.ID, models.StatusReserved)
		if err != nil {
			return err
		}
		if left == 0 {
			if err := tx.SetCartStartTime(ctx, order.ID, nil); err != nil {
				return err
			}
			order.CartStartTime = nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.LogCart("PAID", order.ID, fmt.Sprintf("%d items settled by transaction %s", len(ids), txn.ID))
	return nil
}

// ClearExpiredCarts sweeps every expired cart of an event.
func (s *OrderService) ClearExpiredCarts(ctx context.Context, eventID string) (int, error) {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.cartTimeout(event))

	orders, err := s.DB.ListExpiredCartOrders(ctx, eventID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired carts: %w", err)
	}

	cleared := 0
	for i := range orders {
		order := orders[i]
		expired, err := s.expireCart(ctx, &order, "sweep")
		if err != nil {
			return cleared, fmt.Errorf("expire cart of order %s: %w", order.ID, err)
		}
		if expired {
			cleared++
		}
	}
	if cleared > 0 {
		s.Logger.LogCart("SWEEP", eventID, fmt.Sprintf("%d expired carts cleared", cleared))
	}
	return cleared, nil
}
