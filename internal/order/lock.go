package order

import (
	"context"
	"errors"
	"fmt"

	"ms-ledger/internal/models"

	"github.com/google/uuid"
)

type heldOrderKey struct{}

// WithOrderLock marks ctx as running under the Redis lock of orderID. Cart
// operations called with it do not try to take that lock again.
func WithOrderLock(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, heldOrderKey{}, orderID)
}

func holdsOrderLock(ctx context.Context, orderID string) bool {
	held, _ := ctx.Value(heldOrderKey{}).(string)
	return held != "" && held == orderID
}

func (s *OrderService) releaseOrder(orderID, token string) {
	if err := s.Sessions.UnlockOrder(context.Background(), orderID, token); err != nil {
		s.Logger.Warn("ORDER", fmt.Sprintf("Failed to release order lock %s: %v", orderID, err))
	}
}

// withCartLock runs fn while holding the order lock, waiting for a running
// checkout to finish first.
func (s *OrderService) withCartLock(ctx context.Context, orderID string, fn func(ctx context.Context) error) error {
	if holdsOrderLock(ctx, orderID) {
		return fn(ctx)
	}
	token := uuid.NewString()
	if err := s.Sessions.WaitOrderLock(ctx, orderID, token); err != nil {
		return fmt.Errorf("cart of order %s is busy: %w", orderID, err)
	}
	defer s.releaseOrder(orderID, token)
	return fn(WithOrderLock(ctx, orderID))
}

// tryCartLock is withCartLock for background work: a busy order is skipped
// and fn is not run.
func (s *OrderService) tryCartLock(ctx context.Context, orderID string, fn func(ctx context.Context) error) (bool, error) {
	if holdsOrderLock(ctx, orderID) {
		return true, fn(ctx)
	}
	token := uuid.NewString()
	if err := s.Sessions.LockOrder(ctx, orderID, token); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	defer s.releaseOrder(orderID, token)
	return true, fn(WithOrderLock(ctx, orderID))
}
