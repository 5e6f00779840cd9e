package order

import (
	"context"
	"fmt"
	"time"
)

// SweepExpiredCarts clears expired carts across every event with a running
// cart timer. One failing event does not stop the others.
func (s *OrderService) SweepExpiredCarts(ctx context.Context) (int, error) {
	eventIDs, err := s.DB.ListEventsWithOpenCarts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events with open carts: %w", err)
	}

	total := 0
	var firstErr error
	for _, eventID := range eventIDs {
		n, err := s.ClearExpiredCarts(ctx, eventID)
		total += n
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to clear carts of event %s: %v", eventID, err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return total, firstErr
}

// RunCartSweeper sweeps on every tick until ctx is cancelled.
func (s *OrderService) RunCartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.Logger.Warn("SWEEP", "Cart sweeper disabled, expiry is enforced lazily only")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info("SWEEP", fmt.Sprintf("Cart sweeper started, interval %s", interval))
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("SWEEP", "Cart sweeper stopped")
			return
		case <-ticker.C:
			s.SweepExpiredCarts(ctx)
		}
	}
}
