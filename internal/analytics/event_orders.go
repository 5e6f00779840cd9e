package analytics

import (
	"context"

	"ms-ledger/internal/models"
)

// EventOrderOptions filters and pages GetEventOrders.
type EventOrderOptions struct {
	Limit    int
	Offset   int
	SortDesc bool
	// BalanceDue keeps only orders that still owe money.
	BalanceDue bool
}

type OrderOverview struct {
	Order   models.Order `json:"order"`
	Summary *Summary     `json:"summary"`
}

// GetEventOrders lists an event's orders with their summaries. Summaries
// are read as stored; expired carts are not cleared here.
func (s *Service) GetEventOrders(ctx context.Context, eventID string, opts EventOrderOptions) ([]OrderOverview, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	orders, err := s.db.ListEventOrders(ctx, eventID, opts)
	if err != nil {
		return nil, err
	}

	out := make([]OrderOverview, 0, len(orders))
	for _, o := range orders {
		in, err := LoadSummaryInput(ctx, s.store, o.ID)
		if err != nil {
			return nil, err
		}
		sum := Summarize(in)
		if opts.BalanceDue && !sum.NetBalance.IsPositive() {
			continue
		}
		out = append(out, OrderOverview{Order: o, Summary: sum})
	}
	return out, nil
}
