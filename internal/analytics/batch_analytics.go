package analytics

import (
	"context"
)

// BatchEventAnalytics represents aggregated analytics data for multiple events
type BatchEventAnalytics struct {
	EventIDs []string `json:"event_ids"`
	Totals
}

// GetBatchEventAnalytics aggregates several events as one. Unknown ids
// fail the whole batch.
func (s *Service) GetBatchEventAnalytics(ctx context.Context, eventIDs []string) (*BatchEventAnalytics, error) {
	ids := make([]string, 0, len(eventIDs))
	seen := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.store.GetEvent(ctx, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	totals, err := s.totals(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &BatchEventAnalytics{EventIDs: ids, Totals: *totals}, nil
}
