package analytics

import (
	"context"

	"github.com/shopspring/decimal"
)

type EventRevenue struct {
	EventID    string          `json:"event_id"`
	Name       string          `json:"name"`
	Currency   string          `json:"currency"`
	NetRevenue decimal.Decimal `json:"net_revenue"`
	ItemsSold  int             `json:"items_sold"`
}

// OrganizationAnalytics represents aggregated analytics data for all events in an organization
type OrganizationAnalytics struct {
	OrganizationID string         `json:"organization_id"`
	Events         []EventRevenue `json:"events"`
	Totals
}

// GetOrganizationAnalytics returns revenue analytics for all events in an
// organization. Totals add amounts across currencies as-is.
func (s *Service) GetOrganizationAnalytics(ctx context.Context, organizationID string) (*OrganizationAnalytics, error) {
	events, err := s.db.ListOrganizationEvents(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	out := &OrganizationAnalytics{OrganizationID: organizationID, Events: make([]EventRevenue, 0, len(events))}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
		t, err := s.totals(ctx, []string{e.ID})
		if err != nil {
			return nil, err
		}
		out.Events = append(out.Events, EventRevenue{
			EventID:    e.ID,
			Name:       e.Name,
			Currency:   e.Currency,
			NetRevenue: t.NetRevenue,
			ItemsSold:  t.ItemsSold,
		})
	}

	totals, err := s.totals(ctx, ids)
	if err != nil {
		return nil, err
	}
	out.Totals = *totals
	return out, nil
}
