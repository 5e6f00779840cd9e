package order

import (
	"context"
	"time"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"
)

// CatalogService answers availability questions for catalog options.
type CatalogService struct {
	DB  db.Store
	now func() time.Time
}

func NewCatalogService(store db.Store, now func() time.Time) *CatalogService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CatalogService{DB: store, now: now}
}

// Remaining is capacity minus reserved, unpaid and bought items, floored at
// zero. nil means unlimited.
func (c *CatalogService) Remaining(ctx context.Context, option *models.CatalogOption) (*int, error) {
	if option.TotalNumber == nil {
		return nil, nil
	}
	taken, err := c.DB.CountItemsForOption(ctx, option.ID, models.CapacityStatuses)
	if err != nil {
		return nil, err
	}
	left := *option.TotalNumber - taken
	if left < 0 {
		left = 0
	}
	return &left, nil
}

// CheckAvailable is the best-effort check run before AddToCart. Two callers
// can both pass it for the last unit.
func (c *CatalogService) CheckAvailable(ctx context.Context, optionID string) (*models.CatalogOption, error) {
	option, err := c.DB.GetCatalogOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if !option.IsAvailableAt(c.now()) {
		return nil, models.NewValidationError("option_id", "%s is not on sale", option.Name)
	}
	left, err := c.Remaining(ctx, option)
	if err != nil {
		return nil, err
	}
	if left != nil && *left == 0 {
		return nil, models.NewValidationError("option_id", "%s is sold out", option.Name)
	}
	return option, nil
}
