package discount

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/utils"

	"github.com/shopspring/decimal"
)

// maxCodeAttempts bounds GenerateCode's search for an unused code.
const maxCodeAttempts = 20

// DiscountService handles validation of discounts against cart items
type DiscountService struct {
	logger *logger.Logger
}

// NewDiscountService creates a new DiscountService instance
func NewDiscountService(log *logger.Logger) *DiscountService {
	return &DiscountService{
		logger: log,
	}
}

// ApplyDiscountResult represents the outcome of evaluating a discount for a cart
type ApplyDiscountResult struct {
	IsValid         bool            // Whether the discount can be attached at all
	Reason          string          // Why the discount was not applicable
	ApplicableItems []string        // Line items that should receive an attachment
	TotalSavings    decimal.Decimal // Savings across ApplicableItems
}

// IsAvailable reports whether now is inside the discount window.
func (s *DiscountService) IsAvailable(d *models.Discount, now time.Time) bool {
	return !now.Before(d.AvailableStart) && !now.After(d.AvailableEnd)
}

// Evaluate decides which of items the discount attaches to. Items must be
// in a cart status, reference an eligible option and not already carry the
// discount code. force skips the availability window.
func (s *DiscountService) Evaluate(
	d *models.Discount,
	eligibleOptions []string,
	items []models.BoughtItem,
	now time.Time,
	force bool,
) *ApplyDiscountResult {
	result := &ApplyDiscountResult{
		ApplicableItems: make([]string, 0),
		TotalSavings:    decimal.Zero,
	}

	if !force && !s.IsAvailable(d, now) {
		result.Reason = "Discount is not currently available"
		return result
	}

	eligible := make(map[string]bool, len(eligibleOptions))
	for _, id := range eligibleOptions {
		eligible[id] = true
	}

	for i := range items {
		item := &items[i]
		if item.Status != models.StatusReserved && item.Status != models.StatusUnpaid {
			continue
		}
		if item.OptionID == "" || !eligible[item.OptionID] {
			continue
		}
		if hasCode(item, d.Code) {
			continue
		}
		result.ApplicableItems = append(result.ApplicableItems, item.ID)
		result.TotalSavings = result.TotalSavings.Add(d.Type.Savings(d.Amount, item.Price))
	}

	if len(result.ApplicableItems) == 0 {
		result.Reason = "No items in the cart are eligible for this discount"
		return result
	}

	result.IsValid = true
	s.logger.Debug("DISCOUNT", fmt.Sprintf("Discount %s applies to %d items, saving %s",
		d.Code, len(result.ApplicableItems), result.TotalSavings.StringFixed(2)))
	return result
}

func hasCode(item *models.BoughtItem, code string) bool {
	for _, att := range item.Discounts {
		if att.Code == code {
			return true
		}
	}
	return false
}

// GenerateCode returns a random code that exists reports as unused.
func (s *DiscountService) GenerateCode(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := utils.GenerateDiscountCode()
		if err != nil {
			return "", fmt.Errorf("generate discount code: %w", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free discount code after %d attempts: %w", maxCodeAttempts, models.ErrConflict)
}
