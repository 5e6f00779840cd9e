package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testDiscount() *models.Discount {
	return &models.Discount{
		ID:             "d-1",
		Code:           "EARLY",
		Type:           models.DiscountPercent,
		Amount:         decimal.NewFromInt(20),
		AvailableStart: now.Add(-time.Hour),
		AvailableEnd:   now.Add(time.Hour),
	}
}

func item(id, option string, status models.BoughtItemStatus, price int64, codes ...string) models.BoughtItem {
	bi := models.BoughtItem{
		ID:           id,
		OptionID:     option,
		Status:       status,
		ItemSnapshot: models.ItemSnapshot{Price: decimal.NewFromInt(price)},
	}
	for _, c := range codes {
		bi.Discounts = append(bi.Discounts, models.BoughtItemDiscount{DiscountSnapshot: models.DiscountSnapshot{Code: c}})
	}
	return bi
}

func TestEvaluate_SelectsEligibleCartItems(t *testing.T) {
	s := NewDiscountService(logger.Discard())

	items := []models.BoughtItem{
		item("a", "opt-pass", models.StatusReserved, 50),
		item("b", "opt-pass", models.StatusUnpaid, 50),
		item("c", "opt-dinner", models.StatusReserved, 30),
		item("d", "opt-pass", models.StatusBought, 50),
		item("e", "opt-pass", models.StatusReserved, 50, "EARLY"),
		item("f", "", models.StatusReserved, 50),
	}

	res := s.Evaluate(testDiscount(), []string{"opt-pass"}, items, now, false)
	require.True(t, res.IsValid)
	assert.Equal(t, []string{"a", "b"}, res.ApplicableItems)
	assert.Equal(t, "20.00", res.TotalSavings.StringFixed(2))
}

func TestEvaluate_WindowAndForce(t *testing.T) {
	s := NewDiscountService(logger.Discard())
	d := testDiscount()
	d.AvailableEnd = now.Add(-time.Minute)
	items := []models.BoughtItem{item("a", "opt-pass", models.StatusReserved, 50)}

	res := s.Evaluate(d, []string{"opt-pass"}, items, now, false)
	assert.False(t, res.IsValid)
	assert.Empty(t, res.ApplicableItems)
	assert.NotEmpty(t, res.Reason)

	res = s.Evaluate(d, []string{"opt-pass"}, items, now, true)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"a"}, res.ApplicableItems)
}

func TestEvaluate_NothingEligible(t *testing.T) {
	s := NewDiscountService(logger.Discard())
	items := []models.BoughtItem{item("a", "opt-dinner", models.StatusReserved, 30)}

	res := s.Evaluate(testDiscount(), []string{"opt-pass"}, items, now, false)
	assert.False(t, res.IsValid)
	assert.True(t, res.TotalSavings.IsZero())
}

func TestIsAvailable_Boundaries(t *testing.T) {
	s := NewDiscountService(logger.Discard())
	d := testDiscount()

	assert.True(t, s.IsAvailable(d, d.AvailableStart))
	assert.True(t, s.IsAvailable(d, d.AvailableEnd))
	assert.False(t, s.IsAvailable(d, d.AvailableStart.Add(-time.Nanosecond)))
	assert.False(t, s.IsAvailable(d, d.AvailableEnd.Add(time.Nanosecond)))
}

func TestGenerateCode(t *testing.T) {
	s := NewDiscountService(logger.Discard())
	ctx := context.Background()

	calls := 0
	code, err := s.GenerateCode(ctx, func(ctx context.Context, code string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 3, calls)

	_, err = s.GenerateCode(ctx, func(ctx context.Context, code string) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	boom := errors.New("db down")
	_, err = s.GenerateCode(ctx, func(ctx context.Context, code string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
