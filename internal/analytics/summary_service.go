package analytics

import (
	"context"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db"
)

// SummaryService builds order summaries from persisted ledger rows.
type SummaryService struct {
	DB     db.Store
	Orders *order.OrderService
}

func NewSummaryService(store db.Store, orders *order.OrderService) *SummaryService {
	return &SummaryService{DB: store, Orders: orders}
}

// LoadSummaryInput reads an order's transactions, items and links through
// store, which may be bound to a database transaction.
func LoadSummaryInput(ctx context.Context, store db.Store, orderID string) (SummaryInput, error) {
	txns, err := store.ListTransactionsByOrder(ctx, orderID)
	if err != nil {
		return SummaryInput{}, err
	}
	items, err := store.ListBoughtItems(ctx, orderID)
	if err != nil {
		return SummaryInput{}, err
	}
	links, err := store.ListTransactionLinks(ctx, orderID)
	if err != nil {
		return SummaryInput{}, err
	}
	return SummaryInput{Transactions: txns, Items: items, Links: links}, nil
}

// OrderSummary clears an expired cart and summarizes what remains.
func (s *SummaryService) OrderSummary(ctx context.Context, orderID string) (*Summary, error) {
	o, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.Summary(ctx, o)
}

func (s *SummaryService) Summary(ctx context.Context, o *models.Order) (*Summary, error) {
	if _, err := s.Orders.ExpireCartIfStale(ctx, o); err != nil {
		return nil, err
	}
	in, err := LoadSummaryInput(ctx, s.DB, o.ID)
	if err != nil {
		return nil, err
	}
	return Summarize(in), nil
}
