package analytics

import (
	"context"
	"sort"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"

	"github.com/shopspring/decimal"
)

// Service answers organizer-facing reporting queries over the ledger.
type Service struct {
	db    *DB
	store db.Store
}

func NewService(store *db.DB) *Service {
	return &Service{db: NewDB(store.Bun), store: store}
}

// Totals aggregates ledger entries and line items.
type Totals struct {
	TotalPayments      decimal.Decimal      `json:"total_payments"`
	TotalRefunds       decimal.Decimal      `json:"total_refunds"`
	NetRevenue         decimal.Decimal      `json:"net_revenue"`
	ApplicationFees    decimal.Decimal      `json:"application_fees"`
	ProcessingFees     decimal.Decimal      `json:"processing_fees"`
	PendingCheckAmount decimal.Decimal      `json:"pending_check_amount"`
	PendingChecks      int                  `json:"pending_checks"`
	ItemsSold          int                  `json:"items_sold"`
	ItemsRefunded      int                  `json:"items_refunded"`
	ItemsTransferred   int                  `json:"items_transferred"`
	GrossSales         decimal.Decimal      `json:"gross_sales"`
	TotalSavings       decimal.Decimal      `json:"total_savings"`
	DailySales         []DailySalesMetrics  `json:"daily_sales"`
	SalesByOption      []OptionSalesMetrics `json:"sales_by_option"`
	DiscountUsage      []DiscountUsage      `json:"discount_usage"`
}

// DailySalesMetrics contains metrics for a single UTC day
type DailySalesMetrics struct {
	Date         string          `json:"date"`
	Payments     decimal.Decimal `json:"payments"`
	Refunds      decimal.Decimal `json:"refunds"`
	Transactions int             `json:"transactions"`
}

// OptionSalesMetrics counts BOUGHT items per catalog option.
type OptionSalesMetrics struct {
	OptionID   string          `json:"item_option_id,omitempty"`
	ItemName   string          `json:"item_name"`
	OptionName string          `json:"item_option_name"`
	Sold       int             `json:"sold"`
	Gross      decimal.Decimal `json:"gross"`
	Savings    decimal.Decimal `json:"savings"`
	Net        decimal.Decimal `json:"net"`
}

// DiscountUsage tracks how often a code was applied to BOUGHT items.
type DiscountUsage struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	UsageCount   int             `json:"usage_count"`
	TotalSavings decimal.Decimal `json:"total_savings"`
}

// EventAnalytics represents aggregated analytics data for an event
type EventAnalytics struct {
	EventID  string `json:"event_id"`
	Currency string `json:"currency"`
	Totals
}

func (s *Service) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

// GetEventAnalytics returns revenue analytics for a specific event
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	totals, err := s.totals(ctx, []string{eventID})
	if err != nil {
		return nil, err
	}
	return &EventAnalytics{EventID: event.ID, Currency: event.Currency, Totals: *totals}, nil
}

func (s *Service) totals(ctx context.Context, eventIDs []string) (*Totals, error) {
	txns, err := s.db.ListEventTransactions(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	items, err := s.db.ListEventItems(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	t := Aggregate(txns, items)
	return &t, nil
}

// Aggregate totals transactions and items. Unconfirmed payments are
// reported as pending and left out of revenue.
func Aggregate(txns []models.Transaction, items []models.BoughtItem) Totals {
	t := Totals{
		TotalPayments:      decimal.Zero,
		TotalRefunds:       decimal.Zero,
		ApplicationFees:    decimal.Zero,
		ProcessingFees:     decimal.Zero,
		PendingCheckAmount: decimal.Zero,
		GrossSales:         decimal.Zero,
		TotalSavings:       decimal.Zero,
		DailySales:         []DailySalesMetrics{},
		SalesByOption:      []OptionSalesMetrics{},
		DiscountUsage:      []DiscountUsage{},
	}

	days := make(map[string]*DailySalesMetrics)
	for _, txn := range txns {
		if txn.Type == models.TransactionTransfer {
			continue
		}
		if !txn.IsConfirmed {
			if txn.Method == models.MethodCheck {
				t.PendingChecks++
				t.PendingCheckAmount = t.PendingCheckAmount.Add(txn.Amount)
			}
			continue
		}

		date := txn.Timestamp.UTC().Format("2006-01-02")
		day, ok := days[date]
		if !ok {
			day = &DailySalesMetrics{Date: date, Payments: decimal.Zero, Refunds: decimal.Zero}
			days[date] = day
		}
		day.Transactions++

		if txn.Type == models.TransactionRefund {
			t.TotalRefunds = t.TotalRefunds.Add(txn.Amount)
			day.Refunds = day.Refunds.Add(txn.Amount)
		} else {
			t.TotalPayments = t.TotalPayments.Add(txn.Amount)
			day.Payments = day.Payments.Add(txn.Amount)
		}
		t.ApplicationFees = t.ApplicationFees.Add(txn.ApplicationFee)
		t.ProcessingFees = t.ProcessingFees.Add(txn.ProcessingFee)
	}
	t.NetRevenue = t.TotalPayments.Add(t.TotalRefunds)
	for _, day := range days {
		t.DailySales = append(t.DailySales, *day)
	}
	sort.Slice(t.DailySales, func(i, j int) bool { return t.DailySales[i].Date < t.DailySales[j].Date })

	options := make(map[string]*OptionSalesMetrics)
	codes := make(map[string]*DiscountUsage)
	for i := range items {
		it := &items[i]
		switch it.Status {
		case models.StatusRefunded:
			t.ItemsRefunded++
			continue
		case models.StatusTransferred:
			t.ItemsTransferred++
			continue
		case models.StatusBought:
		default:
			continue
		}

		t.ItemsSold++
		savings := it.Savings()
		t.GrossSales = t.GrossSales.Add(it.Price)
		t.TotalSavings = t.TotalSavings.Add(savings)

		key := it.OptionID + "|" + it.ItemName + "|" + it.OptionName
		opt, ok := options[key]
		if !ok {
			opt = &OptionSalesMetrics{OptionID: it.OptionID, ItemName: it.ItemName, OptionName: it.OptionName, Gross: decimal.Zero, Savings: decimal.Zero}
			options[key] = opt
		}
		opt.Sold++
		opt.Gross = opt.Gross.Add(it.Price)
		opt.Savings = opt.Savings.Add(savings)
		opt.Net = opt.Gross.Sub(opt.Savings)

		for j := range it.Discounts {
			d := &it.Discounts[j]
			usage, ok := codes[d.Code]
			if !ok {
				usage = &DiscountUsage{Code: d.Code, Name: d.Name, TotalSavings: decimal.Zero}
				codes[d.Code] = usage
			}
			usage.UsageCount++
			usage.TotalSavings = usage.TotalSavings.Add(d.Savings(it.Price))
		}
	}

	for _, opt := range options {
		t.SalesByOption = append(t.SalesByOption, *opt)
	}
	sort.Slice(t.SalesByOption, func(i, j int) bool {
		a, b := t.SalesByOption[i], t.SalesByOption[j]
		if a.ItemName != b.ItemName {
			return a.ItemName < b.ItemName
		}
		return a.OptionName < b.OptionName
	})
	for _, usage := range codes {
		t.DiscountUsage = append(t.DiscountUsage, *usage)
	}
	sort.Slice(t.DiscountUsage, func(i, j int) bool { return t.DiscountUsage[i].Code < t.DiscountUsage[j].Code })

	return t
}
