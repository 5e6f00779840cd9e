package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-ledger/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Store is the persistence surface the cart and ledger services share.
// RunInTx hands fn a Store bound to a single database transaction; nested
// calls reuse the outer transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// events and catalog
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	TouchEvent(ctx context.Context, eventID string, at time.Time) error
	GetCatalogOption(ctx context.Context, id string) (*models.CatalogOption, error)
	CountItemsForOption(ctx context.Context, optionID string, statuses []models.BoughtItemStatus) (int, error)
	GetDiscount(ctx context.Context, id string) (*models.Discount, error)
	GetDiscountByCode(ctx context.Context, eventID, code string) (*models.Discount, error)
	DiscountCodeExists(ctx context.Context, eventID, code string) (bool, error)
	ListDiscountOptionIDs(ctx context.Context, discountID string) ([]string, error)

	// orders
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPerson(ctx context.Context, eventID, personID string) (*models.Order, error)
	GetAnonymousOrderByCode(ctx context.Context, eventID, code string) (*models.Order, error)
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	SetOrderPerson(ctx context.Context, orderID, personID string) error
	SetCartStartTime(ctx context.Context, orderID string, at *time.Time) error
	ListExpiredCartOrders(ctx context.Context, eventID string, startedBefore time.Time) ([]models.Order, error)
	ListEventsWithOpenCarts(ctx context.Context) ([]string, error)

	// line items and discount attachments
	CreateBoughtItem(ctx context.Context, item *models.BoughtItem) error
	GetBoughtItem(ctx context.Context, id string) (*models.BoughtItem, error)
	ListBoughtItems(ctx context.Context, orderID string, statuses ...models.BoughtItemStatus) ([]models.BoughtItem, error)
	ListBoughtItemsByID(ctx context.Context, ids []string) ([]models.BoughtItem, error)
	CountBoughtItems(ctx context.Context, orderID string, statuses ...models.BoughtItemStatus) (int, error)
	DeleteReservedItems(ctx context.Context, orderID string, ids []string) (int, error)
	UpdateBoughtItemStatus(ctx context.Context, ids []string, from []models.BoughtItemStatus, to models.BoughtItemStatus) (int, error)
	CreateItemDiscount(ctx context.Context, attachment *models.BoughtItemDiscount) error

	// transactions
	CreateTransaction(ctx context.Context, txn *models.Transaction, itemIDs []string) error
	LinkTransactionItems(ctx context.Context, txnID string, itemIDs []string) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	LockTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactionsByOrder(ctx context.Context, orderID string) ([]models.Transaction, error)
	ListRelatedTransactions(ctx context.Context, txnID string, txnType models.TransactionType) ([]models.Transaction, error)
	SumRelatedAmounts(ctx context.Context, txnID string, txnType models.TransactionType) (decimal.Decimal, error)
	ListTransactionItemIDs(ctx context.Context, txnID string) ([]string, error)
	ListTransactionLinks(ctx context.Context, orderID string) ([]models.TransactionBoughtItem, error)
	ConfirmTransaction(ctx context.Context, id string) (bool, error)
	CountUnconfirmedTransactions(ctx context.Context, orderID string) (int, error)
	CreateCreditCard(ctx context.Context, card *models.CreditCard) error
}

// DB implements Store on bun. Bun is the root handle; tx is set on copies
// handed out by RunInTx.
type DB struct {
	Bun *bun.DB
	tx  bun.IDB
}

var _ Store = (*DB)(nil)

func (d *DB) conn() bun.IDB {
	if d.tx != nil {
		return d.tx
	}
	return d.Bun
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if d.tx != nil {
		return fn(ctx, d)
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: d.Bun, tx: tx})
	})
}

// forUpdate adds a row lock on dialects that support it. SQLite serializes
// writers on its own.
func (d *DB) forUpdate(q *bun.SelectQuery) *bun.SelectQuery {
	if d.tx != nil && d.Bun.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

// notFound maps sql.ErrNoRows onto the given sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

// isUniqueViolation recognizes duplicate-key failures from postgres and sqlite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func conflict(err error, what string) error {
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, models.ErrConflict)
	}
	return err
}
