package db

import (
	"context"
	"fmt"

	"ms-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ---------------- TRANSACTIONS ----------------

// CreateTransaction → insert a ledger entry and link it to the given items
func (d *DB) CreateTransaction(ctx context.Context, txn *models.Transaction, itemIDs []string) error {
	if _, err := d.conn().NewInsert().Model(txn).Exec(ctx); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return d.LinkTransactionItems(ctx, txn.ID, itemIDs)
}

// LinkTransactionItems → record which items a transaction settled
func (d *DB) LinkTransactionItems(ctx context.Context, txnID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	links := make([]models.TransactionBoughtItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		links = append(links, models.TransactionBoughtItem{TransactionID: txnID, BoughtItemID: id})
	}
	if _, err := d.conn().NewInsert().Model(&links).Exec(ctx); err != nil {
		return fmt.Errorf("link transaction items: %w", err)
	}
	return nil
}

func (d *DB) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	err := d.conn().NewSelect().
		Model(&txn).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, models.ErrTransactionNotFound)
	}
	return &txn, nil
}

// LockTransaction → re-read a transaction inside a transaction, row-locked on postgres
func (d *DB) LockTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	q := d.conn().NewSelect().
		Model(&txn).
		Where("id = ?", id).
		Limit(1)
	if err := d.forUpdate(q).Scan(ctx); err != nil {
		return nil, notFound(err, models.ErrTransactionNotFound)
	}
	return &txn, nil
}

// ListTransactionsByOrder → newest first
func (d *DB) ListTransactionsByOrder(ctx context.Context, orderID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := d.conn().NewSelect().
		Model(&txns).
		Where("order_id = ?", orderID).
		OrderExpr("? DESC, ? DESC", bun.Ident("timestamp"), bun.Ident("id")).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *DB) ListRelatedTransactions(ctx context.Context, txnID string, txnType models.TransactionType) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := d.conn().NewSelect().
		Model(&txns).
		Where("related_transaction_id = ?", txnID).
		Where("transaction_type = ?", txnType).
		OrderExpr("? ASC", bun.Ident("timestamp")).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// SumRelatedAmounts → signed sum of linked transactions of a type; zero when none
func (d *DB) SumRelatedAmounts(ctx context.Context, txnID string, txnType models.TransactionType) (decimal.Decimal, error) {
	related, err := d.ListRelatedTransactions(ctx, txnID, txnType)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range related {
		total = total.Add(t.Amount)
	}
	return total, nil
}

func (d *DB) ListTransactionItemIDs(ctx context.Context, txnID string) ([]string, error) {
	var ids []string
	err := d.conn().NewSelect().
		Model((*models.TransactionBoughtItem)(nil)).
		Column("bought_item_id").
		Where("transaction_id = ?", txnID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListTransactionLinks → every transaction↔item link of an order
func (d *DB) ListTransactionLinks(ctx context.Context, orderID string) ([]models.TransactionBoughtItem, error) {
	var links []models.TransactionBoughtItem
	txnIDs := d.conn().NewSelect().
		Model((*models.Transaction)(nil)).
		Column("id").
		Where("order_id = ?", orderID)
	err := d.conn().NewSelect().
		Model(&links).
		Where("transaction_id IN (?)", txnIDs).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return links, nil
}

// ConfirmTransaction → flip is_confirmed false→true; reports whether it changed
func (d *DB) ConfirmTransaction(ctx context.Context, id string) (bool, error) {
	res, err := d.conn().NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("is_confirmed = ?", true).
		Where("id = ?", id).
		Where("is_confirmed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) CountUnconfirmedTransactions(ctx context.Context, orderID string) (int, error) {
	return d.conn().NewSelect().
		Model((*models.Transaction)(nil)).
		Where("order_id = ?", orderID).
		Where("is_confirmed = ?", false).
		Count(ctx)
}

func (d *DB) CreateCreditCard(ctx context.Context, card *models.CreditCard) error {
	_, err := d.conn().NewInsert().Model(card).Exec(ctx)
	return err
}
