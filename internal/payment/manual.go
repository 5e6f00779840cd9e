package payment

import (
	"context"
	"fmt"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordCheckPayment settles the cart against an unconfirmed CHECK purchase
// for the outstanding balance. The organizer confirms it once the check
// clears.
func (l *LedgerService) RecordCheckPayment(ctx context.Context, orderID, issuer string) (*models.Transaction, error) {
	o, err := l.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	event, err := l.DB.GetEvent(ctx, o.EventID)
	if err != nil {
		return nil, err
	}
	if !event.CheckPaymentAllowed {
		return nil, models.NewValidationError("method", "event %s does not accept checks", event.Name)
	}

	var txn *models.Transaction
	var itemIDs []string
	err = l.withOrderLock(ctx, o.ID, func(ctx context.Context) error {
		balance, priced, err := l.cartBalance(ctx, o)
		if err != nil {
			return err
		}
		if len(priced) == 0 || !balance.IsPositive() {
			return models.NewValidationError("cart", "order %s has nothing to pay by check", o.Code)
		}

		txn = &models.Transaction{
			ID:             uuid.NewString(),
			EventID:        o.EventID,
			OrderID:        o.ID,
			CreatedBy:      issuer,
			Method:         models.MethodCheck,
			Type:           models.TransactionPurchase,
			Amount:         balance,
			ApplicationFee: decimal.Zero,
			ProcessingFee:  decimal.Zero,
			IsConfirmed:    false,
			APIType:        event.APIType,
			Timestamp:      l.now(),
		}
		itemIDs, err = l.recordPayment(ctx, o, txn, nil, settlePriced(priced))
		return err
	})
	if err != nil {
		return nil, err
	}
	l.recorded(ctx, models.LedgerPaymentRecorded, o, txn, event.Currency, itemIDs)
	return txn, nil
}

// RecordManualPayment stores an organizer-entered payment. It is confirmed
// on entry and leaves item statuses alone.
func (l *LedgerService) RecordManualPayment(ctx context.Context, orderID string, req models.ManualPaymentRequest, issuer string) (*models.Transaction, error) {
	if !req.Method.IsManual() {
		return nil, models.NewValidationError("method", "%s payments cannot be entered by hand", req.Method)
	}
	if req.Amount.IsNegative() {
		return nil, models.NewValidationError("amount", "payment amount %s is negative", req.Amount.StringFixed(2))
	}

	o, err := l.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	event, err := l.DB.GetEvent(ctx, o.EventID)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		ID:             uuid.NewString(),
		EventID:        o.EventID,
		OrderID:        o.ID,
		CreatedBy:      issuer,
		Method:         req.Method,
		Type:           models.TransactionPurchase,
		Amount:         req.Amount,
		ApplicationFee: decimal.Zero,
		ProcessingFee:  decimal.Zero,
		IsConfirmed:    true,
		APIType:        event.APIType,
		Timestamp:      l.now(),
	}
	if _, err := l.recordPayment(ctx, o, txn, nil, nil); err != nil {
		return nil, err
	}
	l.recorded(ctx, models.LedgerPaymentRecorded, o, txn, event.Currency, nil)
	return txn, nil
}

// ConfirmTransaction marks a pending manual payment as received. Confirming
// twice is a no-op.
func (l *LedgerService) ConfirmTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	var txn *models.Transaction
	var changed bool
	err := l.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		var err error
		if txn, err = tx.LockTransaction(ctx, txnID); err != nil {
			return err
		}
		if changed, err = tx.ConfirmTransaction(ctx, txnID); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		txn.IsConfirmed = true
		return tx.TouchEvent(ctx, txn.EventID, l.now())
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return txn, nil
	}

	l.Logger.LogLedger("CONFIRM", txn.ID, fmt.Sprintf("%s payment of %s confirmed", txn.Method, txn.Amount.StringFixed(2)))
	if l.Kafka != nil {
		evt := models.LedgerEvent{
			Type:          models.LedgerTxnConfirmed,
			EventID:       txn.EventID,
			OrderID:       txn.OrderID,
			TransactionID: txn.ID,
			Method:        string(txn.Method),
			Amount:        txn.Amount,
			OccurredAt:    l.now(),
		}
		if err := l.Kafka.PublishLedgerEvent(ctx, evt); err != nil {
			l.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", evt.Type, err))
		}
	}
	return txn, nil
}

// TransferItem moves a BOUGHT item to another order of the same event. The
// source item becomes TRANSFERRED and the target receives a BOUGHT copy
// with the same snapshot. Zero-amount TRANSFER transactions record the move
// on both orders.
func (l *LedgerService) TransferItem(ctx context.Context, itemID string, req models.TransferRequest, issuer string) (*models.BoughtItem, error) {
	item, err := l.DB.GetBoughtItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OrderID == req.ToOrderID {
		return nil, models.NewValidationError("to_order_id", "item %s already belongs to order %s", itemID, req.ToOrderID)
	}
	src, err := l.DB.GetOrderByID(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}
	dst, err := l.DB.GetOrderByID(ctx, req.ToOrderID)
	if err != nil {
		return nil, err
	}
	if src.EventID != dst.EventID {
		return nil, models.NewValidationError("to_order_id", "order %s belongs to another event", dst.Code)
	}
	event, err := l.DB.GetEvent(ctx, src.EventID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	transferred := &models.BoughtItem{
		ID:           uuid.NewString(),
		OrderID:      dst.ID,
		OptionID:     item.OptionID,
		Status:       models.StatusBought,
		ItemSnapshot: item.ItemSnapshot,
		CreatedAt:    now,
	}
	out := &models.Transaction{
		ID:             uuid.NewString(),
		EventID:        src.EventID,
		OrderID:        src.ID,
		CreatedBy:      issuer,
		Method:         models.MethodNone,
		Type:           models.TransactionTransfer,
		Amount:         decimal.Zero,
		ApplicationFee: decimal.Zero,
		ProcessingFee:  decimal.Zero,
		IsConfirmed:    true,
		APIType:        event.APIType,
		Timestamp:      now,
	}
	in := *out
	in.ID = uuid.NewString()
	in.OrderID = dst.ID
	in.RelatedTransactionID = out.ID

	err = l.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		// lock in id order so opposite transfers cannot deadlock
		first, second := src.ID, dst.ID
		if second < first {
			first, second = second, first
		}
		if _, err := tx.LockOrder(ctx, first); err != nil {
			return err
		}
		if _, err := tx.LockOrder(ctx, second); err != nil {
			return err
		}

		unconfirmed, err := tx.CountUnconfirmedTransactions(ctx, src.ID)
		if err != nil {
			return err
		}
		if unconfirmed > 0 {
			return models.NewValidationError("item_id", "order %s has %d unconfirmed payments", src.Code, unconfirmed)
		}

		n, err := tx.UpdateBoughtItemStatus(ctx, []string{item.ID}, []models.BoughtItemStatus{models.StatusBought}, models.StatusTransferred)
		if err != nil {
			return err
		}
		if n != 1 {
			return models.NewValidationError("item_id", "item %s is %s and cannot be transferred", item.ID, item.Status)
		}
		if err := tx.CreateBoughtItem(ctx, transferred); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, out, []string{item.ID}); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, &in, []string{transferred.ID}); err != nil {
			return err
		}
		return tx.TouchEvent(ctx, src.EventID, now)
	})
	if err != nil {
		return nil, err
	}

	l.recorded(ctx, models.LedgerItemTransferred, src, out, event.Currency, []string{item.ID, transferred.ID})
	return transferred, nil
}
