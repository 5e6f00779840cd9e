package payment

import (
	"context"
	"fmt"

	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refund returns money and items from a purchase. A nil Amount means
// everything still refundable; nil Items means every item of the purchase
// that is still BOUGHT. Nothing is recorded when both come out empty.
func (l *LedgerService) Refund(ctx context.Context, txnID string, req models.RefundRequest, issuer string) (*models.Transaction, error) {
	var refund *models.Transaction
	err := l.withRefundLock(ctx, txnID, func() error {
		var err error
		refund, err = l.refund(ctx, txnID, req, issuer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (l *LedgerService) refund(ctx context.Context, txnID string, req models.RefundRequest, issuer string) (*models.Transaction, error) {
	orig, err := l.DB.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if orig.Type != models.TransactionPurchase {
		return nil, models.NewValidationError("transaction", "%s transactions cannot be refunded", orig.Type)
	}

	refundable, err := l.RefundableAmount(ctx, orig)
	if err != nil {
		return nil, err
	}
	returnable, err := returnableItems(ctx, l.DB, orig.ID)
	if err != nil {
		return nil, err
	}

	amount := refundable
	if req.Amount != nil {
		amount = *req.Amount
	}
	items := returnable
	if req.Items != nil {
		items = dedupe(req.Items)
	}

	if amount.IsZero() && len(items) == 0 {
		return nil, nil
	}
	if amount.GreaterThan(refundable) {
		return nil, models.NewValidationError("amount", "refund of %s exceeds refundable amount %s", amount.StringFixed(2), refundable.StringFixed(2))
	}
	if amount.IsNegative() {
		return nil, models.NewValidationError("amount", "refund amount %s is negative", amount.StringFixed(2))
	}
	allowed := make(map[string]bool, len(returnable))
	for _, id := range returnable {
		allowed[id] = true
	}
	for _, id := range items {
		if !allowed[id] {
			return nil, models.NewValidationError("items", "item %s cannot be returned from transaction %s", id, orig.ID)
		}
	}
	if !orig.Method.IsRefundable() {
		return nil, models.NewValidationError("method", "%s payments cannot be refunded", orig.Method)
	}

	event, err := l.DB.GetEvent(ctx, orig.EventID)
	if err != nil {
		return nil, err
	}

	refund := &models.Transaction{
		ID:                   uuid.NewString(),
		EventID:              orig.EventID,
		OrderID:              orig.OrderID,
		CreatedBy:            issuer,
		Method:               orig.Method,
		Type:                 models.TransactionRefund,
		Amount:               amount.Neg(),
		ApplicationFee:       decimal.Zero,
		ProcessingFee:        decimal.Zero,
		IsConfirmed:          true,
		RelatedTransactionID: orig.ID,
		APIType:              orig.APIType,
	}

	if !amount.IsZero() && orig.Method.HasProcessor() {
		p, err := l.processor(orig.Method)
		if err != nil {
			return nil, err
		}
		refundCtx, cancel := context.WithTimeout(ctx, l.processorTimeout)
		defer cancel()
		res, err := p.Refund(refundCtx, models.ProcessorRefund{
			RemoteID: orig.RemoteID,
			Amount:   amount,
			Currency: event.Currency,
			Account:  event.StripeAccountID,
		})
		if err != nil {
			l.Logger.Error("LEDGER", fmt.Sprintf("Refund of %s failed at %s: %v", orig.ID, p.Name(), err))
			return nil, processorFailure(p, "refund", err)
		}
		refund.Amount = res.Amount.Neg()
		refund.RemoteID = res.RemoteID
		refund.ApplicationFee = res.ApplicationFeeRefund.Neg()
		refund.ProcessingFee = models.SumFees(res.Fees, models.FeeProcessor)
	}
	refund.Timestamp = l.now()

	err = l.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		if _, err := tx.LockTransaction(ctx, orig.ID); err != nil {
			return err
		}
		// the Redis lock can lapse during a slow processor call; recheck
		// against what is committed now
		if err := checkStillRefundable(ctx, tx, orig, amount, items); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, refund, items); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		n, err := tx.UpdateBoughtItemStatus(ctx, items, []models.BoughtItemStatus{models.StatusBought}, models.StatusRefunded)
		if err != nil {
			return err
		}
		if n != len(items) {
			return fmt.Errorf("returned %d of %d items on transaction %s: %w", n, len(items), orig.ID, models.ErrConflict)
		}
		return tx.TouchEvent(ctx, refund.EventID, refund.Timestamp)
	})
	if err != nil {
		if refund.RemoteID != "" {
			l.Logger.Error("LEDGER", fmt.Sprintf("Processor refund %s issued but not recorded for %s: %v", refund.RemoteID, orig.ID, err))
		}
		return nil, err
	}

	o, err := l.DB.GetOrderByID(ctx, refund.OrderID)
	if err != nil {
		o = &models.Order{ID: refund.OrderID}
	}
	l.recorded(ctx, models.LedgerRefundIssued, o, refund, event.Currency, items)
	return refund, nil
}

// checkStillRefundable repeats the amount and item checks inside the
// refund's database transaction.
func checkStillRefundable(ctx context.Context, tx db.Store, orig *models.Transaction, amount decimal.Decimal, items []string) error {
	refunded, err := tx.SumRelatedAmounts(ctx, orig.ID, models.TransactionRefund)
	if err != nil {
		return err
	}
	if left := orig.Amount.Add(refunded); amount.GreaterThan(left) {
		return fmt.Errorf("refund of %s exceeds %s left on transaction %s: %w",
			amount.StringFixed(2), left.StringFixed(2), orig.ID, models.ErrConflict)
	}
	returnable, err := returnableItems(ctx, tx, orig.ID)
	if err != nil {
		return err
	}
	still := make(map[string]bool, len(returnable))
	for _, id := range returnable {
		still[id] = true
	}
	for _, id := range items {
		if !still[id] {
			return fmt.Errorf("item %s was returned concurrently: %w", id, models.ErrConflict)
		}
	}
	return nil
}

// returnableItems are the purchase's items that are still BOUGHT.
func returnableItems(ctx context.Context, store db.Store, txnID string) ([]string, error) {
	ids, err := store.ListTransactionItemIDs(ctx, txnID)
	if err != nil {
		return nil, err
	}
	items, err := store.ListBoughtItemsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Status == models.StatusBought {
			out = append(out, it.ID)
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
