package payment

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/analytics"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/monitoring"
	"ms-ledger/internal/order"
	"ms-ledger/internal/order/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processor moves money through an external payment provider. Both calls
// either confirm or fail; a failure leaves no local state behind.
type Processor interface {
	Name() string
	Charge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error)
	Refund(ctx context.Context, req models.ProcessorRefund) (*models.RefundResult, error)
}

// Locker serializes checkouts per order and refunds per transaction.
type Locker interface {
	LockOrder(ctx context.Context, orderID, token string) error
	UnlockOrder(ctx context.Context, orderID, token string) error
	LockRefund(ctx context.Context, txnID, token string) error
	UnlockRefund(ctx context.Context, txnID, token string) error
}

type Options struct {
	Now func() time.Time
	// ProcessorTimeout bounds each charge and refund call. Keep it below
	// the order lock TTL.
	ProcessorTimeout time.Duration
}

// LedgerService records purchases, refunds, manual payments and transfers.
type LedgerService struct {
	DB     db.Store
	Orders *order.OrderService
	Locks  Locker
	Kafka  order.KafkaPublisher
	Logger *logger.Logger

	processors       map[models.TransactionMethod]Processor
	now              func() time.Time
	processorTimeout time.Duration
}

func NewLedgerService(store db.Store, orders *order.OrderService, locks Locker, kafka order.KafkaPublisher, log *logger.Logger, opts Options) *LedgerService {
	if opts.Now == nil {
		opts.Now = orders.Now
	}
	if opts.ProcessorTimeout <= 0 {
		opts.ProcessorTimeout = 20 * time.Second
	}
	return &LedgerService{
		DB:         store,
		Orders:     orders,
		Locks:      locks,
		Kafka:      kafka,
		Logger:     log,
		processors:       make(map[models.TransactionMethod]Processor),
		now:              opts.Now,
		processorTimeout: opts.ProcessorTimeout,
	}
}

// RegisterProcessor routes method through p.
func (l *LedgerService) RegisterProcessor(method models.TransactionMethod, p Processor) {
	l.processors[method] = p
}

func (l *LedgerService) processor(method models.TransactionMethod) (Processor, error) {
	p, ok := l.processors[method]
	if !ok {
		return nil, models.NewValidationError("method", "no processor configured for %s", method)
	}
	return p, nil
}

// withOrderLock holds the order lock for fn. Cart edits wait on the same
// lock, and fn's ctx lets the cart calls it makes skip re-locking.
func (l *LedgerService) withOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	if err := l.Locks.LockOrder(ctx, orderID, token); err != nil {
		return err
	}
	defer func() {
		if err := l.Locks.UnlockOrder(context.Background(), orderID, token); err != nil {
			l.Logger.Warn("LEDGER", fmt.Sprintf("Failed to release order lock %s: %v", orderID, err))
		}
	}()
	return fn(order.WithOrderLock(ctx, orderID))
}

func (l *LedgerService) withRefundLock(ctx context.Context, txnID string, fn func() error) error {
	token := uuid.NewString()
	if err := l.Locks.LockRefund(ctx, txnID, token); err != nil {
		return err
	}
	defer func() {
		if err := l.Locks.UnlockRefund(context.Background(), txnID, token); err != nil {
			l.Logger.Warn("LEDGER", fmt.Sprintf("Failed to release refund lock %s: %v", txnID, err))
		}
	}()
	return fn()
}

// processorFailure makes sure a processor failure reaches the caller as a
// ProcessorError.
func processorFailure(p Processor, op string, err error) error {
	if models.IsProcessor(err) {
		return err
	}
	return &models.ProcessorError{Processor: p.Name(), Op: op, Err: err}
}

// cartBalance clears an expired cart and returns what the order still owes
// along with the ids of the items awaiting payment. Callers hold the order
// lock, so the pair stays consistent until they settle.
func (l *LedgerService) cartBalance(ctx context.Context, o *models.Order) (decimal.Decimal, []string, error) {
	if _, err := l.Orders.ExpireCartIfStale(ctx, o); err != nil {
		return decimal.Zero, nil, err
	}
	pending, err := l.DB.ListBoughtItems(ctx, o.ID, models.CartStatuses...)
	if err != nil {
		return decimal.Zero, nil, err
	}
	ids := make([]string, 0, len(pending))
	for _, it := range pending {
		ids = append(ids, it.ID)
	}
	in, err := analytics.LoadSummaryInput(ctx, l.DB, o.ID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return analytics.Summarize(in).NetBalance, ids, nil
}

// settleFunc marks items paid against a freshly written transaction, using
// orders bound to the surrounding database transaction.
type settleFunc func(ctx context.Context, orders *order.OrderService, o *models.Order, txn *models.Transaction) ([]string, error)

// settleCart settles whatever the cart holds at commit time.
func settleCart(ctx context.Context, orders *order.OrderService, o *models.Order, txn *models.Transaction) ([]string, error) {
	return orders.MarkCartPaid(ctx, o, txn)
}

// settlePriced settles exactly the items a charge was priced on.
func settlePriced(ids []string) settleFunc {
	return func(ctx context.Context, orders *order.OrderService, o *models.Order, txn *models.Transaction) ([]string, error) {
		return ids, orders.SettleItems(ctx, o, txn, ids)
	}
}

// recordPayment writes txn and, when settle is set, marks items paid
// against it, all in one database transaction.
func (l *LedgerService) recordPayment(ctx context.Context, o *models.Order, txn *models.Transaction, card *models.CreditCard, settle settleFunc) ([]string, error) {
	var itemIDs []string
	err := l.DB.RunInTx(ctx, func(ctx context.Context, tx db.Store) error {
		fresh, err := tx.LockOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		*o = *fresh

		if card != nil {
			if err := tx.CreateCreditCard(ctx, card); err != nil {
				return fmt.Errorf("save card: %w", err)
			}
			txn.CardID = card.ID
		}
		if err := tx.CreateTransaction(ctx, txn, nil); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if settle != nil {
			if itemIDs, err = settle(ctx, l.Orders.WithStore(tx), o, txn); err != nil {
				return err
			}
		}
		return tx.TouchEvent(ctx, o.EventID, txn.Timestamp)
	})
	return itemIDs, err
}

func (l *LedgerService) recorded(ctx context.Context, eventType string, o *models.Order, txn *models.Transaction, currency string, itemIDs []string) {
	monitoring.RecordTransaction(string(txn.Type), string(txn.Method), currency, txn.Amount)
	l.Logger.LogLedger(string(txn.Type), txn.ID, fmt.Sprintf("%s %s %s on order %s (%d items)",
		txn.Method, txn.Amount.StringFixed(2), currency, o.Code, len(itemIDs)))

	if l.Kafka == nil {
		return
	}
	evt := models.LedgerEvent{
		Type:          eventType,
		EventID:       txn.EventID,
		OrderID:       o.ID,
		OrderCode:     o.Code,
		TransactionID: txn.ID,
		Method:        string(txn.Method),
		Amount:        txn.Amount,
		ItemIDs:       itemIDs,
		OccurredAt:    txn.Timestamp,
	}
	if err := l.Kafka.PublishLedgerEvent(ctx, evt); err != nil {
		l.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", eventType, err))
	}
}

// RecordPurchase stores a confirmed charge as a PURCHASE and settles the
// cart against it. Fees come from the charge's fee lines; other line types
// are ignored.
func (l *LedgerService) RecordPurchase(ctx context.Context, charge *models.ChargeResult, o *models.Order, method models.TransactionMethod, issuer string) (*models.Transaction, error) {
	return l.recordPurchase(ctx, charge, o, method, issuer, settleCart)
}

func (l *LedgerService) recordPurchase(ctx context.Context, charge *models.ChargeResult, o *models.Order, method models.TransactionMethod, issuer string, settle settleFunc) (*models.Transaction, error) {
	event, err := l.DB.GetEvent(ctx, o.EventID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	txn := &models.Transaction{
		ID:             uuid.NewString(),
		EventID:        o.EventID,
		OrderID:        o.ID,
		CreatedBy:      issuer,
		Method:         method,
		Type:           models.TransactionPurchase,
		Amount:         charge.Amount,
		ApplicationFee: models.SumFees(charge.Fees, models.FeeApplication),
		ProcessingFee:  models.SumFees(charge.Fees, models.FeeProcessor),
		IsConfirmed:    true,
		RemoteID:       charge.RemoteID,
		APIType:        event.APIType,
		Timestamp:      now,
	}

	var card *models.CreditCard
	if charge.Card != nil {
		card = &models.CreditCard{
			ID:           uuid.NewString(),
			PersonID:     o.PersonID,
			StripeCardID: charge.Card.RemoteID,
			Brand:        charge.Card.Brand,
			Last4:        charge.Card.Last4,
			ExpMonth:     charge.Card.ExpMonth,
			ExpYear:      charge.Card.ExpYear,
			AddedAt:      now,
		}
	}

	itemIDs, err := l.recordPayment(ctx, o, txn, card, settle)
	if err != nil {
		if charge.RemoteID != "" {
			l.Logger.Error("LEDGER", fmt.Sprintf("Charge %s of %s %s confirmed but not recorded for order %s, needs manual refund: %v",
				charge.RemoteID, charge.Amount.StringFixed(2), event.Currency, o.ID, err))
			monitoring.RecordUnrecordedCharge(string(method))
		}
		return nil, err
	}
	l.recorded(ctx, models.LedgerOrderPaid, o, txn, event.Currency, itemIDs)
	return txn, nil
}

// Checkout charges the order's outstanding balance and settles the items
// that balance was priced on. The processor is called before any database
// transaction opens; only a confirmed charge is recorded, and recording
// fails if any priced item stopped being payable in the meantime.
func (l *LedgerService) Checkout(ctx context.Context, orderID string, req models.CheckoutRequest, issuer string) (*models.Transaction, error) {
	o, err := l.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = l.withOrderLock(ctx, o.ID, func(ctx context.Context) error {
		event, err := l.DB.GetEvent(ctx, o.EventID)
		if err != nil {
			return err
		}
		balance, priced, err := l.cartBalance(ctx, o)
		if err != nil {
			return err
		}
		if len(priced) == 0 {
			return models.NewValidationError("cart", "order %s has no items awaiting payment", o.Code)
		}

		if !balance.IsPositive() {
			// fully discounted carts are settled without a charge
			free := &models.ChargeResult{Amount: decimal.Zero, Currency: event.Currency}
			txn, err = l.recordPurchase(ctx, free, o, models.MethodNone, issuer, settlePriced(priced))
			return err
		}

		if !req.Method.HasProcessor() {
			return models.NewValidationError("method", "%s payments are not taken at checkout", req.Method)
		}
		p, err := l.processor(req.Method)
		if err != nil {
			return err
		}

		chargeCtx, cancel := context.WithTimeout(ctx, l.processorTimeout)
		defer cancel()
		charge, err := p.Charge(chargeCtx, models.ChargeRequest{
			OrderID:        o.ID,
			Amount:         balance,
			Currency:       event.Currency,
			Token:          req.Token,
			ApplicationFee: balance.Mul(event.ApplicationFeePercent).Div(decimal.NewFromInt(100)).Round(2),
			Account:        event.StripeAccountID,
			Description:    fmt.Sprintf("%s order %s", event.Name, o.Code),
		})
		if err != nil {
			l.Logger.Error("LEDGER", fmt.Sprintf("Charge failed for order %s: %v", o.ID, err))
			return processorFailure(p, "charge", err)
		}
		txn, err = l.recordPurchase(ctx, charge, o, req.Method, issuer, settlePriced(priced))
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RefundableAmount is the original amount net of every refund recorded
// against it.
func (l *LedgerService) RefundableAmount(ctx context.Context, txn *models.Transaction) (decimal.Decimal, error) {
	refunded, err := l.DB.SumRelatedAmounts(ctx, txn.ID, models.TransactionRefund)
	if err != nil {
		return decimal.Zero, err
	}
	return txn.Amount.Add(refunded), nil
}

// GetRefundableAmount looks the transaction up and returns RefundableAmount.
func (l *LedgerService) GetRefundableAmount(ctx context.Context, txnID string) (decimal.Decimal, error) {
	txn, err := l.DB.GetTransaction(ctx, txnID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.RefundableAmount(ctx, txn)
}
