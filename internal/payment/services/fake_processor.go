package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ms-ledger/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeCharge struct {
	amount         decimal.Decimal
	applicationFee decimal.Decimal
	refunded       decimal.Decimal
}

// FakeProcessor confirms charges and refunds without moving money. It backs
// the "fake" method used for internal test events.
type FakeProcessor struct {
	// FeePercent is the simulated processing fee.
	FeePercent decimal.Decimal

	mu      sync.Mutex
	failErr error
	charges map[string]*fakeCharge
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		FeePercent: decimal.RequireFromString("2.9"),
		charges:    make(map[string]*fakeCharge),
	}
}

func (f *FakeProcessor) Name() string {
	return string(models.MethodFake)
}

// FailWith makes every following call fail with err; nil restores success.
func (f *FakeProcessor) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *FakeProcessor) Charge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil {
		return nil, &models.ProcessorError{Processor: f.Name(), Op: "charge", Err: f.failErr}
	}
	if !req.Amount.IsPositive() {
		return nil, &models.ProcessorError{Processor: f.Name(), Op: "charge", Err: fmt.Errorf("invalid amount %s", req.Amount)}
	}

	id := "fake_ch_" + uuid.NewString()
	f.charges[id] = &fakeCharge{amount: req.Amount, applicationFee: req.ApplicationFee, refunded: decimal.Zero}

	return &models.ChargeResult{
		Amount:   req.Amount,
		Currency: req.Currency,
		RemoteID: id,
		Fees: []models.FeeLine{
			{Type: models.FeeApplication, Amount: req.ApplicationFee},
			{Type: models.FeeProcessor, Amount: f.processingFee(req.Amount)},
		},
		Card: &models.CardDetails{RemoteID: "fake_pm_" + req.Token, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030},
	}, nil
}

func (f *FakeProcessor) Refund(ctx context.Context, req models.ProcessorRefund) (*models.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failErr != nil {
		return nil, &models.ProcessorError{Processor: f.Name(), Op: "refund", Err: f.failErr}
	}
	ch, ok := f.charges[req.RemoteID]
	if !ok {
		return nil, &models.ProcessorError{Processor: f.Name(), Op: "refund", Err: fmt.Errorf("no such charge %s", req.RemoteID)}
	}
	if req.Amount.GreaterThan(ch.amount.Sub(ch.refunded)) {
		return nil, &models.ProcessorError{Processor: f.Name(), Op: "refund", Err: errors.New("amount exceeds charge")}
	}
	ch.refunded = ch.refunded.Add(req.Amount)

	feeShare := decimal.Zero
	if ch.amount.IsPositive() {
		feeShare = ch.applicationFee.Mul(req.Amount).Div(ch.amount).Round(2)
	}
	return &models.RefundResult{
		Amount:               req.Amount,
		ApplicationFeeRefund: feeShare,
		RemoteID:             "fake_re_" + uuid.NewString(),
		Fees:                 []models.FeeLine{{Type: models.FeeProcessor, Amount: decimal.Zero}},
	}, nil
}

func (f *FakeProcessor) processingFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(f.FeePercent).Div(decimal.NewFromInt(100)).Round(2)
}
