package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/monitoring"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeService handles integration with Stripe payment gateway
type StripeService struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeService creates a Stripe client. backends may be nil to use the
// live Stripe API.
func NewStripeService(secretKey string, backends *stripe.Backends, log *logger.Logger) (*StripeService, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, backends)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{client: sc, log: log}, nil
}

func (s *StripeService) Name() string {
	return string(models.MethodStripe)
}

// toMinorUnits converts to the smallest currency unit Stripe expects
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

func feeLines(details []*stripe.BalanceTransactionFeeDetail) []models.FeeLine {
	lines := make([]models.FeeLine, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		lines = append(lines, models.FeeLine{Type: d.Type, Amount: fromMinorUnits(d.Amount)})
	}
	return lines
}

func (s *StripeService) fail(op string, err error) error {
	return &models.ProcessorError{Processor: s.Name(), Op: op, Err: fmt.Errorf("%w: %v", ErrStripeAPIError, err)}
}

// Charge creates and confirms a PaymentIntent for the token. On a connected
// account the charge is made on that account with the application fee
// collected by the platform.
func (s *StripeService) Charge(ctx context.Context, req models.ChargeRequest) (result *models.ChargeResult, err error) {
	started := time.Now()
	defer func() { monitoring.ObserveProcessorCall(s.Name(), "charge", started, err) }()

	if !req.Amount.IsPositive() {
		return nil, s.fail("charge", fmt.Errorf("invalid payment amount: %s", req.Amount.StringFixed(2)))
	}
	if req.Token == "" {
		return nil, s.fail("charge", errors.New("no payment method provided"))
	}

	s.log.Info("PROCESS", fmt.Sprintf("Charging %s %s for order %s", req.Amount.StringFixed(2), req.Currency, req.OrderID))

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount)),
		Currency:           stripe.String(req.Currency),
		PaymentMethod:      stripe.String(req.Token),
		Description:        stripe.String(req.Description),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
		Metadata:           map[string]string{"order_id": req.OrderID},
	}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
		if req.ApplicationFee.IsPositive() {
			params.ApplicationFeeAmount = stripe.Int64(toMinorUnits(req.ApplicationFee))
		}
	}
	params.AddExpand("latest_charge.balance_transaction")

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, s.fail("charge", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		s.log.Error("STRIPE", fmt.Sprintf("Payment intent %s ended as %s", pi.ID, pi.Status))
		return nil, s.fail("charge", fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status))
	}
	charge := pi.LatestCharge
	if charge == nil || charge.ID == "" {
		return nil, s.fail("charge", fmt.Errorf("payment intent %s has no charge", pi.ID))
	}

	result = &models.ChargeResult{
		Amount:   fromMinorUnits(charge.Amount),
		Currency: string(charge.Currency),
		RemoteID: charge.ID,
	}
	if bt := charge.BalanceTransaction; bt != nil {
		result.Fees = feeLines(bt.FeeDetails)
	}
	if d := charge.PaymentMethodDetails; d != nil && d.Card != nil {
		result.Card = &models.CardDetails{
			Brand:    string(d.Card.Brand),
			Last4:    d.Card.Last4,
			ExpMonth: d.Card.ExpMonth,
			ExpYear:  d.Card.ExpYear,
		}
		if charge.PaymentMethod != "" {
			result.Card.RemoteID = charge.PaymentMethod
		} else {
			result.Card.RemoteID = req.Token
		}
	}

	s.log.Info("STRIPE", fmt.Sprintf("Charge %s succeeded for order %s", charge.ID, req.OrderID))
	return result, nil
}

// Refund returns part of a charge and the matching share of the platform's
// application fee.
func (s *StripeService) Refund(ctx context.Context, req models.ProcessorRefund) (result *models.RefundResult, err error) {
	started := time.Now()
	defer func() { monitoring.ObserveProcessorCall(s.Name(), "refund", started, err) }()

	if req.RemoteID == "" {
		return nil, s.fail("refund", errors.New("transaction has no remote charge id"))
	}

	chargeParams := &stripe.ChargeParams{}
	chargeParams.Context = ctx
	if req.Account != "" {
		chargeParams.SetStripeAccount(req.Account)
	}
	charge, err := s.client.Charges.Get(req.RemoteID, chargeParams)
	if err != nil {
		return nil, s.fail("refund", err)
	}

	var feeID string
	var feeRefundedBefore int64
	if charge.ApplicationFee != nil && charge.ApplicationFee.ID != "" {
		feeID = charge.ApplicationFee.ID
		fee, err := s.applicationFee(ctx, feeID)
		if err != nil {
			return nil, s.fail("refund", err)
		}
		feeRefundedBefore = fee.AmountRefunded
	}

	params := &stripe.RefundParams{
		Charge:               stripe.String(req.RemoteID),
		Amount:               stripe.Int64(toMinorUnits(req.Amount)),
		RefundApplicationFee: stripe.Bool(feeID != ""),
	}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	params.AddExpand("balance_transaction")

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to refund charge %s: %v", req.RemoteID, err))
		return nil, s.fail("refund", err)
	}
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return nil, s.fail("refund", fmt.Errorf("refund %s is %s", refund.ID, refund.Status))
	}

	result = &models.RefundResult{
		Amount:               fromMinorUnits(refund.Amount),
		ApplicationFeeRefund: decimal.Zero,
		RemoteID:             refund.ID,
	}
	if bt := refund.BalanceTransaction; bt != nil {
		result.Fees = feeLines(bt.FeeDetails)
	}

	if feeID != "" {
		fee, err := s.applicationFee(ctx, feeID)
		if err != nil {
			// the refund went through; fall back to the proportional share
			s.log.Warn("STRIPE", fmt.Sprintf("Could not read application fee %s after refund: %v", feeID, err))
			if charge.Amount > 0 && charge.ApplicationFee.Amount > 0 {
				share := fromMinorUnits(charge.ApplicationFee.Amount).Mul(fromMinorUnits(refund.Amount)).Div(fromMinorUnits(charge.Amount))
				result.ApplicationFeeRefund = share.Round(2)
			}
		} else {
			result.ApplicationFeeRefund = fromMinorUnits(fee.AmountRefunded - feeRefundedBefore)
		}
	}

	s.log.Info("STRIPE", fmt.Sprintf("Refund %s of %s issued for charge %s", refund.ID, result.Amount.StringFixed(2), req.RemoteID))
	return result, nil
}

func (s *StripeService) applicationFee(ctx context.Context, id string) (*stripe.ApplicationFee, error) {
	params := &stripe.ApplicationFeeParams{}
	params.Context = ctx
	return s.client.ApplicationFees.Get(id, params)
}
