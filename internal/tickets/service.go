package tickets

import (
	"context"
	"fmt"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order/db"
	qr "ms-ledger/internal/tickets/qr_genrator"
)

// PassService issues and verifies QR passes for purchased line items.
type PassService struct {
	DB     db.Store
	QR     *qr.QRGenerator
	Logger *logger.Logger
	now    func() time.Time
}

func NewPassService(store db.Store, gen *qr.QRGenerator, log *logger.Logger, now func() time.Time) *PassService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PassService{DB: store, QR: gen, Logger: log, now: now}
}

// Issue builds the pass for a BOUGHT item and renders it as a PNG.
func (s *PassService) Issue(ctx context.Context, itemID string) (*models.Pass, []byte, error) {
	item, err := s.DB.GetBoughtItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.Status != models.StatusBought {
		return nil, nil, models.NewValidationError("item", "item %s is %s; only bought items have a pass", item.ID, item.Status)
	}
	o, err := s.DB.GetOrderByID(ctx, item.OrderID)
	if err != nil {
		return nil, nil, err
	}

	pass := models.Pass{
		ItemID:     item.ID,
		OrderID:    o.ID,
		OrderCode:  o.Code,
		EventID:    o.EventID,
		ItemName:   item.ItemName,
		OptionName: item.OptionName,
		AttendeeID: item.AttendeeID,
		IssuedAt:   s.now(),
	}
	png, err := s.QR.GeneratePassQR(pass)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate QR: %w", err)
	}
	s.Logger.Info("PASS", fmt.Sprintf("Issued pass for item %s of order %s", item.ID, o.Code))
	return &pass, png, nil
}

// Verify decodes a scanned payload and checks that the item is still
// BOUGHT by the same order. Refunded or transferred items fail.
func (s *PassService) Verify(ctx context.Context, payload string) (*models.Pass, error) {
	pass, err := s.QR.ReadPayload(payload)
	if err != nil {
		return nil, models.NewValidationError("payload", "%v", err)
	}
	item, err := s.DB.GetBoughtItem(ctx, pass.ItemID)
	if err != nil {
		return nil, err
	}
	if item.OrderID != pass.OrderID {
		return nil, models.NewValidationError("payload", "item %s no longer belongs to order %s", item.ID, pass.OrderCode)
	}
	if item.Status != models.StatusBought {
		return nil, models.NewValidationError("payload", "item %s is %s", item.ID, item.Status)
	}
	return pass, nil
}
