package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-ledger/internal/models"

	"github.com/segmentio/kafka-go"
)

// HandleCheckReceived confirms the check payment named by a
// check-received message. Malformed messages and unknown or non-check
// transactions are logged and skipped so they are not redelivered.
func (l *LedgerService) HandleCheckReceived(ctx context.Context, msg kafka.Message) error {
	var body models.CheckReceived
	if err := json.Unmarshal(msg.Value, &body); err != nil || body.TransactionID == "" {
		l.Logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed check-received message at offset %d", msg.Offset))
		return nil
	}

	txn, err := l.DB.GetTransaction(ctx, body.TransactionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			l.Logger.Warn("KAFKA", fmt.Sprintf("Check-received for unknown transaction %s", body.TransactionID))
			return nil
		}
		return err
	}
	if txn.Method != models.MethodCheck {
		l.Logger.Warn("KAFKA", fmt.Sprintf("Check-received for %s transaction %s ignored", txn.Method, txn.ID))
		return nil
	}

	_, err = l.ConfirmTransaction(ctx, txn.ID)
	return err
}
