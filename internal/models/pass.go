package models

import "time"

// Pass is the payload encoded into an attendee's QR code for one BOUGHT
// line item.
type Pass struct {
	ItemID     string    `json:"item_id"`
	OrderID    string    `json:"order_id"`
	OrderCode  string    `json:"order_code"`
	EventID    string    `json:"event_id"`
	ItemName   string    `json:"item_name"`
	OptionName string    `json:"item_option_name"`
	AttendeeID string    `json:"attendee_id,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}
