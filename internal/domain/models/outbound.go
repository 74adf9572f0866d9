package models

import "time"

// StockAlert flags a medicine that needs attention in the alert digest.
type StockAlert struct {
	MedicineID      string      `json:"medicine_id"`
	Name            string      `json:"name"`
	Unit            string      `json:"unit"`
	Status          StockStatus `json:"status"`
	CurrentQuantity int         `json:"current_quantity"`
	ExpiryDate      *time.Time  `json:"expiry_date,omitempty"`
	Expired         bool        `json:"expired"`
}

// OutboundMessageRequest is a text message sent to a WhatsApp recipient.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
