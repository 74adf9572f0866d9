package models

import "time"

// Audit action labels written by the data services.
const (
	ActionCreate        = "Création"
	ActionUpdate        = "Modification"
	ActionDelete        = "Suppression"
	ActionStockUpdate   = "Ajout stock"
	ActionStockAdd      = "Ajout"
	ActionStockWithdraw = "Retrait"
)

// StockHistoryType tags a reconstructed stock movement.
type StockHistoryType string

const (
	StockAdjustment StockHistoryType = "adjustment"
	StockAddition   StockHistoryType = "addition"
	StockDeletion   StockHistoryType = "deletion"
)

// StockMovement is the structured part of an audit entry. Writers fill it so
// that the ledger never has to be recovered from the narrative text.
type StockMovement struct {
	Kind             StockHistoryType `bson:"kind" json:"kind"`
	PreviousQuantity int              `bson:"previousQuantity" json:"previous_quantity"`
	NewQuantity      int              `bson:"newQuantity" json:"new_quantity"`
	Change           int              `bson:"change" json:"change"`
	Reason           *string          `bson:"reason,omitempty" json:"reason,omitempty"`
}

// HistoryEntry is an append-only audit record stored in the "history" collection.
// MedicineID is empty for aisle actions.
type HistoryEntry struct {
	ID         string         `bson:"_id" json:"id"`
	MedicineID string         `bson:"medicineId" json:"medicine_id"`
	UserID     string         `bson:"userId" json:"user_id"`
	Action     string         `bson:"action" json:"action"`
	Details    string         `bson:"details" json:"details"`
	Timestamp  time.Time      `bson:"timestamp" json:"timestamp"`
	Movement   *StockMovement `bson:"movement,omitempty" json:"movement,omitempty"`
}

// StockHistory is a typed view of one audit entry. It is derived on demand and
// never persisted.
type StockHistory struct {
	ID               string           `json:"id"`
	MedicineID       string           `json:"medicine_id"`
	UserID           string           `json:"user_id"`
	Type             StockHistoryType `json:"type"`
	Date             time.Time        `json:"date"`
	Change           int              `json:"change"`
	PreviousQuantity int              `json:"previous_quantity"`
	NewQuantity      int              `json:"new_quantity"`
	Reason           *string          `json:"reason,omitempty"`
}

// StoredTime normalizes t to what the document store keeps: UTC with
// millisecond precision.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
