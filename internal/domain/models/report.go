package models

import "time"

// StockSummary aggregates the stock movements of a period.
type StockSummary struct {
	Start       time.Time               `json:"start"`
	End         time.Time               `json:"end"`
	Medicines   int                     `json:"medicines"`
	Movements   int                     `json:"movements"`
	Additions   int                     `json:"additions"`
	Withdrawals int                     `json:"withdrawals"`
	Deletions   int                     `json:"deletions"`
	NetChange   int                     `json:"net_change"`
	ByStatus    map[StockStatus]int     `json:"by_status"`
	PerMedicine []MedicineMovementTotal `json:"per_medicine"`
}

// MedicineMovementTotal is the per-medicine part of a StockSummary.
type MedicineMovementTotal struct {
	MedicineID      string `json:"medicine_id"`
	Name            string `json:"name"`
	Additions       int    `json:"additions"`
	Withdrawals     int    `json:"withdrawals"`
	NetChange       int    `json:"net_change"`
	CurrentQuantity int    `json:"current_quantity"`
}
