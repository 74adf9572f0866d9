package models

import (
	"strings"
	"time"
)

// Medicine is a stocked product stored in the "medicines" collection.
// An empty ID means the medicine has not been persisted yet.
type Medicine struct {
	ID                string     `bson:"_id" json:"id"`
	Name              string     `bson:"name" json:"name"`
	Description       *string    `bson:"description,omitempty" json:"description,omitempty"`
	Dosage            *string    `bson:"dosage,omitempty" json:"dosage,omitempty"`
	Form              *string    `bson:"form,omitempty" json:"form,omitempty"`
	Reference         *string    `bson:"reference,omitempty" json:"reference,omitempty"`
	Unit              string     `bson:"unit" json:"unit"`
	CurrentQuantity   int        `bson:"currentQuantity" json:"current_quantity"`
	MaxQuantity       int        `bson:"maxQuantity" json:"max_quantity"`
	WarningThreshold  int        `bson:"warningThreshold" json:"warning_threshold"`
	CriticalThreshold int        `bson:"criticalThreshold" json:"critical_threshold"`
	ExpiryDate        *time.Time `bson:"expiryDate,omitempty" json:"expiry_date,omitempty"`
	AisleID           string     `bson:"aisleId" json:"aisle_id"`
	CreatedAt         time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt         time.Time  `bson:"updatedAt" json:"updated_at"`
}

// StockStatus classifies a medicine's current quantity against its thresholds.
type StockStatus string

const (
	StockNormal     StockStatus = "normal"
	StockWarning    StockStatus = "warning"
	StockCritical   StockStatus = "critical"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Validate checks the field rules that must hold before any write.
// Threshold ordering is only checked once the thresholds are configured.
func (m Medicine) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(m.Name) == "" {
		verr.Add("name", "must not be empty")
	}
	if strings.TrimSpace(m.AisleID) == "" {
		verr.Add("aisleId", "must reference an aisle")
	}
	if m.CurrentQuantity < 0 {
		verr.Add("currentQuantity", "must not be negative")
	}
	if m.MaxQuantity < 0 {
		verr.Add("maxQuantity", "must not be negative")
	}
	if m.WarningThreshold < 0 {
		verr.Add("warningThreshold", "must not be negative")
	}
	if m.CriticalThreshold < 0 {
		verr.Add("criticalThreshold", "must not be negative")
	}
	if m.WarningThreshold > 0 && m.CriticalThreshold >= m.WarningThreshold {
		verr.Add("criticalThreshold", "must be lower than warningThreshold")
	}
	if m.MaxQuantity > 0 && m.WarningThreshold > m.MaxQuantity {
		verr.Add("warningThreshold", "must not exceed maxQuantity")
	}

	return verr.OrNil()
}

// StockStatus derives the current stock level classification.
func (m Medicine) StockStatus() StockStatus {
	switch {
	case m.CurrentQuantity <= 0:
		return StockOutOfStock
	case m.CurrentQuantity <= m.CriticalThreshold:
		return StockCritical
	case m.CurrentQuantity <= m.WarningThreshold:
		return StockWarning
	default:
		return StockNormal
	}
}

// IsExpired reports whether the expiry date is at or before now.
func (m Medicine) IsExpired(now time.Time) bool {
	return m.ExpiryDate != nil && !m.ExpiryDate.After(now)
}

// ExpiresWithin reports whether the medicine is not yet expired but will be within window.
func (m Medicine) ExpiresWithin(now time.Time, window time.Duration) bool {
	if m.ExpiryDate == nil || m.IsExpired(now) {
		return false
	}
	return !m.ExpiryDate.After(now.Add(window))
}
