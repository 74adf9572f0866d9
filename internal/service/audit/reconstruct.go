// Package audit rebuilds the typed stock ledger from history entries.
//
// Entries written by the current services carry a structured StockMovement and
// map directly. Older entries only have the narrative text; for those the
// quantities are recovered from the fixed patterns the writers embed:
//
//	Stock: <old> → <new>
//	<Ajout|Retrait> de <n> unité(s). Nouveau stock: <new>
//	<n> unités - <reason> (Stock: <old> → <new>)
//
// The mapping is total: an entry that matches nothing still yields a record
// with zero quantities.
package audit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
)

var (
	transitionPattern = regexp.MustCompile(`Stock:\s*(\d+)\s*→\s*(\d+)`)
	quantityPattern   = regexp.MustCompile(`(\d+)\s+[\p{L}\p{N}_]+`)
)

// Reconstruct maps every entry to exactly one StockHistory record, in order.
func Reconstruct(entries []models.HistoryEntry) []models.StockHistory {
	out := make([]models.StockHistory, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromEntry(e))
	}
	return out
}

// FromEntry maps a single entry.
func FromEntry(e models.HistoryEntry) models.StockHistory {
	record := models.StockHistory{
		ID:         e.ID,
		MedicineID: e.MedicineID,
		UserID:     e.UserID,
		Date:       e.Timestamp,
	}

	if m := e.Movement; m != nil {
		record.Type = m.Kind
		record.Change = m.Change
		record.PreviousQuantity = m.PreviousQuantity
		record.NewQuantity = m.NewQuantity
		record.Reason = m.Reason
		return record
	}

	record.Type = Classify(e.Action)

	previous, updated, hasTransition := parseTransition(e.Details)
	if hasTransition {
		record.PreviousQuantity = previous
		record.NewQuantity = updated
	}

	if hasTransition && previous > 0 && updated > 0 {
		record.Change = updated - previous
	} else {
		raw := parseRawQuantity(e.Details)
		if strings.Contains(e.Action, models.ActionStockWithdraw) {
			raw = -raw
		}
		record.Change = raw
	}

	record.Reason = parseReason(e.Details)
	return record
}

// Classify derives the movement type from a free-text action label.
func Classify(action string) models.StockHistoryType {
	switch {
	case strings.Contains(action, "Ajout stock"),
		strings.Contains(action, "Retrait stock"),
		strings.Contains(action, "Ajustement de stock"):
		return models.StockAdjustment
	case action == models.ActionStockAdd, action == models.ActionCreate:
		return models.StockAddition
	case strings.Contains(action, models.ActionDelete), strings.Contains(action, "supprim"):
		return models.StockDeletion
	default:
		return models.StockAdjustment
	}
}

func parseTransition(details string) (int, int, bool) {
	match := transitionPattern.FindStringSubmatch(details)
	if match == nil {
		return 0, 0, false
	}
	previous, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, 0, false
	}
	updated, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, 0, false
	}
	return previous, updated, true
}

func parseRawQuantity(details string) int {
	match := quantityPattern.FindStringSubmatch(details)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// parseReason returns the text after the first "-" and before any trailing
// "(Stock: ...)" clause.
func parseReason(details string) *string {
	idx := strings.Index(details, "-")
	if idx < 0 {
		return nil
	}
	rest := details[idx+1:]
	if cut := strings.Index(rest, "(Stock:"); cut >= 0 {
		rest = rest[:cut]
	}
	reason := strings.TrimSpace(rest)
	if reason == "" {
		return nil
	}
	return &reason
}
