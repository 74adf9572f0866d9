package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	repo "github.com/mamadbah2/pharmacy/internal/repository/sheets"
	"github.com/mamadbah2/pharmacy/internal/service/audit"
	"github.com/mamadbah2/pharmacy/internal/service/history"
)

const (
	dateLayout        = "2006-01-02"
	stockHistoryRange = "StockHistory!A:I"
	exportedDateRange = "StockHistory!A:A"
)

// MedicineLister loads the current medicines.
type MedicineLister interface {
	ListAll(ctx context.Context) ([]models.Medicine, error)
}

// HistoryQuerier loads audit entries.
type HistoryQuerier interface {
	Query(ctx context.Context, f history.Filter) ([]models.HistoryEntry, error)
}

// Service builds stock summaries and ledger exports from the audit log.
type Service struct {
	medicines MedicineLister
	history   HistoryQuerier
	sheets    repo.Repository
	location  *time.Location
	logger    *zap.Logger
}

// NewService wires a new reporting service instance. sheets may be nil, in
// which case exports are refused.
func NewService(medicines MedicineLister, hist HistoryQuerier, sheets repo.Repository, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{
		medicines: medicines,
		history:   hist,
		sheets:    sheets,
		location:  location,
		logger:    logger,
	}
}

// StockSummary aggregates the movements recorded in [start, end].
func (s *Service) StockSummary(ctx context.Context, start, end time.Time) (models.StockSummary, error) {
	meds, ledger, err := s.load(ctx, start, end)
	if err != nil {
		return models.StockSummary{}, err
	}

	summary := models.StockSummary{
		Start:     start,
		End:       end,
		Medicines: len(meds),
		ByStatus:  make(map[models.StockStatus]int),
	}

	totals := make(map[string]*models.MedicineMovementTotal, len(meds))
	for _, m := range meds {
		summary.ByStatus[m.StockStatus()]++
		totals[m.ID] = &models.MedicineMovementTotal{
			MedicineID:      m.ID,
			Name:            m.Name,
			CurrentQuantity: m.CurrentQuantity,
		}
	}

	for _, record := range ledger {
		summary.Movements++
		total, ok := totals[record.MedicineID]
		if !ok {
			total = &models.MedicineMovementTotal{MedicineID: record.MedicineID}
			totals[record.MedicineID] = total
		}

		switch {
		case record.Type == models.StockDeletion:
			summary.Deletions++
		case record.Change > 0:
			summary.Additions += record.Change
			total.Additions += record.Change
		case record.Change < 0:
			summary.Withdrawals -= record.Change
			total.Withdrawals -= record.Change
		}
		if record.Type != models.StockDeletion {
			summary.NetChange += record.Change
			total.NetChange += record.Change
		}
	}

	for _, total := range totals {
		if total.Additions == 0 && total.Withdrawals == 0 {
			continue
		}
		summary.PerMedicine = append(summary.PerMedicine, *total)
	}
	sort.Slice(summary.PerMedicine, func(i, j int) bool {
		return summary.PerMedicine[i].MedicineID < summary.PerMedicine[j].MedicineID
	})

	return summary, nil
}

// FormatSummary renders a summary as a short text message.
func (s *Service) FormatSummary(summary models.StockSummary) string {
	period := fmt.Sprintf("%s-%s", summary.Start.In(s.location).Format(dateLayout), summary.End.In(s.location).Format(dateLayout))
	if summary.Movements == 0 {
		return fmt.Sprintf("Stock summary (%s): no movements recorded.", period)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock summary (%s): +%d / -%d units across %d movements (net %+d).",
		period, summary.Additions, summary.Withdrawals, summary.Movements, summary.NetChange)
	if summary.Deletions > 0 {
		fmt.Fprintf(&b, " %d medicine(s) deleted.", summary.Deletions)
	}

	low := summary.ByStatus[models.StockWarning] + summary.ByStatus[models.StockCritical] + summary.ByStatus[models.StockOutOfStock]
	if low > 0 {
		fmt.Fprintf(&b, " %d of %d medicines below threshold.", low, summary.Medicines)
	}
	return b.String()
}

// ExportStockHistory appends the ledger of [start, end] to the spreadsheet,
// oldest first, and returns the number of rows written. Records dated at or
// before the latest date already in the sheet are skipped, so overlapping
// periods are not exported twice.
func (s *Service) ExportStockHistory(ctx context.Context, start, end time.Time) (int, error) {
	if s.sheets == nil {
		return 0, fmt.Errorf("export stock history: sheets export is not configured")
	}

	meds, ledger, err := s.load(ctx, start, end)
	if err != nil {
		return 0, err
	}

	last, exported, err := s.lastExported(ctx)
	if err != nil {
		return 0, fmt.Errorf("export stock history: %w", err)
	}

	names := make(map[string]string, len(meds))
	for _, m := range meds {
		names[m.ID] = m.Name
	}

	rows := make([][]interface{}, 0, len(ledger))
	for i := len(ledger) - 1; i >= 0; i-- {
		if exported && !ledger[i].Date.After(last) {
			continue
		}
		rows = append(rows, s.row(ledger[i], names[ledger[i].MedicineID]))
	}

	if len(rows) == 0 {
		s.logger.Info("stock history already exported", zap.Time("last_exported", last))
		return 0, nil
	}

	if err := s.sheets.AppendRows(ctx, stockHistoryRange, rows); err != nil {
		return 0, fmt.Errorf("export stock history: %w", err)
	}

	s.logger.Info("stock history exported",
		zap.Int("rows", len(rows)),
		zap.String("start", start.Format(time.RFC3339)),
		zap.String("end", end.Format(time.RFC3339)))
	return len(rows), nil
}

// lastExported returns the latest date in the first column of the export
// sheet. Cells that are not timestamps, such as a header, are ignored.
func (s *Service) lastExported(ctx context.Context) (time.Time, bool, error) {
	rows, err := s.sheets.ReadRange(ctx, exportedDateRange)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read exported dates: %w", err)
	}

	var (
		last  time.Time
		found bool
	)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, ok := row[0].(string)
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, cell)
		if err != nil {
			continue
		}
		if !found || at.After(last) {
			last, found = at, true
		}
	}
	return last, found, nil
}

func (s *Service) row(record models.StockHistory, name string) []interface{} {
	reason := ""
	if record.Reason != nil {
		reason = *record.Reason
	}
	return []interface{}{
		record.Date.In(s.location).Format(time.RFC3339Nano),
		record.MedicineID,
		name,
		string(record.Type),
		record.Change,
		record.PreviousQuantity,
		record.NewQuantity,
		reason,
		record.UserID,
	}
}

// load fetches the medicines and the ledger of the period concurrently.
// Aisle entries are dropped from the ledger.
func (s *Service) load(ctx context.Context, start, end time.Time) ([]models.Medicine, []models.StockHistory, error) {
	if end.Before(start) {
		return nil, nil, models.NewValidationError("end", "must not be before start")
	}

	var (
		meds    []models.Medicine
		entries []models.HistoryEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meds, err = s.medicines.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("load medicines: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entries, err = s.history.Query(gctx, history.Filter{Start: &start, End: &end})
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	medicineEntries := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.MedicineID != "" {
			medicineEntries = append(medicineEntries, e)
		}
	}

	s.logger.Debug("report data loaded", zap.Int("medicines", len(meds)), zap.Int("entries", len(medicineEntries)))
	return meds, audit.Reconstruct(medicineEntries), nil
}
