package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/service/history"
)

type stubMedicines struct {
	meds []models.Medicine
	err  error
}

func (s stubMedicines) ListAll(ctx context.Context) ([]models.Medicine, error) {
	return s.meds, s.err
}

type stubHistory struct {
	entries []models.HistoryEntry
	err     error
	filter  history.Filter
}

func (s *stubHistory) Query(ctx context.Context, f history.Filter) ([]models.HistoryEntry, error) {
	s.filter = f
	return s.entries, s.err
}

type recordingSheets struct {
	sheetRange string
	readRange  string
	rows       [][]interface{}
	appends    int
	err        error
	readErr    error
}

func (r *recordingSheets) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	r.appends++
	r.sheetRange = sheetRange
	r.rows = append(r.rows, rows...)
	return r.err
}

func (r *recordingSheets) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	r.readRange = sheetRange
	return r.rows, r.readErr
}

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 3, 7, 23, 59, 59, 0, time.UTC)
)

func fixtures() (stubMedicines, *stubHistory) {
	meds := stubMedicines{meds: []models.Medicine{
		{ID: "med-1", Name: "Paracetamol", CurrentQuantity: 45, WarningThreshold: 20, CriticalThreshold: 5},
		{ID: "med-2", Name: "Amoxicilline", CurrentQuantity: 3, WarningThreshold: 20, CriticalThreshold: 5},
	}}

	reason := "casse"
	hist := &stubHistory{entries: []models.HistoryEntry{
		{ID: "h4", MedicineID: "med-3", Action: models.ActionDelete, Timestamp: periodStart.Add(72 * time.Hour),
			Movement: &models.StockMovement{Kind: models.StockDeletion, PreviousQuantity: 8, Change: -8}},
		{ID: "h3", MedicineID: "med-2", Action: models.ActionStockWithdraw, Timestamp: periodStart.Add(48 * time.Hour),
			Movement: &models.StockMovement{Kind: models.StockAdjustment, PreviousQuantity: 10, NewQuantity: 3, Change: -7, Reason: &reason}},
		{ID: "h2", Action: models.ActionCreate, Details: "Création du rayon A", Timestamp: periodStart.Add(36 * time.Hour)},
		{ID: "h1", MedicineID: "med-1", Action: models.ActionStockAdd, Timestamp: periodStart.Add(24 * time.Hour),
			Details: "Ajout de 15 unité(s). Nouveau stock: 45"},
	}}
	return meds, hist
}

func TestStockSummary(t *testing.T) {
	meds, hist := fixtures()
	svc := NewService(meds, hist, nil, time.UTC, nil)

	summary, err := svc.StockSummary(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Medicines)
	assert.Equal(t, 3, summary.Movements)
	assert.Equal(t, 15, summary.Additions)
	assert.Equal(t, 7, summary.Withdrawals)
	assert.Equal(t, 1, summary.Deletions)
	assert.Equal(t, 8, summary.NetChange)
	assert.Equal(t, 1, summary.ByStatus[models.StockNormal])
	assert.Equal(t, 1, summary.ByStatus[models.StockCritical])

	require.Len(t, summary.PerMedicine, 2)
	assert.Equal(t, "med-1", summary.PerMedicine[0].MedicineID)
	assert.Equal(t, 15, summary.PerMedicine[0].Additions)
	assert.Equal(t, "Amoxicilline", summary.PerMedicine[1].Name)
	assert.Equal(t, -7, summary.PerMedicine[1].NetChange)

	require.NotNil(t, hist.filter.Start)
	assert.Equal(t, periodStart, *hist.filter.Start)
	assert.Equal(t, periodEnd, *hist.filter.End)
}

func TestStockSummaryRejectsInvertedPeriod(t *testing.T) {
	meds, hist := fixtures()
	svc := NewService(meds, hist, nil, time.UTC, nil)

	_, err := svc.StockSummary(context.Background(), periodEnd, periodStart)
	assert.True(t, models.IsValidation(err))
}

func TestStockSummaryPropagatesLoadErrors(t *testing.T) {
	_, hist := fixtures()
	boom := errors.New("boom")
	svc := NewService(stubMedicines{err: boom}, hist, nil, time.UTC, nil)

	_, err := svc.StockSummary(context.Background(), periodStart, periodEnd)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "load medicines")
}

func TestFormatSummary(t *testing.T) {
	meds, hist := fixtures()
	svc := NewService(meds, hist, nil, time.UTC, nil)

	summary, err := svc.StockSummary(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)

	text := svc.FormatSummary(summary)
	assert.Contains(t, text, "2026-03-01-2026-03-07")
	assert.Contains(t, text, "+15 / -7 units across 3 movements (net +8)")
	assert.Contains(t, text, "1 medicine(s) deleted")
	assert.Contains(t, text, "1 of 2 medicines below threshold")

	empty := svc.FormatSummary(models.StockSummary{Start: periodStart, End: periodEnd})
	assert.Equal(t, "Stock summary (2026-03-01-2026-03-07): no movements recorded.", empty)
}

func TestExportStockHistory(t *testing.T) {
	meds, hist := fixtures()
	sheets := &recordingSheets{}
	svc := NewService(meds, hist, sheets, time.UTC, nil)

	n, err := svc.ExportStockHistory(context.Background(), periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, stockHistoryRange, sheets.sheetRange)

	require.Len(t, sheets.rows, 3)
	first := sheets.rows[0]
	assert.Equal(t, "2026-03-02T00:00:00Z", first[0])
	assert.Equal(t, "med-1", first[1])
	assert.Equal(t, "Paracetamol", first[2])
	assert.Equal(t, "addition", first[3])
	assert.Equal(t, 15, first[4])

	assert.Equal(t, "casse", sheets.rows[1][7])
	assert.Equal(t, "deletion", sheets.rows[2][3])
	assert.Equal(t, "", sheets.rows[2][2])
}

func TestExportStockHistoryWithoutSheets(t *testing.T) {
	meds, hist := fixtures()
	svc := NewService(meds, hist, nil, time.UTC, nil)

	_, err := svc.ExportStockHistory(context.Background(), periodStart, periodEnd)
	assert.Error(t, err)
}

func TestExportStockHistorySkipsExportedRows(t *testing.T) {
	meds, hist := fixtures()
	sheets := &recordingSheets{rows: [][]interface{}{
		{"date", "medicine_id"},
		{"2026-03-02T00:00:00Z", "med-1"},
		{},
	}}
	svc := NewService(meds, hist, sheets, time.UTC, nil)
	ctx := context.Background()

	n, err := svc.ExportStockHistory(ctx, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, exportedDateRange, sheets.readRange)
	require.Len(t, sheets.rows, 5)
	assert.Equal(t, "2026-03-03T00:00:00Z", sheets.rows[3][0])

	n, err = svc.ExportStockHistory(ctx, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sheets.rows, 5)
	assert.Equal(t, 1, sheets.appends)
}

func TestExportStockHistoryReadFailure(t *testing.T) {
	meds, hist := fixtures()
	boom := errors.New("quota exceeded")
	sheets := &recordingSheets{readErr: boom}
	svc := NewService(meds, hist, sheets, time.UTC, nil)

	_, err := svc.ExportStockHistory(context.Background(), periodStart, periodEnd)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, sheets.appends)
}
