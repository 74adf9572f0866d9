package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/service/audit"
	"github.com/mamadbah2/pharmacy/internal/service/history"
)

// HistoryService is the data service behind HistoryRepository.
type HistoryService interface {
	Append(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error)
	ListAll(ctx context.Context) ([]models.HistoryEntry, error)
	ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.HistoryEntry, error)
	Query(ctx context.Context, f history.Filter) ([]models.HistoryEntry, error)
	Purge(ctx context.Context, cutoff time.Time) (int, error)
	Subscribe(ctx context.Context, onChange func([]models.HistoryEntry)) (*pubsub.Subscription[[]models.HistoryEntry], error)
}

// HistoryRepository adapts the history service for the application layer.
// History is append-only: there is no single-entry delete, only Purge.
type HistoryRepository struct {
	svc      HistoryService
	listener listener[[]models.HistoryEntry]
	logger   *zap.Logger
}

// NewHistoryRepository wraps svc.
func NewHistoryRepository(svc HistoryService, logger *zap.Logger) *HistoryRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRepository{svc: svc, logger: logger}
}

// FetchAll returns every entry, newest first.
func (r *HistoryRepository) FetchAll(ctx context.Context) ([]models.HistoryEntry, error) {
	entries, err := r.svc.ListAll(ctx)
	return entries, translate("fetch history", err)
}

// FetchPage returns the next page, or the first one when refresh is set.
func (r *HistoryRepository) FetchPage(ctx context.Context, limit int, refresh bool) (Page[models.HistoryEntry], error) {
	entries, err := r.svc.ListPage(ctx, limit, refresh)
	if err != nil {
		return Page[models.HistoryEntry]{}, translate("fetch history page", err)
	}
	return newPage(entries, limit), nil
}

// FetchForMedicine returns the entries of one medicine, newest first.
func (r *HistoryRepository) FetchForMedicine(ctx context.Context, medicineID string) ([]models.HistoryEntry, error) {
	entries, err := r.svc.Query(ctx, history.Filter{MedicineID: &medicineID})
	return entries, translate("fetch medicine history", err)
}

// Query returns the entries matching f.
func (r *HistoryRepository) Query(ctx context.Context, f history.Filter) ([]models.HistoryEntry, error) {
	entries, err := r.svc.Query(ctx, f)
	return entries, translate("query history", err)
}

// FetchStockHistory rebuilds the stock ledger for the entries matching f.
// Aisle entries carry no stock movement and are left out.
func (r *HistoryRepository) FetchStockHistory(ctx context.Context, f history.Filter) ([]models.StockHistory, error) {
	entries, err := r.svc.Query(ctx, f)
	if err != nil {
		return nil, translate("fetch stock history", err)
	}

	medicineEntries := entries[:0:0]
	for _, e := range entries {
		if e.MedicineID != "" {
			medicineEntries = append(medicineEntries, e)
		}
	}
	return audit.Reconstruct(medicineEntries), nil
}

// Save appends entry and returns it as stored.
func (r *HistoryRepository) Save(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error) {
	stored, err := r.svc.Append(ctx, entry)
	if err != nil {
		return models.HistoryEntry{}, translate("save history entry", err)
	}
	return stored, nil
}

// Purge deletes every entry older than cutoff.
func (r *HistoryRepository) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := r.svc.Purge(ctx, cutoff)
	return n, translate("purge history", err)
}

// StartListening replaces any previous listener with callback.
func (r *HistoryRepository) StartListening(ctx context.Context, callback func([]models.HistoryEntry)) error {
	sub, err := r.svc.Subscribe(ctx, callback)
	if err != nil {
		return translate("listen history", err)
	}
	r.listener.replace(sub)
	r.logger.Debug("history listener started")
	return nil
}

// StopListening cancels the active listener, if any.
func (r *HistoryRepository) StopListening() {
	r.listener.stop()
}
