package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/metrics"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/service/collection"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

// Filter narrows a history query. Zero fields do not filter; all set fields
// apply together.
type Filter struct {
	MedicineID *string
	Start      *time.Time
	End        *time.Time
	// Limit truncates the result; zero or negative means no limit.
	Limit int
}

// Service is the append-only data service over the "history" collection.
type Service struct {
	store   storage.Collection[models.HistoryEntry]
	feed    *collection.Feed[models.HistoryEntry]
	cursor  collection.Cursor[models.HistoryEntry]
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires a history service. m may be nil.
func NewService(store storage.Collection[models.HistoryEntry], m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		feed:    collection.NewFeed(store, logger),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// NewEntry builds an audit entry with a fresh id.
func NewEntry(medicineID, userID, action, details string, movement *models.StockMovement, at time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		ID:         uuid.NewString(),
		MedicineID: medicineID,
		UserID:     userID,
		Action:     action,
		Details:    details,
		Timestamp:  at,
		Movement:   movement,
	}
}

// Append stores entry and returns the stored form. Only the id is checked; a
// zero timestamp is stamped with the current time and every timestamp is
// truncated to the store's millisecond precision.
func (s *Service) Append(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return models.HistoryEntry{}, models.NewValidationError("id", "must not be empty")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = models.StoredTime(entry.Timestamp)

	stored, err := s.store.Put(ctx, entry.ID, entry)
	if err != nil {
		s.metrics.AuditFailed()
		return models.HistoryEntry{}, fmt.Errorf("append history entry: %w", err)
	}

	s.metrics.AuditAppended(stored.Action)
	s.logger.Debug("history entry appended",
		zap.String("id", stored.ID),
		zap.String("medicine_id", stored.MedicineID),
		zap.String("action", stored.Action))

	s.feed.Notify(ctx)
	return stored, nil
}

// ListAll returns every entry, newest first.
func (s *Service) ListAll(ctx context.Context) ([]models.HistoryEntry, error) {
	return s.Query(ctx, Filter{})
}

// ListPage returns the next page of entries in storage order.
func (s *Service) ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.HistoryEntry, error) {
	return s.cursor.Next(ctx, s.store, pageSize, refresh)
}

// Query applies f and returns matching entries sorted by timestamp descending.
func (s *Service) Query(ctx context.Context, f Filter) ([]models.HistoryEntry, error) {
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	out := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ForMedicine returns the entries of one medicine, newest first.
func (s *Service) ForMedicine(ctx context.Context, medicineID string) ([]models.HistoryEntry, error) {
	return s.Query(ctx, Filter{MedicineID: &medicineID})
}

// Purge deletes every entry strictly older than cutoff and returns how many
// were removed. There is no undo.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, e.ID); err != nil {
			s.metrics.Purged(removed)
			return removed, fmt.Errorf("purge history entry %s: %w", e.ID, err)
		}
		removed++
	}

	s.metrics.Purged(removed)
	if removed > 0 {
		s.logger.Info("history purged", zap.Time("cutoff", cutoff), zap.Int("removed", removed))
		s.feed.Notify(ctx)
	}
	return removed, nil
}

// Subscribe delivers the current entries immediately and again after every change.
func (s *Service) Subscribe(ctx context.Context, onChange func([]models.HistoryEntry)) (*pubsub.Subscription[[]models.HistoryEntry], error) {
	return s.feed.Subscribe(ctx, onChange)
}

// Follow forwards changes made to the backing store by other writers.
func (s *Service) Follow(ctx context.Context) (storage.Subscription, error) {
	return s.store.Subscribe(ctx, s.feed.Publish)
}

// Close cancels every subscription.
func (s *Service) Close() {
	s.feed.Close()
}

func (f Filter) matches(e models.HistoryEntry) bool {
	if f.MedicineID != nil && e.MedicineID != *f.MedicineID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}
