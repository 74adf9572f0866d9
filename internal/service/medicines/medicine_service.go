package medicines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/service/collection"
	"github.com/mamadbah2/pharmacy/internal/service/history"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

const entityName = "medicine"

// AuditLog receives the audit entry of every successful mutation.
type AuditLog interface {
	Append(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error)
}

// Service is the data service for the "medicines" collection.
//
// Validation reads and the following write are not atomic: a concurrent writer
// can still remove the referenced aisle between the check and the Put.
type Service struct {
	store  storage.Collection[models.Medicine]
	aisles storage.Reader[models.Aisle]
	audit  AuditLog
	feed   *collection.Feed[models.Medicine]
	cursor collection.Cursor[models.Medicine]
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService wires a medicine service. aisles is used for the referential
// check on save.
func NewService(store storage.Collection[models.Medicine], aisles storage.Reader[models.Aisle], audit AuditLog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		aisles: aisles,
		audit:  audit,
		feed:   collection.NewFeed(store, logger),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ListAll returns every medicine.
func (s *Service) ListAll(ctx context.Context) ([]models.Medicine, error) {
	meds, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	return meds, nil
}

// ListPage returns the next page. An empty result means there is no more data.
func (s *Service) ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.Medicine, error) {
	return s.cursor.Next(ctx, s.store, pageSize, refresh)
}

// ListPageAt returns the page addressed by token and the token of the next
// one. It does not move the service cursor, so concurrent callers do not
// interfere.
func (s *Service) ListPageAt(ctx context.Context, token string, pageSize int) ([]models.Medicine, string, error) {
	return collection.PageAt[models.Medicine](ctx, s.store, token, pageSize)
}

// GetByID returns nil when the medicine does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Medicine, error) {
	med, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get medicine %s: %w", id, err)
	}
	return med, nil
}

// Save creates the medicine when its id is empty or unknown, otherwise updates it.
func (s *Service) Save(ctx context.Context, m models.Medicine, userID string) (models.Medicine, error) {
	if err := m.Validate(); err != nil {
		return models.Medicine{}, err
	}

	aisle, err := s.aisles.GetByID(ctx, m.AisleID)
	if err != nil {
		return models.Medicine{}, fmt.Errorf("lookup aisle %s: %w", m.AisleID, err)
	}
	if aisle == nil {
		return models.Medicine{}, models.NewValidationError("aisleId", fmt.Sprintf("aisle %q does not exist", m.AisleID))
	}

	var existing *models.Medicine
	if m.ID != "" {
		existing, err = s.store.GetByID(ctx, m.ID)
		if err != nil {
			return models.Medicine{}, fmt.Errorf("get medicine %s: %w", m.ID, err)
		}
	}

	now := models.StoredTime(s.now())
	if m.ExpiryDate != nil {
		expiry := models.StoredTime(*m.ExpiryDate)
		m.ExpiryDate = &expiry
	}
	var entry models.HistoryEntry
	if existing == nil {
		m.ID = s.newID()
		m.CreatedAt = now
		m.UpdatedAt = now
		entry = history.NewEntry(m.ID, userID, models.ActionCreate, creationDetails(m), &models.StockMovement{
			Kind:        models.StockAddition,
			NewQuantity: m.CurrentQuantity,
			Change:      m.CurrentQuantity,
		}, now)
	} else {
		m.CreatedAt = existing.CreatedAt
		m.UpdatedAt = now
		entry = history.NewEntry(m.ID, userID, models.ActionUpdate, fmt.Sprintf("Modification du médicament %s", m.Name), &models.StockMovement{
			Kind:             models.StockAdjustment,
			PreviousQuantity: existing.CurrentQuantity,
			NewQuantity:      m.CurrentQuantity,
			Change:           m.CurrentQuantity - existing.CurrentQuantity,
		}, now)
	}

	saved, err := s.store.Put(ctx, m.ID, m)
	if err != nil {
		return models.Medicine{}, fmt.Errorf("save medicine %s: %w", m.ID, err)
	}

	s.logger.Info("medicine saved",
		zap.String("id", saved.ID),
		zap.String("action", entry.Action),
		zap.String("user_id", userID))

	s.record(ctx, entry)
	s.feed.Notify(ctx)
	return saved, nil
}

// UpdateStock sets the current quantity to newQuantity.
func (s *Service) UpdateStock(ctx context.Context, id string, newQuantity int, userID string) (models.Medicine, error) {
	if newQuantity < 0 {
		return models.Medicine{}, models.NewValidationError("quantity", "must not be negative")
	}

	med, err := s.mustGet(ctx, id)
	if err != nil {
		return models.Medicine{}, err
	}

	previous := med.CurrentQuantity
	med.CurrentQuantity = newQuantity

	details := fmt.Sprintf("Stock: %d → %d", previous, newQuantity)
	return s.writeStock(ctx, med, userID, models.ActionStockUpdate, details, &models.StockMovement{
		Kind:             models.StockAdjustment,
		PreviousQuantity: previous,
		NewQuantity:      newQuantity,
		Change:           newQuantity - previous,
	})
}

// AdjustStock adds delta to the current quantity, flooring the result at zero.
// A zero delta is rejected. reason is optional.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int, reason string, userID string) (models.Medicine, error) {
	if delta == 0 {
		return models.Medicine{}, models.NewValidationError("delta", "must not be zero")
	}

	med, err := s.mustGet(ctx, id)
	if err != nil {
		return models.Medicine{}, err
	}

	previous := med.CurrentQuantity
	updated := previous + delta
	if updated < 0 {
		updated = 0
	}
	med.CurrentQuantity = updated

	action, kind, magnitude := models.ActionStockAdd, models.StockAddition, delta
	if delta < 0 {
		action, kind, magnitude = models.ActionStockWithdraw, models.StockAdjustment, -delta
	}

	details := fmt.Sprintf("%s de %d unité(s). Nouveau stock: %d", action, magnitude, updated)
	movement := &models.StockMovement{
		Kind:             kind,
		PreviousQuantity: previous,
		NewQuantity:      updated,
		Change:           updated - previous,
	}
	if r := strings.TrimSpace(reason); r != "" {
		details += " - " + r
		movement.Reason = &r
	}

	return s.writeStock(ctx, med, userID, action, details, movement)
}

// Delete removes the medicine. Unknown ids fail with a NotFoundError.
func (s *Service) Delete(ctx context.Context, id string, userID string) error {
	med, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete medicine %s: %w", id, err)
	}

	s.logger.Info("medicine deleted", zap.String("id", id), zap.String("user_id", userID))

	s.record(ctx, history.NewEntry(id, userID, models.ActionDelete, fmt.Sprintf("Suppression du médicament %s", med.Name), &models.StockMovement{
		Kind:             models.StockDeletion,
		PreviousQuantity: med.CurrentQuantity,
		Change:           -med.CurrentQuantity,
	}, models.StoredTime(s.now())))
	s.feed.Notify(ctx)
	return nil
}

// CountByAisle returns how many medicines reference aisleID.
func (s *Service) CountByAisle(ctx context.Context, aisleID string) (int, error) {
	meds, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count medicines for aisle %s: %w", aisleID, err)
	}
	count := 0
	for _, m := range meds {
		if m.AisleID == aisleID {
			count++
		}
	}
	return count, nil
}

// Subscribe delivers the current medicines before returning, then a fresh
// snapshot after every successful mutation.
func (s *Service) Subscribe(ctx context.Context, onChange func([]models.Medicine)) (*pubsub.Subscription[[]models.Medicine], error) {
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

func (s *Service) mustGet(ctx context.Context, id string) (models.Medicine, error) {
	med, err := s.store.GetByID(ctx, id)
	if err != nil {
		return models.Medicine{}, fmt.Errorf("get medicine %s: %w", id, err)
	}
	if med == nil {
		return models.Medicine{}, models.NewNotFoundError(entityName, id)
	}
	return *med, nil
}

func (s *Service) writeStock(ctx context.Context, med models.Medicine, userID, action, details string, movement *models.StockMovement) (models.Medicine, error) {
	now := models.StoredTime(s.now())
	med.UpdatedAt = now

	saved, err := s.store.Put(ctx, med.ID, med)
	if err != nil {
		return models.Medicine{}, fmt.Errorf("update stock of %s: %w", med.ID, err)
	}

	s.logger.Info("stock updated",
		zap.String("id", med.ID),
		zap.String("action", action),
		zap.Int("previous", movement.PreviousQuantity),
		zap.Int("new", movement.NewQuantity),
		zap.String("user_id", userID))

	s.record(ctx, history.NewEntry(med.ID, userID, action, details, movement, now))
	s.feed.Notify(ctx)
	return saved, nil
}

// record appends the audit entry of a committed mutation. A failure is logged
// and does not fail the call, since the write itself already happened.
func (s *Service) record(ctx context.Context, entry models.HistoryEntry) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("audit entry lost",
			zap.String("medicine_id", entry.MedicineID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func creationDetails(m models.Medicine) string {
	unit := strings.TrimSpace(m.Unit)
	if unit == "" {
		unit = "unité(s)"
	}
	return fmt.Sprintf("Création du médicament %s avec un stock initial de %d %s", m.Name, m.CurrentQuantity, unit)
}
