package aisles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
	"github.com/mamadbah2/pharmacy/internal/service/collection"
	"github.com/mamadbah2/pharmacy/internal/service/history"
	"github.com/mamadbah2/pharmacy/internal/storage"
)

const entityName = "aisle"

// MedicineCounter reports how many medicines reference an aisle.
type MedicineCounter interface {
	CountByAisle(ctx context.Context, aisleID string) (int, error)
}

// AuditLog receives the audit entry of every successful mutation.
type AuditLog interface {
	Append(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error)
}

// Service is the data service for the "aisles" collection.
//
// The duplicate-name and in-use checks read the store before writing and are
// not atomic with the write. With MongoDB the case-insensitive unique index
// still rejects a racing duplicate name.
type Service struct {
	store     storage.Collection[models.Aisle]
	medicines MedicineCounter
	audit     AuditLog
	feed      *collection.Feed[models.Aisle]
	cursor    collection.Cursor[models.Aisle]
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires an aisle service.
func NewService(store storage.Collection[models.Aisle], medicines MedicineCounter, audit AuditLog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		medicines: medicines,
		audit:     audit,
		feed:      collection.NewFeed(store, logger),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ListAll returns every aisle.
func (s *Service) ListAll(ctx context.Context) ([]models.Aisle, error) {
	aisles, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aisles: %w", err)
	}
	return aisles, nil
}

// ListPage returns the next page. An empty result means there is no more data.
func (s *Service) ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.Aisle, error) {
	return s.cursor.Next(ctx, s.store, pageSize, refresh)
}

// GetByID returns nil when the aisle does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Aisle, error) {
	aisle, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get aisle %s: %w", id, err)
	}
	return aisle, nil
}

// Save creates or updates an aisle. Names must be unique ignoring case.
func (s *Service) Save(ctx context.Context, a models.Aisle, userID string) (models.Aisle, error) {
	if err := a.Validate(); err != nil {
		return models.Aisle{}, err
	}

	all, err := s.store.GetAll(ctx)
	if err != nil {
		return models.Aisle{}, fmt.Errorf("list aisles: %w", err)
	}

	var existing *models.Aisle
	for i := range all {
		other := all[i]
		if a.ID != "" && other.ID == a.ID {
			existing = &all[i]
			continue
		}
		if models.SameName(other.Name, a.Name) {
			return models.Aisle{}, duplicateName(a.Name)
		}
	}

	action := models.ActionUpdate
	details := fmt.Sprintf("Modification du rayon %s", a.Name)
	if existing == nil {
		a.ID = s.newID()
		action = models.ActionCreate
		details = fmt.Sprintf("Création du rayon %s", a.Name)
	}

	saved, err := s.store.Put(ctx, a.ID, a)
	if errors.Is(err, models.ErrConflict) {
		return models.Aisle{}, duplicateName(a.Name)
	}
	if err != nil {
		return models.Aisle{}, fmt.Errorf("save aisle %s: %w", a.ID, err)
	}

	s.logger.Info("aisle saved", zap.String("id", saved.ID), zap.String("action", action), zap.String("user_id", userID))

	s.record(ctx, history.NewEntry("", userID, action, details, nil, models.StoredTime(s.now())))
	s.feed.Notify(ctx)
	return saved, nil
}

// Delete removes an aisle that no medicine references anymore.
func (s *Service) Delete(ctx context.Context, id string, userID string) error {
	aisle, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get aisle %s: %w", id, err)
	}
	if aisle == nil {
		return models.NewNotFoundError(entityName, id)
	}

	count, err := s.medicines.CountByAisle(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return models.NewValidationError("id", fmt.Sprintf("aisle %q still holds %d medicine(s)", aisle.Name, count))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete aisle %s: %w", id, err)
	}

	s.logger.Info("aisle deleted", zap.String("id", id), zap.String("user_id", userID))

	s.record(ctx, history.NewEntry("", userID, models.ActionDelete, fmt.Sprintf("Suppression du rayon %s", aisle.Name), nil, models.StoredTime(s.now())))
	s.feed.Notify(ctx)
	return nil
}

// Subscribe delivers the current aisles before returning, then a fresh
// snapshot after every successful mutation.
func (s *Service) Subscribe(ctx context.Context, onChange func([]models.Aisle)) (*pubsub.Subscription[[]models.Aisle], error) {
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

func (s *Service) record(ctx context.Context, entry models.HistoryEntry) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("audit entry lost", zap.String("action", entry.Action), zap.Error(err))
	}
}

func duplicateName(name string) error {
	return models.NewValidationError("name", fmt.Sprintf("an aisle named %q already exists", name))
}
