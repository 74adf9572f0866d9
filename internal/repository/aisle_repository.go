package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
)

// AisleService is the data service behind AisleRepository.
type AisleService interface {
	ListAll(ctx context.Context) ([]models.Aisle, error)
	ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.Aisle, error)
	GetByID(ctx context.Context, id string) (*models.Aisle, error)
	Save(ctx context.Context, a models.Aisle, userID string) (models.Aisle, error)
	Delete(ctx context.Context, id string, userID string) error
	Subscribe(ctx context.Context, onChange func([]models.Aisle)) (*pubsub.Subscription[[]models.Aisle], error)
}

// AisleRepository adapts the aisle service for the application layer.
type AisleRepository struct {
	svc      AisleService
	listener listener[[]models.Aisle]
	logger   *zap.Logger
}

// NewAisleRepository wraps svc.
func NewAisleRepository(svc AisleService, logger *zap.Logger) *AisleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AisleRepository{svc: svc, logger: logger}
}

// FetchAll returns every aisle.
func (r *AisleRepository) FetchAll(ctx context.Context) ([]models.Aisle, error) {
	aisles, err := r.svc.ListAll(ctx)
	return aisles, translate("fetch aisles", err)
}

// FetchPage returns the next page, or the first one when refresh is set.
func (r *AisleRepository) FetchPage(ctx context.Context, limit int, refresh bool) (Page[models.Aisle], error) {
	aisles, err := r.svc.ListPage(ctx, limit, refresh)
	if err != nil {
		return Page[models.Aisle]{}, translate("fetch aisle page", err)
	}
	return newPage(aisles, limit), nil
}

// FetchByID returns a NotFoundError when the aisle does not exist.
func (r *AisleRepository) FetchByID(ctx context.Context, id string) (models.Aisle, error) {
	aisle, err := r.svc.GetByID(ctx, id)
	if err != nil {
		return models.Aisle{}, translate("fetch aisle", err)
	}
	if aisle == nil {
		return models.Aisle{}, translate("fetch aisle", models.NewNotFoundError("aisle", id))
	}
	return *aisle, nil
}

// Save creates or updates a on behalf of userID.
func (r *AisleRepository) Save(ctx context.Context, a models.Aisle, userID string) (models.Aisle, error) {
	saved, err := r.svc.Save(ctx, a, userID)
	return saved, translate("save aisle", err)
}

// Delete removes an empty aisle.
func (r *AisleRepository) Delete(ctx context.Context, id string, userID string) error {
	return translate("delete aisle", r.svc.Delete(ctx, id, userID))
}

// StartListening replaces any previous listener with callback.
func (r *AisleRepository) StartListening(ctx context.Context, callback func([]models.Aisle)) error {
	sub, err := r.svc.Subscribe(ctx, callback)
	if err != nil {
		return translate("listen aisles", err)
	}
	r.listener.replace(sub)
	r.logger.Debug("aisle listener started")
	return nil
}

// StopListening cancels the active listener, if any.
func (r *AisleRepository) StopListening() {
	r.listener.stop()
}
