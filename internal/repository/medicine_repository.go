package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/pubsub"
)

// MedicineService is the data service behind MedicineRepository.
type MedicineService interface {
	ListAll(ctx context.Context) ([]models.Medicine, error)
	ListPage(ctx context.Context, pageSize int, refresh bool) ([]models.Medicine, error)
	ListPageAt(ctx context.Context, token string, pageSize int) ([]models.Medicine, string, error)
	GetByID(ctx context.Context, id string) (*models.Medicine, error)
	Save(ctx context.Context, m models.Medicine, userID string) (models.Medicine, error)
	UpdateStock(ctx context.Context, id string, newQuantity int, userID string) (models.Medicine, error)
	AdjustStock(ctx context.Context, id string, delta int, reason string, userID string) (models.Medicine, error)
	Delete(ctx context.Context, id string, userID string) error
	Subscribe(ctx context.Context, onChange func([]models.Medicine)) (*pubsub.Subscription[[]models.Medicine], error)
}

// MedicineRepository adapts the medicine service for the application layer.
type MedicineRepository struct {
	svc      MedicineService
	listener listener[[]models.Medicine]
	logger   *zap.Logger
}

// NewMedicineRepository wraps svc.
func NewMedicineRepository(svc MedicineService, logger *zap.Logger) *MedicineRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicineRepository{svc: svc, logger: logger}
}

// FetchAll returns every medicine.
func (r *MedicineRepository) FetchAll(ctx context.Context) ([]models.Medicine, error) {
	meds, err := r.svc.ListAll(ctx)
	return meds, translate("fetch medicines", err)
}

// FetchPage returns the next page, or the first one when refresh is set.
func (r *MedicineRepository) FetchPage(ctx context.Context, limit int, refresh bool) (Page[models.Medicine], error) {
	meds, err := r.svc.ListPage(ctx, limit, refresh)
	if err != nil {
		return Page[models.Medicine]{}, translate("fetch medicine page", err)
	}
	return newPage(meds, limit), nil
}

// FetchPageAt returns the page addressed by token ("" for the first page).
// Unlike FetchPage it keeps no state between calls.
func (r *MedicineRepository) FetchPageAt(ctx context.Context, token string, limit int) (Page[models.Medicine], error) {
	meds, next, err := r.svc.ListPageAt(ctx, token, limit)
	if err != nil {
		return Page[models.Medicine]{}, translate("fetch medicine page", err)
	}
	return Page[models.Medicine]{Items: meds, HasMore: next != "", NextToken: next}, nil
}

// FetchByID returns a NotFoundError when the medicine does not exist.
func (r *MedicineRepository) FetchByID(ctx context.Context, id string) (models.Medicine, error) {
	med, err := r.svc.GetByID(ctx, id)
	if err != nil {
		return models.Medicine{}, translate("fetch medicine", err)
	}
	if med == nil {
		return models.Medicine{}, translate("fetch medicine", models.NewNotFoundError("medicine", id))
	}
	return *med, nil
}

// Save creates or updates m on behalf of userID.
func (r *MedicineRepository) Save(ctx context.Context, m models.Medicine, userID string) (models.Medicine, error) {
	saved, err := r.svc.Save(ctx, m, userID)
	return saved, translate("save medicine", err)
}

// Delete removes the medicine with this id.
func (r *MedicineRepository) Delete(ctx context.Context, id string, userID string) error {
	return translate("delete medicine", r.svc.Delete(ctx, id, userID))
}

// UpdateStock sets the stock of a medicine.
func (r *MedicineRepository) UpdateStock(ctx context.Context, id string, quantity int, userID string) (models.Medicine, error) {
	med, err := r.svc.UpdateStock(ctx, id, quantity, userID)
	return med, translate("update stock", err)
}

// AdjustStock adds delta (possibly negative) to the stock of a medicine.
func (r *MedicineRepository) AdjustStock(ctx context.Context, id string, delta int, reason string, userID string) (models.Medicine, error) {
	med, err := r.svc.AdjustStock(ctx, id, delta, reason, userID)
	return med, translate("adjust stock", err)
}

// UpdateMultiple saves each medicine in order and stops at the first failure.
// The medicines saved before the failure are returned with the error.
func (r *MedicineRepository) UpdateMultiple(ctx context.Context, meds []models.Medicine, userID string) ([]models.Medicine, error) {
	saved := make([]models.Medicine, 0, len(meds))
	for i, m := range meds {
		out, err := r.svc.Save(ctx, m, userID)
		if err != nil {
			return saved, translate(fmt.Sprintf("update medicines (%d/%d)", i+1, len(meds)), err)
		}
		saved = append(saved, out)
	}
	return saved, nil
}

// DeleteMultiple deletes each id in order and stops at the first failure.
func (r *MedicineRepository) DeleteMultiple(ctx context.Context, ids []string, userID string) error {
	for i, id := range ids {
		if err := r.svc.Delete(ctx, id, userID); err != nil {
			return translate(fmt.Sprintf("delete medicines (%d/%d)", i+1, len(ids)), err)
		}
	}
	return nil
}

// StartListening replaces any previous listener with callback. The current
// medicines are delivered before it returns.
func (r *MedicineRepository) StartListening(ctx context.Context, callback func([]models.Medicine)) error {
	sub, err := r.svc.Subscribe(ctx, callback)
	if err != nil {
		return translate("listen medicines", err)
	}
	r.listener.replace(sub)
	r.logger.Debug("medicine listener started")
	return nil
}

// StopListening cancels the active listener, if any.
func (r *MedicineRepository) StopListening() {
	r.listener.stop()
}

// Listening reports whether a listener is active.
func (r *MedicineRepository) Listening() bool {
	return r.listener.active()
}
