package repository

import (
	"context"

	"schoolfest-backend/internal/model"

	"gorm.io/gorm"
)

type RegistrationRepository interface {
	CreateMany(ctx context.Context, tx *gorm.DB, registrations []*model.Registration) error
	ListByBatch(ctx context.Context, batchID string) ([]model.Registration, error)
	// ConfirmByBatch flips every pending registration of the batch to
	// confirmed in a single statement, so settlement never leaves a batch
	// half confirmed.
	ConfirmByBatch(ctx context.Context, tx *gorm.DB, batchID string) (int64, error)
	CancelByBatch(ctx context.Context, tx *gorm.DB, batchID string) (int64, error)
}

type registrationRepositoryImpl struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepositoryImpl{db: db}
}

func (r *registrationRepositoryImpl) CreateMany(ctx context.Context, tx *gorm.DB, registrations []*model.Registration) error {
	if len(registrations) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(registrations).Error
}

func (r *registrationRepositoryImpl) ListByBatch(ctx context.Context, batchID string) ([]model.Registration, error) {
	var registrations []model.Registration
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&registrations).Error
	return registrations, err
}

func (r *registrationRepositoryImpl) ConfirmByBatch(ctx context.Context, tx *gorm.DB, batchID string) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Registration{}).
		Where("batch_id = ? AND status = ?", batchID, model.RegistrationPending).
		Update("status", model.RegistrationConfirmed)
	return res.RowsAffected, res.Error
}

func (r *registrationRepositoryImpl) CancelByBatch(ctx context.Context, tx *gorm.DB, batchID string) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Registration{}).
		Where("batch_id = ? AND status <> ?", batchID, model.RegistrationCancelled).
		Update("status", model.RegistrationCancelled)
	return res.RowsAffected, res.Error
}
