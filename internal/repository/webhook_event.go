package repository

import (
	"context"
	"time"

	"schoolfest-backend/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	// Find returns gorm.ErrRecordNotFound when no delivery with this id has
	// been recorded yet. Callers branch on that to decide first-vs-repeat.
	Find(ctx context.Context, gateway, webhookID string) (*model.WebhookEvent, error)
	// Create inserts the delivery record. The (gateway, webhook_id) unique
	// index makes this the race barrier: the second of two concurrent
	// inserts fails with gorm.ErrDuplicatedKey.
	Create(ctx context.Context, event *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uint, handlerErr string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type webhookEventRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryImpl{db: db}
}

func (r *webhookEventRepositoryImpl) Find(ctx context.Context, gateway, webhookID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND webhook_id = ?", gateway, webhookID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *webhookEventRepositoryImpl) Create(ctx context.Context, event *model.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *webhookEventRepositoryImpl) MarkProcessed(ctx context.Context, id uint, handlerErr string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
			"error":        handlerErr,
		}).Error
}

func (r *webhookEventRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.WebhookEvent{})
	return res.RowsAffected, res.Error
}
