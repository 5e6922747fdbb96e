package repository

import (
	"context"
	"time"

	"schoolfest-backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	// UpdateStatus moves the payment to the target status only when its
	// current status is one of from. Returns the number of rows changed so
	// callers can detect a lost race (0 means some other writer got there
	// first).
	UpdateStatus(ctx context.Context, tx *gorm.DB, id string, from []model.PaymentStatus, to model.PaymentStatus) (int64, error)
	MarkCompleted(ctx context.Context, tx *gorm.DB, id, gatewayPaymentID, receiptURL string, paidAt time.Time) (int64, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id, reason string) (int64, error)
	RecordRefund(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal, full bool) error
	HasCompletedForBatch(ctx context.Context, tx *gorm.DB, batchID string) (bool, error)
	FindCompletedByBatch(ctx context.Context, batchID string) (*model.Payment, error)
}

type paymentRepositoryImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepositoryImpl{db: db}
}

func (r *paymentRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepositoryImpl) FindByGatewayOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepositoryImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, from []model.PaymentStatus, to model.PaymentStatus) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *paymentRepositoryImpl) MarkCompleted(ctx context.Context, tx *gorm.DB, id, gatewayPaymentID, receiptURL string, paidAt time.Time) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id, model.SettleableStatuses()).
		Updates(map[string]interface{}{
			"status":             model.PaymentCompleted,
			"gateway_payment_id": gatewayPaymentID,
			"receipt_url":        receiptURL,
			"paid_at":            paidAt,
			"failure_reason":     "",
		})
	return res.RowsAffected, res.Error
}

func (r *paymentRepositoryImpl) MarkFailed(ctx context.Context, tx *gorm.DB, id, reason string) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", id, model.SettleableStatuses()).
		Updates(map[string]interface{}{
			"status":         model.PaymentFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected, res.Error
}

func (r *paymentRepositoryImpl) RecordRefund(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal, full bool) error {
	updates := map[string]interface{}{
		"refunded":      true,
		"refund_amount": amount,
	}
	if full {
		updates["status"] = model.PaymentRefunded
	}
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *paymentRepositoryImpl) HasCompletedForBatch(ctx context.Context, tx *gorm.DB, batchID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("batch_id = ? AND status = ?", batchID, model.PaymentCompleted).
		Count(&count).Error
	return count > 0, err
}

func (r *paymentRepositoryImpl) FindCompletedByBatch(ctx context.Context, batchID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND status IN ?", batchID, []model.PaymentStatus{model.PaymentCompleted, model.PaymentRefunded}).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
