package repository

import (
	"context"
	"time"

	"schoolfest-backend/internal/model"

	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, tx *gorm.DB, batch *model.Batch) error
	FindByID(ctx context.Context, id string) (*model.Batch, error)
	FindByReference(ctx context.Context, reference string) (*model.Batch, error)
	ListBySchool(ctx context.Context, schoolID string) ([]model.Batch, error)
	UpdateOnInitiate(ctx context.Context, tx *gorm.DB, id string, mode model.PaymentMode, paymentStatus model.PaymentStatus) error
	// MarkSettled records a completed payment against the batch. Online
	// settlements move it to submitted, verified offline ones to confirmed.
	MarkSettled(ctx context.Context, tx *gorm.DB, id string, status model.BatchStatus) error
	MarkPaymentFailed(ctx context.Context, tx *gorm.DB, id string) error
	// Reopen reverts a rejected offline batch to draft so the school can
	// pay again. Guarded on submitted, returns rows affected.
	Reopen(ctx context.Context, tx *gorm.DB, id string) (int64, error)
	SubmitOffline(ctx context.Context, tx *gorm.DB, id string, details model.OfflineDetails) error
	SetOfflineVerified(ctx context.Context, tx *gorm.DB, id, verifiedBy string, verifiedAt time.Time) error
	// Cancel is guarded so a settled batch can never be cancelled out from
	// under its completed payment.
	Cancel(ctx context.Context, tx *gorm.DB, id string) (int64, error)
	SetInvoiceNumber(ctx context.Context, tx *gorm.DB, id string, year, seq int, number string) error
	SetInvoiceURL(ctx context.Context, id, url string, generatedAt time.Time) error
	// NextInvoiceSeq hands out the next per-year sequence number. Must run
	// inside the same transaction that claims it via SetInvoiceNumber.
	NextInvoiceSeq(ctx context.Context, tx *gorm.DB, year int) (int, error)
}

type batchRepositoryImpl struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepositoryImpl{db: db}
}

func (r *batchRepositoryImpl) Create(ctx context.Context, tx *gorm.DB, batch *model.Batch) error {
	return tx.WithContext(ctx).Create(batch).Error
}

func (r *batchRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	var batch model.Batch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepositoryImpl) FindByReference(ctx context.Context, reference string) (*model.Batch, error) {
	var batch model.Batch
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepositoryImpl) ListBySchool(ctx context.Context, schoolID string) ([]model.Batch, error) {
	var batches []model.Batch
	err := r.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Order("created_at DESC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepositoryImpl) UpdateOnInitiate(ctx context.Context, tx *gorm.DB, id string, mode model.PaymentMode, paymentStatus model.PaymentStatus) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_mode":   mode,
			"payment_status": paymentStatus,
		}).Error
}

func (r *batchRepositoryImpl) MarkSettled(ctx context.Context, tx *gorm.DB, id string, status model.BatchStatus) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"payment_status": model.PaymentCompleted,
		}).Error
}

func (r *batchRepositoryImpl) MarkPaymentFailed(ctx context.Context, tx *gorm.DB, id string) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Update("payment_status", model.PaymentFailed).Error
}

func (r *batchRepositoryImpl) Reopen(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ? AND status = ?", id, model.BatchSubmitted).
		Updates(map[string]interface{}{
			"status":         model.BatchDraft,
			"payment_status": model.PaymentFailed,
		})
	return res.RowsAffected, res.Error
}

func (r *batchRepositoryImpl) SubmitOffline(ctx context.Context, tx *gorm.DB, id string, details model.OfflineDetails) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                  model.BatchSubmitted,
			"payment_status":          model.PaymentPendingVerification,
			"payment_mode":            model.PaymentModeOffline,
			"offline_transaction_ref": details.TransactionRef,
			"offline_receipt_url":     details.ReceiptURL,
			"offline_submitted_at":    details.SubmittedAt,
		}).Error
}

func (r *batchRepositoryImpl) SetOfflineVerified(ctx context.Context, tx *gorm.DB, id, verifiedBy string, verifiedAt time.Time) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"offline_verified_by": verifiedBy,
			"offline_verified_at": verifiedAt,
		}).Error
}

func (r *batchRepositoryImpl) Cancel(ctx context.Context, tx *gorm.DB, id string) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ? AND status IN ? AND payment_status <> ?",
			id,
			[]model.BatchStatus{model.BatchDraft, model.BatchSubmitted},
			model.PaymentCompleted,
		).
		Update("status", model.BatchCancelled)
	return res.RowsAffected, res.Error
}

func (r *batchRepositoryImpl) SetInvoiceNumber(ctx context.Context, tx *gorm.DB, id string, year, seq int, number string) error {
	return tx.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"invoice_year":   year,
			"invoice_seq":    seq,
			"invoice_number": number,
		}).Error
}

func (r *batchRepositoryImpl) SetInvoiceURL(ctx context.Context, id, url string, generatedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"invoice_pdf_url":      url,
			"invoice_generated_at": generatedAt,
		}).Error
}

func (r *batchRepositoryImpl) NextInvoiceSeq(ctx context.Context, tx *gorm.DB, year int) (int, error) {
	var max int
	err := tx.WithContext(ctx).Model(&model.Batch{}).
		Where("invoice_year = ?", year).
		Select("COALESCE(MAX(invoice_seq), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
