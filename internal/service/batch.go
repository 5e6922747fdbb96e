package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/money"
	"schoolfest-backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchService interface {
	Create(ctx context.Context, schoolID string, req *dto.CreateBatchRequest) (*dto.BatchResponse, error)
	GetByReference(ctx context.Context, schoolID, reference string) (*dto.BatchResponse, error)
	ListForSchool(ctx context.Context, schoolID string) ([]dto.BatchResponse, error)
	ListRegistrations(ctx context.Context, schoolID, reference string) ([]model.Registration, error)
	Cancel(ctx context.Context, schoolID, reference string) error
}

type batchServiceImpl struct {
	txRunner         repository.TxRunner
	batchRepo        repository.BatchRepository
	registrationRepo repository.RegistrationRepository
	eventRepo        repository.EventRepository
}

func NewBatchService(
	txRunner repository.TxRunner,
	batchRepo repository.BatchRepository,
	registrationRepo repository.RegistrationRepository,
	eventRepo repository.EventRepository,
) BatchService {
	return &batchServiceImpl{
		txRunner:         txRunner,
		batchRepo:        batchRepo,
		registrationRepo: registrationRepo,
		eventRepo:        eventRepo,
	}
}

func (s *batchServiceImpl) Create(ctx context.Context, schoolID string, req *dto.CreateBatchRequest) (*dto.BatchResponse, error) {
	event, err := s.eventRepo.FindBySlug(ctx, req.EventSlug)
	if err != nil || !event.Published {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, req.EventSlug)
	}
	if time.Now().After(event.RegistrationClosesAt) {
		return nil, fmt.Errorf("%w: registration for %s closed on %s", ErrValidation, event.Slug, event.RegistrationClosesAt.Format("2 Jan 2006"))
	}

	count := len(req.Students)
	exp := money.Exponent(event.Currency)
	subtotal := event.FeePerStudent.Mul(decimal.NewFromInt(int64(count)))

	// Group discount applies once the batch is large enough.
	pct := decimal.Zero
	if event.DiscountMinStudents > 0 && count >= event.DiscountMinStudents {
		pct = event.DiscountPercentage
	}
	discount := subtotal.Mul(pct).Div(decimal.NewFromInt(100)).Round(exp)
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: discount exceeds subtotal for event %s", ErrValidation, event.Slug)
	}

	batch := &model.Batch{
		ID:                 model.NewID(),
		Reference:          model.NewReference("SF"),
		SchoolID:           schoolID,
		EventID:            event.ID,
		StudentCount:       count,
		Subtotal:           subtotal,
		DiscountPercentage: pct,
		DiscountAmount:     discount,
		TotalAmount:        total,
		Currency:           event.Currency,
		Status:             model.BatchDraft,
		PaymentStatus:      model.PaymentPending,
	}

	registrations := make([]*model.Registration, 0, count)
	for _, student := range req.Students {
		registrations = append(registrations, &model.Registration{
			ID:           model.NewID(),
			BatchID:      batch.ID,
			SchoolID:     schoolID,
			EventID:      event.ID,
			StudentName:  student.Name,
			StudentClass: student.Class,
			StudentEmail: student.Email,
			Status:       model.RegistrationPending,
		})
	}

	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		if err := s.batchRepo.Create(ctx, tx, batch); err != nil {
			return err
		}
		return s.registrationRepo.CreateMany(ctx, tx, registrations)
	})
	if err != nil {
		return nil, fmt.Errorf("create batch for event %s: %w", event.Slug, err)
	}

	log.Printf("[batch] created %s event=%s students=%d total=%s %s", batch.Reference, event.Slug, count, total.String(), batch.Currency)
	return toBatchResponse(batch, event.Slug), nil
}

func (s *batchServiceImpl) GetByReference(ctx context.Context, schoolID, reference string) (*dto.BatchResponse, error) {
	batch, err := s.ownedBatch(ctx, schoolID, reference)
	if err != nil {
		return nil, err
	}
	slug := ""
	if event, err := s.eventRepo.FindByID(ctx, batch.EventID); err == nil {
		slug = event.Slug
	}
	return toBatchResponse(batch, slug), nil
}

func (s *batchServiceImpl) ListForSchool(ctx context.Context, schoolID string) ([]dto.BatchResponse, error) {
	batches, err := s.batchRepo.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("list batches for school %s: %w", schoolID, err)
	}

	slugs := make(map[string]string)
	out := make([]dto.BatchResponse, 0, len(batches))
	for i := range batches {
		batch := &batches[i]
		slug, ok := slugs[batch.EventID]
		if !ok {
			if event, err := s.eventRepo.FindByID(ctx, batch.EventID); err == nil {
				slug = event.Slug
			}
			slugs[batch.EventID] = slug
		}
		out = append(out, *toBatchResponse(batch, slug))
	}
	return out, nil
}

func (s *batchServiceImpl) ListRegistrations(ctx context.Context, schoolID, reference string) ([]model.Registration, error) {
	batch, err := s.ownedBatch(ctx, schoolID, reference)
	if err != nil {
		return nil, err
	}
	return s.registrationRepo.ListByBatch(ctx, batch.ID)
}

func (s *batchServiceImpl) Cancel(ctx context.Context, schoolID, reference string) error {
	batch, err := s.ownedBatch(ctx, schoolID, reference)
	if err != nil {
		return err
	}

	return s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.batchRepo.Cancel(ctx, tx, batch.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: batch %s cannot be cancelled anymore", ErrInvalidState, reference)
		}
		_, err = s.registrationRepo.CancelByBatch(ctx, tx, batch.ID)
		return err
	})
}

func (s *batchServiceImpl) ownedBatch(ctx context.Context, schoolID, reference string) (*model.Batch, error) {
	batch, err := s.batchRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, reference)
	}
	if batch.SchoolID != schoolID {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, reference)
	}
	return batch, nil
}

func toBatchResponse(batch *model.Batch, eventSlug string) *dto.BatchResponse {
	return &dto.BatchResponse{
		Reference:          batch.Reference,
		EventSlug:          eventSlug,
		StudentCount:       batch.StudentCount,
		Subtotal:           batch.Subtotal.String(),
		DiscountPercentage: batch.DiscountPercentage.String(),
		DiscountAmount:     batch.DiscountAmount.String(),
		TotalAmount:        batch.TotalAmount.String(),
		Currency:           batch.Currency,
		Status:             string(batch.Status),
		PaymentStatus:      string(batch.PaymentStatus),
		PaymentMode:        string(batch.PaymentMode),
		InvoiceNumber:      batch.InvoiceNumber,
		InvoicePDFURL:      batch.InvoicePDFURL,
		InvoiceGeneratedAt: batch.InvoiceGeneratedAt,
		CreatedAt:          batch.CreatedAt,
	}
}
