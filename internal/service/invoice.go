package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/invoice"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"
	"schoolfest-backend/internal/storage"

	"gorm.io/gorm"
)

// InvoiceService produces the invoice PDF for a settled batch. It runs
// after settlement has committed; nothing here can touch payment state,
// and any failure leaves the batch settled with the invoice missing
// until an admin regenerates it.
type InvoiceService interface {
	Generate(ctx context.Context, batchID string) (string, error)
	RegenerateByReference(ctx context.Context, reference string) (string, error)
	HandleOutcome(ctx context.Context, outcome Outcome)
}

type invoiceServiceImpl struct {
	txRunner    repository.TxRunner
	batchRepo   repository.BatchRepository
	schoolRepo  repository.SchoolRepository
	eventRepo   repository.EventRepository
	paymentRepo repository.PaymentRepository
	renderer    invoice.Renderer
	store       storage.Storage
	cfg         *config.Invoice

	// Serializes number assignment so two settlements generating at once
	// cannot claim the same per-year sequence.
	numberMu sync.Mutex
}

func NewInvoiceService(
	txRunner repository.TxRunner,
	batchRepo repository.BatchRepository,
	schoolRepo repository.SchoolRepository,
	eventRepo repository.EventRepository,
	paymentRepo repository.PaymentRepository,
	renderer invoice.Renderer,
	store storage.Storage,
	cfg *config.Invoice,
) InvoiceService {
	return &invoiceServiceImpl{
		txRunner:    txRunner,
		batchRepo:   batchRepo,
		schoolRepo:  schoolRepo,
		eventRepo:   eventRepo,
		paymentRepo: paymentRepo,
		renderer:    renderer,
		store:       store,
		cfg:         cfg,
	}
}

func (s *invoiceServiceImpl) HandleOutcome(ctx context.Context, outcome Outcome) {
	if outcome.Kind != OutcomePaymentCompleted {
		return
	}
	if _, err := s.Generate(ctx, outcome.BatchID); err != nil {
		log.Printf("[invoice] generation for batch %s failed: %v", outcome.BatchID, err)
	}
}

func (s *invoiceServiceImpl) Generate(ctx context.Context, batchID string) (string, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	if batch.PaymentStatus != model.PaymentCompleted {
		return "", fmt.Errorf("%w: batch %s has no completed payment", ErrInvalidState, batch.Reference)
	}

	school, err := s.schoolRepo.FindByID(ctx, batch.SchoolID)
	if err != nil {
		return "", fmt.Errorf("load school %s: %w", batch.SchoolID, err)
	}
	event, err := s.eventRepo.FindByID(ctx, batch.EventID)
	if err != nil {
		return "", fmt.Errorf("load event %s: %w", batch.EventID, err)
	}
	payment, err := s.paymentRepo.FindCompletedByBatch(ctx, batch.ID)
	if err != nil {
		return "", fmt.Errorf("load completed payment for batch %s: %w", batch.Reference, err)
	}

	number, err := s.ensureNumber(ctx, batch)
	if err != nil {
		return "", err
	}

	doc := &invoice.Document{
		Number:             number,
		Reference:          batch.Reference,
		IssuedAt:           time.Now(),
		SchoolName:         school.Name,
		SchoolEmail:        school.Email,
		SchoolAddress:      school.Address,
		EventName:          event.Name,
		EventVenue:         event.Venue,
		EventStartsAt:      event.StartsAt,
		StudentCount:       batch.StudentCount,
		FeePerStudent:      event.FeePerStudent,
		Subtotal:           batch.Subtotal,
		DiscountPercentage: batch.DiscountPercentage,
		DiscountAmount:     batch.DiscountAmount,
		Total:              batch.TotalAmount,
		Currency:           batch.Currency,
		PaymentID:          payment.ID,
		Gateway:            payment.Gateway,
		PaidAt:             payment.PaidAt,
	}

	pdf, err := s.renderer.Render(doc)
	if err != nil {
		return "", fmt.Errorf("render invoice for batch %s: %w", batch.Reference, err)
	}

	url, err := s.uploadWithRetry(ctx, fmt.Sprintf("invoices/%s.pdf", number), pdf)
	if err != nil {
		return "", fmt.Errorf("upload invoice %s: %w", number, err)
	}

	if err := s.batchRepo.SetInvoiceURL(ctx, batch.ID, url, time.Now()); err != nil {
		return "", fmt.Errorf("save invoice url for batch %s: %w", batch.Reference, err)
	}

	log.Printf("[invoice] generated %s for batch %s", number, batch.Reference)
	return url, nil
}

func (s *invoiceServiceImpl) RegenerateByReference(ctx context.Context, reference string) (string, error) {
	batch, err := s.batchRepo.FindByReference(ctx, reference)
	if err != nil {
		return "", fmt.Errorf("%w: batch %s", ErrNotFound, reference)
	}
	return s.Generate(ctx, batch.ID)
}

// ensureNumber assigns the next INV-<year>-<seq> number once and keeps it
// for the life of the batch, so regeneration reuses it.
func (s *invoiceServiceImpl) ensureNumber(ctx context.Context, batch *model.Batch) (string, error) {
	if batch.InvoiceNumber != "" {
		return batch.InvoiceNumber, nil
	}

	s.numberMu.Lock()
	defer s.numberMu.Unlock()

	year := time.Now().Year()
	var number string
	err := s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		seq, err := s.batchRepo.NextInvoiceSeq(ctx, tx, year)
		if err != nil {
			return err
		}
		number = fmt.Sprintf("INV-%d-%05d", year, seq)
		return s.batchRepo.SetInvoiceNumber(ctx, tx, batch.ID, year, seq, number)
	})
	if err != nil {
		return "", fmt.Errorf("assign invoice number for batch %s: %w", batch.Reference, err)
	}
	return number, nil
}

func (s *invoiceServiceImpl) uploadWithRetry(ctx context.Context, key string, pdf []byte) (string, error) {
	attempts := s.cfg.UploadAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := s.cfg.UploadBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		url, err := s.store.Upload(ctx, key, bytes.NewReader(pdf), "application/pdf")
		if err == nil {
			return url, nil
		}
		lastErr = err
		log.Printf("[invoice] upload attempt %d/%d for %s failed: %v", attempt, attempts, key, err)

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}
	return "", lastErr
}
