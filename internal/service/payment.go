package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"schoolfest-backend/internal/client"
	"schoolfest-backend/internal/dto"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"
	"schoolfest-backend/internal/storage"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// gatewayTimeout bounds every outbound call to a payment provider. A
// timeout surfaces as a gateway error on the request; it never marks the
// payment failed, only a definitive gateway result does that.
const gatewayTimeout = 30 * time.Second

// OfflineSubmission carries a bank transfer claim with its uploaded
// receipt. The receipt is streamed straight from the multipart request.
type OfflineSubmission struct {
	BatchReference string
	TransactionRef string
	Receipt        io.Reader
	ReceiptName    string
	ContentType    string
}

type PaymentService interface {
	Initiate(ctx context.Context, schoolID string, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error)
	// VerifyOnline asks the gateway for the intent's current state and
	// settles the payment if it succeeded. Returns ErrNotCompleted while
	// the gateway still reports it in flight.
	VerifyOnline(ctx context.Context, gatewayName, orderID string) (*dto.PaymentStatusResponse, error)
	SubmitOffline(ctx context.Context, schoolID string, sub *OfflineSubmission) (*dto.PaymentStatusResponse, error)
	ClientToken(ctx context.Context, gatewayName string) (string, error)
}

type paymentServiceImpl struct {
	txRunner    repository.TxRunner
	batchRepo   repository.BatchRepository
	paymentRepo repository.PaymentRepository
	schoolRepo  repository.SchoolRepository
	eventRepo   repository.EventRepository
	registry    client.Registry
	store       storage.Storage
	settlement  SettlementService
	events      *Dispatcher
	single      singleflight.Group
}

func NewPaymentService(
	txRunner repository.TxRunner,
	batchRepo repository.BatchRepository,
	paymentRepo repository.PaymentRepository,
	schoolRepo repository.SchoolRepository,
	eventRepo repository.EventRepository,
	registry client.Registry,
	store storage.Storage,
	settlement SettlementService,
	events *Dispatcher,
) PaymentService {
	return &paymentServiceImpl{
		txRunner:    txRunner,
		batchRepo:   batchRepo,
		paymentRepo: paymentRepo,
		schoolRepo:  schoolRepo,
		eventRepo:   eventRepo,
		registry:    registry,
		store:       store,
		settlement:  settlement,
		events:      events,
	}
}

func (s *paymentServiceImpl) Initiate(ctx context.Context, schoolID string, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error) {
	// Collapse double-clicked initiates for the same batch into one
	// gateway intent instead of opening two.
	v, err, _ := s.single.Do("initiate:"+req.BatchReference, func() (interface{}, error) {
		return s.initiate(ctx, schoolID, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*dto.InitiatePaymentResponse), nil
}

func (s *paymentServiceImpl) initiate(ctx context.Context, schoolID string, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error) {
	batch, err := s.ownedBatch(ctx, schoolID, req.BatchReference)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchDraft {
		return nil, fmt.Errorf("%w: batch %s is %s, payment can only start from draft", ErrInvalidState, batch.Reference, batch.Status)
	}

	school, err := s.schoolRepo.FindByID(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("load school %s: %w", schoolID, err)
	}
	event, err := s.eventRepo.FindByID(ctx, batch.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", batch.EventID, err)
	}

	gw, err := s.registry.Get(req.Gateway)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	intent, err := gw.CreateIntent(gwCtx, &client.IntentRequest{
		Reference:          batch.Reference,
		Amount:             batch.TotalAmount,
		Currency:           batch.Currency,
		SchoolName:         school.Name,
		SchoolEmail:        school.Email,
		PaymentMethodNonce: req.PaymentMethodNonce,
		Metadata: map[string]string{
			"batch_id":   batch.ID,
			"event_slug": event.Slug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	payment := &model.Payment{
		ID:             model.NewID(),
		BatchID:        batch.ID,
		SchoolID:       schoolID,
		EventID:        batch.EventID,
		Amount:         batch.TotalAmount,
		Currency:       batch.Currency,
		PaymentMode:    model.PaymentModeOnline,
		Gateway:        gw.Name(),
		GatewayOrderID: intent.ID,
		Status:         model.PaymentPending,
	}

	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}
		// The intent is out with the client now, so the payment is live.
		if _, err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID,
			[]model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing); err != nil {
			return err
		}
		return s.batchRepo.UpdateOnInitiate(ctx, tx, batch.ID, model.PaymentModeOnline, model.PaymentProcessing)
	})
	if err != nil {
		return nil, fmt.Errorf("persist payment for batch %s: %w", batch.Reference, err)
	}

	log.Printf("[payment] initiated %s gateway=%s order=%s batch=%s", payment.ID, gw.Name(), intent.ID, batch.Reference)

	return &dto.InitiatePaymentResponse{
		PaymentID:      payment.ID,
		BatchReference: batch.Reference,
		Gateway:        gw.Name(),
		GatewayOrderID: intent.ID,
		ClientSecret:   intent.ClientSecret,
		RedirectURL:    intent.RedirectURL,
		Amount:         batch.TotalAmount.String(),
		Currency:       batch.Currency,
	}, nil
}

func (s *paymentServiceImpl) VerifyOnline(ctx context.Context, gatewayName, orderID string) (*dto.PaymentStatusResponse, error) {
	payment, err := s.paymentRepo.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: no payment for order %s", ErrNotFound, orderID)
	}
	if payment.Gateway != gatewayName {
		return nil, fmt.Errorf("%w: order %s belongs to gateway %s", ErrValidation, orderID, payment.Gateway)
	}
	if payment.Status == model.PaymentCompleted || payment.Status == model.PaymentRefunded {
		return s.statusResponse(ctx, payment)
	}

	gw, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	st, err := gw.GetIntent(gwCtx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	switch st.Status {
	case client.IntentSucceeded:
		if err := s.settlement.CompleteByOrderID(ctx, orderID, st.ChargeID, st.ReceiptURL); err != nil {
			return nil, err
		}
	case client.IntentFailed:
		if err := s.settlement.FailByOrderID(ctx, orderID, st.Reason); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, st.Reason)
	default:
		return nil, fmt.Errorf("%w: gateway still reports %s", ErrNotCompleted, st.Status)
	}

	settledPayment, err := s.paymentRepo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment %s: %w", payment.ID, err)
	}
	return s.statusResponse(ctx, settledPayment)
}

func (s *paymentServiceImpl) SubmitOffline(ctx context.Context, schoolID string, sub *OfflineSubmission) (*dto.PaymentStatusResponse, error) {
	batch, err := s.ownedBatch(ctx, schoolID, sub.BatchReference)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchDraft {
		return nil, fmt.Errorf("%w: batch %s is %s, offline submission needs draft", ErrInvalidState, batch.Reference, batch.Status)
	}
	if sub.TransactionRef == "" {
		return nil, fmt.Errorf("%w: bank transaction reference required", ErrValidation)
	}
	if sub.Receipt == nil {
		return nil, fmt.Errorf("%w: receipt upload required", ErrValidation)
	}

	name := path.Base(sub.ReceiptName)
	if name == "" || name == "." || name == "/" {
		name = "receipt"
	}
	key := fmt.Sprintf("receipts/%s/%d-%s", batch.Reference, time.Now().Unix(), name)
	receiptURL, err := s.store.Upload(ctx, key, sub.Receipt, sub.ContentType)
	if err != nil {
		return nil, fmt.Errorf("upload receipt for batch %s: %w", batch.Reference, err)
	}

	now := time.Now()
	details := model.OfflineDetails{
		TransactionRef: sub.TransactionRef,
		ReceiptURL:     receiptURL,
		SubmittedAt:    &now,
	}
	payment := &model.Payment{
		ID:       model.NewID(),
		BatchID:  batch.ID,
		SchoolID: schoolID,
		EventID:  batch.EventID,
		Amount:   batch.TotalAmount,
		Currency: batch.Currency,
		// Offline payments still need a unique order id for lookups.
		GatewayOrderID: model.NewReference("OFF"),
		PaymentMode:    model.PaymentModeOffline,
		Gateway:        "offline",
		Status:         model.PaymentPending,
		Offline:        details,
	}

	err = s.txRunner.RunInTx(ctx, func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}
		if _, err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID,
			[]model.PaymentStatus{model.PaymentPending}, model.PaymentPendingVerification); err != nil {
			return err
		}
		return s.batchRepo.SubmitOffline(ctx, tx, batch.ID, details)
	})
	if err != nil {
		return nil, fmt.Errorf("persist offline payment for batch %s: %w", batch.Reference, err)
	}

	log.Printf("[payment] offline submission %s batch=%s ref=%s", payment.ID, batch.Reference, sub.TransactionRef)
	s.events.Publish(Outcome{
		Kind:      OutcomeOfflineSubmitted,
		BatchID:   batch.ID,
		PaymentID: payment.ID,
	})

	payment.Status = model.PaymentPendingVerification
	return &dto.PaymentStatusResponse{
		PaymentID:      payment.ID,
		BatchReference: batch.Reference,
		Status:         string(payment.Status),
	}, nil
}

func (s *paymentServiceImpl) ClientToken(ctx context.Context, gatewayName string) (string, error) {
	gw, err := s.registry.Get(gatewayName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	provider, ok := gw.(client.ClientTokenProvider)
	if !ok {
		return "", fmt.Errorf("%w: gateway %s does not issue client tokens", ErrValidation, gatewayName)
	}
	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	token, err := provider.ClientToken(gwCtx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return token, nil
}

func (s *paymentServiceImpl) ownedBatch(ctx context.Context, schoolID, reference string) (*model.Batch, error) {
	batch, err := s.batchRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, reference)
	}
	// Ownership failures look like absence so references stay unguessable.
	if batch.SchoolID != schoolID {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, reference)
	}
	return batch, nil
}

func (s *paymentServiceImpl) statusResponse(ctx context.Context, payment *model.Payment) (*dto.PaymentStatusResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, payment.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", payment.BatchID, err)
	}
	return &dto.PaymentStatusResponse{
		PaymentID:      payment.ID,
		BatchReference: batch.Reference,
		Status:         string(payment.Status),
		PaidAt:         payment.PaidAt,
		ReceiptURL:     payment.ReceiptURL,
	}, nil
}
