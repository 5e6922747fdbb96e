package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"schoolfest-backend/internal/client"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookResult tells the handler what happened so it can answer the
// gateway. Every non-error result is acknowledged with 200, including
// duplicates and deliveries whose settlement handler failed; the durable
// event record is what matters.
type WebhookResult struct {
	Duplicate  bool
	Handled    bool
	HandlerErr string
}

type WebhookService interface {
	Ingest(ctx context.Context, gatewayName string, body []byte, header http.Header) (*WebhookResult, error)
}

type webhookServiceImpl struct {
	registry   client.Registry
	eventRepo  repository.WebhookEventRepository
	settlement SettlementService
}

func NewWebhookService(
	registry client.Registry,
	eventRepo repository.WebhookEventRepository,
	settlement SettlementService,
) WebhookService {
	return &webhookServiceImpl{
		registry:   registry,
		eventRepo:  eventRepo,
		settlement: settlement,
	}
}

func (s *webhookServiceImpl) Ingest(ctx context.Context, gatewayName string, body []byte, header http.Header) (*WebhookResult, error) {
	gw, err := s.registry.Get(gatewayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	ev, err := gw.ParseWebhook(body, header)
	if err != nil {
		if errors.Is(err, client.ErrBadSignature) {
			return nil, err
		}
		// Unreadable payloads get a 4xx so the gateway stops retrying
		// something that can never parse.
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := s.eventRepo.Find(ctx, gatewayName, ev.ID); err == nil {
		log.Printf("[webhook] duplicate delivery gateway=%s id=%s", gatewayName, ev.ID)
		return &WebhookResult{Duplicate: true}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check webhook dedup: %w", err)
	}

	rec := &model.WebhookEvent{
		Gateway:   gatewayName,
		WebhookID: ev.ID,
		EventType: ev.Type,
		Payload:   datatypes.JSON(ev.Raw),
	}
	if err := s.eventRepo.Create(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the insert race against a concurrent delivery of the
			// same event. The winner processes it.
			log.Printf("[webhook] delivery gateway=%s id=%s raced a concurrent duplicate", gatewayName, ev.ID)
			return &WebhookResult{Duplicate: true}, nil
		}
		// Without a durable record we must not acknowledge; the gateway
		// will retry.
		return nil, fmt.Errorf("record webhook delivery: %w", err)
	}

	handlerErr := s.dispatch(ctx, ev)
	msg := ""
	if handlerErr != nil {
		msg = handlerErr.Error()
		log.Printf("[webhook] handler error gateway=%s id=%s type=%s: %v", gatewayName, ev.ID, ev.Type, handlerErr)
	}
	if err := s.eventRepo.MarkProcessed(ctx, rec.ID, msg); err != nil {
		log.Printf("[webhook] failed to mark delivery %d processed: %v", rec.ID, err)
	}

	return &WebhookResult{Handled: handlerErr == nil, HandlerErr: msg}, nil
}

func (s *webhookServiceImpl) dispatch(ctx context.Context, ev *client.Event) error {
	if ev.Kind != client.EventUnknown && ev.OrderID == "" {
		return fmt.Errorf("event %s of kind %s carries no order id", ev.ID, ev.Kind)
	}

	switch ev.Kind {
	case client.EventPaymentSucceeded, client.EventCheckoutCompleted:
		return s.settlement.CompleteByOrderID(ctx, ev.OrderID, ev.ChargeID, ev.ReceiptURL)
	case client.EventPaymentFailed:
		return s.settlement.FailByOrderID(ctx, ev.OrderID, ev.FailureReason)
	case client.EventRefund:
		return s.settlement.RecordRefundByOrderID(ctx, ev.OrderID, ev.RefundAmount)
	default:
		log.Printf("[webhook] unhandled event type=%s id=%s, acknowledging", ev.Type, ev.ID)
		return nil
	}
}
