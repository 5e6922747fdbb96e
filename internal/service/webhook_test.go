package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"schoolfest-backend/internal/client"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"
)

// stubGateway implements client.Gateway with overridable behavior.
type stubGateway struct {
	name             string
	ParseWebhookFunc func(body []byte, header http.Header) (*client.Event, error)
	CreateIntentFunc func(ctx context.Context, req *client.IntentRequest) (*client.Intent, error)
	GetIntentFunc    func(ctx context.Context, orderID string) (*client.IntentStatus, error)
	CreateCalls      int
}

func (s *stubGateway) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubGateway) CreateIntent(ctx context.Context, req *client.IntentRequest) (*client.Intent, error) {
	s.CreateCalls++
	if s.CreateIntentFunc != nil {
		return s.CreateIntentFunc(ctx, req)
	}
	return &client.Intent{ID: "order-" + req.Reference, ClientSecret: "secret"}, nil
}

func (s *stubGateway) GetIntent(ctx context.Context, orderID string) (*client.IntentStatus, error) {
	if s.GetIntentFunc != nil {
		return s.GetIntentFunc(ctx, orderID)
	}
	return &client.IntentStatus{Status: client.IntentPending}, nil
}

func (s *stubGateway) ParseWebhook(body []byte, header http.Header) (*client.Event, error) {
	if s.ParseWebhookFunc != nil {
		return s.ParseWebhookFunc(body, header)
	}
	return nil, errors.New("no parse func")
}

func newWebhookFixture(t *testing.T, gw *stubGateway) (*settlementFixture, WebhookService) {
	t.Helper()

	fx := newSettlementFixture(t)
	registry := client.NewRegistry()
	registry.Register(gw)
	eventRepo := repository.NewWebhookEventRepository(fx.db)
	return fx, NewWebhookService(registry, eventRepo, fx.svc)
}

// TestIngestSettlesOnceUnderRedelivery is the at-least-once contract: the
// gateway may deliver the same event any number of times, the settlement
// happens exactly once.
func TestIngestSettlesOnceUnderRedelivery(t *testing.T) {
	ctx := context.Background()

	gw := &stubGateway{}
	fx, svc := newWebhookFixture(t, gw)

	batch := fx.seedBatch(t, model.BatchDraft, model.PaymentProcessing, 1)
	payment := fx.seedPayment(t, batch, model.PaymentProcessing, model.PaymentModeOnline)

	gw.ParseWebhookFunc = func(body []byte, header http.Header) (*client.Event, error) {
		return &client.Event{
			ID:      "evt_1",
			Kind:    client.EventPaymentSucceeded,
			Type:    "payment_intent.succeeded",
			OrderID: payment.GatewayOrderID,
			Raw:     []byte(`{"id":"evt_1"}`),
		}, nil
	}

	for i := 0; i < 3; i++ {
		res, err := svc.Ingest(ctx, "stub", []byte(`{}`), nil)
		if err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
		if i == 0 && !res.Handled {
			t.Errorf("first delivery: handled=false, err=%q", res.HandlerErr)
		}
		if i > 0 && !res.Duplicate {
			t.Errorf("delivery %d: duplicate=false", i+1)
		}
	}
	fx.drain()

	gotPayment, _ := fx.paymentRepo.FindByID(ctx, payment.ID)
	if gotPayment.Status != model.PaymentCompleted {
		t.Errorf("payment status: got %s, want %s", gotPayment.Status, model.PaymentCompleted)
	}
	if got := len(fx.recorder.List()); got != 1 {
		t.Errorf("outcomes: got %d, want 1", got)
	}
}

func TestIngestUnknownGateway(t *testing.T) {
	fx, svc := newWebhookFixture(t, &stubGateway{})
	defer fx.drain()

	_, err := svc.Ingest(context.Background(), "square", []byte(`{}`), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestIngestBadSignature(t *testing.T) {
	gw := &stubGateway{
		ParseWebhookFunc: func(body []byte, header http.Header) (*client.Event, error) {
			return nil, fmt.Errorf("%w: mac mismatch", client.ErrBadSignature)
		},
	}
	fx, svc := newWebhookFixture(t, gw)
	defer fx.drain()

	_, err := svc.Ingest(context.Background(), "stub", []byte(`{}`), nil)
	if !errors.Is(err, client.ErrBadSignature) {
		t.Errorf("got %v, want ErrBadSignature", err)
	}
}

func TestIngestUnparseablePayload(t *testing.T) {
	gw := &stubGateway{
		ParseWebhookFunc: func(body []byte, header http.Header) (*client.Event, error) {
			return nil, errors.New("unexpected end of JSON input")
		},
	}
	fx, svc := newWebhookFixture(t, gw)
	defer fx.drain()

	_, err := svc.Ingest(context.Background(), "stub", []byte(`{`), nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

// TestIngestAcknowledgesUnknownKind verifies event types we do not handle
// are recorded and acked, not bounced back for retry.
func TestIngestAcknowledgesUnknownKind(t *testing.T) {
	gw := &stubGateway{
		ParseWebhookFunc: func(body []byte, header http.Header) (*client.Event, error) {
			return &client.Event{
				ID:   "evt_setup",
				Kind: client.EventUnknown,
				Type: "setup_intent.created",
				Raw:  []byte(`{}`),
			}, nil
		},
	}
	fx, svc := newWebhookFixture(t, gw)

	res, err := svc.Ingest(context.Background(), "stub", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Handled {
		t.Errorf("handled: got false, err=%q", res.HandlerErr)
	}
	fx.drain()

	if got := len(fx.recorder.List()); got != 0 {
		t.Errorf("outcomes: got %d, want 0", got)
	}
}

// TestIngestRecordsHandlerError verifies a delivery whose settlement step
// fails is still acknowledged with the error stored on its record, and a
// redelivery does not run the handler again.
func TestIngestRecordsHandlerError(t *testing.T) {
	ctx := context.Background()

	gw := &stubGateway{
		ParseWebhookFunc: func(body []byte, header http.Header) (*client.Event, error) {
			return &client.Event{
				ID:      "evt_orphan",
				Kind:    client.EventPaymentSucceeded,
				Type:    "payment_intent.succeeded",
				OrderID: "order-that-does-not-exist",
				Raw:     []byte(`{}`),
			}, nil
		},
	}
	fx, svc := newWebhookFixture(t, gw)
	defer fx.drain()

	res, err := svc.Ingest(ctx, "stub", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Handled {
		t.Error("handled: got true, want false")
	}
	if res.HandlerErr == "" {
		t.Error("handler error not captured")
	}

	res, err = svc.Ingest(ctx, "stub", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !res.Duplicate {
		t.Error("redelivery: duplicate=false")
	}
}

func TestIngestRejectsEventWithoutOrderID(t *testing.T) {
	gw := &stubGateway{
		ParseWebhookFunc: func(body []byte, header http.Header) (*client.Event, error) {
			return &client.Event{
				ID:   "evt_noorder",
				Kind: client.EventPaymentSucceeded,
				Type: "payment_intent.succeeded",
				Raw:  []byte(`{}`),
			}, nil
		},
	}
	fx, svc := newWebhookFixture(t, gw)
	defer fx.drain()

	res, err := svc.Ingest(context.Background(), "stub", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Handled {
		t.Error("handled: got true, want false")
	}
	if res.HandlerErr == "" {
		t.Error("handler error not captured")
	}
}
