package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"schoolfest-backend/internal/mailer"
	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail bool
}

func (m *recordingMailer) Send(ctx context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, *msg)
	return nil
}

func (m *recordingMailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type notifyFixture struct {
	db       *gorm.DB
	mail     *recordingMailer
	notifier Notifier
}

func newNotifyFixture(t *testing.T) *notifyFixture {
	t.Helper()

	db := newTestDB(t)
	mail := &recordingMailer{}
	return &notifyFixture{
		db:   db,
		mail: mail,
		notifier: NewNotifier(
			repository.NewBatchRepository(db),
			repository.NewSchoolRepository(db),
			repository.NewPaymentRepository(db),
			mail,
		),
	}
}

// seedSettled creates a school, a settled batch belonging to it and a
// completed payment, and returns all three.
func (f *notifyFixture) seedSettled(t *testing.T, mode model.PaymentMode) (*model.School, *model.Batch, *model.Payment) {
	t.Helper()

	school := &model.School{
		ID:           model.NewID(),
		Name:         "SMA Cendekia",
		Email:        "admin@cendekia.sch.id",
		PasswordHash: "x",
	}
	if err := f.db.Create(school).Error; err != nil {
		t.Fatalf("seed school: %v", err)
	}

	batch := &model.Batch{
		ID:            model.NewID(),
		Reference:     model.NewReference("SF"),
		SchoolID:      school.ID,
		EventID:       model.NewID(),
		StudentCount:  3,
		Subtotal:      decimal.NewFromInt(150),
		TotalAmount:   decimal.NewFromInt(150),
		Currency:      "USD",
		Status:        model.BatchSubmitted,
		PaymentStatus: model.PaymentCompleted,
	}
	if err := f.db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	now := time.Now()
	payment := &model.Payment{
		ID:             model.NewID(),
		BatchID:        batch.ID,
		SchoolID:       school.ID,
		EventID:        batch.EventID,
		Amount:         batch.TotalAmount,
		Currency:       batch.Currency,
		PaymentMode:    mode,
		Gateway:        "stripe",
		GatewayOrderID: model.NewReference("PI"),
		Status:         model.PaymentCompleted,
		PaidAt:         &now,
	}
	if err := f.db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return school, batch, payment
}

// TestNotifyPaymentCompleted checks the confirmation mail for an online
// settlement, before the invoice exists and after.
func TestNotifyPaymentCompleted(t *testing.T) {
	fx := newNotifyFixture(t)
	ctx := context.Background()

	school, batch, payment := fx.seedSettled(t, model.PaymentModeOnline)

	fx.notifier.HandleOutcome(ctx, Outcome{
		Kind:      OutcomePaymentCompleted,
		BatchID:   batch.ID,
		PaymentID: payment.ID,
	})

	sent := fx.mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(sent))
	}
	if sent[0].To != school.Email {
		t.Errorf("to: got %s, want %s", sent[0].To, school.Email)
	}
	if want := "Payment confirmed for batch " + batch.Reference; sent[0].Subject != want {
		t.Errorf("subject: got %q, want %q", sent[0].Subject, want)
	}
	if !strings.Contains(sent[0].HTML, "being prepared") {
		t.Errorf("body should mention the invoice is being prepared: %q", sent[0].HTML)
	}

	// Once the invoice exists the mail links it instead.
	err := fx.db.Model(batch).Updates(map[string]any{
		"invoice_number":  "INV-2026-00001",
		"invoice_pdf_url": "https://files.example/invoices/INV-2026-00001.pdf",
	}).Error
	if err != nil {
		t.Fatalf("update batch: %v", err)
	}

	fx.notifier.HandleOutcome(ctx, Outcome{
		Kind:      OutcomePaymentCompleted,
		BatchID:   batch.ID,
		PaymentID: payment.ID,
	})

	sent = fx.mail.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent: got %d, want 2", len(sent))
	}
	if !strings.Contains(sent[1].HTML, "INV-2026-00001.pdf") {
		t.Errorf("body should link the invoice: %q", sent[1].HTML)
	}
}

func TestNotifyOfflineVerified(t *testing.T) {
	fx := newNotifyFixture(t)
	ctx := context.Background()

	_, batch, payment := fx.seedSettled(t, model.PaymentModeOffline)

	fx.notifier.HandleOutcome(ctx, Outcome{
		Kind:      OutcomePaymentCompleted,
		BatchID:   batch.ID,
		PaymentID: payment.ID,
	})

	sent := fx.mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(sent))
	}
	if want := "Offline payment verified for batch " + batch.Reference; sent[0].Subject != want {
		t.Errorf("subject: got %q, want %q", sent[0].Subject, want)
	}
	if !strings.Contains(sent[0].HTML, "bank transfer") {
		t.Errorf("body: %q", sent[0].HTML)
	}
}

func TestNotifyOtherKinds(t *testing.T) {
	fx := newNotifyFixture(t)
	ctx := context.Background()

	_, batch, payment := fx.seedSettled(t, model.PaymentModeOnline)

	tests := []struct {
		kind        OutcomeKind
		reason      string
		wantSubject string
		wantInBody  string
	}{
		{OutcomePaymentFailed, "card declined", "Payment failed for batch " + batch.Reference, "card declined"},
		{OutcomeOfflineSubmitted, "", "Offline payment received for batch " + batch.Reference, "verify"},
		{OutcomeOfflineRejected, "amount mismatch", "Offline payment rejected for batch " + batch.Reference, "amount mismatch"},
	}
	for i, tt := range tests {
		fx.notifier.HandleOutcome(ctx, Outcome{
			Kind:      tt.kind,
			BatchID:   batch.ID,
			PaymentID: payment.ID,
			Reason:    tt.reason,
		})
		sent := fx.mail.Sent()
		if len(sent) != i+1 {
			t.Fatalf("%s: sent %d, want %d", tt.kind, len(sent), i+1)
		}
		if sent[i].Subject != tt.wantSubject {
			t.Errorf("%s subject: got %q, want %q", tt.kind, sent[i].Subject, tt.wantSubject)
		}
		if !strings.Contains(sent[i].HTML, tt.wantInBody) {
			t.Errorf("%s body misses %q: %q", tt.kind, tt.wantInBody, sent[i].HTML)
		}
	}
}

// TestNotifyIsBestEffort covers the paths that must never escalate: an
// unknown batch, an unrecognised kind and a failing SMTP server all end
// with no mail and no panic.
func TestNotifyIsBestEffort(t *testing.T) {
	fx := newNotifyFixture(t)
	ctx := context.Background()

	_, batch, payment := fx.seedSettled(t, model.PaymentModeOnline)

	fx.notifier.HandleOutcome(ctx, Outcome{Kind: OutcomePaymentCompleted, BatchID: "missing"})
	fx.notifier.HandleOutcome(ctx, Outcome{Kind: OutcomeKind("unknown"), BatchID: batch.ID})
	if got := len(fx.mail.Sent()); got != 0 {
		t.Fatalf("sent: got %d, want 0", got)
	}

	fx.mail.fail = true
	fx.notifier.HandleOutcome(ctx, Outcome{
		Kind:      OutcomePaymentCompleted,
		BatchID:   batch.ID,
		PaymentID: payment.ID,
	})
	if got := len(fx.mail.Sent()); got != 0 {
		t.Errorf("sent after smtp failure: got %d, want 0", got)
	}
}
