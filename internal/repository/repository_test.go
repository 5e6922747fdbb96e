package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"schoolfest-backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// A second connection would see an empty :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.School{},
		&model.Event{},
		&model.Batch{},
		&model.Registration{},
		&model.Payment{},
		&model.WebhookEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedBatch(t *testing.T, db *gorm.DB, status model.BatchStatus, paymentStatus model.PaymentStatus) *model.Batch {
	t.Helper()

	batch := &model.Batch{
		ID:            model.NewID(),
		Reference:     model.NewReference("SF"),
		SchoolID:      model.NewID(),
		EventID:       model.NewID(),
		StudentCount:  3,
		Subtotal:      decimal.NewFromInt(150),
		TotalAmount:   decimal.NewFromInt(150),
		Currency:      "USD",
		Status:        status,
		PaymentStatus: paymentStatus,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return batch
}

func seedPayment(t *testing.T, db *gorm.DB, batchID string, status model.PaymentStatus) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		ID:             model.NewID(),
		BatchID:        batchID,
		SchoolID:       model.NewID(),
		EventID:        model.NewID(),
		Amount:         decimal.NewFromInt(150),
		Currency:       "USD",
		PaymentMode:    model.PaymentModeOnline,
		Gateway:        "stripe",
		GatewayOrderID: model.NewReference("PI"),
		Status:         status,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

// TestWebhookEventDuplicateInsert verifies the unique (gateway, webhook_id)
// index rejects a second insert of the same delivery while allowing the same
// id under another gateway.
func TestWebhookEventDuplicateInsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	first := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_1", EventType: "payment_intent.succeeded"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_1", EventType: "payment_intent.succeeded"}
	err := repo.Create(ctx, dup)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicate insert: got %v, want gorm.ErrDuplicatedKey", err)
	}

	other := &model.WebhookEvent{Gateway: "midtrans", WebhookID: "evt_1", EventType: "settlement"}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("same id under another gateway: %v", err)
	}
}

func TestWebhookEventFindAndMarkProcessed(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	if _, err := repo.Find(ctx, "stripe", "evt_missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("find missing: got %v, want gorm.ErrRecordNotFound", err)
	}

	ev := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_2", EventType: "charge.refunded"}
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.MarkProcessed(ctx, ev.ID, "order not found"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	got, err := repo.Find(ctx, "stripe", "evt_2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Processed {
		t.Error("processed: got false, want true")
	}
	if got.Error != "order not found" {
		t.Errorf("error: got %q, want %q", got.Error, "order not found")
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
}

func TestWebhookEventDeleteOlderThan(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	old := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_old"}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := db.Model(old).Update("created_at", stale).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	fresh := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_fresh"}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("insert: %v", err)
	}

	purged, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged: got %d, want 1", purged)
	}
	if _, err := repo.Find(ctx, "stripe", "evt_fresh"); err != nil {
		t.Errorf("fresh event should survive: %v", err)
	}
}

// TestPaymentMarkCompletedOnlyOnce verifies the guarded update: the first
// completion wins and a replayed completion changes nothing.
func TestPaymentMarkCompletedOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchDraft, model.PaymentProcessing)
	payment := seedPayment(t, db, batch.ID, model.PaymentProcessing)

	rows, err := repo.MarkCompleted(ctx, db, payment.ID, "ch_1", "https://pay.example/receipt", time.Now())
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if rows != 1 {
		t.Fatalf("first completion rows: got %d, want 1", rows)
	}

	rows, err = repo.MarkCompleted(ctx, db, payment.ID, "ch_1", "https://pay.example/receipt", time.Now())
	if err != nil {
		t.Fatalf("replayed completion: %v", err)
	}
	if rows != 0 {
		t.Errorf("replayed completion rows: got %d, want 0", rows)
	}

	got, err := repo.FindByID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != model.PaymentCompleted {
		t.Errorf("status: got %s, want %s", got.Status, model.PaymentCompleted)
	}
	if got.GatewayPaymentID != "ch_1" {
		t.Errorf("gateway payment id: got %q, want ch_1", got.GatewayPaymentID)
	}
	if got.PaidAt == nil {
		t.Error("paid_at not set")
	}
}

// TestPaymentMarkFailedNeverRegressesCompleted verifies a late failure
// webhook cannot knock a completed payment back to failed.
func TestPaymentMarkFailedNeverRegressesCompleted(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchSubmitted, model.PaymentCompleted)
	payment := seedPayment(t, db, batch.ID, model.PaymentCompleted)

	rows, err := repo.MarkFailed(ctx, db, payment.ID, "card declined")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if rows != 0 {
		t.Errorf("rows: got %d, want 0", rows)
	}

	got, _ := repo.FindByID(ctx, payment.ID)
	if got.Status != model.PaymentCompleted {
		t.Errorf("status: got %s, want %s", got.Status, model.PaymentCompleted)
	}
	if got.FailureReason != "" {
		t.Errorf("failure reason: got %q, want empty", got.FailureReason)
	}
}

func TestPaymentUpdateStatusGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchDraft, model.PaymentPending)
	payment := seedPayment(t, db, batch.ID, model.PaymentPending)

	rows, err := repo.UpdateStatus(ctx, db, payment.ID, []model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing)
	if err != nil {
		t.Fatalf("pending to processing: %v", err)
	}
	if rows != 1 {
		t.Fatalf("rows: got %d, want 1", rows)
	}

	// Same transition again: the payment already left pending.
	rows, err = repo.UpdateStatus(ctx, db, payment.ID, []model.PaymentStatus{model.PaymentPending}, model.PaymentProcessing)
	if err != nil {
		t.Fatalf("repeat transition: %v", err)
	}
	if rows != 0 {
		t.Errorf("repeat transition rows: got %d, want 0", rows)
	}
}

func TestPaymentRecordRefundPartialAndFull(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchSubmitted, model.PaymentCompleted)
	payment := seedPayment(t, db, batch.ID, model.PaymentCompleted)

	// Partial refund keeps the payment completed.
	if err := repo.RecordRefund(ctx, db, payment.ID, decimal.NewFromInt(50), false); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	got, _ := repo.FindByID(ctx, payment.ID)
	if got.Status != model.PaymentCompleted {
		t.Errorf("status after partial: got %s, want %s", got.Status, model.PaymentCompleted)
	}
	if !got.Refunded {
		t.Error("refunded flag: got false, want true")
	}
	if !got.RefundAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("refund amount: got %s, want 50", got.RefundAmount)
	}

	// Full refund moves it to refunded.
	if err := repo.RecordRefund(ctx, db, payment.ID, decimal.NewFromInt(150), true); err != nil {
		t.Fatalf("full refund: %v", err)
	}
	got, _ = repo.FindByID(ctx, payment.ID)
	if got.Status != model.PaymentRefunded {
		t.Errorf("status after full: got %s, want %s", got.Status, model.PaymentRefunded)
	}
	if !got.RefundAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("refund amount: got %s, want 150", got.RefundAmount)
	}
}

func TestHasCompletedForBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchDraft, model.PaymentProcessing)
	seedPayment(t, db, batch.ID, model.PaymentFailed)

	has, err := repo.HasCompletedForBatch(ctx, db, batch.ID)
	if err != nil {
		t.Fatalf("has completed: %v", err)
	}
	if has {
		t.Error("failed payment counted as completed")
	}

	seedPayment(t, db, batch.ID, model.PaymentCompleted)
	has, err = repo.HasCompletedForBatch(ctx, db, batch.ID)
	if err != nil {
		t.Fatalf("has completed: %v", err)
	}
	if !has {
		t.Error("completed payment not found")
	}
}

// TestConfirmByBatch verifies all pending registrations flip in one
// statement and already-cancelled rows are untouched.
func TestConfirmByBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewRegistrationRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchDraft, model.PaymentProcessing)
	regs := []*model.Registration{
		{ID: model.NewID(), BatchID: batch.ID, SchoolID: batch.SchoolID, EventID: batch.EventID, StudentName: "Ana", Status: model.RegistrationPending},
		{ID: model.NewID(), BatchID: batch.ID, SchoolID: batch.SchoolID, EventID: batch.EventID, StudentName: "Ben", Status: model.RegistrationPending},
		{ID: model.NewID(), BatchID: batch.ID, SchoolID: batch.SchoolID, EventID: batch.EventID, StudentName: "Cho", Status: model.RegistrationCancelled},
	}
	if err := repo.CreateMany(ctx, db, regs); err != nil {
		t.Fatalf("seed registrations: %v", err)
	}

	rows, err := repo.ConfirmByBatch(ctx, db, batch.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rows != 2 {
		t.Fatalf("confirmed rows: got %d, want 2", rows)
	}

	list, err := repo.ListByBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	confirmed, cancelled := 0, 0
	for _, reg := range list {
		switch reg.Status {
		case model.RegistrationConfirmed:
			confirmed++
		case model.RegistrationCancelled:
			cancelled++
		}
	}
	if confirmed != 2 || cancelled != 1 {
		t.Errorf("statuses: got %d confirmed %d cancelled, want 2 and 1", confirmed, cancelled)
	}
}

// TestBatchCancelGuard verifies a batch whose payment completed can never
// be cancelled, while draft and submitted batches can.
func TestBatchCancelGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewBatchRepository(db)
	ctx := context.Background()

	draft := seedBatch(t, db, model.BatchDraft, "")
	rows, err := repo.Cancel(ctx, db, draft.ID)
	if err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if rows != 1 {
		t.Errorf("cancel draft rows: got %d, want 1", rows)
	}

	settled := seedBatch(t, db, model.BatchSubmitted, model.PaymentCompleted)
	rows, err = repo.Cancel(ctx, db, settled.ID)
	if err != nil {
		t.Fatalf("cancel settled: %v", err)
	}
	if rows != 0 {
		t.Errorf("cancel settled rows: got %d, want 0", rows)
	}

	confirmed := seedBatch(t, db, model.BatchConfirmed, model.PaymentCompleted)
	rows, err = repo.Cancel(ctx, db, confirmed.ID)
	if err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}
	if rows != 0 {
		t.Errorf("cancel confirmed rows: got %d, want 0", rows)
	}
}

func TestBatchReopenOnlyFromSubmitted(t *testing.T) {
	db := newTestDB(t)
	repo := NewBatchRepository(db)
	ctx := context.Background()

	submitted := seedBatch(t, db, model.BatchSubmitted, model.PaymentPendingVerification)
	rows, err := repo.Reopen(ctx, db, submitted.ID)
	if err != nil {
		t.Fatalf("reopen submitted: %v", err)
	}
	if rows != 1 {
		t.Fatalf("reopen rows: got %d, want 1", rows)
	}
	got, _ := repo.FindByID(ctx, submitted.ID)
	if got.Status != model.BatchDraft {
		t.Errorf("status: got %s, want %s", got.Status, model.BatchDraft)
	}
	if got.PaymentStatus != model.PaymentFailed {
		t.Errorf("payment status: got %s, want %s", got.PaymentStatus, model.PaymentFailed)
	}

	confirmed := seedBatch(t, db, model.BatchConfirmed, model.PaymentCompleted)
	rows, err = repo.Reopen(ctx, db, confirmed.ID)
	if err != nil {
		t.Fatalf("reopen confirmed: %v", err)
	}
	if rows != 0 {
		t.Errorf("reopen confirmed rows: got %d, want 0", rows)
	}
}

// TestNextInvoiceSeq verifies the per-year sequence starts at 1 and
// different years count independently.
func TestNextInvoiceSeq(t *testing.T) {
	db := newTestDB(t)
	repo := NewBatchRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchSubmitted, model.PaymentCompleted)

	seq, err := repo.NextInvoiceSeq(ctx, db, 2026)
	if err != nil {
		t.Fatalf("next seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("first seq: got %d, want 1", seq)
	}

	if err := repo.SetInvoiceNumber(ctx, db, batch.ID, 2026, seq, "INV-2026-00001"); err != nil {
		t.Fatalf("set invoice number: %v", err)
	}

	seq, err = repo.NextInvoiceSeq(ctx, db, 2026)
	if err != nil {
		t.Fatalf("next seq: %v", err)
	}
	if seq != 2 {
		t.Errorf("second seq: got %d, want 2", seq)
	}

	seq, err = repo.NextInvoiceSeq(ctx, db, 2027)
	if err != nil {
		t.Fatalf("next seq other year: %v", err)
	}
	if seq != 1 {
		t.Errorf("other year seq: got %d, want 1", seq)
	}
}

func TestBatchSubmitOffline(t *testing.T) {
	db := newTestDB(t)
	repo := NewBatchRepository(db)
	ctx := context.Background()

	batch := seedBatch(t, db, model.BatchDraft, "")
	now := time.Now()
	err := repo.SubmitOffline(ctx, db, batch.ID, model.OfflineDetails{
		TransactionRef: "TRX-889",
		ReceiptURL:     "https://files.example/receipts/trx-889.jpg",
		SubmittedAt:    &now,
	})
	if err != nil {
		t.Fatalf("submit offline: %v", err)
	}

	got, _ := repo.FindByID(ctx, batch.ID)
	if got.Status != model.BatchSubmitted {
		t.Errorf("status: got %s, want %s", got.Status, model.BatchSubmitted)
	}
	if got.PaymentStatus != model.PaymentPendingVerification {
		t.Errorf("payment status: got %s, want %s", got.PaymentStatus, model.PaymentPendingVerification)
	}
	if got.PaymentMode != model.PaymentModeOffline {
		t.Errorf("payment mode: got %s, want %s", got.PaymentMode, model.PaymentModeOffline)
	}
	if got.Offline.TransactionRef != "TRX-889" {
		t.Errorf("transaction ref: got %q, want TRX-889", got.Offline.TransactionRef)
	}
	if got.Offline.SubmittedAt == nil {
		t.Error("submitted_at not set")
	}
}
