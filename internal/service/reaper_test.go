package service

import (
	"context"
	"testing"
	"time"

	"schoolfest-backend/internal/model"
	"schoolfest-backend/internal/repository"
)

// TestWebhookReaperPurgesOldDeliveries runs the reaper on the shortest
// schedule cron allows and waits for it to drop a delivery recorded
// before the retention window while keeping a fresh one.
func TestWebhookReaperPurgesOldDeliveries(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewWebhookEventRepository(db)
	ctx := context.Background()

	stale := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_stale", EventType: "payment_intent.succeeded"}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	err := db.Model(&model.WebhookEvent{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh := &model.WebhookEvent{Gateway: "stripe", WebhookID: "evt_fresh", EventType: "payment_intent.succeeded"}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	reaperCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Sub-second intervals are rounded up to a second, so the first purge
	// lands roughly one second in.
	if err := StartWebhookReaper(reaperCtx, repo, time.Second, 24*time.Hour); err != nil {
		t.Fatalf("start reaper: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var count int64
		if err := db.Model(&model.WebhookEvent{}).Count(&count).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reaper never purged, still %d rows", count)
		}
		time.Sleep(20 * time.Millisecond)
	}

	var survivor model.WebhookEvent
	if err := db.First(&survivor, "webhook_id = ?", "evt_fresh").Error; err != nil {
		t.Fatalf("fresh delivery should survive: %v", err)
	}
}
