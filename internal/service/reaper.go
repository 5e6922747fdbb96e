package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolfest-backend/internal/repository"

	"github.com/robfig/cron/v3"
)

// StartWebhookReaper purges webhook delivery records older than the
// retention window on a fixed schedule. Dedup only needs history as deep
// as the longest provider retry horizon, so old rows are just bloat.
// The schedule stops when ctx is cancelled.
func StartWebhookReaper(ctx context.Context, repo repository.WebhookEventRepository, interval, retention time.Duration) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		cutoff := time.Now().Add(-retention)
		purged, err := repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Printf("[reaper] purge webhook events: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("[reaper] purged %d webhook events recorded before %s", purged, cutoff.Format(time.RFC3339))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule webhook reaper: %w", err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}
