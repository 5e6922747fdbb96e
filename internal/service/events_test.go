package service

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestDispatcherDeliversToAllSubscribers(t *testing.T) {
	d := NewDispatcher()

	var first, second atomic.Int64
	d.Subscribe(func(ctx context.Context, outcome Outcome) { first.Add(1) })
	d.Subscribe(func(ctx context.Context, outcome Outcome) { second.Add(1) })
	d.Start(2)

	for i := 0; i < 5; i++ {
		d.Publish(Outcome{Kind: OutcomePaymentCompleted, PaymentID: "p"})
	}
	d.Stop()

	if got := first.Load(); got != 5 {
		t.Errorf("first handler: got %d, want 5", got)
	}
	if got := second.Load(); got != 5 {
		t.Errorf("second handler: got %d, want 5", got)
	}
}

// TestDispatcherDropsUnderBackpressure verifies Publish never blocks:
// once the buffer is full, extra outcomes are dropped.
func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	d := NewDispatcher()

	var delivered atomic.Int64
	d.Subscribe(func(ctx context.Context, outcome Outcome) { delivered.Add(1) })

	// No workers running yet, so everything queues until the buffer caps.
	for i := 0; i < 300; i++ {
		d.Publish(Outcome{Kind: OutcomePaymentCompleted})
	}

	d.Start(1)
	d.Stop()

	if got := delivered.Load(); got != 256 {
		t.Errorf("delivered: got %d, want 256", got)
	}
}
