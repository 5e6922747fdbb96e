package service

import (
	"context"
	"log"
	"sync"
)

type OutcomeKind string

const (
	OutcomePaymentCompleted OutcomeKind = "payment_completed"
	OutcomePaymentFailed    OutcomeKind = "payment_failed"
	OutcomeOfflineSubmitted OutcomeKind = "offline_submitted"
	OutcomeOfflineRejected  OutcomeKind = "offline_rejected"
)

// Outcome is published after a settlement transition commits. Handlers
// run outside the transaction, so nothing they do can undo the
// transition.
type Outcome struct {
	Kind      OutcomeKind
	BatchID   string
	PaymentID string
	Reason    string
}

type OutcomeHandler func(ctx context.Context, outcome Outcome)

// Dispatcher fans settlement outcomes out to side-effect handlers
// (notifications, invoice generation) on background workers.
type Dispatcher struct {
	ch       chan Outcome
	handlers []OutcomeHandler
	wg       sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{ch: make(chan Outcome, 256)}
}

// Subscribe registers a handler. Must be called before Start.
func (d *Dispatcher) Subscribe(h OutcomeHandler) {
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for outcome := range d.ch {
				// Request contexts are gone once we get here, handlers
				// run on their own.
				ctx := context.Background()
				for _, h := range d.handlers {
					h(ctx, outcome)
				}
			}
		}()
	}
}

// Publish never blocks a settlement transaction. Side effects are
// best-effort, so under backpressure the outcome is dropped and logged
// rather than stalling the caller.
func (d *Dispatcher) Publish(outcome Outcome) {
	select {
	case d.ch <- outcome:
	default:
		log.Printf("[events] outbox full, dropping outcome kind=%s payment=%s", outcome.Kind, outcome.PaymentID)
	}
}

// Stop drains queued outcomes and waits for workers. Call only after the
// HTTP server has stopped accepting requests.
func (d *Dispatcher) Stop() {
	close(d.ch)
	d.wg.Wait()
}
