package sla

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// EscalationStore is the slice of the ticket store the engine needs.
// EscalateTicket re-verifies eligibility inside its own transaction, so two
// engines racing on the same candidate resolve to exactly one winner.
type EscalationStore interface {
	ListEscalationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	EscalateTicket(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error)
}

// Engine periodically escalates tickets approaching their SLA deadline.
type Engine struct {
	store    EscalationStore
	interval time.Duration
	window   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewEngine builds an escalation engine. interval is the pass cadence,
// window how far ahead of the deadline a ticket becomes a candidate.
func NewEngine(store EscalationStore, interval, window time.Duration, log *slog.Logger) *Engine {
	if interval <= 0 {
		interval = time.Minute
	}
	if window <= 0 {
		window = 12 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    store,
		interval: interval,
		window:   window,
		log:      log.With("component", "sla"),
		now:      time.Now,
	}
}

// Run loops until ctx is canceled. The first pass is delayed by a random
// fraction of the interval so restarted replicas do not fire in lockstep.
// Cancellation finishes the in-flight ticket, then returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(int64(e.interval)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.pass(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pass escalates every current candidate once.
func (e *Engine) pass(ctx context.Context) {
	now := e.now().UTC()
	ids, err := e.store.ListEscalationCandidates(ctx, now, e.window)
	if err != nil {
		e.log.Error("escalation candidate query failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	escalated := 0
	for _, id := range ids {
		acted, err := e.store.EscalateTicket(ctx, id, now, e.window)
		if err != nil {
			e.log.Error("escalation failed", "ticket", id, "error", err)
			continue
		}
		if acted {
			escalated++
		}
		// Shutdown finishes the ticket above, then stops the pass.
		if ctx.Err() != nil {
			break
		}
	}
	e.log.Info("escalation pass complete", "candidates", len(ids), "escalated", escalated)
}
