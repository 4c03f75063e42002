package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qoldau/qoldau/internal/types"
)

func TestDeadlineByPriority(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, created.Add(1*time.Hour), Deadline(types.PriorityCritical, created))
	assert.Equal(t, created.Add(4*time.Hour), Deadline(types.PriorityHigh, created))
	assert.Equal(t, created.Add(24*time.Hour), Deadline(types.PriorityMedium, created))
	assert.Equal(t, created.Add(72*time.Hour), Deadline(types.PriorityLow, created))
	// Unset priority falls back to medium.
	assert.Equal(t, created.Add(24*time.Hour), Deadline("", created))
}

func TestBucket(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		dl := now.Add(d)
		return &dl
	}

	tests := []struct {
		name   string
		ticket types.Ticket
		want   string
	}{
		{"closed is met", types.Ticket{Status: types.StatusClosed, SLADeadline: at(-time.Hour)}, BucketMet},
		{"auto_resolved is met", types.Ticket{Status: types.StatusAutoResolved, SLADeadline: at(-time.Hour)}, BucketMet},
		{"no deadline is ok", types.Ticket{Status: types.StatusNew}, BucketOK},
		{"past deadline is overdue", types.Ticket{Status: types.StatusNew, SLADeadline: at(-time.Second)}, BucketOverdue},
		{"one second left is warning", types.Ticket{Status: types.StatusInWork, SLADeadline: at(time.Second)}, BucketWarning},
		{"exactly one hour left is warning", types.Ticket{Status: types.StatusNew, SLADeadline: at(time.Hour)}, BucketWarning},
		{"just over one hour is ok", types.Ticket{Status: types.StatusNew, SLADeadline: at(time.Hour + time.Second)}, BucketOK},
		{"exactly zero remaining is ok", types.Ticket{Status: types.StatusNew, SLADeadline: &now}, BucketOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bucket(&tt.ticket, now))
		})
	}
}

// fakeEscalationStore records escalation calls for engine tests.
type fakeEscalationStore struct {
	candidates []string
	acted      map[string]bool
	calls      int
}

func (f *fakeEscalationStore) ListEscalationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	return f.candidates, nil
}

func (f *fakeEscalationStore) EscalateTicket(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error) {
	f.calls++
	if f.acted[id] {
		return false, nil
	}
	f.acted[id] = true
	return true, nil
}

func TestEnginePassEscalatesOnce(t *testing.T) {
	store := &fakeEscalationStore{
		candidates: []string{"t1", "t2"},
		acted:      map[string]bool{},
	}
	e := NewEngine(store, time.Minute, 12*time.Hour, nil)

	e.pass(context.Background())
	require.Equal(t, 2, store.calls)
	assert.True(t, store.acted["t1"])
	assert.True(t, store.acted["t2"])

	// A second pass re-verifies and acts on nothing.
	e.pass(context.Background())
	assert.Equal(t, 4, store.calls)
}
