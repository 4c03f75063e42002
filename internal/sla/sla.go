// Package sla computes service-level deadlines for tickets and runs the
// escalation loop that promotes tickets whose deadline is approaching.
package sla

import (
	"time"

	"github.com/qoldau/qoldau/internal/types"
)

// Per-priority time to resolution, measured from ticket creation.
const (
	criticalSLA = 1 * time.Hour
	highSLA     = 4 * time.Hour
	mediumSLA   = 24 * time.Hour
	lowSLA      = 72 * time.Hour
)

// warningWindow is how close to the deadline a ticket counts as "warning".
const warningWindow = time.Hour

// Bucket labels for Bucket.
const (
	BucketMet     = "met"
	BucketOverdue = "overdue"
	BucketWarning = "warning"
	BucketOK      = "ok"
)

// Window returns the SLA duration for a priority. Unset or unknown
// priorities get the medium window.
func Window(p types.Priority) time.Duration {
	switch p {
	case types.PriorityCritical:
		return criticalSLA
	case types.PriorityHigh:
		return highSLA
	case types.PriorityLow:
		return lowSLA
	default:
		return mediumSLA
	}
}

// Deadline computes the SLA deadline for a priority. It is always anchored
// at the original creation instant, including after priority changes.
func Deadline(p types.Priority, createdAt time.Time) time.Time {
	return createdAt.Add(Window(p))
}

// Bucket classifies a ticket's SLA state at the given instant.
// Closed tickets met their SLA by definition; a remaining time of exactly
// zero is neither warning (window is half-open) nor overdue.
func Bucket(t *types.Ticket, now time.Time) string {
	if t.Status.IsTerminal() {
		return BucketMet
	}
	if t.SLADeadline == nil {
		return BucketOK
	}
	remaining := t.SLADeadline.Sub(now)
	switch {
	case remaining < 0:
		return BucketOverdue
	case remaining > 0 && remaining <= warningWindow:
		return BucketWarning
	default:
		return BucketOK
	}
}
