// Package metrics assembles the read-only operational snapshot served at
// /metrics.
package metrics

import (
	"context"
	"math"
	"time"

	"github.com/qoldau/qoldau/internal/storage"
)

// lowConfidenceThreshold marks a stored prediction as a probable routing
// error. Matches the routing clarify gate.
const lowConfidenceThreshold = 0.70

// trendDays is the span of the daily opened/closed trend.
const trendDays = 7

// Snapshot is the full metrics payload.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`

	Total      int `json:"total_tickets"`
	Closed     int `json:"closed_tickets"`
	AutoClosed int `json:"auto_closed_tickets"`
	Open       int `json:"open_tickets"`

	ByCategory   []storage.KeyCount `json:"by_category"`
	ByDepartment []storage.KeyCount `json:"by_department"`
	ByIssueType  []storage.KeyCount `json:"by_issue_type"`

	MeanConfidence         float64 `json:"mean_confidence"`
	AutoResolutionRate     float64 `json:"auto_resolution_rate"`
	NeedsClarificationRate float64 `json:"needs_clarification_rate"`
	RoutingErrorRate       float64 `json:"routing_error_rate"`
	CSAT                   float64 `json:"csat"`

	ResolutionHoursByCategory []storage.CategoryHours `json:"resolution_hours_by_category"`
	DailyTrend                []storage.DayCount      `json:"daily_trend"`
}

// Aggregator computes snapshots over the ticket store.
type Aggregator struct {
	store           storage.Store
	avgResponseSecs float64
	now             func() time.Time
}

// New builds an aggregator. avgResponseSecs is the measured-elsewhere mean
// first-response time used in the CSAT estimate.
func New(store storage.Store, avgResponseSecs float64) *Aggregator {
	if avgResponseSecs <= 0 {
		avgResponseSecs = 0.8
	}
	return &Aggregator{store: store, avgResponseSecs: avgResponseSecs, now: time.Now}
}

// Snapshot gathers every metric in one pass.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := a.now().UTC()

	stats, err := a.store.TicketStats(ctx, lowConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	byCategory, err := a.store.CountTicketsByCategory(ctx)
	if err != nil {
		return nil, err
	}
	byDepartment, err := a.store.CountTicketsByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	byIssueType, err := a.store.CountTicketsByIssueType(ctx)
	if err != nil {
		return nil, err
	}
	manualReview, err := a.store.CountTicketsInDepartment(ctx, "ManualReview")
	if err != nil {
		return nil, err
	}
	hours, err := a.store.MeanResolutionHoursByCategory(ctx)
	if err != nil {
		return nil, err
	}
	trend, err := a.store.DailyTrend(ctx, trendDays, now)
	if err != nil {
		return nil, err
	}

	// Low-confidence tickets route to manual review, so the two routing
	// error signals overlap almost entirely; the larger one is the estimate.
	routingErrors := manualReview
	if stats.LowConfidence > routingErrors {
		routingErrors = stats.LowConfidence
	}

	autoRate := rate(stats.AutoClosed, stats.Total)
	return &Snapshot{
		GeneratedAt:               now,
		Total:                     stats.Total,
		Closed:                    stats.Closed,
		AutoClosed:                stats.AutoClosed,
		Open:                      stats.Open,
		ByCategory:                byCategory,
		ByDepartment:              byDepartment,
		ByIssueType:               byIssueType,
		MeanConfidence:            round2(stats.MeanConfidence),
		AutoResolutionRate:        round2(autoRate),
		NeedsClarificationRate:    round2(rate(stats.NeedsClarification, stats.Total)),
		RoutingErrorRate:          round2(rate(routingErrors, stats.Total)),
		CSAT:                      csat(autoRate, a.avgResponseSecs),
		ResolutionHoursByCategory: hours,
		DailyTrend:                trend,
	}, nil
}

// csat estimates satisfaction on a 0-100 scale from the auto-resolution
// rate and the mean first-response time, rounded to one decimal.
func csat(autoRate, avgResponseSecs float64) float64 {
	speed := 1 - avgResponseSecs/60
	if speed < 0 {
		speed = 0
	}
	if speed > 1 {
		speed = 1
	}
	score := 70 + 20*autoRate + 10*speed
	if score > 100 {
		score = 100
	}
	return math.Round(score*10) / 10
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
