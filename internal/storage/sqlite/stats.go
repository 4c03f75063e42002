package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/qoldau/qoldau/internal/storage"
)

// TicketStats returns the one-shot aggregate snapshot behind the metrics
// endpoint. lowConfidenceBelow is the clarification threshold.
func (s *Store) TicketStats(ctx context.Context, lowConfidenceBelow float64) (*storage.TicketStats, error) {
	var st storage.TicketStats
	var meanConfidence *float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status IN ('closed', 'auto_resolved') THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN auto_resolved = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status NOT IN ('closed', 'auto_resolved') THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN needs_clarification = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN ai_confidence < ? THEN 1 ELSE 0 END), 0),
		       AVG(ai_confidence)
		FROM tickets`, lowConfidenceBelow).
		Scan(&st.Total, &st.Closed, &st.AutoClosed, &st.Open,
			&st.NeedsClarification, &st.LowConfidence, &meanConfidence)
	if err != nil {
		return nil, wrapDBError("ticket stats", err)
	}
	if meanConfidence != nil {
		st.MeanConfidence = *meanConfidence
	}
	return &st, nil
}

// CountTicketsByCategory groups tickets by category name.
func (s *Store) CountTicketsByCategory(ctx context.Context) ([]storage.KeyCount, error) {
	return s.keyCounts(ctx, `
		SELECT COALESCE(c.name, 'uncategorized'), COUNT(*)
		FROM tickets t LEFT JOIN categories c ON c.id = t.category_id
		GROUP BY COALESCE(c.name, 'uncategorized')
		ORDER BY COUNT(*) DESC`)
}

// CountTicketsByDepartment groups tickets by routed department (queue).
func (s *Store) CountTicketsByDepartment(ctx context.Context) ([]storage.KeyCount, error) {
	return s.keyCounts(ctx, `
		SELECT COALESCE(d.name, 'unrouted'), COUNT(*)
		FROM tickets t LEFT JOIN departments d ON d.id = t.assigned_department_id
		GROUP BY COALESCE(d.name, 'unrouted')
		ORDER BY COUNT(*) DESC`)
}

// CountTicketsByIssueType groups tickets by predicted issue type.
func (s *Store) CountTicketsByIssueType(ctx context.Context) ([]storage.KeyCount, error) {
	return s.keyCounts(ctx, `
		SELECT CASE WHEN issue_type = '' THEN 'unknown' ELSE issue_type END, COUNT(*)
		FROM tickets
		GROUP BY 1 ORDER BY COUNT(*) DESC`)
}

// CountTicketsInDepartment counts tickets currently routed to one queue.
func (s *Store) CountTicketsInDepartment(ctx context.Context, department string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tickets t
		JOIN departments d ON d.id = t.assigned_department_id
		WHERE d.name = ?`, department).Scan(&count)
	if err != nil {
		return 0, wrapDBError("count department tickets", err)
	}
	return count, nil
}

// MeanResolutionHoursByCategory averages closed-minus-created per category.
// The duration math runs in Go because timestamps are stored as strings.
func (s *Store) MeanResolutionHoursByCategory(ctx context.Context) ([]storage.CategoryHours, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(c.name, 'uncategorized'), t.created_at, t.closed_at
		FROM tickets t LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.closed_at IS NOT NULL`)
	if err != nil {
		return nil, wrapDBError("resolution hours", err)
	}
	defer rows.Close()

	sums := map[string]float64{}
	counts := map[string]int{}
	var order []string
	for rows.Next() {
		var category, createdStr, closedStr string
		if err := rows.Scan(&category, &createdStr, &closedStr); err != nil {
			return nil, wrapDBError("scan resolution row", err)
		}
		created, err := parseTime(createdStr)
		if err != nil {
			return nil, err
		}
		closed, err := parseTime(closedStr)
		if err != nil {
			return nil, err
		}
		if _, seen := sums[category]; !seen {
			order = append(order, category)
		}
		sums[category] += closed.Sub(created).Hours()
		counts[category]++
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("resolution rows", err)
	}

	out := make([]storage.CategoryHours, 0, len(order))
	for _, category := range order {
		out = append(out, storage.CategoryHours{
			Category: category,
			Hours:    sums[category] / float64(counts[category]),
		})
	}
	return out, nil
}

// DailyTrend returns opened/closed counts per day for the trailing window,
// oldest day first. Days without activity appear with zero counts.
func (s *Store) DailyTrend(ctx context.Context, days int, now time.Time) ([]storage.DayCount, error) {
	if days <= 0 {
		days = 7
	}
	start := now.UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	opened := map[string]int{}
	closed := map[string]int{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10), COUNT(*) FROM tickets
		WHERE created_at >= ? GROUP BY 1`, fmtTime(start))
	if err != nil {
		return nil, wrapDBError("daily trend opened", err)
	}
	if err := collectDayCounts(rows, opened); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT substr(closed_at, 1, 10), COUNT(*) FROM tickets
		WHERE closed_at IS NOT NULL AND closed_at >= ? GROUP BY 1`, fmtTime(start))
	if err != nil {
		return nil, wrapDBError("daily trend closed", err)
	}
	if err := collectDayCounts(rows, closed); err != nil {
		return nil, err
	}

	out := make([]storage.DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, storage.DayCount{Date: day, Opened: opened[day], Closed: closed[day]})
	}
	return out, nil
}

func collectDayCounts(rows *sql.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return wrapDBError("scan day count", err)
		}
		into[day] = count
	}
	return rows.Err()
}

func (s *Store) keyCounts(ctx context.Context, query string, args ...any) ([]storage.KeyCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("group count", err)
	}
	defer rows.Close()

	var out []storage.KeyCount
	for rows.Next() {
		var kc storage.KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, wrapDBError("scan group count", err)
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}
