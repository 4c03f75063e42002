package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/qoldau/qoldau/internal/metrics"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var statsSince string

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "", `count tickets created since a date or phrase ("last week")`)
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print an operational metrics snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := sqlite.Open(ctx, cfg.DB.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := metrics.New(store, cfg.Metrics.ResponseTimeSeconds).Snapshot(ctx)
		if err != nil {
			return err
		}

		var sinceCount = -1
		if statsSince != "" {
			since, err := parseSince(statsSince)
			if err != nil {
				return err
			}
			recent, err := store.ListTickets(ctx, types.TicketFilter{DateFrom: &since, Limit: 10000})
			if err != nil {
				return err
			}
			sinceCount = len(recent)
		}

		pretty := term.IsTerminal(int(os.Stdout.Fd()))
		renderStats(snap, sinceCount, pretty)
		return nil
	},
}

// parseSince accepts RFC3339, YYYY-MM-DD, or natural language ("last week").
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("cannot parse --since %q", s)
	}
	return r.Time, nil
}

func renderStats(snap *metrics.Snapshot, sinceCount int, pretty bool) {
	style := func(st lipgloss.Style, s string) string {
		if pretty {
			return st.Render(s)
		}
		return s
	}

	fmt.Println(style(titleStyle, "Ticket overview"))
	row := func(label string, value string) {
		fmt.Printf("  %s %s\n", style(labelStyle, fmt.Sprintf("%-22s", label)), style(valueStyle, value))
	}
	row("total", fmt.Sprint(snap.Total))
	row("open", fmt.Sprint(snap.Open))
	row("closed", fmt.Sprint(snap.Closed))
	row("auto-closed", fmt.Sprint(snap.AutoClosed))
	if sinceCount >= 0 {
		row("created since", fmt.Sprint(sinceCount))
	}

	fmt.Println(style(titleStyle, "Quality"))
	row("mean confidence", fmt.Sprintf("%.2f", snap.MeanConfidence))
	row("auto-resolution rate", fmt.Sprintf("%.0f%%", snap.AutoResolutionRate*100))
	row("clarification rate", fmt.Sprintf("%.0f%%", snap.NeedsClarificationRate*100))
	errRate := fmt.Sprintf("%.0f%%", snap.RoutingErrorRate*100)
	if snap.RoutingErrorRate > 0.2 {
		errRate = style(warnStyle, errRate)
	}
	row("routing-error rate", errRate)
	row("CSAT", fmt.Sprintf("%.1f", snap.CSAT))

	if len(snap.ByDepartment) > 0 {
		fmt.Println(style(titleStyle, "By queue"))
		for _, kc := range snap.ByDepartment {
			row(kc.Key, fmt.Sprint(kc.Count))
		}
	}
	if len(snap.DailyTrend) > 0 {
		fmt.Println(style(titleStyle, "Last 7 days"))
		for _, d := range snap.DailyTrend {
			fmt.Printf("  %s  opened %-4d closed %d\n", d.Date, d.Opened, d.Closed)
		}
	}
}
