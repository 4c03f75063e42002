package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

var (
	ticketsStatus string
	ticketsSince  string
	ticketsLimit  int
)

var bucketStyles = map[string]lipgloss.Style{
	sla.BucketOverdue: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	sla.BucketWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	sla.BucketMet:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	sla.BucketOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List tickets for operators",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := sqlite.Open(ctx, cfg.DB.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := types.TicketFilter{Limit: ticketsLimit}
		if ticketsStatus != "" {
			st := types.Status(ticketsStatus)
			if !st.IsValid() {
				return fmt.Errorf("unknown status %q", ticketsStatus)
			}
			filter.Status = &st
		}
		if ticketsSince != "" {
			since, err := parseSince(ticketsSince)
			if err != nil {
				return err
			}
			filter.DateFrom = &since
		}

		tickets, err := store.ListTickets(ctx, filter)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			fmt.Println("no tickets")
			return nil
		}

		pretty := term.IsTerminal(int(os.Stdout.Fd()))
		now := time.Now().UTC()
		for _, t := range tickets {
			bucket := sla.Bucket(t, now)
			tag := bucket
			if pretty {
				tag = bucketStyles[bucket].Render(bucket)
			}
			subject := t.Subject
			if subject == "" {
				subject = types.ShortID(t.Body) + "…"
			}
			fmt.Printf("%s  %-13s %-8s %-8s %s\n",
				types.ShortID(t.ID), t.Status, t.Priority, tag, subject)
		}
		return nil
	},
}

func init() {
	ticketsCmd.Flags().StringVar(&ticketsStatus, "status", "", "filter by status")
	ticketsCmd.Flags().StringVar(&ticketsSince, "since", "", "filter by creation date or phrase")
	ticketsCmd.Flags().IntVar(&ticketsLimit, "limit", 50, "maximum rows")
	rootCmd.AddCommand(ticketsCmd)
}
