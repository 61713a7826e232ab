package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opsdesk/opsdesk-go/internal/helpdesk"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the landing dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			// The stats card and the open-ticket list load in parallel, the
			// way the dashboard view issues both queries on mount.
			var (
				stats helpdesk.DashboardStats
				open  []helpdesk.Ticket
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				stats, err = cc.Service.DashboardStats(ctx)
				return err
			})
			g.Go(func() error {
				var err error
				open, err = cc.Service.Tickets(ctx, helpdesk.StatusOpen)
				return err
			})

			if err := g.Wait(); err != nil {
				return err
			}

			if flagJSON {
				return printJSON(struct {
					Stats       helpdesk.DashboardStats `json:"stats"`
					OpenTickets []helpdesk.Ticket       `json:"open_tickets"`
				}{stats, open})
			}

			fmt.Printf("Open: %d  Pending approval: %d  Resolved today: %d  Avg resolution: %.1fh\n\n",
				stats.OpenTickets, stats.PendingApproval, stats.ResolvedToday, stats.AvgResolutionHours)

			rows := make([][]string, 0, len(open))
			for _, t := range open {
				rows = append(rows, []string{
					strconv.Itoa(t.ID),
					t.Title,
					t.Requester,
					formatTime(t.UpdatedAt),
				})
			}

			printTable(os.Stdout, []string{"ID", "TITLE", "REQUESTER", "UPDATED"}, rows)

			return nil
		},
	}
}
