package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newReportCmd() *cobra.Command {
	var (
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the monthly ticket report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if year == 0 {
				year = now.Year()
			}

			if month == 0 {
				month = int(now.Month())
			}

			if month < 1 || month > 12 {
				return fmt.Errorf("invalid month %d", month)
			}

			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := cc.Service.MonthlyReport(cmd.Context(), year, month)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(rep)
			}

			p := message.NewPrinter(language.English)
			p.Printf("Report for %s %d\n", time.Month(rep.Month), rep.Year)
			p.Printf("  Created:  %d\n", rep.Created)
			p.Printf("  Resolved: %d\n", rep.Resolved)
			p.Printf("  Rejected: %d\n", rep.Rejected)

			if len(rep.ByCategory) > 0 {
				categories := make([]string, 0, len(rep.ByCategory))
				for c := range rep.ByCategory {
					categories = append(categories, c)
				}

				sort.Strings(categories)

				p.Printf("  By category:\n")

				for _, c := range categories {
					p.Printf("    %-16s %d\n", c, rep.ByCategory[c])
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "report year (defaults to current)")
	cmd.Flags().IntVar(&month, "month", 0, "report month 1-12 (defaults to current)")

	return cmd
}
