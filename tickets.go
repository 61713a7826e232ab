package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk-go/internal/helpdesk"
)

func newTicketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List and manage support tickets",
	}

	cmd.AddCommand(newTicketsListCmd())
	cmd.AddCommand(newTicketsShowCmd())
	cmd.AddCommand(newTicketsCreateCmd())
	cmd.AddCommand(newTicketsApproveCmd())
	cmd.AddCommand(newTicketsRejectCmd())
	cmd.AddCommand(newTicketsCommentCmd())

	return cmd
}

func newTicketsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			tickets, err := cc.Service.Tickets(cmd.Context(), status)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(tickets)
			}

			rows := make([][]string, 0, len(tickets))
			for _, t := range tickets {
				rows = append(rows, []string{
					strconv.Itoa(t.ID),
					t.Status,
					t.Title,
					t.Requester,
					formatTime(t.UpdatedAt),
				})
			}

			printTable(os.Stdout, []string{"ID", "STATUS", "TITLE", "REQUESTER", "UPDATED"}, rows)

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, approved, rejected, closed)")

	return cmd
}

func newTicketsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ticket and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}

			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			ticket, err := cc.Service.Ticket(cmd.Context(), id)
			if err != nil {
				return err
			}

			comments, err := cc.Service.Comments(cmd.Context(), id)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(struct {
					Ticket   helpdesk.Ticket    `json:"ticket"`
					Comments []helpdesk.Comment `json:"comments"`
				}{ticket, comments})
			}

			fmt.Printf("#%d %s [%s]\n", ticket.ID, ticket.Title, ticket.Status)
			fmt.Printf("Requester: %s", ticket.Requester)

			if ticket.Assignee != "" {
				fmt.Printf("  Assignee: %s", ticket.Assignee)
			}

			fmt.Printf("\nCreated: %s  Updated: %s\n", formatTime(ticket.CreatedAt), formatTime(ticket.UpdatedAt))

			if ticket.Description != "" {
				fmt.Printf("\n%s\n", ticket.Description)
			}

			if len(comments) > 0 {
				fmt.Printf("\nComments (%d):\n", len(comments))

				for _, c := range comments {
					fmt.Printf("  %s  %s\n    %s\n", formatTime(c.CreatedAt), c.Author, c.Body)
				}
			}

			return nil
		},
	}
}

func newTicketsCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "File a new ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			ticket, err := cc.Service.CreateTicket(cmd.Context(), helpdesk.NewTicket{
				Title:       args[0],
				Description: description,
			})
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(ticket)
			}

			statusf(cc.Quiet, "Created ticket #%d.", ticket.ID)
			fmt.Println(ticket.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "ticket description")

	return cmd
}

func newTicketsApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}

			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			ticket, err := cc.Service.ApproveTicket(cmd.Context(), id)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(ticket)
			}

			statusf(cc.Quiet, "Ticket #%d approved.", ticket.ID)

			return nil
		},
	}
}

func newTicketsRejectCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}

			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			ticket, err := cc.Service.RejectTicket(cmd.Context(), id, reason)
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(ticket)
			}

			statusf(cc.Quiet, "Ticket #%d rejected.", ticket.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")

	return cmd
}

func newTicketsCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <body>",
		Short: "Add a comment to a ticket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTicketID(args[0])
			if err != nil {
				return err
			}

			cc, cleanup, err := newCLIContext()
			if err != nil {
				return err
			}
			defer cleanup()

			comment, err := cc.Service.AddComment(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(comment)
			}

			statusf(cc.Quiet, "Comment added to ticket #%d.", id)

			return nil
		},
	}
}

func parseTicketID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ticket ID %q", arg)
	}

	return id, nil
}
