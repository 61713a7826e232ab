package helpdesk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdesk/opsdesk-go/internal/querycache"
)

// Mutation→prefix mappings are declared here, one per mutation type, never
// inferred. Invalidation happens strictly after the backend confirms the
// mutation — never speculatively before.

// ApproveTicket moves a ticket to approved. Affects every ticket list, the
// ticket's detail entry, and the dashboard aggregates.
func (s *Service) ApproveTicket(ctx context.Context, id int) (Ticket, error) {
	var out Ticket
	if err := s.api.PostJSON(ctx, fmt.Sprintf("/tickets/%d/approve/", id), nil, &out); err != nil {
		return Ticket{}, err
	}

	if err := s.cache.OnMutationSuccess(querycache.Mutation{
		Operation: "approve-ticket",
		Invalidates: []querycache.Key{
			ticketListPrefix(),
			ticketDetailKey(id),
			dashboardStatsKey(),
		},
	}); err != nil {
		return Ticket{}, err
	}

	s.logger.Info("ticket approved", slog.Int("id", id))

	return out, nil
}

// RejectTicket moves a ticket to rejected, with an optional reason.
// Invalidation mirrors ApproveTicket.
func (s *Service) RejectTicket(ctx context.Context, id int, reason string) (Ticket, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}

	var out Ticket
	if err := s.api.PostJSON(ctx, fmt.Sprintf("/tickets/%d/reject/", id), body, &out); err != nil {
		return Ticket{}, err
	}

	if err := s.cache.OnMutationSuccess(querycache.Mutation{
		Operation: "reject-ticket",
		Invalidates: []querycache.Key{
			ticketListPrefix(),
			ticketDetailKey(id),
			dashboardStatsKey(),
		},
	}); err != nil {
		return Ticket{}, err
	}

	s.logger.Info("ticket rejected", slog.Int("id", id))

	return out, nil
}

// CreateTicket files a new ticket.
func (s *Service) CreateTicket(ctx context.Context, nt NewTicket) (Ticket, error) {
	var out Ticket
	if err := s.api.PostJSON(ctx, "/tickets/", nt, &out); err != nil {
		return Ticket{}, err
	}

	if err := s.cache.OnMutationSuccess(querycache.Mutation{
		Operation: "create-ticket",
		Invalidates: []querycache.Key{
			ticketListPrefix(),
			dashboardStatsKey(),
		},
	}); err != nil {
		return Ticket{}, err
	}

	s.logger.Info("ticket created", slog.Int("id", out.ID))

	return out, nil
}

// AddComment appends to a ticket's discussion. Only that ticket's comments
// entry is affected — the ticket lists and dashboard do not change when a
// comment lands.
func (s *Service) AddComment(ctx context.Context, ticketID int, body string) (Comment, error) {
	var out Comment
	if err := s.api.PostJSON(ctx, fmt.Sprintf("/tickets/%d/comments/", ticketID), map[string]string{"body": body}, &out); err != nil {
		return Comment{}, err
	}

	if err := s.cache.OnMutationSuccess(querycache.Mutation{
		Operation: "add-comment",
		Invalidates: []querycache.Key{
			ticketCommentsKey(ticketID),
		},
	}); err != nil {
		return Comment{}, err
	}

	s.logger.Info("comment added", slog.Int("ticket_id", ticketID))

	return out, nil
}
