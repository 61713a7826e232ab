package helpdesk

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/opsdesk/opsdesk-go/internal/api"
	"github.com/opsdesk/opsdesk-go/internal/config"
	"github.com/opsdesk/opsdesk-go/internal/querycache"
)

// Service wires the request pipeline and the query cache into typed
// operations. One Service is constructed per process and injected into the
// CLI commands.
type Service struct {
	api    *api.Client
	cache  *querycache.Store
	policy config.CacheConfig
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(client *api.Client, cache *querycache.Store, policy config.CacheConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		api:    client,
		cache:  cache,
		policy: policy,
		logger: logger,
	}
}

// Cache exposes the underlying store for subscription management.
func (s *Service) Cache() *querycache.Store {
	return s.cache
}

// fetchOpts converts a config policy row into per-call cache options.
func fetchOpts(p config.Policy) querycache.FetchOptions {
	return querycache.FetchOptions{
		StaleTime: p.StaleTime.Std(),
		GCTime:    p.GCTime.Std(),
	}
}

// Tickets returns the ticket list, optionally filtered by status.
func (s *Service) Tickets(ctx context.Context, status string) ([]Ticket, error) {
	v, err := s.cache.GetOrFetch(ctx, ticketListKey(status), func(ctx context.Context) (any, error) {
		path := "/tickets/"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var out []Ticket
		if err := s.api.GetJSON(ctx, path, &out); err != nil {
			return nil, err
		}

		return out, nil
	}, fetchOpts(s.policy.Tickets))
	if err != nil {
		return nil, err
	}

	return v.([]Ticket), nil
}

// Ticket returns one ticket by ID.
func (s *Service) Ticket(ctx context.Context, id int) (Ticket, error) {
	v, err := s.cache.GetOrFetch(ctx, ticketDetailKey(id), func(ctx context.Context) (any, error) {
		var out Ticket
		if err := s.api.GetJSON(ctx, fmt.Sprintf("/tickets/%d/", id), &out); err != nil {
			return nil, err
		}

		return out, nil
	}, fetchOpts(s.policy.Tickets))
	if err != nil {
		return Ticket{}, err
	}

	return v.(Ticket), nil
}

// Comments returns the discussion thread for a ticket.
func (s *Service) Comments(ctx context.Context, ticketID int) ([]Comment, error) {
	v, err := s.cache.GetOrFetch(ctx, ticketCommentsKey(ticketID), func(ctx context.Context) (any, error) {
		var out []Comment
		if err := s.api.GetJSON(ctx, fmt.Sprintf("/tickets/%d/comments/", ticketID), &out); err != nil {
			return nil, err
		}

		return out, nil
	}, fetchOpts(s.policy.Tickets))
	if err != nil {
		return nil, err
	}

	return v.([]Comment), nil
}

// Users returns the account list. Reference data: long stale time, rarely
// invalidated.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	v, err := s.cache.GetOrFetch(ctx, usersKey(), func(ctx context.Context) (any, error) {
		var out []User
		if err := s.api.GetJSON(ctx, "/users/", &out); err != nil {
			return nil, err
		}

		return out, nil
	}, fetchOpts(s.policy.Users))
	if err != nil {
		return nil, err
	}

	return v.([]User), nil
}

// DashboardStats returns the aggregate dashboard numbers.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	v, err := s.cache.GetOrFetch(ctx, dashboardStatsKey(), func(ctx context.Context) (any, error) {
		var out DashboardStats
		if err := s.api.GetJSON(ctx, "/dashboard/stats/", &out); err != nil {
			return nil, err
		}

		return out, nil
	}, fetchOpts(s.policy.Dashboard))
	if err != nil {
		return DashboardStats{}, err
	}

	return v.(DashboardStats), nil
}

// MonthlyReport returns the aggregate report for one month. The report view
// revalidates on every mount regardless of staleness (but never on mere
// refocus), so the cached value is served immediately while a refetch runs.
func (s *Service) MonthlyReport(ctx context.Context, year, month int) (MonthlyReport, error) {
	opts := fetchOpts(s.policy.Reports)
	opts.Revalidate = true

	v, err := s.cache.GetOrFetch(ctx, monthlyReportKey(year, month), func(ctx context.Context) (any, error) {
		path := fmt.Sprintf("/reports/monthly/?year=%d&month=%d", year, month)

		var out MonthlyReport
		if err := s.api.GetJSON(ctx, path, &out); err != nil {
			return nil, err
		}

		return out, nil
	}, opts)
	if err != nil {
		return MonthlyReport{}, err
	}

	return v.(MonthlyReport), nil
}
