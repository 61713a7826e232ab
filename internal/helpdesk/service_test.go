package helpdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk-go/internal/api"
	"github.com/opsdesk/opsdesk-go/internal/config"
	"github.com/opsdesk/opsdesk-go/internal/credentials"
	"github.com/opsdesk/opsdesk-go/internal/querycache"
)

// fakeBackend is an httptest ticketing API with per-endpoint hit counters.
type fakeBackend struct {
	srv *httptest.Server

	listHits     atomic.Int32
	detailHits   atomic.Int32
	commentHits  atomic.Int32
	statsHits    atomic.Int32
	reportHits   atomic.Int32
	approveHits  atomic.Int32
	approvedOnce atomic.Bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/", func(w http.ResponseWriter, _ *http.Request) {
		b.listHits.Add(1)

		status := StatusOpen
		if b.approvedOnce.Load() {
			status = StatusApproved
		}

		_ = json.NewEncoder(w).Encode([]Ticket{{ID: 7, Title: "printer on fire", Status: status}})
	})
	mux.HandleFunc("GET /tickets/7/", func(w http.ResponseWriter, _ *http.Request) {
		b.detailHits.Add(1)
		_ = json.NewEncoder(w).Encode(Ticket{ID: 7, Title: "printer on fire", Status: StatusOpen})
	})
	mux.HandleFunc("GET /tickets/7/comments/", func(w http.ResponseWriter, _ *http.Request) {
		b.commentHits.Add(1)
		_ = json.NewEncoder(w).Encode([]Comment{{ID: 1, TicketID: 7, Body: "have you tried water"}})
	})
	mux.HandleFunc("POST /tickets/7/comments/", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Body string `json:"body"`
		}

		_ = json.NewDecoder(r.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Comment{ID: 2, TicketID: 7, Body: in.Body})
	})
	mux.HandleFunc("POST /tickets/7/approve/", func(w http.ResponseWriter, _ *http.Request) {
		b.approveHits.Add(1)
		b.approvedOnce.Store(true)
		_ = json.NewEncoder(w).Encode(Ticket{ID: 7, Title: "printer on fire", Status: StatusApproved})
	})
	mux.HandleFunc("GET /dashboard/stats/", func(w http.ResponseWriter, _ *http.Request) {
		b.statsHits.Add(1)
		_ = json.NewEncoder(w).Encode(DashboardStats{OpenTickets: 3, PendingApproval: 1})
	})
	mux.HandleFunc("GET /reports/monthly/", func(w http.ResponseWriter, r *http.Request) {
		b.reportHits.Add(1)

		var rep MonthlyReport
		rep.Year, _ = strconv.Atoi(r.URL.Query().Get("year"))
		rep.Month, _ = strconv.Atoi(r.URL.Query().Get("month"))
		rep.Created = 42
		_ = json.NewEncoder(w).Encode(rep)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	return b
}

// newTestService builds the full stack against the fake backend.
func newTestService(t *testing.T, b *fakeBackend) *Service {
	t.Helper()

	creds, err := credentials.Open(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { creds.Close() })
	require.NoError(t, creds.Set(credentials.TokenPair{Access: "acc", Refresh: "ref"}))

	refresher := api.NewRefresher(b.srv.URL, http.DefaultClient, creds, nil, 0)
	client := api.NewClient(b.srv.URL, http.DefaultClient, creds, refresher, nil)

	cache := querycache.New(querycache.Options{Retryable: api.IsTransient})

	return NewService(client, cache, config.DefaultConfig().Cache, nil)
}

func TestTickets_CachedWithinStaleTime(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	first, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "printer on fire", first[0].Title)

	second, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int32(1), b.listHits.Load(), "second read served from cache")
}

func TestTickets_FilterIsDistinctCacheEntry(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	_, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)

	_, err = svc.Tickets(context.Background(), StatusOpen)
	require.NoError(t, err)

	assert.Equal(t, int32(2), b.listHits.Load(), "different filters are different keys")
}

func TestApproveTicket_InvalidatesDeclaredPrefixes(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	// Warm every affected cache entry plus one bystander.
	_, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)
	_, err = svc.Ticket(context.Background(), 7)
	require.NoError(t, err)
	_, err = svc.DashboardStats(context.Background())
	require.NoError(t, err)
	_, err = svc.Comments(context.Background(), 7)
	require.NoError(t, err)

	approved, err := svc.ApproveTicket(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	// All declared prefixes went stale in the same pass; the bystander
	// (comments) did not.
	for _, key := range []querycache.Key{
		ticketListKey(""),
		ticketDetailKey(7),
		dashboardStatsKey(),
	} {
		snap, ok := svc.Cache().Read(key)
		require.True(t, ok, "%s", key)
		assert.True(t, snap.Stale, "%s stale after approval", key)
	}

	snap, ok := svc.Cache().Read(ticketCommentsKey(7))
	require.True(t, ok)
	assert.False(t, snap.Stale, "comments are not declared by approve")

	// The next list read revalidates against the backend instead of
	// trusting the cached payload.
	stale, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, stale[0].Status, "stale value served while revalidating")

	require.Eventually(t, func() bool {
		return b.listHits.Load() == 2
	}, 2*time.Second, time.Millisecond, "background refetch issued")

	require.Eventually(t, func() bool {
		fresh, err := svc.Tickets(context.Background(), "")
		return err == nil && fresh[0].Status == StatusApproved
	}, 2*time.Second, time.Millisecond, "cache converges on post-mutation data")
}

func TestAddComment_InvalidatesOnlyThatThread(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	_, err := svc.Tickets(context.Background(), "")
	require.NoError(t, err)
	_, err = svc.Comments(context.Background(), 7)
	require.NoError(t, err)

	_, err = svc.AddComment(context.Background(), 7, "rebooted it")
	require.NoError(t, err)

	snap, ok := svc.Cache().Read(ticketCommentsKey(7))
	require.True(t, ok)
	assert.True(t, snap.Stale)

	snap, ok = svc.Cache().Read(ticketListKey(""))
	require.True(t, ok)
	assert.False(t, snap.Stale, "a new comment does not stale the ticket list")
}

func TestMonthlyReport_RevalidatesEveryCall(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	rep, err := svc.MonthlyReport(context.Background(), 2026, 8)
	require.NoError(t, err)
	assert.Equal(t, 2026, rep.Year)
	assert.Equal(t, 8, rep.Month)
	require.Equal(t, int32(1), b.reportHits.Load())

	// Well within staleTime, but every mount revalidates.
	_, err = svc.MonthlyReport(context.Background(), 2026, 8)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.reportHits.Load() == 2
	}, 2*time.Second, time.Millisecond)
}

func TestDashboardStats_Cached(t *testing.T) {
	b := newFakeBackend(t)
	svc := newTestService(t, b)

	stats, err := svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.OpenTickets)

	_, err = svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), b.statsHits.Load())
}
