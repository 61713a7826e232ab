package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opsdesk/opsdesk-go/internal/credentials"
)

// refreshPath is the token refresh endpoint. The exchange takes the refresh
// token in a JSON body and returns a new access token; the refresh token
// itself is not rotated by the backend.
const refreshPath = "/auth/refresh/"

// DefaultRefreshTimeout bounds a single refresh exchange. The backend gives
// no upper bound on how long the endpoint may take, so callers queued behind
// an outstanding refresh would otherwise wait forever if it hangs.
const DefaultRefreshTimeout = 30 * time.Second

// refreshKey is the singleflight key. There is only ever one credential pair
// per process, so all refresh calls collapse onto one flight.
const refreshKey = "refresh"

// Refresher performs the token refresh exchange with single-flight
// coordination: while a refresh is outstanding, every caller joins the same
// exchange and receives the same outcome. Most refresh-token schemes are
// single-use, so concurrent refresh calls would invalidate each other —
// collapsing them is a correctness requirement, not an optimization.
type Refresher struct {
	baseURL    string
	httpClient *http.Client
	creds      *credentials.Store
	logger     *slog.Logger
	timeout    time.Duration

	group singleflight.Group
}

// NewRefresher creates a Refresher. A timeout of zero selects
// DefaultRefreshTimeout.
func NewRefresher(baseURL string, httpClient *http.Client, creds *credentials.Store, logger *slog.Logger, timeout time.Duration) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}

	return &Refresher{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
		timeout:    timeout,
	}
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the updated pair. Callers arriving while an exchange is
// outstanding share its outcome instead of issuing a second exchange.
//
// Fails with ErrAuth when no refresh token is stored or the backend rejects
// the exchange; in both cases credentials are cleared first, so every queued
// caller observes the logged-out state. A transport-level failure returns
// ErrNetwork without clearing credentials — a flaky connection must not log
// the user out.
func (r *Refresher) Refresh(ctx context.Context) (credentials.TokenPair, error) {
	v, err, shared := r.group.Do(refreshKey, func() (any, error) {
		// The exchange runs on its own bounded context, detached from the
		// first caller's: cancellation of one joined caller must not fail
		// the flight for everyone else.
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		return r.exchange(exCtx)
	})
	if err != nil {
		return credentials.TokenPair{}, err
	}

	if shared {
		r.logger.Debug("joined outstanding token refresh")
	}

	pair, ok := v.(credentials.TokenPair)
	if !ok {
		return credentials.TokenPair{}, fmt.Errorf("api: unexpected refresh result type %T", v)
	}

	return pair, nil
}

// exchange performs one refresh call. Runs at most once per flight.
func (r *Refresher) exchange(ctx context.Context) (credentials.TokenPair, error) {
	pair, present, err := r.creds.Get()
	if err != nil {
		return credentials.TokenPair{}, err
	}

	if !present || pair.Refresh == "" {
		r.logger.Warn("token refresh requested with no refresh token stored")

		if clearErr := r.creds.Clear(); clearErr != nil {
			return credentials.TokenPair{}, clearErr
		}

		return credentials.TokenPair{}, fmt.Errorf("no refresh token: %w", ErrAuth)
	}

	body, err := json.Marshal(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return credentials.TokenPair{}, fmt.Errorf("api: encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return credentials.TokenPair{}, fmt.Errorf("api: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("token refresh transport failure", slog.String("error", err.Error()))

		return credentials.TokenPair{}, fmt.Errorf("refresh exchange: %v: %w", err, ErrNetwork)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		r.logger.Warn("token refresh rejected, clearing credentials",
			slog.Int("status", resp.StatusCode),
		)

		if clearErr := r.creds.Clear(); clearErr != nil {
			return credentials.TokenPair{}, clearErr
		}

		return credentials.TokenPair{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        ErrAuth,
		}
	}

	var parsed struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return credentials.TokenPair{}, fmt.Errorf("api: decoding refresh response: %w", err)
	}

	if parsed.Access == "" {
		return credentials.TokenPair{}, fmt.Errorf("api: refresh response missing access token")
	}

	updated := credentials.TokenPair{Access: parsed.Access, Refresh: pair.Refresh}
	if err := r.creds.Set(updated); err != nil {
		return credentials.TokenPair{}, err
	}

	r.logger.Info("access token refreshed")

	return updated, nil
}
