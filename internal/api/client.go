package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsdesk/opsdesk-go/internal/credentials"
)

const userAgent = "opsdesk-go/0.1"

// Client is the HTTP request pipeline for the opsdesk REST API. It attaches
// the bearer token and a request ID to every outbound call, and on a 401
// response performs exactly one refresh-and-retry cycle through the
// Refresher. The pipeline is two explicit stages: send (base transport) and
// Do (the 401 decoration around it).
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *credentials.Store
	refresher  *Refresher
	logger     *slog.Logger
}

// NewClient creates a Client. baseURL has no trailing slash, e.g.
// "https://desk.example.com/api".
func NewClient(baseURL string, httpClient *http.Client, creds *credentials.Store, refresher *Refresher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
		refresher:  refresher,
		logger:     logger,
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes an HTTP request against the API. The path is appended to the
// client's base URL. The body, if any, is passed as a byte slice so the
// single 401 retry can resend it without rewinding a reader.
//
// On success the caller is responsible for closing the response body.
// Failures are classified per the package taxonomy: ErrNetwork for transport
// failures, ErrValidation for non-401 4xx, ErrServer for 5xx, and ErrAuth
// when the refresh-and-retry cycle is exhausted. No transient retry happens
// here.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	requestID := uuid.NewString()

	resp, err := c.send(ctx, method, path, body, requestID, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return c.finish(resp, method, path, requestID)
	}

	// Unauthorized: spend the single refresh-and-retry cycle. The retry is
	// structurally unrepeatable — there is no loop here — so a rejected
	// fresh token cannot cause a second refresh for this request.
	drainBody(resp)

	c.logger.Debug("unauthorized response, refreshing token",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", requestID),
	)

	pair, err := c.refresher.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	resp, err = c.send(ctx, method, path, body, requestID, pair.Access)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The freshly refreshed token was itself rejected. Give up.
		drainBody(resp)

		c.logger.Warn("request unauthorized after token refresh, clearing credentials",
			slog.String("method", method),
			slog.String("path", path),
		)

		if clearErr := c.creds.Clear(); clearErr != nil {
			return nil, clearErr
		}

		return nil, &APIError{
			StatusCode: http.StatusUnauthorized,
			RequestID:  requestID,
			Message:    "still unauthorized after token refresh",
			Err:        ErrAuth,
		}
	}

	return c.finish(resp, method, path, requestID)
}

// send executes a single HTTP request (no retry). When accessToken is empty
// the current stored token is attached, if any; the 401 retry passes the
// freshly refreshed token explicitly so it cannot race a concurrent write
// to the credential store.
func (c *Client) send(ctx context.Context, method, path string, body []byte, requestID, accessToken string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	if accessToken == "" {
		pair, present, credErr := c.creds.Get()
		if credErr != nil {
			return nil, credErr
		}

		if present {
			accessToken = pair.Access
		}
	}

	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrNetwork)
	}

	return resp, nil
}

// finish returns a 2xx response to the caller and converts anything else
// into a classified error.
func (c *Client) finish(resp *http.Response, method, path, requestID string) (*http.Response, error) {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
		Message:    string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with in encoded as the JSON body, decoding the
// response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request body: %w", err)
		}
	}

	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// drainBody reads and closes a response body so the underlying connection
// can be reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
