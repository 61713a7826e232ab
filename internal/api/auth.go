package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/opsdesk/opsdesk-go/internal/credentials"
)

const loginPath = "/auth/login/"

// Login exchanges a username and password for a token pair and persists it.
// It deliberately bypasses the 401 refresh decoration: a rejected login is
// simply wrong credentials, not an expired access token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("api: encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("api: creating login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login: %v: %w", err, ErrNetwork)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		sentinel := classifyStatus(resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			sentinel = ErrAuth
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        sentinel,
		}
	}

	var parsed struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("api: decoding login response: %w", err)
	}

	if parsed.Access == "" || parsed.Refresh == "" {
		return fmt.Errorf("api: login response missing tokens")
	}

	if err := c.creds.Set(credentials.TokenPair{Access: parsed.Access, Refresh: parsed.Refresh}); err != nil {
		return err
	}

	c.logger.Info("login successful", slog.String("username", username))

	return nil
}

// Logout clears the persisted credentials. The backend keeps no session
// state beyond the tokens, so there is nothing to call remotely.
func (c *Client) Logout() error {
	return c.creds.Clear()
}
