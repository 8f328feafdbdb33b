package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/habedi/fintrack/auth"
	"github.com/rs/zerolog/log"
)

// RefreshPath is the backend endpoint that mints new access tokens.
const RefreshPath = "/auth/refresh"

// RefreshClient implements the auth.RefreshTransport interface against the backend.
// It deliberately bypasses the Dispatcher: the refresh call must never carry the
// stale access token or trigger another refresh.
type RefreshClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewRefreshClient targets baseURL + RefreshPath. A nil httpClient gets a 30s default.
func NewRefreshClient(baseURL string, httpClient *http.Client) *RefreshClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RefreshClient{
		URL:        strings.TrimRight(baseURL, "/") + RefreshPath,
		HTTPClient: httpClient,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Refresh sends the refresh token to the backend and returns the new token pair.
// Every failure is an *auth.RefreshError.
func (c *RefreshClient) Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: fmt.Errorf("failed to encode refresh request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: fmt.Errorf("failed to create refresh request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("url", c.URL).Msg("Sending token refresh request")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: fmt.Errorf("failed to post token refresh: %w", err)}
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read token refresh response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Message: messageFromBody(body)}
	}

	var result refreshResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse token refresh response: %w", err)}
	}

	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "server reported failure"
		}
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Message: msg}
	}

	return auth.RefreshResult{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}, nil
}
