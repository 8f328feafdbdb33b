package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/habedi/fintrack/auth"
	"github.com/rs/zerolog/log"
)

// API exposes the backend's endpoints. Every call goes through the Dispatcher.
type API struct {
	baseURL    string
	dispatcher *Dispatcher
}

// NewAPI builds an API rooted at baseURL.
func NewAPI(baseURL string, d *Dispatcher) *API {
	return &API{baseURL: strings.TrimRight(baseURL, "/"), dispatcher: d}
}

// newRequest builds a JSON request for path. A nil in sends no body.
func (a *API) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("path", path).Msg("Failed to create HTTP request object")
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// call sends a request and decodes the envelope's data into out (if non-nil).
func (a *API) call(ctx context.Context, method, path string, in, out any) error {
	req, err := a.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	body, err := a.roundTrip(req)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	if !env.Success {
		return &StatusError{Method: method, URL: req.URL.Redacted(), StatusCode: http.StatusOK, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse %s data: %w", path, err)
		}
	}
	return nil
}

// roundTrip dispatches req and returns the body of a 2xx response.
func (a *API) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := a.dispatcher.Dispatch(req)
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("method", req.Method).Str("url", req.URL.Redacted()).Int("status", resp.StatusCode).Msg("HTTP request returned non-OK status")
		return nil, newStatusError(req, resp.StatusCode, body)
	}
	return body, nil
}

func (a *API) authenticate(ctx context.Context, path string, in any) (auth.Record, error) {
	req, err := a.newRequest(WithoutReauth(ctx), http.MethodPost, path, in)
	if err != nil {
		return auth.Record{}, err
	}
	body, err := a.roundTrip(req)
	if err != nil {
		return auth.Record{}, err
	}

	var res authResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return auth.Record{}, fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	if !res.Success || res.AccessToken == "" || res.RefreshToken == "" {
		msg := res.Message
		if msg == "" {
			msg = "no session in response"
		}
		return auth.Record{}, &StatusError{Method: req.Method, URL: req.URL.Redacted(), StatusCode: http.StatusOK, Message: msg}
	}
	return auth.Record{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		UserID:       res.User.ID,
		UserName:     res.User.Name,
	}, nil
}

// Login exchanges credentials for a session record. A 401 here means wrong
// credentials and never triggers a token refresh.
func (a *API) Login(ctx context.Context, email, password string) (auth.Record, error) {
	return a.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Signup creates an account and returns its first session record.
func (a *API) Signup(ctx context.Context, name, email, password string) (auth.Record, error) {
	return a.authenticate(ctx, "/auth/signup", map[string]string{"name": name, "email": email, "password": password})
}

func (a *API) ListExpenses(ctx context.Context) ([]Expense, error) {
	var out []Expense
	if err := a.call(ctx, http.MethodGet, "/expenses", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *API) AddExpense(ctx context.Context, e Expense) (Expense, error) {
	var out Expense
	if err := a.call(ctx, http.MethodPost, "/expenses", e, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *API) ListIncomes(ctx context.Context) ([]Income, error) {
	var out []Income
	if err := a.call(ctx, http.MethodGet, "/incomes", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *API) AddIncome(ctx context.Context, in Income) (Income, error) {
	var out Income
	if err := a.call(ctx, http.MethodPost, "/incomes", in, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *API) ListGoals(ctx context.Context) ([]Goal, error) {
	var out []Goal
	if err := a.call(ctx, http.MethodGet, "/goals", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (a *API) ListBookmarks(ctx context.Context) ([]Bookmark, error) {
	var out []Bookmark
	if err := a.call(ctx, http.MethodGet, "/bookmarks", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Summary fetches the analytics overview computed by the server.
func (a *API) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	if err := a.call(ctx, http.MethodGet, "/analytics/summary", nil, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Raw sends an arbitrary request through the Dispatcher and returns the status
// and body without interpreting them.
func (a *API) Raw(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var r io.Reader
	if len(body) > 0 {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, r)
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.dispatcher.Dispatch(req)
	if err != nil {
		return 0, nil, err
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}
