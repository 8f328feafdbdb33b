package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenSource is what the Dispatcher needs from the token manager.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RequestRefresh(ctx context.Context) (string, error)
}

type ctxKey int

const (
	retriedKey ctxKey = iota
	noReauthKey
)

// WithoutReauth marks requests whose 401 is a plain credential failure
// (login, signup) rather than an expired access token.
func WithoutReauth(ctx context.Context) context.Context {
	return context.WithValue(ctx, noReauthKey, true)
}

func flagged(ctx context.Context, key ctxKey) bool {
	v, _ := ctx.Value(key).(bool)
	return v
}

// Dispatcher sends requests on behalf of the application. It attaches the
// current access token to each request and, when the backend answers 401,
// refreshes the token once and replays the request once.
type Dispatcher struct {
	httpClient  *http.Client
	tokens      TokenSource
	maxAttempts int
	backoff     time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithRetry sets how many times a request is sent when the network fails or
// the server answers 5xx, and the initial backoff between sends.
func WithRetry(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		d.maxAttempts = maxAttempts
		d.backoff = backoff
	}
}

// NewDispatcher builds a Dispatcher reading tokens from tokens.
func NewDispatcher(tokens TokenSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokens:      tokens,
		maxAttempts: 3,
		backoff:     1 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends req and returns the backend's response. Any status other than
// 401 is returned unchanged. A 401 either resolves transparently through one
// refresh-and-replay, or comes back as a *StatusError matching ErrUnauthorized,
// wrapping the refresh failure when the refresh itself failed.
func (d *Dispatcher) Dispatch(req *http.Request) (*http.Response, error) {
	if err := makeReplayable(req); err != nil {
		return nil, err
	}
	if err := d.attachToken(req); err != nil {
		return nil, err
	}
	resp, err := d.send(req)
	if err != nil {
		return nil, err
	}
	return d.handleResponse(req, resp)
}

// attachToken is the pre-request hook.
func (d *Dispatcher) attachToken(req *http.Request) error {
	token, err := d.tokens.AccessToken(req.Context())
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	setBearer(req, token)
	return nil
}

func setBearer(req *http.Request, token string) {
	if token == "" {
		req.Header.Del("Authorization")
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// handleResponse is the post-response hook.
func (d *Dispatcher) handleResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, _ := readResponseBody(resp)
	failure := newStatusError(req, resp.StatusCode, body)
	ctx := req.Context()

	if flagged(ctx, noReauthKey) {
		return nil, failure
	}
	if flagged(ctx, retriedKey) {
		log.Warn().Str("method", req.Method).Str("url", failure.URL).Msg("Request still unauthorized after token refresh")
		return nil, failure
	}

	ctx = context.WithValue(ctx, retriedKey, true)
	token, err := d.tokens.RequestRefresh(ctx)
	if err != nil {
		failure.Err = err
		return nil, failure
	}

	replay, err := cloneForReplay(ctx, req)
	if err != nil {
		return nil, err
	}
	setBearer(replay, token)

	log.Debug().Str("method", replay.Method).Str("url", failure.URL).Msg("Replaying request with refreshed token")
	resp, err = d.send(replay)
	if err != nil {
		return nil, err
	}
	return d.handleResponse(replay, resp)
}

// send performs the HTTP round trip, retrying network errors and 5xx answers
// with exponential backoff. The last 5xx response is returned as is.
func (d *Dispatcher) send(req *http.Request) (*http.Response, error) {
	backoff := d.backoff
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := rewind(req); err != nil {
				return nil, err
			}
		}

		log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Int("attempt", attempt).Msg("Sending HTTP request")
		resp, err = d.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if ctxErr := req.Context().Err(); ctxErr != nil {
			closeResponseBody(resp)
			return nil, ctxErr
		}
		if attempt == d.maxAttempts {
			break
		}

		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", d.maxAttempts).Msg("Request failed, retrying...")
		} else {
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Int("max_attempts", d.maxAttempts).Msg("Server error, retrying...")
			closeResponseBody(resp)
		}

		select {
		case <-time.After(backoff):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		backoff *= 2
	}

	if err != nil {
		log.Error().Err(err).Str("url", req.URL.Redacted()).Msg("Failed to send request after multiple retries")
		return nil, err
	}
	return resp, nil
}

// makeReplayable buffers a body that cannot be re-read so the request can be
// sent again after a refresh or a retry.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

func cloneForReplay(ctx context.Context, req *http.Request) (*http.Request, error) {
	replay := req.Clone(ctx)
	if err := rewind(replay); err != nil {
		return nil, err
	}
	return replay, nil
}
