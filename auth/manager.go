package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Settle receives the outcome of a refresh cycle: the new access token, or the
// error that ended the cycle. Exactly one of the two is meaningful.
type Settle func(accessToken string, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithSessionExpiredHook registers fn to run once for every refresh cycle that
// ends the session (ErrNoRefreshToken or ErrRefreshRejected), before waiters are settled.
func WithSessionExpiredHook(fn func(err error)) Option {
	return func(m *Manager) { m.onExpired = fn }
}

// Manager owns the token refresh protocol. At most one refresh call is in
// flight at any time; callers arriving while it runs are queued and all of them
// receive the outcome of that same call, in the order they arrived.
//
// Create one Manager per process and hand it to everything that needs tokens.
type Manager struct {
	store     *CredentialStore
	transport RefreshTransport
	onExpired func(error)

	mu         sync.Mutex
	refreshing bool
	waiters    []Settle

	// sessionMu orders sign-in, sign-out and the final write of a refresh cycle.
	// generation changes whenever the session is replaced or ended.
	sessionMu  sync.Mutex
	generation uint64

	calls atomic.Int64
}

// NewManager builds a Manager over store, using transport for refresh calls.
func NewManager(store *CredentialStore, transport RefreshTransport, opts ...Option) *Manager {
	m := &Manager{store: store, transport: transport}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestRefresh returns a fresh access token, starting a refresh cycle if none
// is running or joining the running one otherwise. If ctx ends first the caller
// stops waiting; the cycle itself still runs to completion for everyone else.
func (m *Manager) RequestRefresh(ctx context.Context) (string, error) {
	type outcome struct {
		token string
		err   error
	}
	done := make(chan outcome, 1)
	m.Enqueue(ctx, func(token string, err error) {
		done <- outcome{token: token, err: err}
	})

	select {
	case o := <-done:
		return o.token, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Enqueue registers settle as a waiter on the current refresh cycle, starting
// one if the manager is idle. It never blocks. Waiters of a cycle are settled
// one after another in arrival order.
func (m *Manager) Enqueue(ctx context.Context, settle Settle) {
	m.mu.Lock()
	m.waiters = append(m.waiters, settle)
	if m.refreshing {
		pending := len(m.waiters)
		m.mu.Unlock()
		log.Debug().Int("waiters", pending).Msg("Refresh already in flight, waiting for it")
		return
	}
	m.refreshing = true
	m.mu.Unlock()

	go m.runCycle(context.WithoutCancel(ctx))
}

// Refreshing reports whether a refresh cycle is in flight.
func (m *Manager) Refreshing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshing
}

// Pending returns the number of callers waiting on the current cycle.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// RefreshCalls returns how many refresh requests were sent over the transport.
func (m *Manager) RefreshCalls() int64 {
	return m.calls.Load()
}

func (m *Manager) runCycle(ctx context.Context) {
	token, err := m.refresh(ctx)

	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false
	m.mu.Unlock()

	if err != nil && IsTerminal(err) && m.onExpired != nil {
		m.onExpired(err)
	}

	for _, settle := range waiters {
		settle(token, err)
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.sessionMu.Lock()
	gen := m.generation
	m.sessionMu.Unlock()

	refreshToken, err := m.store.RefreshToken(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read refresh token")
		return "", err
	}

	if refreshToken == "" {
		m.sessionMu.Lock()
		defer m.sessionMu.Unlock()
		if m.generation != gen {
			return m.supersededLocked(ctx)
		}
		log.Warn().Msg("No refresh token on record, ending session")
		m.clearLocked(ctx)
		return "", ErrNoRefreshToken
	}

	m.calls.Add(1)
	log.Info().Msg("Access token rejected, refreshing...")
	res, err := m.transport.Refresh(ctx, refreshToken)
	if err == nil && res.AccessToken == "" {
		err = &RefreshError{Message: "response carried no access token"}
	}

	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if m.generation != gen {
		return m.supersededLocked(ctx)
	}

	if err != nil {
		if !errors.Is(err, ErrRefreshRejected) {
			err = &RefreshError{Err: err}
		}
		log.Warn().Err(err).Msg("Token refresh failed, ending session")
		m.clearLocked(ctx)
		return "", err
	}

	next := res.RefreshToken
	if next == "" {
		next = refreshToken
	}
	if err := m.store.SetSession(ctx, res.AccessToken, next); err != nil {
		log.Error().Err(err).Msg("Failed to save refreshed token")
		return "", err
	}

	log.Info().Bool("rotated", res.RefreshToken != "").Msg("Token refreshed and saved successfully.")
	return res.AccessToken, nil
}

// supersededLocked settles a cycle whose session was replaced or ended while it
// ran. The outcome of the refresh call is discarded: waiters get the current
// session's access token, or ErrSessionEnded when there is none.
// m.sessionMu must be held.
func (m *Manager) supersededLocked(ctx context.Context) (string, error) {
	token, err := m.store.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		log.Info().Msg("Session ended during refresh, discarding the result")
		return "", ErrSessionEnded
	}
	log.Info().Msg("Session replaced during refresh, using the new access token")
	return token, nil
}

// clearLocked clears the session after a failed refresh. A failing clear is
// logged; the refresh error stays the one reported to waiters.
// m.sessionMu must be held.
func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials after refresh failure")
	}
}

// AccessToken returns the stored access token, or "" when signed out.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.store.AccessToken(ctx)
}

func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	return m.store.RefreshToken(ctx)
}

func (m *Manager) UserID(ctx context.Context) (string, error) {
	return m.store.UserID(ctx)
}

func (m *Manager) UserName(ctx context.Context) (string, error) {
	return m.store.UserName(ctx)
}

// EstablishSession stores the tokens handed out by login or signup.
func (m *Manager) EstablishSession(ctx context.Context, accessToken, refreshToken string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.generation++
	return m.store.SetSession(ctx, accessToken, refreshToken)
}

// SetIdentity stores the signed-in user's id and display name.
func (m *Manager) SetIdentity(ctx context.Context, userID, userName string) error {
	return m.store.SetUserInfo(ctx, userID, userName)
}

// SignIn stores tokens and identity in one write.
func (m *Manager) SignIn(ctx context.Context, r Record) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.generation++
	if err := m.store.Save(ctx, r); err != nil {
		return err
	}
	log.Info().Str("user_id", r.UserID).Msg("Session established")
	return nil
}

// Session returns the stored record; it is empty when signed out.
func (m *Manager) Session(ctx context.Context) (Record, error) {
	return m.store.Load(ctx)
}

// EndSession removes every stored credential. A refresh cycle still in flight
// will not write its result.
func (m *Manager) EndSession(ctx context.Context) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.generation++
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	log.Info().Msg("Session ended")
	return nil
}
