// Package devserver is an in-memory stand-in for the finance backend. It speaks
// the same JSON contract as the real service so the CLI and the integration
// tests can run without network access.
package devserver

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/habedi/fintrack/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Options controls token behavior.
type Options struct {
	// AccessTTL is how long an access token is accepted. Zero means forever.
	AccessTTL time.Duration
	// RotateRefresh issues a new refresh token on every refresh and revokes the old one.
	RotateRefresh bool
}

type account struct {
	user         client.User
	passwordHash []byte
}

type accessGrant struct {
	userID  string
	expires time.Time
}

type ledger struct {
	expenses  []client.Expense
	incomes   []client.Income
	goals     []client.Goal
	bookmarks []client.Bookmark
}

// Server holds all backend state in memory.
type Server struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by email
	access   map[string]accessGrant
	refresh  map[string]string // refresh token -> user id
	data     map[string]*ledger

	refreshCalls atomic.Int64
}

// New returns an empty Server.
func New(opts Options) *Server {
	return &Server{
		opts:     opts,
		now:      time.Now,
		accounts: make(map[string]*account),
		access:   make(map[string]accessGrant),
		refresh:  make(map[string]string),
		data:     make(map[string]*ledger),
	}
}

// Handler returns the HTTP routes of the backend.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/expenses", s.handleListExpenses)
		r.Post("/expenses", s.handleAddExpense)
		r.Get("/incomes", s.handleListIncomes)
		r.Post("/incomes", s.handleAddIncome)
		r.Get("/goals", s.handleListGoals)
		r.Get("/bookmarks", s.handleListBookmarks)
		r.Get("/analytics/summary", s.handleSummary)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", ww.Status()).
			Dur("took", time.Since(start)).Msg("devserver request")
	})
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(name, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[email]; exists {
		return "", errEmailTaken
	}
	id := uuid.NewString()
	s.accounts[email] = &account{user: client.User{ID: id, Name: name, Email: email}, passwordHash: hash}
	s.data[id] = &ledger{}
	return id, nil
}

// IssueSession mints a token pair for userID.
func (s *Server) IssueSession(userID string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueAccessLocked(userID), s.issueRefreshLocked(userID)
}

func (s *Server) issueAccessLocked(userID string) string {
	token := uuid.NewString()
	grant := accessGrant{userID: userID}
	if s.opts.AccessTTL > 0 {
		grant.expires = s.now().Add(s.opts.AccessTTL)
	}
	s.access[token] = grant
	return token
}

func (s *Server) issueRefreshLocked(userID string) string {
	token := uuid.NewString()
	s.refresh[token] = userID
	return token
}

// ExpireAccessTokens invalidates every access token handed out so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]accessGrant)
}

// RevokeRefreshTokens invalidates every refresh token handed out so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// RefreshCalls returns how many requests hit /auth/refresh.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// Seed registers a demo account with a few records and returns its id.
func (s *Server) Seed(name, email, password string) (string, error) {
	id, err := s.AddUser(name, email, password)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.data[id]
	l.expenses = []client.Expense{
		{ID: uuid.NewString(), Title: "Groceries", Amount: 54.20, Category: "food", Date: "2026-10-01"},
		{ID: uuid.NewString(), Title: "Metro card", Amount: 30, Category: "transport", Date: "2026-10-03"},
		{ID: uuid.NewString(), Title: "Cinema", Amount: 18.5, Category: "leisure", Date: "2026-10-11"},
	}
	l.incomes = []client.Income{
		{ID: uuid.NewString(), Source: "Salary", Amount: 2400, Date: "2026-10-01"},
	}
	l.goals = []client.Goal{
		{ID: uuid.NewString(), Title: "Emergency fund", Target: 5000, Saved: 1250, Deadline: "2027-06-30"},
	}
	l.bookmarks = []client.Bookmark{
		{ID: uuid.NewString(), Title: "50/30/20 budgeting", URL: "https://example.com/budgeting-basics"},
	}
	return id, nil
}
