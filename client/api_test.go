package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/habedi/fintrack/auth"
	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/db"
	"github.com/habedi/fintrack/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server  *devserver.Server
	manager *auth.Manager
	api     *client.API
	expired []error
}

func newHarness(t *testing.T, opts devserver.Options) *harness {
	t.Helper()
	s := devserver.New(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	h := &harness{server: s}
	store := auth.NewCredentialStore(db.NewMemoryStore())
	h.manager = auth.NewManager(store, client.NewRefreshClient(srv.URL, srv.Client()),
		auth.WithSessionExpiredHook(func(err error) { h.expired = append(h.expired, err) }))
	d := client.NewDispatcher(h.manager, client.WithHTTPClient(srv.Client()), client.WithRetry(1, 0))
	h.api = client.NewAPI(srv.URL, d)

	_, err := s.Seed("Alice", "alice@example.com", "secret")
	require.NoError(t, err)
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	rec, err := h.api.Login(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, h.manager.SignIn(ctx, rec))
}

func TestAPI_LoginAndList(t *testing.T) {
	h := newHarness(t, devserver.Options{})
	h.login(t)
	ctx := context.Background()

	name, err := h.manager.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	expenses, err := h.api.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Len(t, expenses, 3)

	incomes, err := h.api.ListIncomes(ctx)
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, "Salary", incomes[0].Source)

	goals, err := h.api.ListGoals(ctx)
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	bookmarks, err := h.api.ListBookmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, bookmarks, 1)
	assert.Zero(t, h.server.RefreshCalls())
}

func TestAPI_AddAndSummary(t *testing.T) {
	h := newHarness(t, devserver.Options{})
	h.login(t)
	ctx := context.Background()

	e, err := h.api.AddExpense(ctx, client.Expense{Title: "Rent", Amount: 800, Category: "housing"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)

	in, err := h.api.AddIncome(ctx, client.Income{Source: "Freelance", Amount: 300})
	require.NoError(t, err)
	assert.NotEmpty(t, in.ID)

	sum, err := h.api.Summary(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2700, sum.TotalIncome, 0.001)
	assert.InDelta(t, 902.7, sum.TotalExpense, 0.001)
	assert.InDelta(t, 800, sum.ByCategory["housing"], 0.001)
}

func TestAPI_WrongPasswordDoesNotRefresh(t *testing.T) {
	h := newHarness(t, devserver.Options{})

	_, err := h.api.Login(context.Background(), "alice@example.com", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrUnauthorized))
	assert.Zero(t, h.server.RefreshCalls())
	assert.Zero(t, h.manager.RefreshCalls())
}

func TestAPI_ExpiredAccessTokenRefreshesTransparently(t *testing.T) {
	h := newHarness(t, devserver.Options{RotateRefresh: true})
	h.login(t)
	ctx := context.Background()
	before, err := h.manager.Session(ctx)
	require.NoError(t, err)

	h.server.ExpireAccessTokens()
	goals, err := h.api.ListGoals(ctx)
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	after, err := h.manager.Session(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, before.UserID, after.UserID)
	assert.EqualValues(t, 1, h.server.RefreshCalls())
	assert.Empty(t, h.expired)
}

func TestAPI_AccessTTLRefresh(t *testing.T) {
	h := newHarness(t, devserver.Options{AccessTTL: 50 * time.Millisecond})
	h.login(t)
	time.Sleep(60 * time.Millisecond)

	_, err := h.api.ListBookmarks(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.server.RefreshCalls())
}

func TestAPI_RevokedSessionEnds(t *testing.T) {
	h := newHarness(t, devserver.Options{})
	h.login(t)
	ctx := context.Background()

	h.server.ExpireAccessTokens()
	h.server.RevokeRefreshTokens()

	_, err := h.api.ListExpenses(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrUnauthorized))
	assert.True(t, errors.Is(err, auth.ErrRefreshRejected))
	require.Len(t, h.expired, 1)

	rec, err := h.manager.Session(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Empty())

	// With the session gone the next call goes out without a token and no refresh is attempted.
	_, err = h.api.ListExpenses(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrNoRefreshToken))
	assert.EqualValues(t, 1, h.server.RefreshCalls())
}

func TestAPI_SignupThenRaw(t *testing.T) {
	h := newHarness(t, devserver.Options{})
	ctx := context.Background()

	rec, err := h.api.Signup(ctx, "Bob", "bob@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Bob", rec.UserName)
	require.NoError(t, h.manager.SignIn(ctx, rec))

	status, body, err := h.api.Raw(ctx, http.MethodGet, "/expenses", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"data":[]}`, string(body))

	status, _, err = h.api.Raw(ctx, http.MethodGet, "/missing", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	_, err = h.api.Signup(ctx, "Bob", "bob@example.com", "pw")
	var serr *client.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
}
