package cmd

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/habedi/fintrack/config"
	"github.com/habedi/fintrack/devserver"
	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateRootCmd checks that createRootCmd returns a root command
// with the expected use string, subcommands, and a replaced help command.
func TestCreateRootCmd(t *testing.T) {
	rootCmd := createRootCmd()
	if rootCmd.Use != "fintrack" {
		t.Errorf("expected root command use to be 'fintrack', got: %s", rootCmd.Use)
	}

	subCommands := rootCmd.Commands()
	if len(subCommands) == 0 {
		t.Error("expected root command to have subcommands, got none")
	}

	// Verify that the default help command is replaced (i.e. no subcommand with Use "help")
	for _, cmd := range subCommands {
		if cmd.Use == "help" {
			t.Error("expected help command to be replaced, but found a subcommand with use 'help'")
		}
	}
}

type env struct {
	server *devserver.Server
	url    string
	dbPath string
}

func newEnv(t *testing.T, opts devserver.Options) *env {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvDBPath, "")

	s := devserver.New(opts)
	_, err := s.Seed("Alice", "alice@example.com", "secret")
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &env{server: s, url: srv.URL, dbPath: filepath.Join(t.TempDir(), "session.db")}
}

// run executes one CLI invocation against the env and returns its output.
func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	rootCmd, a := newRootCmd()
	t.Cleanup(func() { _ = a.close() })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--api", e.url, "--db", e.dbPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	e := newEnv(t, devserver.Options{})

	out, err := e.run(t, "secret\n", "login", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Alice.")

	out, err = e.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice (id ")

	out, err = e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: active")

	out, err = e.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	_, err = e.run(t, "", "whoami")
	require.Error(t, err)
	assert.Equal(t, clierr.Auth, classify(err).Type)
}

func TestLoginPromptsForEmail(t *testing.T) {
	e := newEnv(t, devserver.Options{})

	out, err := e.run(t, "alice@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Signed in as Alice.")
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t, devserver.Options{})

	_, err := e.run(t, "nope\n", "login", "-e", "alice@example.com")
	require.Error(t, err)
	cliErr := classify(err)
	assert.Equal(t, clierr.Auth, cliErr.Type)
	assert.Equal(t, "invalid email or password", cliErr.Message)
	assert.Zero(t, e.server.RefreshCalls())
}

func TestLoginEmptyPassword(t *testing.T) {
	e := newEnv(t, devserver.Options{})

	_, err := e.run(t, "\n", "login", "-e", "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, clierr.Validation, classify(err).Type)
}

func TestSignupAndAddExpense(t *testing.T) {
	e := newEnv(t, devserver.Options{})

	out, err := e.run(t, "pw\n", "signup", "--name", "Bob", "--email", "bob@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Bob.")

	out, err = e.run(t, "", "expenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No expenses recorded yet.")

	out, err = e.run(t, "", "expenses", "add", "--title", "Rent", "--amount", "800", "--category", "housing")
	require.NoError(t, err)
	assert.Contains(t, out, `Recorded expense "Rent" (800.00)`)

	_, err = e.run(t, "", "expenses", "add", "--amount", "3")
	require.Error(t, err)
	assert.Equal(t, clierr.Validation, classify(err).Type)

	out, err = e.run(t, "", "incomes", "add", "--source", "Salary", "--amount", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, `Recorded income from "Salary"`)

	out, err = e.run(t, "", "expenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "housing")
}

func TestListsRefreshExpiredSession(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	_, err := e.run(t, "secret\n", "login", "-e", "alice@example.com")
	require.NoError(t, err)

	e.server.ExpireAccessTokens()

	out, err := e.run(t, "", "goals", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Emergency fund")

	out, err = e.run(t, "", "bookmarks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "50/30/20 budgeting")

	out, err = e.run(t, "", "incomes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Salary")
	assert.EqualValues(t, 1, e.server.RefreshCalls())
}

func TestDashboardAfterExpiry(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	_, err := e.run(t, "secret\n", "login", "-e", "alice@example.com")
	require.NoError(t, err)
	e.server.ExpireAccessTokens()

	out, err := e.run(t, "", "dashboard", "--quiet", "--concurrency", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Income:   2400.00")
	assert.Contains(t, out, "3 expenses, 1 incomes, 1 goals, 1 bookmarks")
	assert.Contains(t, out, `Goal "Emergency fund": 25% of 5000.00`)
	// A request whose 401 arrives after a cycle settled starts a new one.
	assert.GreaterOrEqual(t, e.server.RefreshCalls(), int64(1))
}

func TestDashboardInvalidConcurrency(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	_, err := e.run(t, "", "dashboard", "--concurrency", "0")
	require.Error(t, err)
	assert.Equal(t, clierr.Validation, classify(err).Type)
}

func TestRevokedSessionReportsExpiry(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	_, err := e.run(t, "secret\n", "login", "-e", "alice@example.com")
	require.NoError(t, err)

	e.server.ExpireAccessTokens()
	e.server.RevokeRefreshTokens()

	_, err = e.run(t, "", "expenses", "list")
	require.Error(t, err)
	cliErr := classify(err)
	assert.Equal(t, clierr.SessionExpired, cliErr.Type)
	assert.Equal(t, sessionExpiredMessage, cliErr.Message)

	out, err := e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: none")
}

func TestRequestCommand(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	_, err := e.run(t, "secret\n", "login", "-e", "alice@example.com")
	require.NoError(t, err)

	out, err := e.run(t, "", "request", "get", "/goals")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: 200")
	assert.Contains(t, out, `"Emergency fund"`)

	out, err = e.run(t, "", "request", "POST", "/expenses", "--data", `{"title":"Tea","amount":3}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: 201")

	_, err = e.run(t, "", "request", "HEAD", "/goals")
	assert.Equal(t, clierr.Validation, classify(err).Type)

	_, err = e.run(t, "", "request", "POST", "/expenses", "--data", "{")
	assert.Equal(t, clierr.Validation, classify(err).Type)
}

func TestInvalidAPIURL(t *testing.T) {
	e := newEnv(t, devserver.Options{})
	e.url = "not-a-url"
	_, err := e.run(t, "", "status")
	require.Error(t, err)
	assert.Equal(t, clierr.Validation, classify(err).Type)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, clierr.Internal, classify(errors.New("boom")).Type)
	wrapped := clierr.New(clierr.Validation, "bad", nil)
	assert.Same(t, wrapped, classify(wrapped))
}

// TestExecuteFailure runs a subprocess where the root command's RunE is overridden
// to always return an error. In that case Execute (or a call to Execute-like behavior)
// should call os.Exit(1). We capture the exit code via os/exec.
func TestExecuteFailure(t *testing.T) {
	// If this is the child process, override the command to simulate failure.
	if os.Getenv("TEST_EXECUTE_FAILURE") == "1" {
		rootCmd := createRootCmd()
		rootCmd.PersistentPreRunE = nil
		rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
			return errors.New("dummy failure")
		}
		rootCmd.SetArgs(nil)
		if err := rootCmd.Execute(); err != nil {
			os.Exit(classify(err).ExitCode())
		}
		return
	}

	// In the parent process, run this test in a subprocess.
	cmd := exec.Command(os.Args[0], "-test.run=TestExecuteFailure")
	cmd.Env = append(os.Environ(), "TEST_EXECUTE_FAILURE=1")
	err := cmd.Run()
	if exitError, ok := err.(*exec.ExitError); ok {
		if exitError.ExitCode() != 1 {
			t.Fatalf("expected exit code 1, got %d", exitError.ExitCode())
		}
	} else if err == nil {
		t.Fatalf("expected an exit error, but command succeeded")
	} else {
		t.Fatalf("unexpected error: %v", err)
	}
}
