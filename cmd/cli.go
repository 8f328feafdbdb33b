package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/habedi/fintrack/auth"
	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/config"
	"github.com/habedi/fintrack/db"
	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/habedi/fintrack/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// skipSession marks commands that run without opening the credential database.
const skipSession = "skip-session"

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	apiURL     string
	dbPath     string
	timeout    time.Duration
}

// app is the wiring of one invocation: one credential store, one token manager
// and one dispatcher shared by all requests the command makes.
type app struct {
	cfg     config.Config
	gdb     *gorm.DB
	manager *auth.Manager
	api     *client.API
	cancel  context.CancelFunc
}

func Execute() {
	rootCmd, a := newRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	err := rootCmd.Execute()
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		cliErr := classify(err)
		log.Error().Err(err).Str("type", string(cliErr.Type)).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", cliErr.Message)
		os.Exit(cliErr.ExitCode())
	}
}

func createRootCmd() *cobra.Command {
	rootCmd, _ := newRootCmd()
	return rootCmd
}

// newRootCmd builds the command tree and the app it wires commands to.
// The database is closed after a successful run; callers close it otherwise.
func newRootCmd() (*cobra.Command, *app) {
	flags := &rootFlags{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "fintrack",
		Short:         "Command-line client for the fintrack personal finance service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.timeout > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
				a.cancel = cancel
				cmd.SetContext(ctx)
			}
			if cmd.Annotations[skipSession] == "true" {
				return nil
			}
			return a.open(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to the YAML configuration file (default ~/.fintrack/config.yaml)")
	pf.StringVar(&flags.apiURL, "api", "", "Base URL of the fintrack API")
	pf.StringVar(&flags.dbPath, "db", "", "Path to the session database")
	pf.DurationVarP(&flags.timeout, "timeout", "T", 0, "Overall timeout for the command, e.g. 30s (0 means no timeout)")

	rootCmd.AddCommand(
		loginCmd(a),
		signupCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		statusCmd(a),
		expensesCmd(a),
		incomesCmd(a),
		goalsCmd(a),
		bookmarksCmd(a),
		dashboardCmd(a),
		requestCmd(a),
		devserverCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd, a
}

// open loads the configuration and builds the session stack.
func (a *app) open(cmd *cobra.Command, flags *rootFlags) error {
	path, explicit := flags.configPath, flags.configPath != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if flags.apiURL != "" {
		cfg.APIBaseURL = flags.apiURL
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if err := validation.ValidateBaseURL(cfg.APIBaseURL); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("Failed to open session database")
		return clierr.New(clierr.Internal, "failed to open the session database", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	store := auth.NewCredentialStore(db.NewStore(gdb))
	manager := auth.NewManager(store, client.NewRefreshClient(cfg.APIBaseURL, httpClient),
		auth.WithSessionExpiredHook(func(err error) {
			log.Warn().Err(err).Msg("Session expired; stored credentials were cleared")
		}))
	dispatcher := client.NewDispatcher(manager,
		client.WithHTTPClient(httpClient),
		client.WithRetry(cfg.MaxAttempts, cfg.RetryBackoff))

	a.cfg = cfg
	a.gdb = gdb
	a.manager = manager
	a.api = client.NewAPI(cfg.APIBaseURL, dispatcher)
	log.Debug().Str("api", cfg.APIBaseURL).Str("db", cfg.DBPath).Str("command", cmd.Name()).Msg("Session stack ready")
	return nil
}

func (a *app) close() error {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.gdb == nil {
		return nil
	}
	err := db.Close(a.gdb)
	a.gdb = nil
	if err != nil {
		log.Error().Err(err).Msg("Failed to close the database.")
		return fmt.Errorf("failed to close the session database: %w", err)
	}
	return nil
}

// requireSignIn fails fast when no session is stored.
func (a *app) requireSignIn(ctx context.Context) error {
	rec, err := a.manager.Session(ctx)
	if err != nil {
		return err
	}
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return clierr.New(clierr.Auth, "not signed in, run 'fintrack login' first", errors.New("no stored session"))
	}
	return nil
}
