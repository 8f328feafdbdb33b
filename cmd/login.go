package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/habedi/fintrack/auth"
	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/pkg/clierr"
	"github.com/habedi/fintrack/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Passwords are read without
// echo when the input is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	raw io.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout(), raw: cmd.InOrStdin()}
}

// promptForInput prompts the user for input and returns the trimmed string.
func (p *prompter) promptForInput(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	input, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || input == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// promptForPassword prompts the user for a password securely and returns the trimmed string.
func (p *prompter) promptForPassword(prompt string) (string, error) {
	if f, ok := p.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out) // Print a newline for better formatting
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(password)), nil
	}
	return p.promptForInput(prompt)
}

// askMissing prompts for every field whose value is still empty.
func (p *prompter) askMissing(fields ...*field) error {
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		var err error
		if f.secret {
			*f.value, err = p.promptForPassword(f.prompt)
		} else {
			*f.value, err = p.promptForInput(f.prompt)
		}
		if err != nil {
			return err
		}
		if err := validation.ValidateNonEmptyString(f.name, *f.value); err != nil {
			return clierr.New(clierr.Validation, err.Error(), err)
		}
	}
	return nil
}

type field struct {
	name   string
	prompt string
	value  *string
	secret bool
}

// loginCmd signs in with email and password and stores the session.
func loginCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to fintrack",
		Long:  "Sign in with your email and password. The session is stored locally and renewed automatically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			p := newPrompter(cmd)
			if err := p.askMissing(
				&field{name: "email", prompt: "Email: ", value: &email},
				&field{name: "password", prompt: "Password: ", value: &password, secret: true},
			); err != nil {
				return err
			}

			rec, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return loginFailure(err)
			}
			return a.signIn(cmd, rec)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when omitted)")
	return cmd
}

// signupCmd creates an account and signs in with it.
func signupCmd(a *app) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a fintrack account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			p := newPrompter(cmd)
			if err := p.askMissing(
				&field{name: "name", prompt: "Name: ", value: &name},
				&field{name: "email", prompt: "Email: ", value: &email},
				&field{name: "password", prompt: "Password: ", value: &password, secret: true},
			); err != nil {
				return err
			}

			rec, err := a.api.Signup(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			return a.signIn(cmd, rec)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (prompted when omitted)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when omitted)")
	return cmd
}

// loginFailure reports a rejected login as bad credentials; a 401 from the
// login endpoint never means an expired session.
func loginFailure(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return clierr.New(clierr.Auth, "invalid email or password", err)
	}
	return err
}

func (a *app) signIn(cmd *cobra.Command, rec auth.Record) error {
	if err := a.manager.SignIn(cmd.Context(), rec); err != nil {
		return err
	}
	log.Info().Str("user_id", rec.UserID).Msg("Signed in")
	cmd.Printf("Signed in as %s.\n", rec.UserName)
	return nil
}

// logoutCmd forgets the stored session.
func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.EndSession(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Signed out.")
			return nil
		},
	}
}

// whoamiCmd prints the identity of the stored session.
func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSignIn(cmd.Context()); err != nil {
				return err
			}
			rec, err := a.manager.Session(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("%s (id %s)\n", rec.UserName, rec.UserID)
			return nil
		},
	}
}

// statusCmd prints where the client points and whether a session is stored.
func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.manager.Session(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println("API:", a.cfg.APIBaseURL)
			cmd.Println("Database:", a.cfg.DBPath)
			switch {
			case rec.Empty():
				cmd.Println("Session: none")
			case rec.RefreshToken == "":
				cmd.Println("Session: access token only (cannot be renewed)")
			default:
				cmd.Println("Session: active")
			}
			if rec.UserName != "" {
				cmd.Println("User:", rec.UserName)
			}
			return nil
		},
	}
}
