package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/habedi/fintrack/devserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// devserverCmd runs the in-memory backend for local development.
func devserverCmd() *cobra.Command {
	var addr string
	var opts devserver.Options
	var seed bool

	cmd := &cobra.Command{
		Use:         "devserver",
		Short:       "Run a local in-memory fintrack backend",
		Annotations: map[string]string{skipSession: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := devserver.New(opts)
			if seed {
				if _, err := s.Seed("Demo", "demo@example.com", "demo"); err != nil {
					return err
				}
				cmd.Println("Seeded account demo@example.com with password 'demo'.")
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			cmd.Printf("Listening on http://%s\n", ln.Addr())
			return serve(cmd.Context(), ln, s.Handler())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().DurationVar(&opts.AccessTTL, "access-ttl", 5*time.Minute, "Lifetime of access tokens (0 means they never expire)")
	cmd.Flags().BoolVar(&opts.RotateRefresh, "rotate", false, "Issue a new refresh token on every refresh")
	cmd.Flags().BoolVar(&seed, "seed", true, "Create a demo account with sample data")
	return cmd
}

// serve runs h on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down dev server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
