package cmd

import (
	"context"
	"errors"
	"net"

	"github.com/habedi/fintrack/auth"
	"github.com/habedi/fintrack/client"
	"github.com/habedi/fintrack/pkg/clierr"
)

const sessionExpiredMessage = "session expired, please sign in again"

// classify turns any error a command returns into a user-facing clierr.Error.
func classify(err error) *clierr.Error {
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var statusErr *client.StatusError
	var netErr net.Error
	switch {
	case auth.IsTerminal(err):
		return clierr.New(clierr.SessionExpired, sessionExpiredMessage, err)
	case errors.Is(err, auth.ErrStorage):
		return clierr.New(clierr.Internal, "credential storage is unavailable: "+err.Error(), err)
	case errors.Is(err, client.ErrUnauthorized):
		return clierr.New(clierr.Auth, "the server rejected the request as unauthorized", err)
	case errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Network, "the command timed out", err)
	case errors.As(err, &statusErr):
		msg := statusErr.Message
		if msg == "" {
			msg = statusErr.Error()
		}
		return clierr.New(clierr.Remote, "the server rejected the request: "+msg, err)
	case errors.As(err, &netErr):
		return clierr.New(clierr.Network, "could not reach the server: "+err.Error(), err)
	default:
		return clierr.New(clierr.Internal, err.Error(), err)
	}
}
