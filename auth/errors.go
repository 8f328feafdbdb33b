package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means a refresh was requested with no refresh token on record.
	ErrNoRefreshToken = errors.New("no refresh token on record")
	// ErrRefreshRejected means the refresh endpoint refused the refresh token or could not be reached.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrSessionEnded means the session was signed out while a refresh was in flight.
	ErrSessionEnded = errors.New("session ended during refresh")
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("credential storage failure")
)

// StorageError reports a failed read or write against the credential store.
type StorageError struct {
	Op  string // "get", "load", "set", "clear"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	msg := "credential storage: " + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// RefreshError carries the details of a rejected refresh. StatusCode is zero
// when the request never got a response.
type RefreshError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("refresh rejected (status %d): %s", e.StatusCode, e.Message)
	case e.Message != "":
		return "refresh rejected: " + e.Message
	case e.Err != nil:
		return "refresh rejected: " + e.Err.Error()
	case e.StatusCode != 0:
		return fmt.Sprintf("refresh rejected (status %d)", e.StatusCode)
	default:
		return ErrRefreshRejected.Error()
	}
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshRejected }

// IsTerminal reports whether err means the session is gone and the user has to sign in again.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrRefreshRejected) || errors.Is(err, ErrSessionEnded)
}
