package auth

import "context"

// KVStore is the durable key/value capability the credential store sits on.
// SetMany and RemoveMany must apply all keys or none, and GetMany must read
// all keys from one consistent state.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
	RemoveMany(ctx context.Context, keys ...string) error
}

// RefreshResult is what a successful refresh call yields. RefreshToken is empty
// when the server does not rotate refresh tokens.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// RefreshTransport defines the contract for any component that can exchange a
// refresh token for a new access token.
type RefreshTransport interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
}
