package auth

import (
	"context"
)

// Keys under which the session is persisted.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUserID       = "userId"
	KeyUserName     = "userName"
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserID, KeyUserName}

// Record is the full authentication state of one signed-in session.
type Record struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// Empty reports whether no part of the session is present.
func (r Record) Empty() bool {
	return r == Record{}
}

// CredentialStore persists the session record on top of a KVStore.
// Writes and clears always cover a whole group of keys in one call.
type CredentialStore struct {
	kv KVStore
}

// NewCredentialStore wraps kv.
func NewCredentialStore(kv KVStore) *CredentialStore {
	return &CredentialStore{kv: kv}
}

func (s *CredentialStore) get(ctx context.Context, key string) (string, error) {
	v, _, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", &StorageError{Op: "get", Key: key, Err: err}
	}
	return v, nil
}

// AccessToken returns the stored access token, or "" when signed out.
func (s *CredentialStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when signed out.
func (s *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *CredentialStore) UserID(ctx context.Context) (string, error) {
	return s.get(ctx, KeyUserID)
}

func (s *CredentialStore) UserName(ctx context.Context) (string, error) {
	return s.get(ctx, KeyUserName)
}

// SetSession writes both tokens in one operation.
func (s *CredentialStore) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	return s.setMany(ctx, map[string]string{
		KeyAccessToken:  accessToken,
		KeyRefreshToken: refreshToken,
	})
}

// SetUserInfo writes both identity fields in one operation.
func (s *CredentialStore) SetUserInfo(ctx context.Context, userID, userName string) error {
	return s.setMany(ctx, map[string]string{
		KeyUserID:   userID,
		KeyUserName: userName,
	})
}

// Save writes the whole record in one operation.
func (s *CredentialStore) Save(ctx context.Context, r Record) error {
	return s.setMany(ctx, map[string]string{
		KeyAccessToken:  r.AccessToken,
		KeyRefreshToken: r.RefreshToken,
		KeyUserID:       r.UserID,
		KeyUserName:     r.UserName,
	})
}

// Load reads all four keys in one operation, so a concurrent write is seen
// either entirely or not at all.
func (s *CredentialStore) Load(ctx context.Context) (Record, error) {
	values, err := s.kv.GetMany(ctx, sessionKeys...)
	if err != nil {
		return Record{}, &StorageError{Op: "load", Err: err}
	}
	return Record{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		UserID:       values[KeyUserID],
		UserName:     values[KeyUserName],
	}, nil
}

// Clear removes all four keys. Clearing an empty store is not an error.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.kv.RemoveMany(ctx, sessionKeys...); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

func (s *CredentialStore) setMany(ctx context.Context, values map[string]string) error {
	if err := s.kv.SetMany(ctx, values); err != nil {
		return &StorageError{Op: "set", Err: err}
	}
	return nil
}
