package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/habedi/fintrack/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshClient_Refresh(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       auth.RefreshResult
		wantErr    bool
		wantStatus int
		wantMsg    string
	}{
		{
			name:   "new access token only",
			status: http.StatusOK,
			body:   `{"success":true,"accessToken":"A2"}`,
			want:   auth.RefreshResult{AccessToken: "A2"},
		},
		{
			name:   "rotated refresh token",
			status: http.StatusOK,
			body:   `{"success":true,"accessToken":"A2","refreshToken":"R2"}`,
			want:   auth.RefreshResult{AccessToken: "A2", RefreshToken: "R2"},
		},
		{
			name:       "success false with message",
			status:     http.StatusOK,
			body:       `{"success":false,"message":"invalid refresh token"}`,
			wantErr:    true,
			wantStatus: http.StatusOK,
			wantMsg:    "invalid refresh token",
		},
		{
			name:       "success false without message",
			status:     http.StatusOK,
			body:       `{"success":false}`,
			wantErr:    true,
			wantStatus: http.StatusOK,
			wantMsg:    "server reported failure",
		},
		{
			name:       "non-2xx status",
			status:     http.StatusForbidden,
			body:       `{"success":false,"message":"refresh token revoked"}`,
			wantErr:    true,
			wantStatus: http.StatusForbidden,
			wantMsg:    "refresh token revoked",
		},
		{
			name:       "malformed body",
			status:     http.StatusOK,
			body:       `not json`,
			wantErr:    true,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got refreshRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, RefreshPath, r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewRefreshClient(srv.URL+"/", nil)
			res, err := c.Refresh(context.Background(), "R1")
			assert.Equal(t, "R1", got.RefreshToken)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.want, res)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrRefreshRejected))
			var rerr *auth.RefreshError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.wantStatus, rerr.StatusCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, rerr.Message)
			}
		})
	}
}

func TestRefreshClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRefreshClient(url, nil).Refresh(context.Background(), "R1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrRefreshRejected))
	assert.True(t, auth.IsTerminal(err))
}
