package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type tokenServer struct {
	mu            sync.Mutex
	grants        []string
	rejectRefresh bool
	response      TokenResponse
}

func (s *tokenServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		grant := r.PostForm.Get("grant_type")

		s.mu.Lock()
		s.grants = append(s.grants, grant)
		reject := s.rejectRefresh && grant == "refresh_token"
		resp := s.response
		s.mu.Unlock()

		if r.PostForm.Get("client_id") != "bridge" {
			http.Error(w, "unknown client", http.StatusUnauthorized)
			return
		}
		if reject {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (s *tokenServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...)
}

func newClient(t *testing.T, server *tokenServer) *KeycloakClient {
	t.Helper()
	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)
	return NewKeycloakClient(srv.URL, "bridge", "s3cret", "svc", "pw")
}

func TestPasswordGrantReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	server := &tokenServer{response: TokenResponse{AccessToken: signedToken(t, exp), ExpiresIn: 60}}
	client := newClient(t, server)

	token, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	require.True(t, token.ExpiresAt.Equal(exp), "exp claim wins over expires_in")
	require.Equal(t, []string{"password"}, server.seen())
}

func TestOpaqueTokenFallsBackToExpiresIn(t *testing.T) {
	server := &tokenServer{response: TokenResponse{AccessToken: "opaque", ExpiresIn: 300}}
	client := newClient(t, server)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	token, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, fixed.Add(5*time.Minute), token.ExpiresAt)
}

func TestRefreshUsesRefreshToken(t *testing.T) {
	server := &tokenServer{response: TokenResponse{AccessToken: "a1", RefreshToken: "r1"}}
	client := newClient(t, server)

	_, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	token, err := client.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a1", token.AccessToken)
	require.Equal(t, []string{"password", "refresh_token"}, server.seen())
}

func TestRejectedRefreshFallsBackToPassword(t *testing.T) {
	server := &tokenServer{response: TokenResponse{AccessToken: "a1", RefreshToken: "r1"}, rejectRefresh: true}
	client := newClient(t, server)

	_, err := client.GetAccessToken(context.Background())
	require.NoError(t, err)
	_, err = client.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"password", "refresh_token", "password"}, server.seen())
}

func TestFailedGrantReportsStatus(t *testing.T) {
	server := &tokenServer{response: TokenResponse{AccessToken: "a1"}}
	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)
	client := NewKeycloakClient(srv.URL, "someone-else", "", "svc", "pw")

	_, err := client.GetAccessToken(context.Background())
	require.ErrorContains(t, err, "status 401")
}

func TestEmptyAccessTokenRejected(t *testing.T) {
	client := newClient(t, &tokenServer{})
	_, err := client.GetAccessToken(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
}

func TestRefreshAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, DefaultRefreshInterval, Token{}.RefreshAfter(now))
	require.Equal(t, 8*time.Minute, Token{ExpiresAt: now.Add(10 * time.Minute)}.RefreshAfter(now))
	require.Equal(t, 30*time.Second, Token{ExpiresAt: now.Add(5 * time.Second)}.RefreshAfter(now))
	require.Equal(t, 30*time.Second, Token{ExpiresAt: now.Add(-time.Minute)}.RefreshAfter(now))
}

func TestExpiresAtIgnoresGarbage(t *testing.T) {
	require.True(t, ExpiresAt("not-a-jwt").IsZero())
}
