package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultRefreshInterval is used when neither the token nor the token
	// response carries an expiry.
	DefaultRefreshInterval = 30 * time.Minute
	minRefreshInterval     = 30 * time.Second
)

var ErrNoToken = errors.New("no access token in response")

// KeycloakClient obtains bearer tokens for the websocket transports with the
// OAuth2 password grant and renews them with the refresh token when it has one.
type KeycloakClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	username     string
	password     string
	httpClient   *http.Client
	now          func() time.Time

	mu           sync.Mutex
	refreshToken string
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Token is an access token and the moment it stops being valid. A zero
// ExpiresAt means the expiry is unknown.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

func NewKeycloakClient(tokenURL, clientID, clientSecret, username, password string) *KeycloakClient {
	return &KeycloakClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// GetAccessToken runs the password grant.
func (k *KeycloakClient) GetAccessToken(ctx context.Context) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)
	data.Set("username", k.username)
	data.Set("password", k.password)

	return k.exchange(ctx, data)
}

// RefreshAccessToken renews with the stored refresh token and falls back to
// the password grant when there is none or the server rejects it.
func (k *KeycloakClient) RefreshAccessToken(ctx context.Context) (Token, error) {
	k.mu.Lock()
	refreshToken := k.refreshToken
	k.mu.Unlock()

	if refreshToken == "" {
		return k.GetAccessToken(ctx)
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)
	data.Set("refresh_token", refreshToken)

	token, err := k.exchange(ctx, data)
	if err != nil {
		k.mu.Lock()
		k.refreshToken = ""
		k.mu.Unlock()
		return k.GetAccessToken(ctx)
	}
	return token, nil
}

func (k *KeycloakClient) exchange(ctx context.Context, data url.Values) (Token, error) {
	grant := data.Get("grant_type")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to create %s request: %w", grant, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("failed to make %s request: %w", grant, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Token{}, fmt.Errorf("%s failed with status %d: %s", grant, resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return Token{}, fmt.Errorf("failed to decode %s response: %w", grant, err)
	}
	if tokenResp.AccessToken == "" {
		return Token{}, ErrNoToken
	}

	if tokenResp.RefreshToken != "" {
		k.mu.Lock()
		k.refreshToken = tokenResp.RefreshToken
		k.mu.Unlock()
	}

	token := Token{AccessToken: tokenResp.AccessToken, ExpiresAt: ExpiresAt(tokenResp.AccessToken)}
	if token.ExpiresAt.IsZero() && tokenResp.ExpiresIn > 0 {
		token.ExpiresAt = k.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return token, nil
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature, for
// scheduling renewal only. Opaque tokens yield the zero time.
func ExpiresAt(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// RefreshAfter returns how long to wait before renewing t: four fifths of
// its remaining lifetime, never less than 30s.
func (t Token) RefreshAfter(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() {
		return DefaultRefreshInterval
	}
	wait := t.ExpiresAt.Sub(now) * 4 / 5
	if wait < minRefreshInterval {
		return minRefreshInterval
	}
	return wait
}
