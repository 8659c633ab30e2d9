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
	"time"
)

const (
	// DefaultTokenURL is Spotify's OAuth token endpoint.
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// fallbackTTL applies when the token endpoint omits expires_in.
	fallbackTTL = 1800 * time.Second

	refreshTimeout = 10 * time.Second
)

// Sentinel errors for refresh outcomes.
var (
	// ErrRefreshDenied means the upstream rejected the refresh token. The
	// account has to re-authenticate; retrying cannot help.
	ErrRefreshDenied = errors.New("refresh token rejected")

	// ErrUpstreamUnavailable is a transient network or server-side failure
	// of the authorization upstream. The whole request is safe to retry.
	ErrUpstreamUnavailable = errors.New("authorization upstream unavailable")
)

// Token is the result of one refresh exchange.
type Token struct {
	AccessToken string

	// RefreshToken is empty unless the upstream rotated it. A rotated
	// token replaces the stored one; the old one must never be reused.
	RefreshToken string

	TTL      time.Duration
	IssuedAt time.Time
}

// Refresher performs the OAuth refresh exchange against the token endpoint.
type Refresher struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithTokenURL overrides the token endpoint. Used by tests.
func WithTokenURL(u string) RefresherOption {
	return func(r *Refresher) { r.tokenURL = u }
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) { r.httpClient = c }
}

// NewRefresher creates a Refresher for the given application credentials.
func NewRefresher(clientID, clientSecret string, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient: &http.Client{
			Timeout: refreshTimeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tokenResponse is the raw response from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// Refresh exchanges a refresh token for a fresh access token. It returns
// ErrRefreshDenied when the upstream rejects the refresh token and
// ErrUpstreamUnavailable on transient failures.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		// Rate limiting is transient, not a revoked grant.
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var denied tokenResponse
		if err := json.Unmarshal(body, &denied); err == nil && denied.Error != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrRefreshDenied, denied.Error, denied.ErrorDesc)
		}
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrRefreshDenied, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: parsing token response: %v", ErrUpstreamUnavailable, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrUpstreamUnavailable)
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = fallbackTTL
	}

	return &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TTL:          ttl,
		IssuedAt:     r.now(),
	}, nil
}
