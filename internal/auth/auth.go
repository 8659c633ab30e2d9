// Package auth manages the Spotify OAuth lifecycle: the authorization-code
// flow, the refresh exchange, and the per-account gate that guarantees a
// valid access token before any upstream call proceeds.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Authenticator wraps the Spotify OAuth2 authorization-code flow.
type Authenticator struct {
	auth *spotifyauth.Authenticator
}

// Profile is the subset of the Spotify user profile the service keeps.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
}

// NewAuthenticator creates an Authenticator for the given application
// credentials. The redirect URI must match the Spotify app configuration.
func NewAuthenticator(clientID, clientSecret, redirectURI string) *Authenticator {
	return &Authenticator{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(clientID),
			spotifyauth.WithClientSecret(clientSecret),
			spotifyauth.WithRedirectURL(redirectURI),
			spotifyauth.WithScopes(
				spotifyauth.ScopeUserReadPlaybackState,
				spotifyauth.ScopeUserReadCurrentlyPlaying,
				spotifyauth.ScopeUserReadEmail,
				spotifyauth.ScopeUserReadPrivate,
			),
		),
	}
}

// AuthURL returns the Spotify authorize URL for the given CSRF state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange trades the authorization code carried by the callback request
// for token material.
func (a *Authenticator) Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	token, err := a.auth.Token(ctx, state, r)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

// CurrentProfile fetches the profile of the user the token belongs to.
func (a *Authenticator) CurrentProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	client := spotify.New(a.auth.Client(ctx, token))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}
	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}, nil
}

// GenerateState creates a random state string for OAuth CSRF protection.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
