// Package playback fetches the upstream "currently playing" state for an
// account and normalizes it into a point-in-time snapshot.
package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultEndpoint is the Spotify Web API currently-playing endpoint.
	DefaultEndpoint = "https://api.spotify.com/v1/me/player/currently-playing"

	requestTimeout = 10 * time.Second
)

// Sentinel errors.
var (
	// ErrUpstreamUnavailable is a transient upstream failure; the caller
	// may retry the whole request later.
	ErrUpstreamUnavailable = errors.New("playback upstream unavailable")

	// ErrUnauthorized means the upstream rejected the access token.
	ErrUnauthorized = errors.New("playback upstream rejected token")

	// ErrMalformedResponse marks a response missing expected fields. It is
	// treated as transient: errors.Is(err, ErrUpstreamUnavailable) holds.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrUpstreamUnavailable)
)

// Snapshot is one authoritative sample of playback state. It is ephemeral
// and never persisted.
type Snapshot struct {
	TrackID     string
	Title       string
	Artist      string
	Album       string
	ArtworkURL  string
	ExternalURL string
	Duration    time.Duration
	Progress    time.Duration
	Playing     bool

	// FetchedAt is the local wall-clock time the snapshot was obtained.
	// Simulated progress is anchored to it.
	FetchedAt time.Time
}

// Fetcher calls the upstream now-playing endpoint. It never retries and
// never mutates session state; retry is a caller policy.
type Fetcher struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithEndpoint overrides the upstream endpoint. Used by tests.
func WithEndpoint(u string) Option {
	return func(f *Fetcher) { f.endpoint = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// NewFetcher creates a Fetcher against the Spotify Web API.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wire types for the raw Spotify currently-playing response.
type currentlyPlayingResponse struct {
	Item       *wireTrack `json:"item"`
	ProgressMS int64      `json:"progress_ms"`
	IsPlaying  bool       `json:"is_playing"`
}

type wireTrack struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DurationMS   int64        `json:"duration_ms"`
	Artists      []wireArtist `json:"artists"`
	Album        wireAlbum    `json:"album"`
	ExternalURLs wireExternal `json:"external_urls"`
}

type wireArtist struct {
	Name string `json:"name"`
}

type wireAlbum struct {
	Name   string      `json:"name"`
	Images []wireImage `json:"images"`
}

type wireImage struct {
	URL string `json:"url"`
}

type wireExternal struct {
	Spotify string `json:"spotify"`
}

// Fetch returns the current snapshot for the account the token belongs to.
// A nil snapshot with a nil error means nothing is playing: a valid state,
// distinct from an error.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstreamUnavailable, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var cp currentlyPlayingResponse
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if cp.Item == nil {
		return nil, nil
	}
	if cp.Item.ID == "" || cp.Item.DurationMS <= 0 {
		return nil, fmt.Errorf("%w: item missing id or duration", ErrMalformedResponse)
	}

	snap := &Snapshot{
		TrackID:     cp.Item.ID,
		Title:       cp.Item.Name,
		Album:       cp.Item.Album.Name,
		ExternalURL: cp.Item.ExternalURLs.Spotify,
		Duration:    time.Duration(cp.Item.DurationMS) * time.Millisecond,
		Progress:    time.Duration(cp.ProgressMS) * time.Millisecond,
		Playing:     cp.IsPlaying,
		FetchedAt:   f.now(),
	}
	if len(cp.Item.Artists) > 0 {
		snap.Artist = cp.Item.Artists[0].Name
	}
	if len(cp.Item.Album.Images) > 0 {
		snap.ArtworkURL = cp.Item.Album.Images[0].URL
	}

	// Positions beyond the track bounds are clamped, never trusted.
	if snap.Progress < 0 {
		snap.Progress = 0
	}
	if snap.Progress > snap.Duration {
		snap.Progress = snap.Duration
	}

	return snap, nil
}
