package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ehjjacobson/tiny-tune/internal/auth"
	"github.com/ehjjacobson/tiny-tune/internal/playback"
	"github.com/ehjjacobson/tiny-tune/internal/session"
)

const stateCookieName = "oauth_state"

// Handlers contains HTTP handlers for the widget service.
type Handlers struct {
	auth      *auth.Authenticator
	gate      *auth.Gate
	fetcher   *playback.Fetcher
	store     session.Store
	templates *Templates
	logger    *log.Logger
	poll      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(a *auth.Authenticator, gate *auth.Gate, fetcher *playback.Fetcher, store session.Store, templates *Templates, logger *log.Logger, poll time.Duration) *Handlers {
	return &Handlers{
		auth:      a,
		gate:      gate,
		fetcher:   fetcher,
		store:     store,
		templates: templates,
		logger:    logger,
		poll:      poll,
	}
}

// Home handles the landing page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title: "Tiny Tune",
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		h.logger.Error("rendering home", "err", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback). On
// success it upserts the account's session record and sends the browser to
// the widget page.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	token, err := h.auth.Exchange(r.Context(), state, r)
	if err != nil {
		h.logger.Error("code exchange failed", "err", err)
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	profile, err := h.auth.CurrentProfile(r.Context(), token)
	if err != nil {
		h.logger.Error("profile fetch failed", "err", err)
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	ttl := time.Until(token.Expiry)
	if token.Expiry.IsZero() || ttl <= 0 {
		ttl = 1800 * time.Second
	}
	rec := &session.Record{
		AccountID:    profile.ID,
		DisplayName:  profile.DisplayName,
		Email:        profile.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IssuedAt:     now,
		TTL:          ttl,
	}
	if err := h.store.Upsert(r.Context(), rec); err != nil {
		h.logger.Error("session upsert failed", "account", profile.ID, "err", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.logger.Info("account authorized", "account", profile.ID)
	http.Redirect(w, r, "/widget?user="+profile.ID, http.StatusTemporaryRedirect)
}

// Logout clears the account's token fields and redirects home
// (GET /logout?user=<id>). The record itself is kept, so logging out twice
// leaves the same cleared state both times.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("user")
	if accountID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	err := h.store.Clear(r.Context(), accountID)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "Unknown account", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("logout failed", "account", accountID, "err", err)
		http.Error(w, "Error during logout", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Widget renders the widget page (GET /widget?user=<id>).
func (h *Handlers) Widget(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("user")
	if accountID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	data := WidgetPageData{
		PageData:  PageData{Title: "Tiny Tune"},
		AccountID: accountID,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "widget", data); err != nil {
		h.logger.Error("rendering widget", "err", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// NowPlaying serves one playback snapshot as JSON (GET /now-playing?user=<id>).
// An empty item means the account is not playing anything: a valid state,
// not an error.
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("user")
	if accountID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	token, err := h.gate.AccessToken(r.Context(), accountID)
	if err != nil {
		h.writeError(w, accountID, err)
		return
	}

	snap, err := h.fetcher.Fetch(r.Context(), token)
	if err != nil {
		h.writeError(w, accountID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(nowPlayingJSON(snap)); err != nil {
		h.logger.Error("encoding now-playing response", "err", err)
	}
}

// writeError maps the typed gate/fetcher outcomes onto HTTP statuses. Raw
// transport errors never reach the response body.
func (h *Handlers) writeError(w http.ResponseWriter, accountID string, err error) {
	switch {
	case errors.Is(err, auth.ErrSessionNotFound):
		http.Error(w, "Unknown account", http.StatusNotFound)
	case errors.Is(err, auth.ErrAuthExpired), errors.Is(err, playback.ErrUnauthorized):
		http.Error(w, "Authorization expired, please log in again", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUpstreamUnavailable), errors.Is(err, playback.ErrUpstreamUnavailable):
		h.logger.Warn("upstream unavailable", "account", accountID, "err", err)
		http.Error(w, "Temporarily unavailable, try again shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", "account", accountID, "err", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// JSON shapes for /now-playing, mirroring the upstream wire format the
// widget script consumes.
type nowPlayingResponse struct {
	Item       *nowPlayingItem `json:"item"`
	ProgressMS int64           `json:"progress_ms"`
	IsPlaying  bool            `json:"is_playing"`
}

type nowPlayingItem struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Artists      []nowPlayingArtist `json:"artists"`
	Album        nowPlayingAlbum    `json:"album"`
	DurationMS   int64              `json:"duration_ms"`
	ExternalURLs map[string]string  `json:"external_urls"`
}

type nowPlayingArtist struct {
	Name string `json:"name"`
}

type nowPlayingAlbum struct {
	Name   string            `json:"name"`
	Images []nowPlayingImage `json:"images"`
}

type nowPlayingImage struct {
	URL string `json:"url"`
}

func nowPlayingJSON(snap *playback.Snapshot) nowPlayingResponse {
	if snap == nil {
		return nowPlayingResponse{}
	}
	var images []nowPlayingImage
	if snap.ArtworkURL != "" {
		images = []nowPlayingImage{{URL: snap.ArtworkURL}}
	}
	return nowPlayingResponse{
		Item: &nowPlayingItem{
			ID:   snap.TrackID,
			Name: snap.Title,
			Artists: []nowPlayingArtist{
				{Name: snap.Artist},
			},
			Album: nowPlayingAlbum{
				Name:   snap.Album,
				Images: images,
			},
			DurationMS:   snap.Duration.Milliseconds(),
			ExternalURLs: map[string]string{"spotify": snap.ExternalURL},
		},
		ProgressMS: snap.Progress.Milliseconds(),
		IsPlaying:  snap.Playing,
	}
}
