package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ehjjacobson/tiny-tune/internal/playback"
	"github.com/ehjjacobson/tiny-tune/internal/reconcile"
)

// frame is the SSE payload for one display update.
type frame struct {
	State        string  `json:"state"`
	Title        string  `json:"title,omitempty"`
	Artist       string  `json:"artist,omitempty"`
	ArtworkURL   string  `json:"artwork_url,omitempty"`
	ExternalURL  string  `json:"external_url,omitempty"`
	PositionMS   int64   `json:"position_ms"`
	DurationMS   int64   `json:"duration_ms"`
	Percent      float64 `json:"percent"`
	LastPlayedAt string  `json:"last_played_at,omitempty"`
}

func displayFrame(d reconcile.Display) frame {
	f := frame{
		State:       d.State.String(),
		Title:       d.Title,
		Artist:      d.Artist,
		ArtworkURL:  d.ArtworkURL,
		ExternalURL: d.ExternalURL,
		PositionMS:  d.Position.Milliseconds(),
		DurationMS:  d.Duration.Milliseconds(),
		Percent:     d.Percent(),
	}
	if !d.LastPlayedAt.IsZero() {
		f.LastPlayedAt = d.LastPlayedAt.Format(time.RFC3339)
	}
	return f
}

// Stream serves display frames over server-sent events
// (GET /now-playing/stream?user=<id>). Each subscriber gets its own
// reconciler: a 1-second simulated progress ticker between 60-second
// authoritative polls, with an immediate re-fetch when a track ends.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("user")
	if accountID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	logger := h.logger.With("subscriber", uuid.NewString(), "account", accountID)

	fetch := func(ctx context.Context) (*playback.Snapshot, error) {
		token, err := h.gate.AccessToken(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return h.fetcher.Fetch(ctx, token)
	}

	rec := reconcile.New(fetch,
		reconcile.WithPollInterval(h.poll),
		reconcile.WithLogger(logger),
	)
	go rec.Run(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	logger.Debug("stream opened")
	defer logger.Debug("stream closed")

	for d := range rec.Updates() {
		payload, err := json.Marshal(displayFrame(d))
		if err != nil {
			logger.Error("encoding frame", "err", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
