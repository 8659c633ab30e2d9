package reconcile

import (
	"time"

	"github.com/ehjjacobson/tiny-tune/internal/playback"
)

// State is the widget-facing display state.
type State int

// Display states. Exactly one is live at a time.
const (
	StateLoading State = iota
	StatePlaying
	StatePaused
	StateEnded
	StateIdle
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Display is one frame of the human-facing widget state.
type Display struct {
	State       State
	TrackID     string
	Title       string
	Artist      string
	ArtworkURL  string
	ExternalURL string
	Position    time.Duration
	Duration    time.Duration

	// LastPlayedAt is set when the frame shows cached metadata for a track
	// that is no longer actively playing.
	LastPlayedAt time.Time
}

// Percent returns the displayed progress percentage, always within [0, 100].
func (d Display) Percent() float64 {
	if d.Duration <= 0 {
		return 0
	}
	p := float64(d.Position) / float64(d.Duration) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// machine is the pure reconciliation state machine. It owns no timers; the
// Run loop feeds it snapshots and ticks and acts on the transitions it
// reports. All simulated positions are anchored to the snapshot's FetchedAt
// wall clock, so ticks recompute rather than accumulate drift.
type machine struct {
	display Display
	snap    *playback.Snapshot

	// cached keeps the last known playing metadata so the widget can fall
	// back to "last played" instead of going blank.
	cached   Display
	cachedOK bool
	lastSeen time.Time

	now func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{
		display: Display{State: StateLoading},
		now:     now,
	}
}

// simulated returns the drift-free simulated position for the applied
// snapshot, clamped into [0, Duration].
func (m *machine) simulated() time.Duration {
	pos := m.snap.Progress + m.now().Sub(m.snap.FetchedAt)
	if pos < 0 {
		pos = 0
	}
	if pos > m.snap.Duration {
		pos = m.snap.Duration
	}
	return pos
}

// applySnapshot replaces all simulated state with the authoritative sample.
// The snapshot wins outright; it is never averaged with the simulated
// position. It reports whether the display ticker should run and whether an
// immediate re-fetch is warranted.
func (m *machine) applySnapshot(snap *playback.Snapshot) (tick, refetch bool) {
	if snap == nil {
		// Nothing playing. Fall back to the cached track if there is one.
		m.snap = nil
		if m.cachedOK {
			d := m.cached
			d.State = StatePaused
			d.LastPlayedAt = m.lastSeen
			m.display = d
			return false, false
		}
		m.display = Display{State: StateIdle}
		return false, false
	}

	m.snap = snap
	d := Display{
		TrackID:     snap.TrackID,
		Title:       snap.Title,
		Artist:      snap.Artist,
		ArtworkURL:  snap.ArtworkURL,
		ExternalURL: snap.ExternalURL,
		Duration:    snap.Duration,
	}

	if !snap.Playing {
		d.State = StatePaused
		d.Position = snap.Progress
		if m.cachedOK {
			d.LastPlayedAt = m.lastSeen
		}
		m.display = d
		return false, false
	}

	d.State = StatePlaying
	d.Position = m.simulated()
	m.display = d
	m.remember()

	if d.Position >= snap.Duration {
		m.display.State = StateEnded
		return false, true
	}
	return true, false
}

// tick advances the simulated position while playing. It reports whether
// the ticker should keep running and whether the track end was reached,
// which triggers an immediate re-fetch ahead of the coarse poll cycle.
func (m *machine) tick() (cont, refetch bool) {
	if m.display.State != StatePlaying || m.snap == nil {
		return false, false
	}

	pos := m.simulated()
	m.display.Position = pos
	if pos >= m.snap.Duration {
		m.display.State = StateEnded
		m.remember()
		return false, true
	}
	m.remember()
	return true, false
}

// applyError degrades the display instead of crashing: an initial failure
// shows the cached track or the idle placeholder, a later one leaves the
// current frame untouched.
func (m *machine) applyError() {
	if m.display.State != StateLoading {
		return
	}
	if m.cachedOK {
		d := m.cached
		d.State = StatePaused
		d.LastPlayedAt = m.lastSeen
		m.display = d
		return
	}
	m.display = Display{State: StateIdle}
}

// remember caches the current frame as the last known playing state.
func (m *machine) remember() {
	m.cached = m.display
	m.cachedOK = true
	m.lastSeen = m.now()
}
