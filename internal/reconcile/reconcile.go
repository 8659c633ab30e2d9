// Package reconcile turns coarse playback snapshots into a smooth,
// monotonic, drift-corrected progress display. Snapshots arrive on a
// 60-second poll cycle; a 1-second local ticker simulates progress in
// between, and every arriving snapshot replaces the simulated position
// outright so drift never accumulates past one poll interval.
package reconcile

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ehjjacobson/tiny-tune/internal/playback"
)

const (
	// DefaultPollInterval is the coarse upstream polling cadence.
	DefaultPollInterval = 60 * time.Second

	// DefaultTickInterval drives the simulated progress display.
	DefaultTickInterval = time.Second
)

// FetchFunc obtains the next authoritative snapshot. A nil snapshot with a
// nil error means nothing is playing.
type FetchFunc func(ctx context.Context) (*playback.Snapshot, error)

// Reconciler drives the display state machine for one widget viewer. All
// state is owned by the Run goroutine; fetches run asynchronously and
// report back over a channel tagged with a sequence number so a stale
// in-flight response never overwrites a newer one.
type Reconciler struct {
	fetch   FetchFunc
	poll    time.Duration
	tick    time.Duration
	logger  *log.Logger
	now     func() time.Time
	updates chan Display
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPollInterval overrides the coarse polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.poll = d }
}

// WithTickInterval overrides the display tick cadence.
func WithTickInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.tick = d }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithClock overrides the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler fed by the given fetch function.
func New(fetch FetchFunc, opts ...Option) *Reconciler {
	r := &Reconciler{
		fetch:   fetch,
		poll:    DefaultPollInterval,
		tick:    DefaultTickInterval,
		logger:  log.Default(),
		now:     time.Now,
		updates: make(chan Display, 8),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Updates delivers display frames. The channel is closed when Run returns.
func (r *Reconciler) Updates() <-chan Display {
	return r.updates
}

type fetchResult struct {
	seq  uint64
	snap *playback.Snapshot
	err  error
}

// Run drives the reconciliation loop until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.updates)

	m := newMachine(r.now)
	r.emit(m.display)

	var (
		seq     uint64
		results = make(chan fetchResult, 4)

		// At most one display ticker is live at a time; starting a new one
		// replaces the old so timers never superimpose.
		ticker *time.Ticker
		tickCh <-chan time.Time
	)

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickCh = nil
		}
	}
	defer stopTicker()

	startTicker := func() {
		stopTicker()
		ticker = time.NewTicker(r.tick)
		tickCh = ticker.C
	}

	issueFetch := func() {
		seq++
		s := seq
		go func() {
			snap, err := r.fetch(ctx)
			select {
			case results <- fetchResult{seq: s, snap: snap, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	poll := time.NewTicker(r.poll)
	defer poll.Stop()

	issueFetch()

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			issueFetch()

		case res := <-results:
			if res.seq != seq {
				// A newer fetch was issued after this one; its response is
				// authoritative, this one is stale.
				continue
			}
			if res.err != nil {
				r.logger.Warn("snapshot fetch failed", "err", res.err)
				stopTicker()
				m.applyError()
				r.emit(m.display)
				continue
			}
			tick, refetch := m.applySnapshot(res.snap)
			if tick {
				startTicker()
			} else {
				stopTicker()
			}
			if refetch {
				issueFetch()
			}
			r.emit(m.display)

		case <-tickCh:
			cont, refetch := m.tick()
			if !cont {
				stopTicker()
			}
			if refetch {
				// Track end reached: re-fetch now instead of waiting for
				// the next coarse poll cycle.
				issueFetch()
			}
			r.emit(m.display)
		}
	}
}

// emit delivers a frame without ever blocking the loop; a slow consumer
// drops intermediate frames and picks up the next one.
func (r *Reconciler) emit(d Display) {
	select {
	case r.updates <- d:
	default:
	}
}
