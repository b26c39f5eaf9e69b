// Package reconcile turns a stream of possibly-duplicated notification
// and unread_count frames into monotonically-consistent display state.
package reconcile

import (
	"log/slog"
	"sync"

	"github.com/opsdash/notify-stream/internal/client"
	wserrors "github.com/opsdash/notify-stream/internal/errors"
	"github.com/opsdash/notify-stream/internal/protocol"
	"github.com/opsdash/notify-stream/internal/sink"
	"github.com/opsdash/notify-stream/internal/types"
)

// maxPlausibleCount bounds counts accepted from the wire. Anything above
// it (or below zero) is treated as a reconciliation error and clamped to
// the last known-good value.
const maxPlausibleCount = 1_000_000

// SeenStore persists rendered identifiers and the last known-good count
// across client restarts within a session. *state.Session satisfies it.
type SeenStore interface {
	MarkSeen(id string) error
	LoadSeen() (map[string]struct{}, error)
	SetLastCount(n int) error
	LastCount() (n int, ok bool, err error)
}

// Config holds the reconciler's collaborators.
type Config struct {
	// Sink receives reconciled display updates. Nil means discard.
	Sink sink.Sink

	// Registry decides per-type toast/sound eligibility. Nil means the
	// built-in types.
	Registry *types.Registry

	// Store optionally persists the dedup set and count.
	Store SeenStore
}

// Reconciler consumes decoded frames from the connection's event loop.
// The authoritative count is always replaced, never accumulated, and
// each notification identifier reaches the sink at most once per
// session. Reconciliation never fails fatally: bad input is logged and
// the previous state stays live.
type Reconciler struct {
	logger   *slog.Logger
	sink     sink.Sink
	registry *types.Registry
	store    SeenStore

	// mu guards the maps and count. Frames arrive on a single ordered
	// path per connection epoch, but state transitions are observed from
	// the same machine and accessors may be called from anywhere.
	mu        sync.Mutex
	seen      map[string]struct{}
	epoch     map[string]struct{}
	count     int
	haveCount bool
}

// New creates a Reconciler. When a store is configured, the session's
// dedup set and last count are seeded from it so a restarted client
// does not replay toasts or lose its clamping baseline.
func New(cfg Config, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		logger:   logger,
		sink:     cfg.Sink,
		registry: cfg.Registry,
		store:    cfg.Store,
		seen:     make(map[string]struct{}),
		epoch:    make(map[string]struct{}),
	}
	if r.sink == nil {
		r.sink = sink.Nop{}
	}
	if r.registry == nil {
		r.registry = types.NewRegistry(logger)
	}

	if r.store != nil {
		seen, err := r.store.LoadSeen()
		if err != nil {
			logger.Warn("loading seen identifiers", slog.String("error", err.Error()))
		} else {
			r.seen = seen
		}

		n, ok, err := r.store.LastCount()
		if err != nil {
			logger.Warn("loading last count", slog.String("error", err.Error()))
		} else if ok {
			r.count = n
			r.haveCount = true
		}
	}

	return r
}

// HandleFrame implements client.Handler. Liveness frames never arrive
// here; the connection filters them.
func (r *Reconciler) HandleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindUnreadCount:
		r.applyCount(f.Count)
	case protocol.KindNotification:
		r.applyNotification(*f.Notification)
	default:
		r.logger.Debug("unexpected frame kind", slog.String("kind", f.Kind))
	}
}

// ConnectionStateChanged implements the client observer. On every open,
// including reconnects, the per-epoch arrival set resets; the dedup set
// and the authoritative count survive until the next unread_count frame.
func (r *Reconciler) ConnectionStateChanged(s client.State) {
	if s != client.StateOpen {
		return
	}

	r.mu.Lock()
	arrivals := len(r.epoch)
	r.epoch = make(map[string]struct{})
	r.mu.Unlock()

	r.logger.Debug("connection open, epoch reset", slog.Int("previous_arrivals", arrivals))
}

// applyCount replaces the authoritative count. The backend's value is
// the source of truth; the client never adds or subtracts.
func (r *Reconciler) applyCount(n int) {
	if n < 0 || n > maxPlausibleCount {
		r.mu.Lock()
		last := r.count
		r.mu.Unlock()

		r.logger.Warn("clamping unread count",
			slog.String("error", wserrors.ErrReconciliation.Error()),
			slog.Int("received", n),
			slog.Int("kept", last),
		)
		return
	}

	r.mu.Lock()
	r.count = n
	r.haveCount = true
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SetLastCount(n); err != nil {
			r.logger.Warn("persisting unread count", slog.String("error", err.Error()))
		}
	}

	r.sink.SetUnreadCount(n)
}

// applyNotification forwards a new event to the sink exactly once per
// identifier per session. Duplicates are discarded: delivery is
// at-least-once across reconnects, so re-sent frames are expected. The
// displayed count is never incremented here; unread_count frames remain
// the single source for the badge.
func (r *Reconciler) applyNotification(ev protocol.NotificationEvent) {
	r.mu.Lock()
	if _, dup := r.seen[ev.ID]; dup {
		r.mu.Unlock()
		r.logger.Debug("duplicate notification dropped", slog.String("id", ev.ID))
		return
	}
	r.seen[ev.ID] = struct{}{}
	r.epoch[ev.ID] = struct{}{}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.MarkSeen(ev.ID); err != nil {
			r.logger.Warn("persisting seen identifier",
				slog.String("id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	def := r.registry.Lookup(ev.Type)
	if ev.Level == "" {
		ev.Level = def.Level
	}

	if def.WebEnabled() {
		r.sink.ShowToast(ev)
	}
	if def.SoundEnabled() {
		r.sink.PlayAlertSound()
	}
}

// UnreadCount returns the current authoritative count. ok is false when
// no count has been received or restored yet.
func (r *Reconciler) UnreadCount() (n int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count, r.haveCount
}

// EpochArrivals returns how many new notifications arrived since the
// connection last opened.
func (r *Reconciler) EpochArrivals() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.epoch)
}
