// Package tracker observes long-running backend operations by polling.
//
// The backend offers no push channel, so ingestion jobs registered
// after an upload are polled at a fixed interval until they report a
// terminal state. Terminal entries linger for a grace period (short on
// success so the user sees the confirmation, longer on failure so the
// error can be read) and are then removed; a successful completion
// additionally triggers a document-list refresh.
package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragdeck/ragdeck/internal/api"
)

// Defaults mirror the reference dashboard behavior.
const (
	DefaultInterval     = 3 * time.Second
	DefaultSuccessGrace = 2 * time.Second
	DefaultFailureGrace = 10 * time.Second
)

// Status is the locally observed state of a tracked operation.
type Status int

const (
	// StatusPending: the operation has not yet reported done.
	StatusPending Status = iota
	// StatusDone: terminal success observed, entry awaiting removal.
	StatusDone
	// StatusError: terminal failure observed, entry awaiting removal.
	StatusError
)

// String implements fmt.Stringer for display and logging.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// Entry is the local metadata kept per tracked operation.
type Entry struct {
	Name      string // Operation name (key)
	Label     string // Associated document display name
	StartedAt time.Time
	Status    Status
	Err       string // Terminal error message, set iff Status is StatusError
}

// Poller fetches operation status. *api.Client satisfies it; tests
// substitute fakes. Interface defined here, by the consumer.
type Poller interface {
	Operation(ctx context.Context, name string) (api.Operation, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithGrace sets the removal delays after terminal success and failure.
func WithGrace(success, failure time.Duration) Option {
	return func(t *Tracker) {
		t.successGrace = success
		t.failureGrace = failure
	}
}

// WithOnRefresh sets the hook fired after a successful operation's
// grace period, signaling that the document list should be refetched.
func WithOnRefresh(fn func()) Option {
	return func(t *Tracker) { t.onRefresh = fn }
}

// WithOnChange sets an optional hook fired whenever the tracked set or
// any entry's status changes, so a UI can re-render.
func WithOnChange(fn func()) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker polls registered operations until terminal. It is safe for
// concurrent use. Run drives the polling loop; Track may be called at
// any time before or during Run.
type Tracker struct {
	poller Poller
	logger *slog.Logger

	interval     time.Duration
	successGrace time.Duration
	failureGrace time.Duration

	// limiter paces status requests so a large tracked set does not
	// burst the backend at every tick. No backoff: failed polls are
	// retried at the next tick, unbounded.
	limiter *rate.Limiter

	onRefresh func()
	onChange  func()

	mu      sync.Mutex
	entries map[string]*Entry
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a Tracker polling through p. A nil logger falls back to
// slog.Default().
func New(p Poller, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		poller:       p,
		logger:       logger,
		interval:     DefaultInterval,
		successGrace: DefaultSuccessGrace,
		failureGrace: DefaultFailureGrace,
		onRefresh:    func() {},
		onChange:     func() {},
		entries:      make(map[string]*Entry),
		timers:       make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(t)
	}
	// Up to 10 polls per interval sustained, with a burst of one
	// interval's worth; no upper bound on the tracked set itself.
	t.limiter = rate.NewLimiter(rate.Every(t.interval/10), 10)
	return t
}

// Track registers an operation in state pending. Call once per
// acknowledged upload; re-registering an existing name is a no-op.
func (t *Tracker) Track(name, label string) {
	t.mu.Lock()
	if _, exists := t.entries[name]; exists {
		t.mu.Unlock()
		return
	}
	t.entries[name] = &Entry{
		Name:      name,
		Label:     label,
		StartedAt: time.Now(),
		Status:    StatusPending,
	}
	t.mu.Unlock()

	t.logger.Debug("tracking operation", "operation", name, "label", label)
	t.onChange()
}

// Entries returns a snapshot of all tracked operations, oldest first.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Len returns the number of tracked operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run polls until ctx is cancelled. Pending removal timers are stopped
// on exit; no callbacks fire after Run returns.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer t.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll issues one status request per pending operation. Order across
// operations is irrelevant; entries are keyed by name.
func (t *Tracker) poll(ctx context.Context) {
	t.mu.Lock()
	pending := make([]string, 0, len(t.entries))
	for name, e := range t.entries {
		if e.Status == StatusPending {
			pending = append(pending, name)
		}
	}
	t.mu.Unlock()

	for _, name := range pending {
		if err := t.limiter.Wait(ctx); err != nil {
			return
		}
		op, err := t.poller.Operation(ctx, name)
		if err != nil {
			// Keep the entry; it is retried on the next tick.
			t.logger.Warn("operation poll failed", "operation", name, "error", err)
			continue
		}
		if op.Done {
			t.complete(name, op)
		}
	}
}

// complete transitions an entry to its terminal status and schedules
// its grace-delayed removal. The entry is never polled again.
func (t *Tracker) complete(name string, op api.Operation) {
	t.mu.Lock()
	entry, ok := t.entries[name]
	if !ok || entry.Status != StatusPending || t.stopped {
		t.mu.Unlock()
		return
	}

	grace := t.successGrace
	refresh := true
	if op.Error != nil {
		entry.Status = StatusError
		entry.Err = op.Error.Message
		grace = t.failureGrace
		refresh = false
	} else {
		entry.Status = StatusDone
	}
	t.timers[name] = time.AfterFunc(grace, func() { t.remove(name, refresh) })
	t.mu.Unlock()

	if op.Error != nil {
		t.logger.Warn("operation failed", "operation", name, "label", entry.Label, "error", entry.Err)
	} else {
		t.logger.Info("operation completed", "operation", name, "label", entry.Label)
	}
	t.onChange()
}

// remove drops a terminal entry once its grace period has elapsed and,
// for successes, triggers the document-list refresh.
func (t *Tracker) remove(name string, refresh bool) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.entries, name)
	delete(t.timers, name)
	t.mu.Unlock()

	t.onChange()
	if refresh {
		t.onRefresh()
	}
}

// stop halts pending removal timers so no callback outlives Run.
func (t *Tracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}
