// Package autosave writes the latest flow state once edits go quiet.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 1000 * time.Millisecond

// Saver persists a whole flow state. persistence.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, state *models.FlowState) bool
}

// Autosave debounces state updates into single writes. Every Update
// restarts the quiet interval; only the most recent state is written.
type Autosave struct {
	saver    Saver
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	onSave   func(ctx context.Context, state *models.FlowState)

	mu      sync.Mutex
	enabled bool
	closed  bool
	latest  *models.FlowState
	timer   clockwork.Timer
	// bumped on every reschedule or cancel; a firing timer with an older
	// generation has been superseded and must not write
	generation uint64
}

type Option func(*Autosave)

func WithInterval(interval time.Duration) Option {
	return func(a *Autosave) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

func WithEnabled(enabled bool) Option {
	return func(a *Autosave) {
		a.enabled = enabled
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(a *Autosave) {
		a.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Autosave) {
		a.logger = logger
	}
}

// WithOnSave registers a hook run after each successful write.
func WithOnSave(fn func(ctx context.Context, state *models.FlowState)) Option {
	return func(a *Autosave) {
		a.onSave = fn
	}
}

func New(saver Saver, opts ...Option) *Autosave {
	a := &Autosave{
		saver:    saver,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		logger:   slog.Default(),
		enabled:  true,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Autosave) Interval() time.Duration {
	return a.interval
}

// Update records state as the latest value and (re)schedules the pending write.
// When disabled the state is recorded but nothing is scheduled. After Close it is ignored.
func (a *Autosave) Update(state *models.FlowState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	a.latest = state

	if !a.enabled {
		return
	}

	a.cancelLocked()

	generation := a.generation
	a.timer = a.clock.AfterFunc(a.interval, func() {
		a.fire(generation)
	})
}

// SetEnabled toggles scheduling. Disabling cancels the pending write;
// enabling does not write by itself.
func (a *Autosave) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.enabled = enabled
	if !enabled {
		a.cancelLocked()
	}
}

func (a *Autosave) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.enabled
}

// Pending reports whether a write is scheduled.
func (a *Autosave) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.timer != nil
}

// Flush cancels the pending write and saves the latest state now.
// It reports whether anything was written.
func (a *Autosave) Flush(ctx context.Context) bool {
	a.mu.Lock()

	if a.closed || a.latest == nil {
		a.mu.Unlock()

		return false
	}

	a.cancelLocked()
	state := a.latest
	a.mu.Unlock()

	return a.write(ctx, state)
}

// Close cancels any pending write without flushing it. Later updates are ignored.
func (a *Autosave) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	if a.timer != nil {
		a.logger.Debug("Autosave closed with pending write discarded")
	}

	a.closed = true
	a.cancelLocked()
}

func (a *Autosave) fire(generation uint64) {
	a.mu.Lock()

	if generation != a.generation || a.closed || !a.enabled || a.latest == nil {
		a.mu.Unlock()

		return
	}

	a.timer = nil
	state := a.latest
	a.mu.Unlock()

	a.write(context.Background(), state)
}

func (a *Autosave) write(ctx context.Context, state *models.FlowState) bool {
	if !a.saver.Save(ctx, state) {
		return false
	}

	if a.onSave != nil {
		a.onSave(ctx, state)
	}

	return true
}

func (a *Autosave) cancelLocked() {
	a.generation++

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
