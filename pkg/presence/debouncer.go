package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer turns noisy per-frame presence into a debounced State.
//
// A present result cancels any pending absence timer and restores Visible
// immediately. An absent result starts the timer only if none is pending,
// so repeated absent results never stack timers. After Close nothing
// mutates the state.
type Debouncer struct {
	window time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	since    time.Time
	timer    *clock.Timer
	deadline time.Time
	gen      uint64
	started  int
	closed   bool

	subs    map[int]func(Transition)
	nextSub int
}

// New creates a debouncer in the Visible state. A nil clock uses wall time.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AbsenceWindow <= 0 {
		cfg.AbsenceWindow = DefaultAbsenceWindow
	}
	return &Debouncer{
		window: cfg.AbsenceWindow,
		clock:  clk,
		logger: logger,
		state:  Visible,
		since:  clk.Now(),
		subs:   make(map[int]func(Transition)),
	}
}

// Observe feeds one detection result.
func (d *Debouncer) Observe(present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if present {
		d.cancelLocked()
		d.setLocked(Visible, d.clock.Now())
		return
	}

	if d.timer != nil || d.state == NotVisible {
		return
	}
	d.gen++
	gen := d.gen
	d.started++
	d.deadline = d.clock.Now().Add(d.window)
	d.timer = d.clock.AfterFunc(d.window, func() { d.expire(gen) })
	d.logger.Debug("absence timer started", "window", d.window)
}

// expire runs on the timer goroutine. A callback from a timer that was
// canceled or superseded carries a stale generation and is ignored.
func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || gen != d.gen {
		return
	}
	d.timer = nil
	d.setLocked(NotVisible, d.deadline)
}

func (d *Debouncer) cancelLocked() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
}

func (d *Debouncer) setLocked(s State, at time.Time) {
	if d.state == s {
		return
	}
	t := Transition{From: d.state, To: s, At: at}
	d.state = s
	d.since = at
	d.logger.Info("presence changed", "from", t.From, "to", t.To)

	for _, fn := range d.subs {
		fn(t)
	}
}

// State returns the current debounced state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Since returns when the current state was entered.
func (d *Debouncer) Since() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.since
}

// Pending reports whether an absence timer is running.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// TimersStarted returns how many absence timers have been started.
func (d *Debouncer) TimersStarted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Subscribe registers fn for state transitions. fn is called with the
// debouncer locked, in transition order, and must not call back into it.
func (d *Debouncer) Subscribe(fn func(Transition)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// Close cancels any pending timer. Later results and stale timer
// callbacks are ignored. Close is idempotent.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.cancelLocked()
	clear(d.subs)
}

// Closed reports whether Close has been called.
func (d *Debouncer) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
