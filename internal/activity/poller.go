package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MinInterval is the smallest polling interval the poller accepts.
// Pollers configured below it never start.
const MinInterval = time.Second

// FetchFunc performs one fetch. Its error is ignored by the poller: success
// and failure lead to the same next step.
type FetchFunc func(ctx context.Context) error

// State is the poller's position in its lifecycle.
type State int

const (
	// StateDormant means no timers are armed and no fetch is in flight.
	StateDormant State = iota

	// StateFetching means a fetch is in flight.
	StateFetching

	// StateScheduled means the next fetch and the idle timeout are armed.
	StateScheduled

	// StateStopped is terminal; the poller never fetches again.
	StateStopped
)

// String returns a lowercase name for the state.
func (s State) String() string {
	switch s {
	case StateDormant:
		return "dormant"
	case StateFetching:
		return "fetching"
	case StateScheduled:
		return "scheduled"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a [Poller].
type Option func(*Poller)

// WithClock replaces the runtime clock. Intended for tests.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Poller runs a fetch on a fixed interval while the user is active.
//
// After each fetch settles the poller schedules the next one after the
// interval and, if none is armed, an idle timeout of twice the interval.
// When the idle timeout fires the poller cancels its timers and goes dormant.
// A qualifying event from the [Source] wakes a dormant poller with an
// immediate fetch; events while fetching or scheduled are ignored.
//
// At most one fetch is in flight at a time. All transitions are serialized
// under a single mutex; the fetch itself runs on its own goroutine.
//
// Start and Stop are safe for concurrent use. A Poller cannot be restarted;
// create a new one when the interval or fetch function changes.
type Poller struct {
	fetch    FetchFunc
	interval time.Duration
	source   Source
	clock    Clock
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	ctx         context.Context
	cancel      context.CancelFunc
	stopWatch   func() bool
	unsubscribe []func()
	pending     bool
	nextFetch   Timer
	idle        Timer
	// sequence numbers discard callbacks of timers that fired while being stopped
	fetchSeq uint64
	idleSeq  uint64
	fetches  uint64

	wg sync.WaitGroup
}

// NewPoller creates a [Poller]. The poller does nothing until [Poller.Start].
//
// source may be nil, in which case a dormant poller is never reactivated.
func NewPoller(fetch FetchFunc, interval time.Duration, source Source, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		interval: interval,
		source:   source,
		clock:    RealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled reports whether the interval clears [MinInterval].
func (p *Poller) Enabled() bool {
	return p.interval >= MinInterval
}

// Interval returns the configured polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Fetches returns how many fetches have been started.
func (p *Poller) Fetches() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// Start activates the poller: it triggers an immediate fetch and subscribes
// to every qualifying event of the source.
//
// Start reports whether polling became active. It returns false when the
// interval is below [MinInterval], when the poller was already started, or
// when Stop was called first. Cancelling ctx stops the poller.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil || p.state == StateStopped {
		return false
	}
	if !p.Enabled() {
		p.logger.Info("polling disabled",
			"interval", p.interval.String(),
			"minimum", MinInterval.String(),
		)
		return false
	}

	if ctx == nil {
		ctx = context.Background()
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.stopWatch = context.AfterFunc(ctx, p.Stop)

	p.triggerLocked()

	if p.source != nil {
		for _, ev := range qualifyingEvents {
			p.unsubscribe = append(p.unsubscribe, p.source.Subscribe(ev, p.Activate))
		}
	}

	p.logger.Debug("polling started", "interval", p.interval.String())
	return true
}

// Activate handles a qualifying input event. A dormant poller fetches
// immediately; in any other state the call is a no-op.
func (p *Poller) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil || p.state != StateDormant {
		return
	}
	p.logger.Debug("polling resumed")
	p.triggerLocked()
}

// Stop cancels the poller like [Poller.Cancel] and waits for the in-flight
// fetch, if any, to return.
//
// Stop is idempotent and safe to call before Start. It must not be called
// from the fetch function; use Cancel there.
func (p *Poller) Stop() {
	p.Cancel()
	p.Wait()
}

// Cancel cancels both timers, removes all event subscriptions and cancels
// the context of any in-flight fetch without waiting for it. A fetch that
// settles afterwards schedules nothing.
//
// Cancel is idempotent, safe to call before Start and safe to call from the
// fetch function.
func (p *Poller) Cancel() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	p.state = StateStopped
	p.cancelTimersLocked()
	unsubs := p.unsubscribe
	p.unsubscribe = nil
	if p.cancel != nil {
		p.cancel()
	}
	if p.stopWatch != nil {
		p.stopWatch()
	}
	p.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

// Wait blocks until the in-flight fetch, if any, has returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// triggerLocked starts a fetch unless one is already pending.
// Caller must hold p.mu.
func (p *Poller) triggerLocked() {
	if p.pending {
		return
	}
	if p.nextFetch != nil {
		p.nextFetch.Stop()
		p.nextFetch = nil
	}
	p.fetchSeq++

	p.pending = true
	p.state = StateFetching
	p.fetches++

	ctx := p.ctx
	p.wg.Add(1)
	go p.run(ctx)
}

// run performs one fetch and hands control back to the state machine.
func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	// success and failure continue the same way
	_ = p.safeFetch(ctx)
	p.settle()
}

// safeFetch calls the fetch function, converting a panic into an error.
func (p *Poller) safeFetch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panic: %v", r)
		}
	}()
	return p.fetch(ctx)
}

// settle schedules the next cycle after a fetch completes.
func (p *Poller) settle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = false
	if p.state == StateStopped {
		return
	}

	p.fetchSeq++
	fetchSeq := p.fetchSeq
	p.nextFetch = p.clock.AfterFunc(p.interval, func() { p.onInterval(fetchSeq) })

	// the idle timeout is armed once per active period and is not extended
	if p.idle == nil {
		p.idleSeq++
		idleSeq := p.idleSeq
		p.idle = p.clock.AfterFunc(2*p.interval, func() { p.onIdle(idleSeq) })
	}

	p.state = StateScheduled
}

// onInterval fires the scheduled fetch.
func (p *Poller) onInterval(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != p.fetchSeq || p.state != StateScheduled {
		return
	}
	p.nextFetch = nil
	p.triggerLocked()
}

// onIdle suspends polling. A fetch in flight keeps running; its settle
// re-arms both timers.
func (p *Poller) onIdle(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seq != p.idleSeq || p.state == StateStopped {
		return
	}
	p.cancelTimersLocked()
	if p.state == StateScheduled {
		p.state = StateDormant
		p.logger.Debug("polling idle")
	}
}

// cancelTimersLocked stops both timers and invalidates their callbacks.
// Safe when neither is armed. Caller must hold p.mu.
func (p *Poller) cancelTimersLocked() {
	if p.nextFetch != nil {
		p.nextFetch.Stop()
		p.nextFetch = nil
	}
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	p.fetchSeq++
	p.idleSeq++
}
