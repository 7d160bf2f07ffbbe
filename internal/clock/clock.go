package clock

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is a cancellable periodic source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall clock used to compute elapsed time.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithTicker overrides the tick source.
func WithTicker(f TickerFunc) Option {
	return func(c *Clock) { c.newTicker = f }
}

// WithInterval sets the tick period. Defaults to one second.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) { c.interval = d }
}

// Clock is a restartable elapsed-time ticker. Every tick recomputes elapsed
// time from the origin, so late or skipped ticks never drift the display.
type Clock struct {
	mu        sync.Mutex
	now       func() time.Time
	newTicker TickerFunc
	interval  time.Duration
	onTick    func(elapsed string)

	origin time.Time
	stop   chan struct{}
	done   chan struct{}
}

// New creates a stopped Clock that reports formatted elapsed time to onTick.
// onTick runs on the clock goroutine and must not block.
func New(onTick func(elapsed string), opts ...Option) *Clock {
	c := &Clock{
		now:       time.Now,
		newTicker: NewTicker,
		interval:  time.Second,
		onTick:    onTick,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins ticking from origin, or from now when origin is zero, and
// returns the origin actually used. A running clock is stopped first.
func (c *Clock) Start(origin time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	if origin.IsZero() {
		origin = c.now()
	}
	c.origin = origin
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	c.tick(origin)

	t := c.newTicker(c.interval)
	go c.run(t, origin, c.stop, c.done)

	return origin
}

// Stop halts ticking. It is safe to call on a stopped clock and returns only
// after the tick goroutine has exited.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Clock) stopLocked() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

// Running reports whether the clock is ticking.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// StartedAt returns the origin of the current or last run.
func (c *Clock) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

// Elapsed returns time since the origin, or zero when stopped.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return 0
	}
	return c.now().Sub(c.origin)
}

func (c *Clock) run(t Ticker, origin time.Time, stop, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			select {
			case <-stop:
				return
			default:
			}
			c.tick(origin)
		}
	}
}

func (c *Clock) tick(origin time.Time) {
	if c.onTick != nil {
		c.onTick(Format(c.now().Sub(origin)))
	}
}

// Format renders d as MM:SS, or HH:MM:SS from one hour up. Negative
// durations render as 00:00.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatSeconds renders a countdown value in seconds the same way as Format.
func FormatSeconds(seconds int) string {
	return Format(time.Duration(seconds) * time.Second)
}
