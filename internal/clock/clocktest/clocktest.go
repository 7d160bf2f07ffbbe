// Package clocktest provides manually driven tickers for deterministic tests
// of code built on clock.Ticker.
package clocktest

import (
	"sync"
	"time"

	"github.com/claude/gymrats/internal/clock"
)

// Ticker fires only when Fire is called.
type Ticker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

// C implements clock.Ticker.
func (t *Ticker) C() <-chan time.Time { return t.c }

// Stop implements clock.Ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (t *Ticker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire delivers one tick and blocks until the consumer has received it.
// It returns false if the consumer did not take the tick within a second,
// which happens once the owning goroutine has exited.
func (t *Ticker) Fire() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

// Factory hands out manual tickers and remembers them in creation order.
type Factory struct {
	created chan *Ticker
}

// NewFactory returns a Factory that can track up to 64 unclaimed tickers.
func NewFactory() *Factory {
	return &Factory{created: make(chan *Ticker, 64)}
}

// New satisfies clock.TickerFunc.
func (f *Factory) New(time.Duration) clock.Ticker {
	t := &Ticker{c: make(chan time.Time)}
	f.created <- t
	return t
}

// Next returns the next ticker created, waiting up to a second.
func (f *Factory) Next() *Ticker {
	select {
	case t := <-f.created:
		return t
	case <-time.After(time.Second):
		return nil
	}
}

// Pending reports how many created tickers have not been claimed with Next.
func (f *Factory) Pending() int {
	return len(f.created)
}
