// Package clock provides an injectable time source so components that stamp
// or age data (ban expiry, peer-score decay, outpoint-cache TTL) can be
// driven by a fake clock in tests instead of wall time. Only components that
// take a Clock are driven this way; the peer handshake and address book, the
// ban registry, DNS seeding and the block puller call time.Now directly.
package clock

import (
	"sync"
	"time"

	"github.com/kpango/fastime"
)

// Clock is the time source every timing-sensitive component depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker so FakeClock can hand out a channel it controls.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is backed by kpango/fastime's cached clock, which amortizes the
// syscall cost of repeated time.Now() calls on the node's hot paths (score
// decay checks, cache TTL checks) at the cost of sub-second precision.
type Real struct{}

func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time                       { return fastime.Now() }
func (Real) Since(t time.Time) time.Duration      { return fastime.Now().Sub(t) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fake is a manually-advanced clock for deterministic tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
	tickers []*fakeTicker
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := f.now.Add(d)

	if !deadline.After(f.now) {
		ch <- f.now
		return ch
	}

	f.waiters = append(f.waiters, fakeWaiter{deadline: deadline, ch: ch})
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{period: d, ch: make(chan time.Time, 1), next: f.Now().Add(d)}

	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()

	return t
}

// Advance moves the fake clock forward by d, firing any waiters (After
// channels, tickers) whose deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !now.Before(w.deadline) {
			w.ch <- now
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining

	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !now.Before(t.next) {
			select {
			case t.ch <- now:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
	f.mu.Unlock()
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
