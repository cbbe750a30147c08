// Package clock abstracts tickers so the recording loop can be driven by
// simulated seconds in tests.
package clock

import (
	"sync"
	"time"
)

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers and reports the current time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced clock. Tick delivers one tick to every live
// ticker and blocks until each has been received.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers chan *fakeTicker
	live    []*fakeTicker
}

// NewFake returns a fake clock frozen at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now, tickers: make(chan *fakeTicker, 16)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time), stopped: make(chan struct{})}
	f.tickers <- t
	return t
}

// Tick advances the clock by d and fires every ticker created so far that
// has not been stopped.
func (f *Fake) Tick(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	f.mu.Unlock()
	for {
		select {
		case t := <-f.tickers:
			f.live = append(f.live, t)
			continue
		default:
		}
		break
	}
	live := f.live[:0]
	for _, t := range f.live {
		select {
		case t.c <- now:
			live = append(live, t)
		case <-t.stopped:
		}
	}
	f.live = live
}

type fakeTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}
