package clock

import (
	"testing"
	"time"
)

func TestFakeTickDeliversToLiveTickers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	tk := f.NewTicker(time.Second)

	got := make(chan time.Time, 1)
	go func() { got <- <-tk.C() }()
	f.Tick(time.Second)

	if ts := <-got; !ts.Equal(start.Add(time.Second)) {
		t.Errorf("tick = %v", ts)
	}
	if !f.Now().Equal(start.Add(time.Second)) {
		t.Errorf("now = %v", f.Now())
	}
}

func TestFakeTickSkipsStoppedTickers(t *testing.T) {
	f := NewFake(time.Now())
	tk := f.NewTicker(time.Second)
	tk.Stop()
	tk.Stop()

	done := make(chan struct{})
	go func() {
		f.Tick(time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick blocked on a stopped ticker")
	}
}
