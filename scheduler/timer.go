package scheduler

import (
	"fmt"
	"time"
)

// Ticker is a Timer backed by time.Ticker.
type Ticker struct {
	t       *time.Ticker
	period  time.Duration
	pending bool
}

func NewTicker(hz float64) (*Ticker, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("scheduler: invalid sample rate %v Hz", hz)
	}
	period := time.Duration(float64(time.Second) / hz)
	if period <= 0 {
		return nil, fmt.Errorf("scheduler: sample rate %v Hz too high", hz)
	}
	return &Ticker{t: time.NewTicker(period), period: period}, nil
}

func (t *Ticker) Period() time.Duration {
	return t.period
}

// Fired reports a tick without waiting for one. Ticks missed while the loop was
// busy collapse into one, as time.Ticker drops them.
func (t *Ticker) Fired() bool {
	if t.pending {
		t.pending = false
		return true
	}
	select {
	case <-t.t.C:
		return true
	default:
		return false
	}
}

func (t *Ticker) Stop() {
	t.t.Stop()
}

// Idle returns an IdleFunc that waits for the next tick, or at most max.
// A tick that ends the wait is kept for the next Fired.
func (t *Ticker) Idle(max time.Duration) IdleFunc {
	timer := time.NewTimer(max)
	timer.Stop()
	return func() {
		if t.pending {
			return
		}
		timer.Reset(max)
		select {
		case <-t.t.C:
			t.pending = true
			timer.Stop()
		case <-timer.C:
		}
	}
}

// SleepIdle is an IdleFunc that just sleeps.
func SleepIdle(d time.Duration) IdleFunc {
	return func() { time.Sleep(d) }
}
