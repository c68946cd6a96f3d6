package app

import (
	"sync"
	"time"
)

// Remaining computes the time left until a server-issued absolute deadline,
// clamped at zero. Recomputing from the deadline instead of counting down a
// local clock keeps reconnecting clients honest about elapsed time.
func Remaining(deadline, now time.Time) time.Duration {
	left := deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Countdown watches a deadline and invokes onTimeUp exactly once when it
// passes. Fire may also be called directly (forced submission); the guard
// makes double-firing harmless.
type Countdown struct {
	deadline time.Time
	onTimeUp func()
	clock    func() time.Time
	tick     time.Duration

	fired    sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCountdown builds a countdown against deadline. onTimeUp must be
// non-blocking or fast; it runs on the countdown's goroutine.
func NewCountdown(deadline time.Time, onTimeUp func()) *Countdown {
	return &Countdown{
		deadline: deadline,
		onTimeUp: onTimeUp,
		clock:    time.Now,
		tick:     time.Second,
		stop:     make(chan struct{}),
	}
}

// Start launches the ticking goroutine. Stop releases it.
func (c *Countdown) Start() {
	go func() {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if Remaining(c.deadline, c.clock()) == 0 {
					c.Fire()
					return
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Remaining reports the time left on this countdown.
func (c *Countdown) Remaining() time.Duration {
	return Remaining(c.deadline, c.clock())
}

// Fire invokes the time-up callback; repeated calls are no-ops.
func (c *Countdown) Fire() {
	c.fired.Do(c.onTimeUp)
}

// Stop cancels the countdown without firing. Idempotent.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
