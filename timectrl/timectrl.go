package timectrl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrNonMonotonic is returned when simulation time would move backwards.
var ErrNonMonotonic = errors.New("simulation time must not decrease")

// SimClock gives read access to the simulation time in seconds. Range
// models and movement models depend on it rather than on a concrete clock.
type SimClock interface {
	Now() float64
}

// Clock is the simulation-wide clock: a monotone non-decreasing number of
// seconds since the scenario start. Only the scheduler writes to it.
type Clock struct {
	mu  sync.RWMutex
	now float64
}

// NewClock returns a clock at t = 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current simulation time. Implements SimClock.
func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime moves the clock to t. Moving backwards is rejected.
func (c *Clock) SetTime(t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("%w: NaN", ErrNonMonotonic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.now {
		return fmt.Errorf("%w: %g < %g", ErrNonMonotonic, t, c.now)
	}
	c.now = t
	return nil
}

// Advance moves the clock forward by dt seconds and returns the new time.
func (c *Clock) Advance(dt float64) (float64, error) {
	if dt < 0 || math.IsNaN(dt) {
		return c.Now(), fmt.Errorf("%w: step %g", ErrNonMonotonic, dt)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += dt
	return c.now, nil
}

// Reset rewinds the clock to zero. It is part of the scenario reset
// protocol and the only way time goes back.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.now = 0
	c.mu.Unlock()
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// Accelerated steps as quickly as the listeners allow.
	Accelerated Mode = iota
	// RealTime sleeps one wall-clock tick between steps.
	RealTime
)

// Listener is invoked after every clock step with the new time. A listener
// error stops the controller.
type Listener func(now float64) error

// TimeController steps a Clock by a fixed tick and notifies listeners.
type TimeController struct {
	Clock *Clock
	// Tick is the step size in simulation seconds.
	Tick float64
	// End is the simulation time at which Run stops. Zero or negative
	// means run until the context is cancelled.
	End  float64
	Mode Mode

	listeners []Listener
}

// NewTimeController constructs an accelerated controller.
func NewTimeController(clock *Clock, tick, end float64) (*TimeController, error) {
	if clock == nil {
		clock = NewClock()
	}
	if !(tick > 0) || math.IsInf(tick, 0) {
		return nil, fmt.Errorf("tick must be a positive number of seconds, got %g", tick)
	}
	return &TimeController{
		Clock: clock,
		Tick:  tick,
		End:   end,
		Mode:  Accelerated,
	}, nil
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	tc.listeners = append(tc.listeners, fn)
}

// Step advances the clock by one tick (clamped to End) and runs listeners.
func (tc *TimeController) Step() error {
	dt := tc.Tick
	if tc.End > 0 {
		if rest := tc.End - tc.Clock.Now(); rest < dt {
			dt = rest
		}
	}
	now, err := tc.Clock.Advance(dt)
	if err != nil {
		return err
	}
	for _, fn := range tc.listeners {
		if err := fn(now); err != nil {
			return err
		}
	}
	return nil
}

// Done reports whether the clock has reached End.
func (tc *TimeController) Done() bool {
	return tc.End > 0 && tc.Clock.Now() >= tc.End
}

// Run steps the clock synchronously until End, a listener error, or ctx
// cancellation. It returns the first listener error or ctx.Err().
func (tc *TimeController) Run(ctx context.Context) error {
	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(time.Duration(tc.Tick * float64(time.Second)))
		defer ticker.Stop()
	}

	for !tc.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if err := tc.Step(); err != nil {
			return err
		}
	}
	return nil
}
