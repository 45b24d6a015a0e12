package core

import (
	"time"

	"github.com/benbjohnson/clock"
)

// TimeSource is the time abstraction shared by the engine loop, the asset
// driver's tick budget and the immediate-load deadlines. Tests inject
// clock.NewMock().
type TimeSource = clock.Clock

// NewTimeSource returns the wall clock.
func NewTimeSource() TimeSource {
	return clock.New()
}

type Clock struct {
	source    TimeSource
	startTime time.Time
	elapsed   time.Duration
}

func NewClock(source TimeSource) *Clock {
	if source == nil {
		source = clock.New()
	}
	return &Clock{source: source}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = c.source.Since(c.startTime)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.source.Now()
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

// Elapsed returns the seconds between Start and the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}

func (c *Clock) Source() TimeSource {
	return c.source
}
