package scheduler

import (
	"fmt"
	"sync"
	"time"
)

type delayClass int

const (
	classRedraw delayClass = iota
	classIdle
	classTimer
)

// Delay selects when an armed job fires.
type Delay struct {
	class delayClass
	d     time.Duration
}

var (
	// BeforeRedraw runs ahead of every other queued job: the tightest granularity.
	BeforeRedraw = Delay{class: classRedraw}
	// Idle runs once no redraw work and no due timer remain.
	Idle = Delay{class: classIdle}
	// Short coalesces bursts of events.
	Short = After(100 * time.Millisecond)
	// Long is for expensive or disruptive follow-ups.
	Long = After(500 * time.Millisecond)
)

// After returns a timer delay. Non-positive durations degrade to Idle.
func After(d time.Duration) Delay {
	if d <= 0 {
		return Idle
	}
	return Delay{class: classTimer, d: d}
}

// Duration is the timer length, zero for the redraw and idle classes.
func (d Delay) Duration() time.Duration {
	return d.d
}

func (d Delay) String() string {
	switch d.class {
	case classRedraw:
		return "before-redraw"
	case classIdle:
		return "idle"
	}
	return fmt.Sprintf("after(%s)", d.d)
}

// Clock supplies the loop's notion of now.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to. Loops built on it fire timers during
// Flush once Advance has carried the clock past their due time.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
