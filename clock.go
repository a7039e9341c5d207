package framemonitor

import "time"

// Clock reads the current monotonic time as seconds.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

// MonotonicClock measures seconds elapsed since its creation using the
// monotonic reading carried by time.Time.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
