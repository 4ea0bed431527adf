package core

import "time"

// Clock supplies "now" to every date-dependent operation.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T. Used by tests and replay tooling.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Today returns the clock's current calendar day.
func Today(c Clock) Date {
	return DateOf(c.Now())
}
