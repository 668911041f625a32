package dispatch

import "time"

// Clock is injected so tests can drive the dispatcher deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used in production.
var SystemClock Clock = systemClock{}
