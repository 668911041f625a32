package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlarmUnavailable signals that the one-shot alarm capability cannot arm
// right now. The dispatcher degrades to sweep-only delivery on it; it is
// never surfaced to the user.
var ErrAlarmUnavailable = errors.New("native scheduling unavailable")

// AlarmScheduler is the opaque one-shot alarm capability. Arming returns an
// opaque handle; cancelling an unknown or already-fired handle is a no-op,
// not an error.
type AlarmScheduler interface {
	ArmOneShot(at time.Time, jobID string) (handle string, err error)
	Cancel(handle string) error
}

// TimerAlarms implements AlarmScheduler on process-local timers. It plays
// the role the OS alarm service plays on a device: low latency, but all
// armed alarms are lost on restart, which is exactly what the dispatcher's
// re-arm-on-start and backup sweep compensate for.
type TimerAlarms struct {
	mu      sync.Mutex
	handler func(jobID string)
	timers  map[string]*time.Timer
}

func NewTimerAlarms() *TimerAlarms {
	return &TimerAlarms{timers: make(map[string]*time.Timer)}
}

// Bind sets the delivery callback. Arming fails until a handler is bound.
func (a *TimerAlarms) Bind(handler func(jobID string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

func (a *TimerAlarms) ArmOneShot(at time.Time, jobID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handler == nil {
		return "", ErrAlarmUnavailable
	}

	handle := uuid.NewString()
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	a.timers[handle] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, handle)
		handler := a.handler
		a.mu.Unlock()
		if handler != nil {
			handler(jobID)
		}
	})
	return handle, nil
}

func (a *TimerAlarms) Cancel(handle string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[handle]; ok {
		t.Stop()
		delete(a.timers, handle)
	}
	return nil
}
