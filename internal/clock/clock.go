package clock

import (
	"sync"
	"time"
)

// Clock allows injecting time into services and stores.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now, always in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant.
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

// Ticking advances by Step on every call.  Tests use it to get distinct,
// ordered purchase timestamps.
type Ticking struct {
	mu   sync.Mutex
	next time.Time
	Step time.Duration
}

func NewTicking(start time.Time, step time.Duration) *Ticking {
	return &Ticking{next: start.UTC(), Step: step}
}

func (t *Ticking) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.next
	t.next = t.next.Add(t.Step)
	return now
}
