// Package clock provides time sources implementing ports.Clock.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/target/libsession/internal/ports"
)

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Manual)(nil)
)

// Real implements ports.Clock using the system clock.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc schedules f on its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}

// Manual is a clock that only moves when told to. Timers fire synchronously
// from Advance/Set, in deadline order, on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

// NewManual creates a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f to run once the clock reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) ports.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{clock: m, deadline: m.now.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that becomes due.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t, firing every timer with a deadline at or before t.
// Timers armed by fired callbacks are honored if they also fall due.
func (m *Manual) Set(t time.Time) {
	for {
		m.mu.Lock()
		if t.After(m.now) {
			m.now = t
		}
		due := m.popDue()
		m.mu.Unlock()
		if due == nil {
			return
		}
		due.fn()
	}
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Deadlines returns the deadlines of all armed timers in firing order.
func (m *Manual) Deadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sortTimers()
	out := make([]time.Time, len(m.timers))
	for i, t := range m.timers {
		out[i] = t.deadline
	}
	return out
}

// popDue removes and returns the earliest due timer. Callers must hold mu.
func (m *Manual) popDue() *manualTimer {
	m.sortTimers()
	if len(m.timers) == 0 || m.timers[0].deadline.After(m.now) {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	return t
}

func (m *Manual) sortTimers() {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      int
	fn       func()
}

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, armed := range m.timers {
		if armed == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}
