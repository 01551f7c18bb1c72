package stats

import "time"

// DefaultRefreshRate is how many badge repaints per second are allowed.
const DefaultRefreshRate = 4

// AfterFunc arms a one-shot timer and returns a function that stops it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Scheduler coalesces repaint requests into at most one pending timer. It is
// not safe for concurrent use; the Tracker calls it under its own lock and the
// fire callback must call Done under that same lock.
type Scheduler struct {
	interval time.Duration
	after    AfterFunc

	pending bool
	stop    func() bool
}

// NewScheduler returns a scheduler firing refreshRate times per second at most.
// A nil after uses time.AfterFunc.
func NewScheduler(refreshRate int, after AfterFunc) *Scheduler {
	if refreshRate <= 0 {
		refreshRate = DefaultRefreshRate
	}
	if after == nil {
		after = realAfterFunc
	}
	return &Scheduler{
		interval: time.Second / time.Duration(refreshRate),
		after:    after,
	}
}

// Interval is the delay between arming and firing.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Arm schedules fire unless a repaint is already pending. It reports whether a
// new timer was armed.
func (s *Scheduler) Arm(fire func()) bool {
	if s.pending {
		return false
	}
	s.pending = true
	s.stop = s.after(s.interval, fire)
	return true
}

// Done clears the pending flag once the timer has fired.
func (s *Scheduler) Done() {
	s.pending = false
	s.stop = nil
}

// Pending reports whether a repaint timer is armed.
func (s *Scheduler) Pending() bool {
	return s.pending
}

// Stop cancels a pending timer. Only used at shutdown.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.pending = false
	s.stop = nil
}
