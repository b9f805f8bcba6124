// Package scheduler runs keyed, cancellable deferred tasks on a quartz clock.
//
// Keys are hierarchical strings such as "table/main/turn" so that everything
// belonging to one table or tournament can be cancelled with CancelPrefix.
// Scheduling a key that is already pending replaces the earlier task.
package scheduler

import (
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

type task struct {
	timer *quartz.Timer
	gen   uint64
	due   time.Time
}

// Scheduler is safe for concurrent use. Callbacks run on clock goroutines,
// never while the scheduler lock is held.
type Scheduler struct {
	clock  quartz.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	gen     uint64
	stopped bool
}

// New creates a scheduler on clock. Pass quartz.NewReal() in production and
// quartz.NewMock(t) in tests.
func New(clock quartz.Clock, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*task),
	}
}

// Clock returns the clock tasks are scheduled on.
func (s *Scheduler) Clock() quartz.Clock {
	return s.clock
}

// Now is the scheduler clock's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Schedule runs fn once after d. A pending task with the same key is
// cancelled first. Returns false after Stop.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(key, d, 0, fn)
}

func (s *Scheduler) scheduleLocked(key string, d, every time.Duration, fn func()) bool {
	if s.stopped {
		return false
	}
	if old, ok := s.tasks[key]; ok {
		old.timer.Stop()
	}
	if d < 0 {
		d = 0
	}

	s.gen++
	gen := s.gen
	t := &task{gen: gen, due: s.clock.Now().Add(d)}
	s.tasks[key] = t
	t.timer = s.clock.AfterFunc(d, func() { s.fire(key, gen, every, fn) }, "scheduler", key)
	return true
}

// Every runs fn every d until the key is cancelled. The next run is armed
// before fn executes, so fn may cancel its own key.
func (s *Scheduler) Every(key string, d time.Duration, fn func()) bool {
	if d <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(key, d, d, fn)
}

func (s *Scheduler) fire(key string, gen uint64, every time.Duration, fn func()) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	// a replaced or cancelled task can still fire if its timer raced Stop
	if !ok || t.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	if every > 0 {
		s.scheduleLocked(key, every, every, fn)
	} else {
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task", key).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Scheduled task panicked")
		}
	}()
	fn()
}

// Cancel stops the task with key. It reports whether a task was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// CancelPrefix stops every task whose key starts with prefix and returns how
// many were pending.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, t := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			t.timer.Stop()
			delete(s.tasks, key)
			n++
		}
	}
	return n
}

// Pending returns when the task with key is due.
func (s *Scheduler) Pending(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return time.Time{}, false
	}
	return t.due, true
}

// Keys lists pending task keys with prefix, sorted.
func (s *Scheduler) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stop cancels everything and rejects new tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	s.stopped = true
}
