package sonify

import (
	"sync"
	"time"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Timers arms callbacks after a delay. The engine uses it for per-event
// notifications and the end-of-playback transition.
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallTimers struct{}

func (wallTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WallTimers arms callbacks on the wall clock. It is the default for live
// playback, where the audio clock advances in real time.
var WallTimers Timers = wallTimers{}

type clockTimers struct {
	ac *audiograph.Context
}

func (c clockTimers) AfterFunc(d time.Duration, f func()) Timer {
	return c.ac.AfterFunc(d, f)
}

// ClockTimers arms callbacks on the audio clock of ac. Offline renders use it
// so callbacks follow rendered time rather than wall time.
func ClockTimers(ac *audiograph.Context) Timers {
	return clockTimers{ac: ac}
}

// Task is a handle to a callback armed through a TaskSet.
type Task struct {
	id    uint64
	name  string
	timer Timer
}

// Name returns the label the task was scheduled with.
func (t *Task) Name() string { return t.name }

// TaskSet tracks every armed callback so they can be cancelled together.
// A task is live while it is in the set; cancelling removes it, and a timer
// that fires for a removed task does nothing even if Stop lost the race.
type TaskSet struct {
	timers Timers

	mu    sync.Mutex
	next  uint64
	tasks map[uint64]*Task
}

// NewTaskSet creates an empty set arming callbacks through timers.
func NewTaskSet(timers Timers) *TaskSet {
	return &TaskSet{timers: timers, tasks: make(map[uint64]*Task)}
}

// Schedule arms f after d. Negative delays fire as soon as possible.
func (s *TaskSet) Schedule(name string, d time.Duration, f func()) *Task {
	s.mu.Lock()
	s.next++
	t := &Task{id: s.next, name: name}
	s.tasks[t.id] = t
	s.mu.Unlock()

	timer := s.timers.AfterFunc(max(d, 0), func() {
		s.mu.Lock()
		_, live := s.tasks[t.id]
		delete(s.tasks, t.id)
		s.mu.Unlock()
		if live {
			f()
		}
	})

	s.mu.Lock()
	t.timer = timer
	s.mu.Unlock()
	return t
}

// Cancel removes t from the set and stops its timer. It reports whether the
// task was still pending.
func (s *TaskSet) Cancel(t *Task) bool {
	s.mu.Lock()
	_, live := s.tasks[t.id]
	delete(s.tasks, t.id)
	timer := t.timer
	s.mu.Unlock()
	if live && timer != nil {
		timer.Stop()
	}
	return live
}

// CancelAll cancels every pending task and returns how many there were.
func (s *TaskSet) CancelAll() int {
	s.mu.Lock()
	pending := make([]Timer, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.timer != nil {
			pending = append(pending, t.timer)
		}
	}
	n := len(s.tasks)
	clear(s.tasks)
	s.mu.Unlock()

	for _, timer := range pending {
		timer.Stop()
	}
	return n
}

// Len returns the number of pending tasks.
func (s *TaskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
