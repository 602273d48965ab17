package sonify

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// manualTimers hands out timers that only fire when the test says so. Their
// Stop always loses the race, which is the worst case for cancellation.
type manualTimers struct {
	armed []func()
	delay []time.Duration
}

type lostRaceTimer struct{}

func (lostRaceTimer) Stop() bool { return false }

func (m *manualTimers) AfterFunc(d time.Duration, f func()) Timer {
	m.armed = append(m.armed, f)
	m.delay = append(m.delay, d)
	return lostRaceTimer{}
}

func (m *manualTimers) fireAll() {
	for _, f := range m.armed {
		f()
	}
}

func TestTaskSetRunsLiveTasksOnce(t *testing.T) {
	timers := &manualTimers{}
	s := NewTaskSet(timers)

	var calls int
	s.Schedule("a", time.Second, func() { calls++ })
	require.Equal(t, 1, s.Len())

	timers.fireAll()
	timers.fireAll()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestTaskSetCancelWinsOverLateFire(t *testing.T) {
	timers := &manualTimers{}
	s := NewTaskSet(timers)

	var calls int
	a := s.Schedule("a", time.Second, func() { calls++ })
	s.Schedule("b", time.Second, func() { calls++ })
	s.Schedule("c", -time.Second, func() { calls++ })

	assert.Equal(t, "a", a.Name())
	assert.True(t, s.Cancel(a))
	assert.False(t, s.Cancel(a))
	assert.Equal(t, 2, s.CancelAll())
	assert.Equal(t, 0, s.CancelAll())

	timers.fireAll()
	assert.Zero(t, calls, "cancelled tasks must not run")
	assert.Equal(t, time.Duration(0), timers.delay[2], "negative delays are clamped")
}

func TestTaskSetOnAudioClock(t *testing.T) {
	ac := audiograph.NewContext(testRate, nil)
	require.NoError(t, ac.Resume(t.Context()))
	s := NewTaskSet(ClockTimers(ac))

	var fired atomic.Int32
	s.Schedule("keep", 100*time.Millisecond, func() { fired.Add(1) })
	drop := s.Schedule("drop", 100*time.Millisecond, func() { fired.Add(10) })
	s.Cancel(drop)
	assert.Equal(t, 1, ac.PendingTimers())

	ac.RenderSeconds(0.2)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, s.Len())
}

func TestWallTimersFire(t *testing.T) {
	s := NewTaskSet(WallTimers)
	done := make(chan struct{})
	s.Schedule("wall", time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wall timer did not fire")
	}
}
