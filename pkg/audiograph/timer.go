package audiograph

import (
	"sort"
	"time"
)

// Timer is a callback bound to the audio clock rather than the wall clock.
// It fires on the rendering goroutine once the clock passes its due time.
type Timer struct {
	ctx     *Context
	due     float64
	seq     int64
	f       func()
	stopped bool
}

// AfterFunc arms f to run once the clock has advanced by d.
// Timers armed on a closed context never fire.
func (c *Context) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timerSeq++
	t := &Timer{ctx: c, due: c.now() + d.Seconds(), seq: c.timerSeq, f: f}
	if c.state == StateClosed {
		t.stopped = true
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

// Stop prevents the timer from firing. It reports whether the call stopped
// the timer, as time.Timer.Stop does.
func (t *Timer) Stop() bool {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.ctx.timers = removeTimer(t.ctx.timers, t)
	return true
}

// PendingTimers returns the number of armed timers.
func (c *Context) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// collectTimers queues due timers in (due, seq) order.
// Must be called with c.mu held.
func (c *Context) collectTimers(now float64) {
	var due []*Timer
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.due <= now {
			t.stopped = true
			due = append(due, t)
			continue
		}
		kept = append(kept, t)
	}
	clear(c.timers[len(kept):])
	c.timers = kept

	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		c.callbacks = append(c.callbacks, t.f)
	}
}

func removeTimer(list []*Timer, target *Timer) []*Timer {
	kept := list[:0]
	for _, x := range list {
		if x != target {
			kept = append(kept, x)
		}
	}
	clear(list[len(kept):])
	return kept
}
