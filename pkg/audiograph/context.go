// Package audiograph provides a small pull-based audio node graph driven by a
// sample clock. It is the real-time audio facility used by the sonification
// engine: control code schedules parameter automation and source start/stop
// times on the clock, and a host sink (or an offline renderer) pulls rendered
// frames from the Context.
package audiograph

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// DefaultSampleRate is the sample rate used when none is configured.
const DefaultSampleRate = 44100

// RenderQuantum is the number of frames rendered per graph pass.
// Parameter automation of k-rate parameters is evaluated once per quantum.
const RenderQuantum = 128

var (
	// ErrClosed is returned by operations on a closed Context.
	ErrClosed = errors.New("audio context is closed")

	// ErrInvalidState is returned when a source is started twice or stopped
	// before it was started.
	ErrInvalidState = errors.New("invalid node state")
)

// State is the lifecycle state of a Context.
type State int

const (
	// StateSuspended means the clock is not advancing.
	StateSuspended State = iota
	// StateRunning means frames are being rendered.
	StateRunning
	// StateClosed means the context has released its resources.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sink drives a running Context from a host audio device.
// Start must begin pulling frames from r; Pause must stop pulling them.
type Sink interface {
	Start(ctx context.Context, r io.Reader) error
	Pause() error
	Close() error
}

// Context owns the audio clock and the node graph.
//
// All graph mutations (connections, parameter automation, source scheduling)
// and rendering are serialized by a single mutex. Callbacks produced while
// rendering (source ended notifications and clock timers) are invoked after
// the mutex is released, on the goroutine that rendered the frames.
type Context struct {
	sampleRate int
	sink       Sink

	mu      sync.Mutex
	state   State
	frame   int64 // frames rendered so far
	quantum int64

	dest     *DestinationNode
	sources  []*source
	timers   []*Timer
	timerSeq int64

	// Rendered quantum not yet handed out by Read/Render.
	outL, outR [RenderQuantum]float32
	outPos     int
	callbacks  []func()
}

// NewContext creates a suspended Context.
// A nil sink creates an offline context: Resume only flips the state and the
// caller advances the clock by calling Render.
func NewContext(sampleRate int, sink Sink) *Context {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	c := &Context{
		sampleRate: sampleRate,
		sink:       sink,
		state:      StateSuspended,
		outPos:     RenderQuantum,
	}
	c.dest = &DestinationNode{node: newNode(c, passthrough{})}
	return c
}

// SampleRate returns the sample rate in Hz.
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTime returns the clock position in seconds.
// It advances in whole render quanta.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Context) now() float64 {
	return float64(c.frame) / float64(c.sampleRate)
}

// Destination returns the final node of the graph.
func (c *Context) Destination() *DestinationNode {
	return c.dest
}

// Resume starts the clock. With a sink attached this waits for the sink to
// start pulling frames; an error from the sink is returned unchanged in the
// chain and the context stays suspended.
func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateRunning:
		c.mu.Unlock()
		return nil
	}
	c.state = StateRunning
	sink := c.sink
	c.mu.Unlock()

	if sink == nil {
		return nil
	}
	if err := sink.Start(ctx, c); err != nil {
		c.mu.Lock()
		if c.state == StateRunning {
			c.state = StateSuspended
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to start audio sink: %w", err)
	}
	return nil
}

// Suspend stops the clock without releasing the graph.
func (c *Context) Suspend() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateSuspended
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		return sink.Pause()
	}
	return nil
}

// Close stops the clock, closes the sink and drops the graph.
// Closing an already closed context is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	sink := c.sink
	c.sink = nil
	c.sources = nil
	c.timers = nil
	c.callbacks = nil
	c.dest.node.inputs = nil
	c.mu.Unlock()

	if sink != nil {
		return sink.Close()
	}
	return nil
}

// Render renders len(left) frames into left and right, advancing the clock.
// Both slices must have the same length. When the context is not running the
// buffers are filled with silence and the clock does not move.
func (c *Context) Render(left, right []float32) {
	n := min(len(left), len(right))

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		clear(left[:n])
		clear(right[:n])
		return
	}
	for i := 0; i < n; i++ {
		if c.outPos == RenderQuantum {
			c.renderQuantum()
		}
		left[i] = c.outL[c.outPos]
		right[i] = c.outR[c.outPos]
		c.outPos++
	}
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	for _, f := range callbacks {
		f()
	}
}

// RenderSeconds renders and discards d seconds of audio. It is used by
// offline renderers and tests to move the clock forward.
func (c *Context) RenderSeconds(d float64) {
	frames := int(math.Ceil(d * float64(c.sampleRate)))
	left := make([]float32, RenderQuantum)
	right := make([]float32, RenderQuantum)
	for frames > 0 {
		n := min(frames, RenderQuantum)
		c.Render(left[:n], right[:n])
		frames -= n
	}
}

// Read implements io.Reader for host players. It produces 16-bit signed
// little-endian interleaved stereo.
func (c *Context) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	left := make([]float32, frames)
	right := make([]float32, frames)
	c.Render(left, right)

	for i := range frames {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return frames * 4, nil
}

// renderQuantum pulls one quantum through the graph and collects callbacks
// that became due. Must be called with c.mu held.
func (c *Context) renderQuantum() {
	t0 := c.now()
	out := c.dest.node.pull(c.quantum, t0)
	c.outL = out.ch[0]
	c.outR = out.ch[1]
	c.outPos = 0

	c.frame += RenderQuantum
	c.quantum++
	now := c.now()

	// Sources ended during this quantum, in scheduling order.
	live := c.sources[:0]
	for _, s := range c.sources {
		if s.endTime() <= now {
			s.ended = true
			if s.onEnded != nil {
				c.callbacks = append(c.callbacks, s.onEnded)
			}
			continue
		}
		live = append(live, s)
	}
	clear(c.sources[len(live):])
	c.sources = live

	c.collectTimers(now)
}

func (c *Context) ensureOpen() error {
	if c.state == StateClosed {
		return ErrClosed
	}
	return nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
