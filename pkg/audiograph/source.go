package audiograph

import (
	"math"
)

// Buffer holds decoded or generated sample data. Buffers are immutable once
// handed to nodes and may be shared by any number of them.
type Buffer struct {
	sampleRate int
	data       [][]float32
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(channels, length, sampleRate int) *Buffer {
	data := make([][]float32, channels)
	for i := range data {
		data[i] = make([]float32, length)
	}
	return &Buffer{sampleRate: sampleRate, data: data}
}

// Channel returns the samples of channel i for filling.
func (b *Buffer) Channel(i int) []float32 { return b.data[i] }

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.data) }

// Len returns the length in frames.
func (b *Buffer) Len() int {
	if len(b.data) == 0 {
		return 0
	}
	return len(b.data[0])
}

// SampleRate returns the sample rate the buffer was generated for.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Duration returns the length in seconds.
func (b *Buffer) Duration() float64 {
	if b.sampleRate == 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.sampleRate)
}

// source is the scheduling state shared by all source nodes.
type source struct {
	sctx      *Context
	started   bool
	ended     bool
	startTime float64
	stopTime  float64
	length    float64 // natural duration, +Inf when unbounded
	onEnded   func()
}

func newSource(ctx *Context) *source {
	return &source{sctx: ctx, stopTime: math.Inf(1), length: math.Inf(1)}
}

func (s *source) endTime() float64 {
	return math.Min(s.stopTime, s.startTime+s.length)
}

func (s *source) active(t float64) bool {
	return s.started && t >= s.startTime && t < s.endTime()
}

// Start schedules playback at when. A time in the past starts at the
// current time.
func (s *source) Start(when float64) error {
	c := s.sctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if s.started {
		return ErrInvalidState
	}
	s.started = true
	s.startTime = math.Max(when, c.now())
	c.sources = append(c.sources, s)
	return nil
}

// Stop schedules the end of playback at when. Stopping a source that was
// never started or has already ended returns ErrInvalidState.
func (s *source) Stop(when float64) error {
	c := s.sctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if !s.started || s.ended {
		return ErrInvalidState
	}
	s.stopTime = math.Max(when, c.now())
	return nil
}

// OnEnded registers f to run once playback has ended, either at the
// scheduled stop time or at the end of a non-looping buffer.
func (s *source) OnEnded(f func()) {
	s.sctx.mu.Lock()
	defer s.sctx.mu.Unlock()
	s.onEnded = f
}

// Ended reports whether the ended notification has been produced.
func (s *source) Ended() bool {
	s.sctx.mu.Lock()
	defer s.sctx.mu.Unlock()
	return s.ended
}

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

// OscillatorNode is a periodic source with a k-rate frequency parameter.
type OscillatorNode struct {
	*node
	*source
	Frequency *Param
	Type      Waveform

	phase float64 // cycles, in [0, 1)
}

// NewOscillator creates an oscillator at freq Hz.
func (c *Context) NewOscillator(w Waveform, freq float64) *OscillatorNode {
	o := &OscillatorNode{source: newSource(c), Type: w}
	o.node = newNode(c, o)
	o.Frequency = newParam(c, freq, 0, float64(c.sampleRate)/2)
	return o
}

func (o *OscillatorNode) process(_, out *bus, t0 float64) {
	out.channels = 1
	sr := float64(o.sctx.sampleRate)
	freq := o.Frequency.krate(t0)
	if !o.started || t0+RenderQuantum/sr <= o.startTime || t0 >= o.endTime() {
		out.reset()
		return
	}
	step := freq / sr
	for i := range RenderQuantum {
		var v float32
		if o.active(t0 + float64(i)/sr) {
			v = float32(wave(o.Type, o.phase))
			o.phase += step
			o.phase -= math.Floor(o.phase)
		}
		out.ch[0][i] = v
		out.ch[1][i] = v
	}
	out.silent = false
}

func wave(w Waveform, phase float64) float64 {
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// BufferSourceNode plays a Buffer once or in a loop.
type BufferSourceNode struct {
	*node
	*source
	buffer *Buffer
	loop   bool
}

// NewBufferSource creates a source for buf. Looping sources run until stopped.
func (c *Context) NewBufferSource(buf *Buffer, loop bool) *BufferSourceNode {
	b := &BufferSourceNode{source: newSource(c), buffer: buf, loop: loop}
	b.node = newNode(c, b)
	if !loop && buf != nil {
		b.length = float64(buf.Len()) / float64(c.sampleRate)
	}
	return b
}

func (b *BufferSourceNode) process(_, out *bus, t0 float64) {
	sr := float64(b.sctx.sampleRate)
	if b.buffer == nil || b.buffer.Len() == 0 || !b.started ||
		t0+RenderQuantum/sr <= b.startTime || t0 >= b.endTime() {
		out.reset()
		return
	}
	n := int64(b.buffer.Len())
	first := int64(math.Round(t0 * sr))
	startFrame := int64(math.Round(b.startTime * sr))
	left := b.buffer.data[0]
	right := left
	out.channels = 1
	if len(b.buffer.data) > 1 {
		right = b.buffer.data[1]
		out.channels = 2
	}
	for i := range RenderQuantum {
		var l, r float32
		if b.active(t0 + float64(i)/sr) {
			idx := first + int64(i) - startFrame
			if b.loop {
				idx %= n
			}
			if idx >= 0 && idx < n {
				l, r = left[idx], right[idx]
			}
		}
		out.ch[0][i] = l
		out.ch[1][i] = r
	}
	out.silent = false
}
