package audiograph

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

// testSampleRate renders exactly 100 quanta per second, which keeps clock
// arithmetic in tests exact.
const testSampleRate = 100 * RenderQuantum

func newRunningContext(t *testing.T) *Context {
	t.Helper()
	c := NewContext(testSampleRate, nil)
	if err := c.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	return c
}

type fakeSink struct {
	startErr error
	started  int
	paused   int
	closed   int
	reader   io.Reader
}

func (s *fakeSink) Start(_ context.Context, r io.Reader) error {
	s.started++
	s.reader = r
	return s.startErr
}

func (s *fakeSink) Pause() error {
	s.paused++
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

func TestNewContextIsSuspended(t *testing.T) {
	c := NewContext(0, nil)
	if c.State() != StateSuspended {
		t.Errorf("State() = %v, want suspended", c.State())
	}
	if c.SampleRate() != DefaultSampleRate {
		t.Errorf("SampleRate() = %d, want %d", c.SampleRate(), DefaultSampleRate)
	}

	left := make([]float32, 256)
	right := make([]float32, 256)
	c.Render(left, right)
	if c.CurrentTime() != 0 {
		t.Errorf("clock advanced while suspended: %v", c.CurrentTime())
	}
}

func TestRenderAdvancesClockInQuanta(t *testing.T) {
	c := newRunningContext(t)
	c.RenderSeconds(1)
	if got := c.CurrentTime(); got != 1 {
		t.Errorf("CurrentTime() = %v, want 1", got)
	}

	// A partial quantum renders the whole quantum ahead of time.
	left := make([]float32, 10)
	right := make([]float32, 10)
	c.Render(left, right)
	if got := c.CurrentTime(); got != 1.01 {
		t.Errorf("CurrentTime() = %v, want 1.01", got)
	}
}

func TestResumeWithSink(t *testing.T) {
	sink := &fakeSink{}
	c := NewContext(testSampleRate, sink)
	if err := c.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if sink.started != 1 || sink.reader != c {
		t.Errorf("sink not started with the context as reader")
	}
	if err := c.Resume(context.Background()); err != nil {
		t.Fatalf("second Resume failed: %v", err)
	}
	if sink.started != 1 {
		t.Errorf("sink started %d times, want 1", sink.started)
	}

	if err := c.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if sink.paused != 1 || c.State() != StateSuspended {
		t.Errorf("Suspend did not pause the sink")
	}
}

func TestResumeFailureKeepsContextSuspended(t *testing.T) {
	errDevice := errors.New("no device")
	c := NewContext(testSampleRate, &fakeSink{startErr: errDevice})

	err := c.Resume(context.Background())
	if !errors.Is(err, errDevice) {
		t.Fatalf("Resume error = %v, want %v", err, errDevice)
	}
	if c.State() != StateSuspended {
		t.Errorf("State() = %v, want suspended", c.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	c := NewContext(testSampleRate, sink)
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
	if err := c.Resume(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Resume after Close = %v, want ErrClosed", err)
	}

	osc := c.NewOscillator(Sine, 440)
	if err := osc.Start(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestReadProducesInterleavedPCM(t *testing.T) {
	c := newRunningContext(t)
	src := c.NewBufferSource(constantBuffer(testSampleRate, 0.5), false)
	src.Connect(c.Destination())
	if err := src.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p := make([]byte, 4*16)
	n, err := c.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = (%d, %v), want (%d, nil)", n, err, len(p))
	}
	l := int16(binary.LittleEndian.Uint16(p[0:]))
	r := int16(binary.LittleEndian.Uint16(p[2:]))
	want := int16(16383) // 0.5 at 16-bit full scale
	if l != want || r != want {
		t.Errorf("first frame = (%d, %d), want (%d, %d)", l, r, want, want)
	}
}

func TestTimersFollowTheAudioClock(t *testing.T) {
	c := newRunningContext(t)
	var fired []string
	c.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "b") })
	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, "x") })
	if !stopped.Stop() {
		t.Fatal("Stop() = false for an armed timer")
	}
	if stopped.Stop() {
		t.Error("second Stop() = true")
	}

	c.RenderSeconds(0.3)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("fired = %v after 0.3s, want [a]", fired)
	}
	c.RenderSeconds(0.3)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("fired = %v after 0.6s, want [a b]", fired)
	}
	if c.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d, want 0", c.PendingTimers())
	}
}

func TestTimerOnClosedContextNeverFires(t *testing.T) {
	c := newRunningContext(t)
	c.AfterFunc(10*time.Millisecond, func() { t.Error("timer fired after Close") })
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c.AfterFunc(0, func() { t.Error("timer armed on closed context fired") })
	c.RenderSeconds(0.1)
}

func constantBuffer(sampleRate int, v float32) *Buffer {
	b := NewBuffer(1, sampleRate, sampleRate)
	for i := range b.Channel(0) {
		b.Channel(0)[i] = v
	}
	return b
}

func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}
