package output

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// DefaultPaceInterval is the default interval between pulls of a PacedSink.
const DefaultPaceInterval = 10 * time.Millisecond

// PacedSink pulls frames in real time and discards them. It drives the
// audio clock in headless runs where no device is available.
type PacedSink struct {
	sampleRate int
	interval   time.Duration

	mu      sync.Mutex
	running bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	doneCh  chan struct{}

	frames atomic.Int64
}

// NewPacedSink returns a sink that pulls sampleRate*interval frames per tick.
// If interval is 0 or negative, DefaultPaceInterval is used.
func NewPacedSink(sampleRate int, interval time.Duration) *PacedSink {
	if sampleRate <= 0 {
		sampleRate = audiograph.DefaultSampleRate
	}
	if interval <= 0 {
		interval = DefaultPaceInterval
	}
	return &PacedSink{sampleRate: sampleRate, interval: interval}
}

// Start begins pulling from r. If the sink is already running, it does nothing.
func (s *PacedSink) Start(_ context.Context, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)

	go s.run(r, s.ticker, s.stopCh, s.doneCh)
	return nil
}

func (s *PacedSink) run(r io.Reader, ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	frames := int(float64(s.sampleRate) * s.interval.Seconds())
	buf := make([]byte, max(frames, 1)*4)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			n, err := io.ReadFull(r, buf)
			s.frames.Add(int64(n / 4))
			if err != nil {
				return
			}
		}
	}
}

// Pause stops pulling and waits for the pull goroutine to exit.
// Pause must not be called from a callback running on that goroutine.
func (s *PacedSink) Pause() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	// Wait outside the lock; the goroutine may be rendering.
	<-doneCh

	s.mu.Lock()
	s.ticker.Stop()
	s.ticker = nil
	s.stopCh = nil
	s.doneCh = nil
	s.mu.Unlock()
	return nil
}

// Close is Pause.
func (s *PacedSink) Close() error {
	return s.Pause()
}

// Running reports whether the sink is pulling frames.
func (s *PacedSink) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Frames returns the number of frames pulled so far.
func (s *PacedSink) Frames() int64 {
	return s.frames.Load()
}
