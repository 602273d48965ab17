// Package output connects an audiograph clock to the outside world: a live
// Ebitengine player, a paced headless sink, and WAV export of offline renders.
package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// DefaultBufferSize is the player buffer used when none is configured.
const DefaultBufferSize = 100 * time.Millisecond

// readyPollInterval is how often Start checks whether the device is ready.
const readyPollInterval = 10 * time.Millisecond

// EbitenSink plays an audiograph.Context through Ebitengine's audio context.
// Ebitengine allows one audio context per process; it is shared by every sink.
type EbitenSink struct {
	audioCtx   *audio.Context
	bufferSize time.Duration

	mu     sync.Mutex
	player *audio.Player
}

// NewEbitenSink returns a sink at sampleRate. If Ebitengine's audio context
// already exists with another rate, an error is returned.
func NewEbitenSink(sampleRate int, bufferSize time.Duration) (*EbitenSink, error) {
	if sampleRate <= 0 {
		sampleRate = audiograph.DefaultSampleRate
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	audioCtx := audio.CurrentContext()
	if audioCtx == nil {
		audioCtx = audio.NewContext(sampleRate)
	}
	if audioCtx.SampleRate() != sampleRate {
		return nil, fmt.Errorf("audio device already opened at %d Hz, want %d Hz", audioCtx.SampleRate(), sampleRate)
	}

	return &EbitenSink{
		audioCtx:   audioCtx,
		bufferSize: bufferSize,
	}, nil
}

// Start waits for the device and begins pulling 16-bit stereo frames from r.
// Calling Start after Pause resumes the same player.
func (s *EbitenSink) Start(ctx context.Context, r io.Reader) error {
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		player, err := s.audioCtx.NewPlayer(r)
		if err != nil {
			return fmt.Errorf("failed to create audio player: %w", err)
		}
		player.SetBufferSize(s.bufferSize)
		s.player = player
	}
	s.player.Play()
	return nil
}

func (s *EbitenSink) waitReady(ctx context.Context) error {
	if s.audioCtx.IsReady() {
		return nil
	}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("audio device not ready: %w", ctx.Err())
		case <-ticker.C:
			if s.audioCtx.IsReady() {
				return nil
			}
		}
	}
}

// Pause stops pulling frames.
func (s *EbitenSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// Close releases the player. The shared audio context stays open.
func (s *EbitenSink) Close() error {
	s.mu.Lock()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player == nil {
		return nil
	}
	player.Pause()
	if err := player.Close(); err != nil {
		return fmt.Errorf("failed to close audio player: %w", err)
	}
	return nil
}

// Playing reports whether the player is running.
func (s *EbitenSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.player.IsPlaying()
}
