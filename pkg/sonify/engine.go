// Package sonify turns a collection of geolocated, magnitude-tagged events
// into a time-compressed performance on an audiograph clock.
//
// An Engine compresses the events' real-world span into a fixed duration,
// schedules one two-layer voice per event over a persistent drone, and owns
// the teardown of every voice, timer and buffer it created. Start and Stop
// may be called any number of times; Close releases the audio clock.
package sonify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/zurustar/seismosonic/pkg/audiograph"
	"github.com/zurustar/seismosonic/pkg/logger"
)

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("sonify: engine is closed")

	// ErrNotSupported is returned when building audio without an audio clock.
	ErrNotSupported = errors.New("sonify: audio synthesis is not supported")
)

// State is the lifecycle state of an Engine.
type State int

const (
	// StateUnsupported means no audio clock is available. It never changes.
	StateUnsupported State = iota
	// StateReady means the engine is idle and can start.
	StateReady
	// StatePlaying means a run is scheduled and has not ended or been stopped.
	StatePlaying
	// StateClosed means the engine has been disposed of.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts what the engine has done over its lifetime.
type Stats struct {
	Runs            int
	VoicesScheduled int
	LateVoices      int
	FadeIns         int
	FadeOuts        int
	NoiseBuilds     int
	ReverbBuilds    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is logger.GetLogger().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTimers sets how callbacks are armed. The default is WallTimers.
func WithTimers(t Timers) Option {
	return func(e *Engine) {
		if t != nil {
			e.timers = t
		}
	}
}

// WithEventCallback registers f to be called once per event, after a
// wall-clock delay matching the event's onset. f runs without engine locks
// held and may call back into the engine.
func WithEventCallback(f func(index int, ev Event)) Option {
	return func(e *Engine) {
		e.onEvent = f
	}
}

// WithSettings replaces every engine setting.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		e.s = s.clone()
	}
}

// WithDuration sets the playback duration in seconds. Non-positive values
// are ignored.
func WithDuration(sec float64) Option {
	return func(e *Engine) {
		if sec > 0 {
			e.s.DurationSec = sec
		}
	}
}

// Engine schedules event voices and the drone on an audio clock.
//
// Lock order is Engine.mu, then the audiograph context lock. Voice
// completion and timer callbacks arrive without either held.
type Engine struct {
	ac      *audiograph.Context
	s       Settings
	log     *slog.Logger
	timers  Timers
	onEvent func(int, Event)
	res     *Resources
	factory *VoiceFactory

	mu     sync.Mutex
	state  State
	events []Event
	drone  *Drone
	voices map[*Voice]struct{}
	tasks  *TaskSet
	gen    uint64
	runID  string
	stats  Stats
}

// New creates an engine on ac. A nil ac creates an engine in
// StateUnsupported; such an engine can still Plan.
func New(ac *audiograph.Context, opts ...Option) *Engine {
	e := &Engine{
		ac:     ac,
		s:      DefaultSettings(),
		log:    logger.GetLogger(),
		timers: WallTimers,
		voices: make(map[*Voice]struct{}),
		state:  StateUnsupported,
	}
	for _, opt := range opts {
		opt(e)
	}
	sampleRate := audiograph.DefaultSampleRate
	if ac != nil {
		sampleRate = ac.SampleRate()
		e.state = StateReady
	}
	e.res = NewResources(sampleRate, e.s.Reverb)
	e.factory = NewVoiceFactory(ac, e.s, e.res)
	e.tasks = NewTaskSet(e.timers)
	return e
}

// Supported reports whether the engine has an audio clock.
func (e *Engine) Supported() bool {
	return e.ac != nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ready reports whether the engine can start.
func (e *Engine) Ready() bool {
	st := e.State()
	return st == StateReady || st == StatePlaying
}

// Playing reports whether a run is in progress.
func (e *Engine) Playing() bool {
	return e.State() == StatePlaying
}

// Settings returns a copy of the engine settings.
func (e *Engine) Settings() Settings {
	return e.s.clone()
}

// SetEvents replaces the event collection. A run in progress is stopped
// first; the new collection takes effect on the next Start.
func (e *Engine) SetEvents(events []Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	if e.state == StatePlaying {
		e.stopLocked()
	}
	e.events = slices.Clone(events)
}

// Events returns a copy of the current event collection.
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

// Start schedules a run of the current events. It is a no-op when the
// collection is empty or audio is unsupported. A suspended clock is resumed
// first; in hosts that gate audio behind a user gesture, Start must be
// called from that gesture. A resume failure is returned and not retried.
//
// Start returns once scheduling is complete. Calling it while playing
// discards the previous run and restarts from a fresh mapping.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == StateUnsupported || len(e.events) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if e.ac.State() != audiograph.StateRunning {
		if err := e.ac.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume audio clock: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.state == StateClosed:
		return ErrClosed
	case len(e.events) == 0:
		return nil
	case e.state == StatePlaying:
		e.log.Debug("Restarting playback", "run", e.runID)
		e.teardownLocked()
	}
	if err := e.scheduleLocked(e.events); err != nil {
		return err
	}
	e.state = StatePlaying
	return nil
}

// Stop ends the run in progress: the drone fades out, every live voice is
// stopped and every pending callback is cancelled. Stop is safe at any time
// and calling it again has no further effect.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	switch e.state {
	case StateClosed, StateUnsupported:
		return
	case StatePlaying:
		e.drone.FadeOut(e.ac.CurrentTime(), e.s.StopFadeSec)
		e.state = StateReady
		e.log.Info("Playback stopped", "run", e.runID)
	}
	e.teardownLocked()
}

// teardownLocked force-stops every live voice and cancels every pending
// task of the current run.
func (e *Engine) teardownLocked() {
	e.gen++
	tasks := e.tasks.CancelAll()
	stopped := 0
	for v := range e.voices {
		if v.ForceStop() {
			stopped++
		}
	}
	clear(e.voices)
	if tasks > 0 || stopped > 0 {
		e.log.Debug("Run torn down", "run", e.runID, "tasks", tasks, "voices", stopped)
	}
}

// Close stops playback, closes the audio clock and releases the cached
// buffers. A closed engine cannot be restarted.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.stopLocked()
	if e.drone != nil {
		e.drone.Close()
		e.drone = nil
	}
	e.state = StateClosed
	e.events = nil
	e.res.Release()
	ac := e.ac
	e.mu.Unlock()

	if ac == nil {
		return nil
	}
	if err := ac.Close(); err != nil {
		return fmt.Errorf("failed to close audio clock: %w", err)
	}
	return nil
}

// Plan returns the schedule Start would produce for the current events at
// the current clock time, without touching the audio graph.
func (e *Engine) Plan() Schedule {
	now := 0.0
	if e.ac != nil {
		now = e.ac.CurrentTime()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan(e.events, now)
}

// ActiveVoices returns the number of voices in the active set.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// PendingTasks returns the number of armed callbacks.
func (e *Engine) PendingTasks() int {
	return e.tasks.Len()
}

// Stats returns lifetime counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stats
	if e.drone != nil {
		st.FadeIns, st.FadeOuts = e.drone.fadeIns, e.drone.fadeOuts
	}
	st.NoiseBuilds, st.ReverbBuilds = e.res.Builds()
	return st
}

func (e *Engine) ensureDroneLocked() (*Drone, error) {
	if e.drone != nil {
		return e.drone, nil
	}
	d, err := newDrone(e.ac, e.s.Drone, e.res.ReverbBuffer())
	if err != nil {
		return nil, err
	}
	e.drone = d
	return d, nil
}

// voiceDone removes v from the active set. Completions from a torn-down run
// find nothing to remove.
func (e *Engine) voiceDone(v *Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.voices, v)
}

func (e *Engine) notify(gen uint64, index int, ev Event) {
	e.mu.Lock()
	live := e.gen == gen && e.state == StatePlaying
	e.mu.Unlock()
	if live && e.onEvent != nil {
		e.onEvent(index, ev)
	}
}

// finish is the end-of-playback transition.
func (e *Engine) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.state != StatePlaying {
		return
	}
	e.drone.FadeOut(e.ac.CurrentTime(), e.s.EndFadeSec)
	e.state = StateReady
	e.log.Info("Playback finished", "run", e.runID, "voices_left", len(e.voices))
}
