package sonify

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Timeline maps the real-world span of an event collection onto the
// playback duration.
type Timeline struct {
	MinTime     int64   `json:"min_time"`
	MaxTime     int64   `json:"max_time"`
	SpanMs      int64   `json:"span_ms"`
	DurationSec float64 `json:"duration_sec"`
	// TimeScale is the number of real milliseconds per played second.
	TimeScale float64 `json:"time_scale"`
	// ClockStart is the clock read all onsets are measured from.
	ClockStart  float64 `json:"clock_start"`
	StartOffset float64 `json:"start_offset"`
}

// NewTimeline computes the mapping for events. The span is at least one
// millisecond, so a single event lands exactly at clockNow+startOffset.
func NewTimeline(events []Event, durationSec, clockNow, startOffset float64) Timeline {
	tl := Timeline{DurationSec: durationSec, ClockStart: clockNow, StartOffset: startOffset}
	for i, ev := range events {
		if i == 0 || ev.OccurredAtMs < tl.MinTime {
			tl.MinTime = ev.OccurredAtMs
		}
		if i == 0 || ev.OccurredAtMs > tl.MaxTime {
			tl.MaxTime = ev.OccurredAtMs
		}
	}
	tl.SpanMs = max(tl.MaxTime-tl.MinTime, 1)
	tl.TimeScale = float64(tl.SpanMs) / durationSec
	return tl
}

// Onset returns the audio-clock time at which ev sounds.
func (tl Timeline) Onset(ev Event) float64 {
	rel := ev.OccurredAtMs - tl.MinTime
	return tl.ClockStart + tl.StartOffset + float64(rel)/tl.TimeScale
}

// Schedule is the complete plan of one playback run. Voices are in input
// order; their onsets follow the event timestamps.
type Schedule struct {
	Timeline Timeline    `json:"timeline"`
	Voices   []VoicePlan `json:"voices"`
	// EndAt is the clock time of the end-of-playback transition.
	EndAt float64 `json:"end_at"`
}

// WriteText writes the schedule as one header line followed by three lines
// per voice. Times are clock seconds with four decimals.
func (s Schedule) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	tl := s.Timeline
	fmt.Fprintf(bw, "span_ms=%d time_scale=%.4f end_at=%.4f\n", tl.SpanMs, tl.TimeScale, s.EndAt)
	for _, v := range s.Voices {
		fmt.Fprintf(bw, "%d %-28s target=%.4f late=%t scale=%d freq=%.4f bright=%.4f pan=%.4f\n",
			v.Index, v.Event.Place, v.Target, v.Late, v.ScaleIndex, v.Frequency, v.Brightness, v.Pan)
		fmt.Fprintf(bw, "  tone  start=%.4f peak=%.4f end=%.4f stop=%.4f gain=%.4f\n",
			v.Tone.Start, v.Tone.Peak, v.Tone.End, v.Tone.Stop, v.Tone.Gain)
		fmt.Fprintf(bw, "  noise start=%.4f peak=%.4f end=%.4f stop=%.4f gain=%.4f\n",
			v.Noise.Start, v.Noise.Peak, v.Noise.End, v.Noise.Stop, v.Noise.Gain)
	}
	return bw.Flush()
}

// plan computes the schedule for events from the clock read now.
func (e *Engine) plan(events []Event, now float64) Schedule {
	tl := NewTimeline(events, e.s.DurationSec, now, e.s.StartOffset)
	voices := make([]VoicePlan, len(events))
	for i, ev := range events {
		voices[i] = e.factory.Plan(i, ev, tl.Onset(ev), now)
	}
	return Schedule{
		Timeline: tl,
		Voices:   voices,
		EndAt:    now + e.s.StartOffset + e.s.DurationSec + e.s.TailSec,
	}
}

// scheduleLocked runs the scheduling pass of Start: it plans the run, builds
// every voice, arms the per-event callbacks and the end transition, and
// fades the drone in. Must be called with e.mu held.
func (e *Engine) scheduleLocked(events []Event) error {
	drone, err := e.ensureDroneLocked()
	if err != nil {
		return err
	}

	now := e.ac.CurrentTime()
	sched := e.plan(events, now)
	e.gen++
	gen := e.gen
	e.runID = uuid.NewString()

	late := 0
	for _, vp := range sched.Voices {
		v, err := e.factory.Build(vp, drone.Input(), e.voiceDone)
		if err != nil {
			e.teardownLocked()
			if e.state == StatePlaying {
				// The previous run's drone is still up.
				drone.FadeOut(now, e.s.StopFadeSec)
				e.state = StateReady
			}
			return fmt.Errorf("failed to build voice: %w", err)
		}
		e.voices[v] = struct{}{}
		if vp.Late {
			late++
			e.log.Debug("Voice clamped to clock", "run", e.runID, "index", vp.Index, "target", vp.Target, "now", now)
		}
		e.log.Debug("Voice scheduled",
			"run", e.runID,
			"index", vp.Index,
			"target", vp.Target,
			"freq", vp.Frequency,
			"brightness", vp.Brightness,
			"pan", vp.Pan,
			"place", vp.Event.Place)

		if e.onEvent != nil {
			index, ev := vp.Index, vp.Event
			e.tasks.Schedule("event", seconds(vp.Target-now), func() { e.notify(gen, index, ev) })
		}
	}
	e.tasks.Schedule("end", seconds(sched.EndAt-now), func() { e.finish(gen) })
	drone.FadeIn(now)

	e.stats.Runs++
	e.stats.VoicesScheduled += len(sched.Voices)
	e.stats.LateVoices += late
	e.log.Info("Playback started",
		"run", e.runID,
		"events", len(events),
		"span_ms", sched.Timeline.SpanMs,
		"duration_sec", sched.Timeline.DurationSec,
		"end_at", sched.EndAt)
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
