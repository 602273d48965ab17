package sonify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// testRate renders exactly 100 quanta per second.
const testRate = 100 * audiograph.RenderQuantum

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSettings shortens the timeline, envelopes and reverb so offline runs
// stay quick.
func testSettings() Settings {
	s := DefaultSettings()
	s.DurationSec = 2
	s.TailSec = 3
	s.Tone = EnvelopeSettings{Lead: 0.35, Attack: 0.7, Release: 1.0, StopPad: 0.1}
	s.Noise = EnvelopeSettings{Lead: 0.1, Attack: 0.25, Release: 0.5, StopPad: 0.1}
	s.Reverb.Seconds = 0.1
	return s
}

func newOfflineEngine(t *testing.T, opts ...Option) (*Engine, *audiograph.Context) {
	t.Helper()
	ac := audiograph.NewContext(testRate, nil)
	base := []Option{
		WithSettings(testSettings()),
		WithTimers(ClockTimers(ac)),
		WithLogger(discardLogger()),
	}
	e := New(ac, append(base, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return e, ac
}

func sampleEvents() []Event {
	return []Event{
		{Magnitude: 4.5, OccurredAtMs: baseTime + 3_600_000, Longitude: 142.3, Latitude: 38.1, DepthKm: 30, Place: "off the east coast of Honshu"},
		{Magnitude: 2.1, OccurredAtMs: baseTime, Longitude: -71.6, Latitude: -33.4, DepthKm: 10, Place: "central Chile"},
		{Magnitude: 6.8, OccurredAtMs: baseTime + 7_200_000, Longitude: -150.1, Latitude: 61.2, DepthKm: 650, Place: "southern Alaska"},
		{Magnitude: 0, OccurredAtMs: baseTime + 1_800_000, Longitude: 0, Latitude: 0, DepthKm: -3, Place: "null island"},
		{Magnitude: 2.1, OccurredAtMs: baseTime, Longitude: -71.6, Latitude: -33.4, DepthKm: 10, Place: "central Chile"},
	}
}

type firedEvent struct {
	index int
	at    float64
}

// recorder collects per-event callbacks with the clock time they fired at.
type recorder struct {
	ac    *audiograph.Context
	fired []firedEvent
}

func (r *recorder) callback(index int, _ Event) {
	r.fired = append(r.fired, firedEvent{index: index, at: r.ac.CurrentTime()})
}
