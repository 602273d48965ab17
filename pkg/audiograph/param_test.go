package audiograph

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParamRampAndCancel(t *testing.T) {
	c := NewContext(testSampleRate, nil)
	g := c.NewGain(1)

	g.Gain.SetValueAtTime(0, 0)
	g.Gain.LinearRampToValueAtTime(1, 1)
	g.Gain.LinearRampToValueAtTime(0, 3)

	tests := []struct {
		at   float64
		want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{2, 0.5},
		{3, 0},
		{10, 0},
	}
	for _, tt := range tests {
		if got := g.Gain.ValueAt(tt.at); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ValueAt(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}

	g.Gain.CancelScheduledValues(1.5)
	if n := g.Gain.ScheduledEvents(); n != 2 {
		t.Fatalf("ScheduledEvents() = %d after cancel, want 2", n)
	}
	if got := g.Gain.ValueAt(2); got != 1 {
		t.Errorf("ValueAt(2) after cancel = %v, want 1", got)
	}
}

func TestParamEventsAtEqualTimesKeepOrder(t *testing.T) {
	c := NewContext(testSampleRate, nil)
	g := c.NewGain(0)
	g.Gain.SetValueAtTime(0.25, 1)
	g.Gain.SetValueAtTime(0.75, 1)
	if got := g.Gain.ValueAt(1); got != 0.75 {
		t.Errorf("ValueAt(1) = %v, want the later event 0.75", got)
	}
}

func TestParamClampsToRange(t *testing.T) {
	c := NewContext(testSampleRate, nil)
	p := c.NewStereoPanner(0)
	p.Pan.SetValueAtTime(5, 0)
	if got := p.Pan.ValueAt(0); got != 1 {
		t.Errorf("ValueAt(0) = %v, want clamp to 1", got)
	}
	p.Pan.SetValueAtTime(math.NaN(), 1)
	if got := p.Pan.ValueAt(1); got != -1 {
		t.Errorf("NaN value = %v, want minimum -1", got)
	}
}

func TestParamRenderingFoldsPastEvents(t *testing.T) {
	c := newRunningContext(t)
	g := c.NewGain(0)
	g.Connect(c.Destination())
	g.Gain.SetValueAtTime(0.2, 0.1)
	g.Gain.LinearRampToValueAtTime(0.4, 0.2)
	g.Gain.SetValueAtTime(0.9, 5)

	c.RenderSeconds(0.5)
	if n := g.Gain.ScheduledEvents(); n != 1 {
		t.Errorf("ScheduledEvents() = %d, want 1 pending", n)
	}
	if got := g.Gain.Value(); math.Abs(got-0.4) > 1e-12 {
		t.Errorf("Value() = %v, want 0.4", got)
	}
}

// Property: a linear ramp never leaves the interval spanned by its endpoints.
func TestProperty_LinearRampStaysBetweenEndpoints(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ramp values are bounded by endpoints", prop.ForAll(
		func(from, to, start, length, frac float64) bool {
			c := NewContext(testSampleRate, nil)
			g := c.NewGain(0)
			g.Gain.SetValueAtTime(from, start)
			g.Gain.LinearRampToValueAtTime(to, start+length)

			v := g.Gain.ValueAt(start + frac*length)
			lo, hi := math.Min(from, to), math.Max(from, to)
			return v >= lo-1e-9 && v <= hi+1e-9
		},
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(0, 10),
		gen.Float64Range(0.001, 10),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
