package sonify

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestProperty_MapRangeStaysInOutputRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("output lies between outMin and outMax", prop.ForAll(
		func(v, inMin, inMax, outMin, outMax float64) bool {
			if inMin == inMax {
				return true
			}
			got := MapRange(v, inMin, inMax, outMin, outMax)
			return got >= math.Min(outMin, outMax) && got <= math.Max(outMin, outMax)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.Property("endpoints map to endpoints", prop.ForAll(
		func(inMin, inMax, outMin, outMax float64) bool {
			if inMin == inMax {
				return true
			}
			return MapRange(inMin, inMin, inMax, outMin, outMax) == outMin &&
				MapRange(inMax, inMin, inMax, outMin, outMax) == outMax
		},
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.Property("NaN maps to outMin", prop.ForAll(
		func(a, b float64) bool {
			return MapRange(math.NaN(), 0, 7, a, b) == a
		},
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.Property("empty input range maps to outMin", prop.ForAll(
		func(v, in, a, b float64) bool {
			return MapRange(v, in, in, a, b) == a
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(-1e3, 1e3),
	))

	properties.TestingRun(t)
}

func TestMapRange(t *testing.T) {
	tests := []struct {
		name                         string
		v, inMin, inMax, outMin, out float64
		want                         float64
	}{
		{"midpoint", 3.5, 0, 7, 0, 1, 0.5},
		{"below range clamps", -3, 0, 7, 10, 20, 10},
		{"above range clamps", 30, 0, 7, 10, 20, 20},
		{"inverted output", 0, 0, 700, 2400, 300, 2400},
		{"inverted output end", 700, 0, 700, 2400, 300, 300},
		{"inverted input", 0, 10, -10, 0, 1, 0.5},
		{"degenerate input", 5, 3, 3, 8, 9, 8},
		{"infinite value clamps", math.Inf(1), 0, 7, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MapRange(tt.v, tt.inMin, tt.inMax, tt.outMin, tt.out), 1e-12)
		})
	}
}

func TestMapperScale(t *testing.T) {
	m := NewMapper(DefaultSettings().Mapping)

	tests := []struct {
		magnitude float64
		index     int
	}{
		{-1, 0},
		{0, 0},
		{1.4, 0},
		{1.5, 1},
		{3.5, 2},
		{5.6, 3},
		{7, 4},
		{9.5, 4},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.index, m.ScaleIndex(tt.magnitude), "magnitude %v", tt.magnitude)
	}

	assert.InDelta(t, 220.0, m.Frequency(0), 1e-9)
	assert.InDelta(t, 220*math.Pow(2, 9.0/12), m.Frequency(7), 1e-9)
	assert.InDelta(t, 220*math.Pow(2, 4.0/12), m.Frequency(3.5), 1e-9)
}

func TestMapperLargerMagnitudeIsLouderAndHigher(t *testing.T) {
	m := NewMapper(DefaultSettings().Mapping)

	assert.Greater(t, m.ToneGain(7), m.ToneGain(0))
	assert.Greater(t, m.NoiseGain(7), m.NoiseGain(0))
	assert.Greater(t, m.ScaleIndex(7), m.ScaleIndex(0))
	assert.Greater(t, m.Frequency(7), m.Frequency(0))

	assert.InDelta(t, 0.04, m.ToneGain(0), 1e-12)
	assert.InDelta(t, 0.22, m.ToneGain(7), 1e-12)
	assert.InDelta(t, 0.01, m.NoiseGain(math.NaN()), 1e-12)
}

func TestMapperBrightnessAndPan(t *testing.T) {
	m := NewMapper(DefaultSettings().Mapping)

	assert.Greater(t, m.Brightness(0), m.Brightness(700))
	assert.InDelta(t, 2400.0, m.Brightness(-12), 1e-9)
	assert.InDelta(t, 300.0, m.Brightness(1200), 1e-9)
	assert.InDelta(t, 2400.0, m.Brightness(math.NaN()), 1e-9)
	assert.InDelta(t, 1350.0, m.Brightness(350), 1e-9)

	assert.InDelta(t, -0.8, m.Pan(-90), 1e-12)
	assert.InDelta(t, 0.8, m.Pan(90), 1e-12)
	assert.InDelta(t, 0.0, m.Pan(0), 1e-12)
	assert.InDelta(t, -0.8, m.Pan(math.NaN()), 1e-12)
}
