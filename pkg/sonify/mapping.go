package sonify

import "math"

// Pentatonic holds the semitone offsets of the major pentatonic scale the
// magnitude is quantized onto.
var Pentatonic = [5]int{0, 2, 4, 7, 9}

const (
	maxMagnitude = 7.0
	maxDepthKm   = 700.0
)

// MapRange clamps value to [inMin, inMax] and interpolates it linearly into
// [outMin, outMax]. A NaN value or an empty input range yields outMin.
func MapRange(value, inMin, inMax, outMin, outMax float64) float64 {
	if math.IsNaN(value) || inMin == inMax {
		return outMin
	}
	lo, hi := math.Min(inMin, inMax), math.Max(inMin, inMax)
	value = math.Max(lo, math.Min(hi, value))
	t := (value - inMin) / (inMax - inMin)
	switch t {
	case 0:
		return outMin
	case 1:
		return outMax
	}
	v := outMin + t*(outMax-outMin)
	return math.Max(math.Min(outMin, outMax), math.Min(math.Max(outMin, outMax), v))
}

// Mapper translates event attributes into synthesis parameters.
// It has no state beyond its settings and is safe for concurrent use.
type Mapper struct {
	s MappingSettings
}

// NewMapper creates a Mapper.
func NewMapper(s MappingSettings) Mapper {
	return Mapper{s: s}
}

// ScaleIndex quantizes a magnitude into an index of Pentatonic.
func (m Mapper) ScaleIndex(magnitude float64) int {
	mag := clampNaN(magnitude, 0, maxMagnitude)
	return int(math.Floor(MapRange(mag, 0, maxMagnitude, 0, 4.999)))
}

// Frequency returns the tone frequency for a magnitude.
func (m Mapper) Frequency(magnitude float64) float64 {
	semitone := Pentatonic[m.ScaleIndex(magnitude)]
	return m.s.RootHz * math.Pow(2, float64(semitone)/12)
}

// ToneGain returns the peak gain of the tone layer.
func (m Mapper) ToneGain(magnitude float64) float64 {
	return MapRange(magnitude, 0, maxMagnitude, m.s.ToneGainMin, m.s.ToneGainMax)
}

// NoiseGain returns the peak gain of the noise layer.
func (m Mapper) NoiseGain(magnitude float64) float64 {
	return MapRange(magnitude, 0, maxMagnitude, m.s.NoiseGainMin, m.s.NoiseGainMax)
}

// Brightness returns the noise filter center frequency for a depth.
// Shallow events are brighter.
func (m Mapper) Brightness(depthKm float64) float64 {
	depth := clampNaN(depthKm, 0, maxDepthKm)
	return MapRange(depth, 0, maxDepthKm, m.s.HighCutoffHz, m.s.LowCutoffHz)
}

// Pan returns the stereo position for a latitude.
func (m Mapper) Pan(latitude float64) float64 {
	return MapRange(latitude, -90, 90, m.s.PanMin, m.s.PanMax)
}

// clampNaN clamps v to [lo, hi] and passes NaN through for MapRange.
func clampNaN(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}
