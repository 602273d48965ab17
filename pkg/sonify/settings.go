package sonify

import "slices"

// Settings holds every tunable of the engine. DefaultSettings returns the
// values the engine was voiced with; pkg/config loads overrides from YAML.
type Settings struct {
	// DurationSec is the length the full event span is compressed into.
	DurationSec float64
	// StartOffset delays the first onset after the clock read at start.
	StartOffset float64
	// TailSec is added after the timeline to let the longest release finish
	// before the end-of-playback transition.
	TailSec float64
	// StopFadeSec and EndFadeSec are the drone fade-out lengths for an
	// explicit stop and for the natural end of playback.
	StopFadeSec float64
	EndFadeSec  float64

	Mapping MappingSettings
	Tone    EnvelopeSettings
	Noise   EnvelopeSettings
	// NoiseQ is the resonance of the noise layer's bandpass filter.
	NoiseQ float64
	// EnvelopeFloor is the release target. Ramping to a small non-zero value
	// instead of zero avoids denormals in the tail.
	EnvelopeFloor float64

	Drone  DroneSettings
	Reverb ReverbSettings
}

// MappingSettings configures the parameter mapper.
type MappingSettings struct {
	RootHz       float64
	ToneGainMin  float64
	ToneGainMax  float64
	NoiseGainMin float64
	NoiseGainMax float64
	HighCutoffHz float64
	LowCutoffHz  float64
	PanMin       float64
	PanMax       float64
}

// EnvelopeSettings shapes one voice layer. The envelope starts Lead seconds
// before the onset, reaches its peak after Attack and decays to the floor
// over Release. The source stops StopPad seconds after the release ends.
type EnvelopeSettings struct {
	Lead    float64
	Attack  float64
	Release float64
	StopPad float64
}

// DroneSettings configures the ambient drone.
type DroneSettings struct {
	Frequencies []float64
	CutoffHz    float64
	Q           float64
	Level       float64
	FadeInSec   float64
	DelaySec    float64
	Feedback    float64
	ReverbSend  float64
}

// ReverbSettings configures the generated impulse response.
type ReverbSettings struct {
	Seconds float64
	Decay   float64
	Seed    uint64
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		DurationSec: 60,
		StartOffset: 0.5,
		TailSec:     10,
		StopFadeSec: 2.5,
		EndFadeSec:  5,
		Mapping: MappingSettings{
			RootHz:       220,
			ToneGainMin:  0.04,
			ToneGainMax:  0.22,
			NoiseGainMin: 0.01,
			NoiseGainMax: 0.06,
			HighCutoffHz: 2400,
			LowCutoffHz:  300,
			PanMin:       -0.8,
			PanMax:       0.8,
		},
		Tone:          EnvelopeSettings{Lead: 0.35, Attack: 0.7, Release: 4.0, StopPad: 0.1},
		Noise:         EnvelopeSettings{Lead: 0.1, Attack: 0.25, Release: 1.6, StopPad: 0.1},
		NoiseQ:        3.0,
		EnvelopeFloor: 0.0001,
		Drone: DroneSettings{
			Frequencies: []float64{98, 110, 123.47},
			CutoffHz:    1800,
			Q:           0.7,
			Level:       0.06,
			FadeInSec:   5,
			DelaySec:    0.6,
			Feedback:    0.35,
			ReverbSend:  0.4,
		},
		Reverb: ReverbSettings{Seconds: 5, Decay: 2.8, Seed: 1},
	}
}

// clone returns a copy that shares no slices with s.
func (s Settings) clone() Settings {
	s.Drone.Frequencies = slices.Clone(s.Drone.Frequencies)
	return s
}
