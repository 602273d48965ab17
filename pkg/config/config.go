// Package config loads seismosonic settings from YAML and validates them
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/zurustar/seismosonic/pkg/audiograph"
	"github.com/zurustar/seismosonic/pkg/sonify"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultFeedURL is the USGS summary feed of the past week's M2.5+ events.
const DefaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.geojson"

// Config is the on-disk configuration.
type Config struct {
	Timeline Timeline `yaml:"timeline" json:"timeline"`
	Mapping  Mapping  `yaml:"mapping" json:"mapping"`
	Envelope Envelope `yaml:"envelope" json:"envelope"`
	Drone    Drone    `yaml:"drone" json:"drone"`
	Reverb   Reverb   `yaml:"reverb" json:"reverb"`
	Output   Output   `yaml:"output" json:"output"`
	Feed     Feed     `yaml:"feed" json:"feed"`
	Catalog  Catalog  `yaml:"catalog" json:"catalog"`
}

// Timeline sets the length of a performance and its fades.
type Timeline struct {
	DurationSec float64 `yaml:"duration_sec" json:"duration_sec"`
	StartOffset float64 `yaml:"start_offset" json:"start_offset"`
	TailSec     float64 `yaml:"tail_sec" json:"tail_sec"`
	StopFadeSec float64 `yaml:"stop_fade_sec" json:"stop_fade_sec"`
	EndFadeSec  float64 `yaml:"end_fade_sec" json:"end_fade_sec"`
}

// Mapping sets the ranges event attributes are mapped onto.
type Mapping struct {
	RootHz       float64 `yaml:"root_hz" json:"root_hz"`
	ToneGainMin  float64 `yaml:"tone_gain_min" json:"tone_gain_min"`
	ToneGainMax  float64 `yaml:"tone_gain_max" json:"tone_gain_max"`
	NoiseGainMin float64 `yaml:"noise_gain_min" json:"noise_gain_min"`
	NoiseGainMax float64 `yaml:"noise_gain_max" json:"noise_gain_max"`
	HighCutoffHz float64 `yaml:"high_cutoff_hz" json:"high_cutoff_hz"`
	LowCutoffHz  float64 `yaml:"low_cutoff_hz" json:"low_cutoff_hz"`
	PanMin       float64 `yaml:"pan_min" json:"pan_min"`
	PanMax       float64 `yaml:"pan_max" json:"pan_max"`
}

// Layer is the envelope timing of one voice layer, in seconds.
type Layer struct {
	Lead    float64 `yaml:"lead" json:"lead"`
	Attack  float64 `yaml:"attack" json:"attack"`
	Release float64 `yaml:"release" json:"release"`
	StopPad float64 `yaml:"stop_pad" json:"stop_pad"`
}

// Envelope shapes the tone and noise layers of every voice.
type Envelope struct {
	Tone   Layer   `yaml:"tone" json:"tone"`
	Noise  Layer   `yaml:"noise" json:"noise"`
	NoiseQ float64 `yaml:"noise_q" json:"noise_q"`
	Floor  float64 `yaml:"floor" json:"floor"`
}

// Drone configures the ambient pad and its echo and reverb sends.
type Drone struct {
	Frequencies []float64 `yaml:"frequencies" json:"frequencies"`
	CutoffHz    float64   `yaml:"cutoff_hz" json:"cutoff_hz"`
	Q           float64   `yaml:"q" json:"q"`
	Level       float64   `yaml:"level" json:"level"`
	FadeInSec   float64   `yaml:"fade_in_sec" json:"fade_in_sec"`
	DelaySec    float64   `yaml:"delay_sec" json:"delay_sec"`
	Feedback    float64   `yaml:"feedback" json:"feedback"`
	ReverbSend  float64   `yaml:"reverb_send" json:"reverb_send"`
}

// Reverb configures the generated impulse response.
type Reverb struct {
	Seconds float64 `yaml:"seconds" json:"seconds"`
	Decay   float64 `yaml:"decay" json:"decay"`
	Seed    uint64  `yaml:"seed" json:"seed"`
}

// Output configures the audio device and offline renders.
type Output struct {
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	BufferMs   int `yaml:"buffer_ms" json:"buffer_ms"`
}

// Feed configures where events are fetched from.
type Feed struct {
	URL          string  `yaml:"url" json:"url"`
	MinMagnitude float64 `yaml:"min_magnitude" json:"min_magnitude"`
}

// Catalog configures the local event store.
type Catalog struct {
	Path string `yaml:"path" json:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	s := sonify.DefaultSettings()
	return &Config{
		Timeline: Timeline{
			DurationSec: s.DurationSec,
			StartOffset: s.StartOffset,
			TailSec:     s.TailSec,
			StopFadeSec: s.StopFadeSec,
			EndFadeSec:  s.EndFadeSec,
		},
		Mapping: Mapping(s.Mapping),
		Envelope: Envelope{
			Tone:   Layer(s.Tone),
			Noise:  Layer(s.Noise),
			NoiseQ: s.NoiseQ,
			Floor:  s.EnvelopeFloor,
		},
		Drone: Drone{
			Frequencies: slices.Clone(s.Drone.Frequencies),
			CutoffHz:    s.Drone.CutoffHz,
			Q:           s.Drone.Q,
			Level:       s.Drone.Level,
			FadeInSec:   s.Drone.FadeInSec,
			DelaySec:    s.Drone.DelaySec,
			Feedback:    s.Drone.Feedback,
			ReverbSend:  s.Drone.ReverbSend,
		},
		Reverb: Reverb(s.Reverb),
		Output: Output{
			SampleRate: audiograph.DefaultSampleRate,
			BufferMs:   100,
		},
		Feed: Feed{
			URL:          DefaultFeedURL,
			MinMagnitude: 0,
		},
		Catalog: Catalog{
			Path: "seismosonic.db",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Settings converts the configuration into engine settings.
func (c *Config) Settings() sonify.Settings {
	return sonify.Settings{
		DurationSec:   c.Timeline.DurationSec,
		StartOffset:   c.Timeline.StartOffset,
		TailSec:       c.Timeline.TailSec,
		StopFadeSec:   c.Timeline.StopFadeSec,
		EndFadeSec:    c.Timeline.EndFadeSec,
		Mapping:       sonify.MappingSettings(c.Mapping),
		Tone:          sonify.EnvelopeSettings(c.Envelope.Tone),
		Noise:         sonify.EnvelopeSettings(c.Envelope.Noise),
		NoiseQ:        c.Envelope.NoiseQ,
		EnvelopeFloor: c.Envelope.Floor,
		Drone: sonify.DroneSettings{
			Frequencies: slices.Clone(c.Drone.Frequencies),
			CutoffHz:    c.Drone.CutoffHz,
			Q:           c.Drone.Q,
			Level:       c.Drone.Level,
			FadeInSec:   c.Drone.FadeInSec,
			DelaySec:    c.Drone.DelaySec,
			Feedback:    c.Drone.Feedback,
			ReverbSend:  c.Drone.ReverbSend,
		},
		Reverb: sonify.ReverbSettings(c.Reverb),
	}
}
