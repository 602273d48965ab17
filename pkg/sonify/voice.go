package sonify

import (
	"fmt"
	"math"
	"sync"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// VoiceState is the lifecycle state of a Voice.
type VoiceState int

const (
	// VoicePending means the voice is scheduled but not yet audible.
	VoicePending VoiceState = iota
	// VoiceSounding means at least one layer has started.
	VoiceSounding
	// VoiceDone means both layers ended naturally.
	VoiceDone
	// VoiceStopped means the voice was force-stopped before it finished.
	VoiceStopped
)

func (s VoiceState) String() string {
	switch s {
	case VoicePending:
		return "pending"
	case VoiceSounding:
		return "sounding"
	case VoiceDone:
		return "done"
	case VoiceStopped:
		return "stopped"
	default:
		return fmt.Sprintf("VoiceState(%d)", int(s))
	}
}

func (s VoiceState) terminal() bool {
	return s == VoiceDone || s == VoiceStopped
}

// LayerPlan is the envelope timing of one voice layer on the audio clock.
// The gain is 0 at Start, reaches Gain at Peak and decays to the envelope
// floor at End; the source stops at Stop.
type LayerPlan struct {
	Start float64 `json:"start"`
	Peak  float64 `json:"peak"`
	End   float64 `json:"end"`
	Stop  float64 `json:"stop"`
	Gain  float64 `json:"gain"`
}

// VoicePlan holds every parameter of one event voice. Plans are pure
// functions of the event, its mapped onset and the clock read, so identical
// inputs give identical plans. Late is set when a layer's lead-in had to be
// clamped to the clock read.
type VoicePlan struct {
	Index      int       `json:"index"`
	Event      Event     `json:"event"`
	Target     float64   `json:"target"`
	Late       bool      `json:"late"`
	ScaleIndex int       `json:"scale_index"`
	Frequency  float64   `json:"frequency"`
	Brightness float64   `json:"brightness"`
	Pan        float64   `json:"pan"`
	Tone       LayerPlan `json:"tone"`
	Noise      LayerPlan `json:"noise"`
}

// VoiceFactory plans and builds event voices.
type VoiceFactory struct {
	ac     *audiograph.Context
	s      Settings
	mapper Mapper
	res    *Resources
}

// NewVoiceFactory creates a factory building voices on ac. A nil ac gives a
// factory that can only plan.
func NewVoiceFactory(ac *audiograph.Context, s Settings, res *Resources) *VoiceFactory {
	return &VoiceFactory{ac: ac, s: s, mapper: NewMapper(s.Mapping), res: res}
}

// Plan computes the voice for ev sounding at target, given the clock read
// now. A target already in the past is played from now rather than dropped.
func (f *VoiceFactory) Plan(index int, ev Event, target, now float64) VoicePlan {
	p := VoicePlan{
		Index:      index,
		Event:      ev,
		Target:     target,
		ScaleIndex: f.mapper.ScaleIndex(ev.Magnitude),
		Frequency:  f.mapper.Frequency(ev.Magnitude),
		Brightness: f.mapper.Brightness(ev.DepthKm),
		Pan:        f.mapper.Pan(ev.Latitude),
	}
	p.Tone = layerPlan(f.s.Tone, target, now, f.mapper.ToneGain(ev.Magnitude))
	p.Noise = layerPlan(f.s.Noise, target, now, f.mapper.NoiseGain(ev.Magnitude))
	p.Late = target-f.s.Tone.Lead < now || target-f.s.Noise.Lead < now
	return p
}

func layerPlan(env EnvelopeSettings, target, now, gain float64) LayerPlan {
	start := math.Max(now, target-env.Lead)
	peak := start + env.Attack
	end := peak + env.Release
	return LayerPlan{
		Start: start,
		Peak:  peak,
		End:   end,
		Stop:  end + env.StopPad,
		Gain:  gain,
	}
}

// Build realises p in the audio graph, feeding out. done is called once,
// without engine locks, when both layers have ended naturally.
func (f *VoiceFactory) Build(p VoicePlan, out audiograph.Node, done func(*Voice)) (*Voice, error) {
	if f.ac == nil {
		return nil, ErrNotSupported
	}
	ac := f.ac
	v := &Voice{
		ac:        ac,
		plan:      p,
		done:      done,
		panner:    ac.NewStereoPanner(p.Pan),
		tone:      ac.NewOscillator(audiograph.Sine, p.Frequency),
		toneGain:  ac.NewGain(0),
		noise:     ac.NewBufferSource(f.res.NoiseBuffer(), true),
		filter:    ac.NewBiquadFilter(audiograph.Bandpass, p.Brightness, f.s.NoiseQ),
		noiseGain: ac.NewGain(0),
	}

	envelope(v.toneGain.Gain, p.Tone, f.s.EnvelopeFloor)
	envelope(v.noiseGain.Gain, p.Noise, f.s.EnvelopeFloor)

	v.tone.Connect(v.toneGain)
	v.toneGain.Connect(v.panner)
	v.noise.Connect(v.filter)
	v.filter.Connect(v.noiseGain)
	v.noiseGain.Connect(v.panner)
	v.panner.Connect(out)

	v.tone.OnEnded(func() { v.layerEnded(toneLayer) })
	v.noise.OnEnded(func() { v.layerEnded(noiseLayer) })

	if err := schedule(v.tone, p.Tone); err != nil {
		v.disconnect()
		return nil, fmt.Errorf("failed to schedule tone of voice %d: %w", p.Index, err)
	}
	if err := schedule(v.noise, p.Noise); err != nil {
		v.ForceStop()
		return nil, fmt.Errorf("failed to schedule noise of voice %d: %w", p.Index, err)
	}
	return v, nil
}

func envelope(g *audiograph.Param, l LayerPlan, floor float64) {
	g.SetValueAtTime(0, l.Start)
	g.LinearRampToValueAtTime(l.Gain, l.Peak)
	g.LinearRampToValueAtTime(floor, l.End)
}

type scheduledSource interface {
	Start(when float64) error
	Stop(when float64) error
}

func schedule(src scheduledSource, l LayerPlan) error {
	if err := src.Start(l.Start); err != nil {
		return err
	}
	return src.Stop(l.Stop)
}

const (
	toneLayer = iota
	noiseLayer
)

// Voice is one scheduled event sound: a tone layer and a filtered noise
// layer sharing a panner.
type Voice struct {
	ac   *audiograph.Context
	plan VoicePlan
	done func(*Voice)

	panner    *audiograph.StereoPannerNode
	tone      *audiograph.OscillatorNode
	toneGain  *audiograph.GainNode
	noise     *audiograph.BufferSourceNode
	filter    *audiograph.BiquadFilterNode
	noiseGain *audiograph.GainNode

	mu    sync.Mutex
	state VoiceState
	ended [2]bool
}

// Plan returns the plan the voice was built from.
func (v *Voice) Plan() VoicePlan {
	return v.plan
}

// State returns the voice state, reading the audio clock to tell pending
// from sounding.
func (v *Voice) State() VoiceState {
	v.mu.Lock()
	st := v.state
	v.mu.Unlock()
	if st != VoicePending {
		return st
	}
	if v.ac.CurrentTime() >= math.Min(v.plan.Tone.Start, v.plan.Noise.Start) {
		return VoiceSounding
	}
	return VoicePending
}

// ForceStop silences the voice now and releases its nodes. It reports
// whether the call stopped the voice; a voice that already finished or was
// already stopped is left alone.
func (v *Voice) ForceStop() bool {
	v.mu.Lock()
	if v.state.terminal() {
		v.mu.Unlock()
		return false
	}
	v.state = VoiceStopped
	toneLive, noiseLive := !v.ended[toneLayer], !v.ended[noiseLayer]
	v.mu.Unlock()

	now := v.ac.CurrentTime()
	if toneLive && !v.tone.Ended() {
		// An error here means the layer ended or the clock closed meanwhile.
		_ = v.tone.Stop(now)
	}
	if noiseLive && !v.noise.Ended() {
		_ = v.noise.Stop(now)
	}
	v.disconnect()
	return true
}

func (v *Voice) layerEnded(layer int) {
	v.mu.Lock()
	v.ended[layer] = true
	if v.state.terminal() || !v.ended[toneLayer] || !v.ended[noiseLayer] {
		v.mu.Unlock()
		return
	}
	v.state = VoiceDone
	v.mu.Unlock()

	v.disconnect()
	if v.done != nil {
		v.done(v)
	}
}

func (v *Voice) disconnect() {
	v.tone.Disconnect()
	v.toneGain.Disconnect()
	v.noise.Disconnect()
	v.filter.Disconnect()
	v.noiseGain.Disconnect()
	v.panner.Disconnect()
}
