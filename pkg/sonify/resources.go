package sonify

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// Resources lazily builds the buffers shared by the drone and every voice.
// Each buffer is generated once per engine and is read-only afterwards.
type Resources struct {
	sampleRate int
	reverb     ReverbSettings

	mu           sync.RWMutex
	noise        *audiograph.Buffer
	impulse      *audiograph.Buffer
	noiseBuilds  int
	reverbBuilds int
}

// NewResources creates an empty cache for buffers at sampleRate.
func NewResources(sampleRate int, reverb ReverbSettings) *Resources {
	return &Resources{sampleRate: sampleRate, reverb: reverb}
}

// NoiseBuffer returns one second of mono uniform white noise.
func (r *Resources) NoiseBuffer() *audiograph.Buffer {
	r.mu.RLock()
	if buf := r.noise; buf != nil {
		r.mu.RUnlock()
		return buf
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noise != nil {
		return r.noise
	}
	rng := rand.New(rand.NewPCG(r.reverb.Seed, 0x6e6f697365))
	buf := audiograph.NewBuffer(1, r.sampleRate, r.sampleRate)
	samples := buf.Channel(0)
	for i := range samples {
		samples[i] = float32(rng.Float64()*2 - 1)
	}
	r.noise = buf
	r.noiseBuilds++
	return buf
}

// ReverbBuffer returns the stereo impulse response: white noise shaped by
// (1-t)^decay over the configured length.
func (r *Resources) ReverbBuffer() *audiograph.Buffer {
	r.mu.RLock()
	if buf := r.impulse; buf != nil {
		r.mu.RUnlock()
		return buf
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.impulse != nil {
		return r.impulse
	}
	length := max(int(float64(r.sampleRate)*r.reverb.Seconds), 1)
	rng := rand.New(rand.NewPCG(r.reverb.Seed, 0x726576657262))
	buf := audiograph.NewBuffer(2, length, r.sampleRate)
	for ch := range 2 {
		samples := buf.Channel(ch)
		for i := range samples {
			progress := float64(i) / float64(length)
			envelope := math.Pow(1-progress, r.reverb.Decay)
			samples[i] = float32((rng.Float64()*2 - 1) * envelope)
		}
	}
	r.impulse = buf
	r.reverbBuilds++
	return buf
}

// Builds reports how many times each buffer has been generated.
func (r *Resources) Builds() (noise, reverb int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.noiseBuilds, r.reverbBuilds
}

// Release drops the cached buffers. Buffers already handed to nodes stay
// valid for those nodes.
func (r *Resources) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noise = nil
	r.impulse = nil
}
