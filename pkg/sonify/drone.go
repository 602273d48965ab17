package sonify

import (
	"fmt"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

// Drone is the ambient bed under the event voices.
//
// Topology:
//
//	sines -> lowpass -> panner ---+
//	                     voices ---+-> level -> destination
//	                                   level -> delay <-> feedback, delay -> destination
//	                                   level -> reverb send -> convolver -> destination
//
// The oscillators start when the drone is built and run until Close; only
// the level gain is animated between runs, and it scales the event voices
// along with the pad.
type Drone struct {
	ac *audiograph.Context
	s  DroneSettings

	oscs     []*audiograph.OscillatorNode
	filter   *audiograph.BiquadFilterNode
	panner   *audiograph.StereoPannerNode
	level    *audiograph.GainNode
	delay    *audiograph.DelayNode
	feedback *audiograph.GainNode
	send     *audiograph.GainNode
	reverb   *audiograph.ConvolverNode

	fadeIns  int
	fadeOuts int
}

func newDrone(ac *audiograph.Context, s DroneSettings, impulse *audiograph.Buffer) (*Drone, error) {
	d := &Drone{
		ac:       ac,
		s:        s,
		filter:   ac.NewBiquadFilter(audiograph.Lowpass, s.CutoffHz, s.Q),
		panner:   ac.NewStereoPanner(0),
		level:    ac.NewGain(0),
		delay:    ac.NewDelay(s.DelaySec, max(s.DelaySec, 1)),
		feedback: ac.NewGain(s.Feedback),
		send:     ac.NewGain(s.ReverbSend),
		reverb:   ac.NewConvolver(),
	}
	d.reverb.SetBuffer(impulse, true)

	dest := ac.Destination()
	d.filter.Connect(d.panner)
	d.panner.Connect(d.level)
	d.level.Connect(dest)

	d.level.Connect(d.delay)
	d.delay.Connect(d.feedback)
	d.feedback.Connect(d.delay)
	d.delay.Connect(dest)

	d.level.Connect(d.send)
	d.send.Connect(d.reverb)
	d.reverb.Connect(dest)

	now := ac.CurrentTime()
	for _, freq := range s.Frequencies {
		osc := ac.NewOscillator(audiograph.Sine, freq)
		osc.Connect(d.filter)
		if err := osc.Start(now); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to start drone oscillator: %w", err)
		}
		d.oscs = append(d.oscs, osc)
	}
	return d, nil
}

// Input is the main gain voices connect to.
func (d *Drone) Input() audiograph.Node {
	return d.level
}

// Level exposes the animated gain.
func (d *Drone) Level() *audiograph.Param {
	return d.level.Gain
}

// FadeIn cancels pending automation, snaps the level to 0 and ramps it to the
// ambient level.
func (d *Drone) FadeIn(now float64) {
	g := d.level.Gain
	g.CancelScheduledValues(now)
	g.SetValueAtTime(0, now)
	g.LinearRampToValueAtTime(d.s.Level, now+d.s.FadeInSec)
	d.fadeIns++
}

// FadeOut cancels pending automation, holds the current level and ramps it
// to 0 over seconds.
func (d *Drone) FadeOut(now, seconds float64) {
	g := d.level.Gain
	current := g.ValueAt(now)
	g.CancelScheduledValues(now)
	g.SetValueAtTime(current, now)
	g.LinearRampToValueAtTime(0, now+seconds)
	d.fadeOuts++
}

// Close stops the oscillators and detaches every drone node.
func (d *Drone) Close() {
	for _, osc := range d.oscs {
		// Stop fails only for oscillators already stopped or a closed clock; nothing to undo.
		_ = osc.Stop(0)
		osc.Disconnect()
	}
	d.oscs = nil
	for _, n := range []interface{ Disconnect() }{
		d.filter, d.panner, d.level, d.delay, d.feedback, d.send, d.reverb,
	} {
		n.Disconnect()
	}
}
