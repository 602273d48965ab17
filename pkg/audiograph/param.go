package audiograph

import "math"

type automationKind int

const (
	setValue automationKind = iota
	linearRamp
)

type automationEvent struct {
	kind  automationKind
	time  float64
	value float64
}

// Param is an automatable node parameter.
//
// Automation follows the usual setValueAtTime/linearRampToValueAtTime model:
// a linear ramp interpolates from the previous event (or the intrinsic value)
// to its own value, ending at its own time. Events entirely in the past are
// folded into the intrinsic value while rendering so the timeline stays short.
type Param struct {
	ctx *Context

	value      float64 // intrinsic value
	anchorTime float64 // time the intrinsic value took effect
	minValue   float64
	maxValue   float64
	events     []automationEvent
}

func newParam(ctx *Context, value, minValue, maxValue float64) *Param {
	return &Param{
		ctx:      ctx,
		value:    value,
		minValue: minValue,
		maxValue: maxValue,
	}
}

// Value returns the parameter value at the context's current time.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.now())
}

// ValueAt returns the parameter value at time t.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(t)
}

// SetValue sets the intrinsic value effective immediately.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.value = v
	p.anchorTime = p.ctx.now()
}

// SetValueAtTime schedules a step to v at time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(automationEvent{kind: setValue, time: t, value: v})
}

// LinearRampToValueAtTime schedules a linear ramp reaching v at time t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.insert(automationEvent{kind: linearRamp, time: t, value: v})
}

// CancelScheduledValues removes every event scheduled at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	kept := p.events[:0]
	for _, e := range p.events {
		if e.time < t {
			kept = append(kept, e)
		}
	}
	p.events = kept
}

// ScheduledEvents returns the number of pending automation events.
func (p *Param) ScheduledEvents() int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return len(p.events)
}

// insert keeps events sorted by time; events with equal times keep
// insertion order. Must be called with ctx.mu held.
func (p *Param) insert(e automationEvent) {
	i := len(p.events)
	for i > 0 && p.events[i-1].time > e.time {
		i--
	}
	p.events = append(p.events, automationEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

// valueAt must be called with ctx.mu held.
func (p *Param) valueAt(t float64) float64 {
	v, vt := p.value, p.anchorTime
	for _, e := range p.events {
		if e.time <= t {
			v, vt = e.value, e.time
			continue
		}
		if e.kind == linearRamp && e.time > vt {
			v += (e.value - v) * (t - vt) / (e.time - vt)
		}
		break
	}
	return p.clampValue(v)
}

// fold absorbs events at or before t into the intrinsic value.
// Must be called with ctx.mu held.
func (p *Param) fold(t float64) {
	n := 0
	for n < len(p.events) && p.events[n].time <= t {
		p.value = p.events[n].value
		p.anchorTime = p.events[n].time
		n++
	}
	if n > 0 {
		p.events = append(p.events[:0], p.events[n:]...)
	}
}

// constant reports whether the value stays fixed until t1.
func (p *Param) constant(t1 float64) bool {
	return len(p.events) == 0 || p.events[0].time >= t1 && p.events[0].kind == setValue
}

// fill writes per-frame values for the quantum starting at t0.
// Must be called with ctx.mu held.
func (p *Param) fill(dst []float32, t0 float64) {
	sr := float64(p.ctx.sampleRate)
	t1 := t0 + float64(len(dst))/sr
	p.fold(t0)
	if p.constant(t1) {
		v := float32(p.valueAt(t0))
		for i := range dst {
			dst[i] = v
		}
		return
	}
	for i := range dst {
		dst[i] = float32(p.valueAt(t0 + float64(i)/sr))
	}
}

// krate returns the value for a whole quantum starting at t0.
// Must be called with ctx.mu held.
func (p *Param) krate(t0 float64) float64 {
	p.fold(t0)
	return p.valueAt(t0)
}

func (p *Param) clampValue(v float64) float64 {
	if math.IsNaN(v) {
		return p.minValue
	}
	return math.Max(p.minValue, math.Min(p.maxValue, v))
}
