package audiograph

import "math"

// DelayNode delays its input by a k-rate delay time. The delay is never
// shorter than one render quantum, which allows a DelayNode to close a
// feedback cycle (delay -> gain -> delay).
type DelayNode struct {
	*node
	DelayTime *Param

	ring     [2][]float32
	write    int
	channels int
}

// NewDelay creates a delay line holding up to maxDelay seconds.
func (c *Context) NewDelay(delay, maxDelay float64) *DelayNode {
	maxDelay = math.Max(maxDelay, delay)
	size := int(math.Ceil(maxDelay*float64(c.sampleRate))) + 2*RenderQuantum
	d := &DelayNode{channels: 1}
	d.ring[0] = make([]float32, size)
	d.ring[1] = make([]float32, size)
	d.node = newNode(c, d)
	d.DelayTime = newParam(c, delay, 0, maxDelay)
	return d
}

// process is unused; DelayNode renders through emit/absorb.
func (d *DelayNode) process(in, out *bus, t0 float64) {
	d.emit(out, t0)
	d.absorb(in)
}

func (d *DelayNode) emit(out *bus, t0 float64) {
	size := len(d.ring[0])
	frames := int(math.Round(d.DelayTime.krate(t0) * float64(d.ctx.sampleRate)))
	frames = min(max(frames, RenderQuantum), size-RenderQuantum)

	silent := true
	for i := range RenderQuantum {
		pos := d.write + i - frames
		if pos < 0 {
			pos += size
		}
		l, r := d.ring[0][pos], d.ring[1][pos]
		if l != 0 || r != 0 {
			silent = false
		}
		out.ch[0][i] = l
		out.ch[1][i] = r
	}
	out.channels = d.channels
	out.silent = silent
}

func (d *DelayNode) absorb(in *bus) {
	size := len(d.ring[0])
	for i := range RenderQuantum {
		pos := (d.write + i) % size
		d.ring[0][pos] = flushSmall(in.ch[0][i])
		d.ring[1][pos] = flushSmall(in.ch[1][i])
	}
	if !in.silent {
		d.channels = max(d.channels, in.channels)
	}
	d.write = (d.write + RenderQuantum) % size
}

func flushSmall(v float32) float32 {
	if v > -1e-20 && v < 1e-20 {
		return 0
	}
	return v
}
