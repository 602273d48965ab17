package audiograph

import "math"

// StereoPannerNode positions its input with an equal-power law.
// Pan ranges from -1 (left) to 1 (right) and is evaluated per quantum.
type StereoPannerNode struct {
	*node
	Pan *Param
}

// NewStereoPanner creates a panner at position pan.
func (c *Context) NewStereoPanner(pan float64) *StereoPannerNode {
	p := &StereoPannerNode{}
	p.node = newNode(c, p)
	p.Pan = newParam(c, pan, -1, 1)
	return p
}

func (p *StereoPannerNode) process(in, out *bus, t0 float64) {
	pan := p.Pan.krate(t0)
	out.channels = 2
	if in.silent {
		out.reset()
		out.channels = 2
		return
	}

	if in.channels == 1 {
		x := (pan + 1) / 2
		gl := float32(math.Cos(x * math.Pi / 2))
		gr := float32(math.Sin(x * math.Pi / 2))
		for i := range RenderQuantum {
			s := in.ch[0][i]
			out.ch[0][i] = s * gl
			out.ch[1][i] = s * gr
		}
		out.silent = false
		return
	}

	// Stereo input: the far channel is folded into the near one.
	x := pan + 1
	if pan > 0 {
		x = pan
	}
	gl := float32(math.Cos(x * math.Pi / 2))
	gr := float32(math.Sin(x * math.Pi / 2))
	for i := range RenderQuantum {
		l, r := in.ch[0][i], in.ch[1][i]
		if pan <= 0 {
			out.ch[0][i] = l + r*gl
			out.ch[1][i] = r * gr
		} else {
			out.ch[0][i] = l * gl
			out.ch[1][i] = r + l*gr
		}
	}
	out.silent = false
}
