package audiograph

import "math"

// FilterType selects the biquad response.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
)

// BiquadFilterNode is a second-order IIR filter with k-rate frequency and Q.
// Coefficients follow the RBJ cookbook; state is kept per channel in Direct
// Form I.
type BiquadFilterNode struct {
	*node
	Type      FilterType
	Frequency *Param
	Q         *Param

	b0, b1, b2, a1, a2 float64
	lastFreq, lastQ    float64
	x1, x2, y1, y2     [2]float64
}

// NewBiquadFilter creates a filter of type t at freq Hz with quality q.
func (c *Context) NewBiquadFilter(t FilterType, freq, q float64) *BiquadFilterNode {
	f := &BiquadFilterNode{Type: t, lastFreq: -1}
	f.node = newNode(c, f)
	f.Frequency = newParam(c, freq, 10, float64(c.sampleRate)/2)
	f.Q = newParam(c, q, 0.0001, 1000)
	return f
}

func (f *BiquadFilterNode) process(in, out *bus, t0 float64) {
	freq := f.Frequency.krate(t0)
	q := f.Q.krate(t0)
	if freq != f.lastFreq || q != f.lastQ {
		f.design(float64(f.ctx.sampleRate), freq, q)
	}
	out.channels = in.channels
	if in.silent && f.idle() {
		out.reset()
		out.channels = in.channels
		return
	}
	for ch := range 2 {
		x1, x2, y1, y2 := f.x1[ch], f.x2[ch], f.y1[ch], f.y2[ch]
		for i := range RenderQuantum {
			x0 := float64(in.ch[ch][i])
			y0 := f.b0*x0 + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
			x2, x1 = x1, x0
			y2, y1 = y1, y0
			out.ch[ch][i] = float32(y0)
		}
		f.x1[ch], f.x2[ch], f.y1[ch], f.y2[ch] = x1, x2, flushDenormal(y1), flushDenormal(y2)
	}
	out.silent = false
}

// idle reports whether the filter has no ringing state left.
func (f *BiquadFilterNode) idle() bool {
	for ch := range 2 {
		if f.x1[ch] != 0 || f.x2[ch] != 0 || f.y1[ch] != 0 || f.y2[ch] != 0 {
			return false
		}
	}
	return true
}

func (f *BiquadFilterNode) design(sampleRate, freq, q float64) {
	f.lastFreq, f.lastQ = freq, q
	omega := 2.0 * math.Pi * freq / sampleRate
	sinOmega := math.Sin(omega)
	cosOmega := math.Cos(omega)
	alpha := sinOmega / (2.0 * q)

	var b0, b1, b2 float64
	switch f.Type {
	case Highpass:
		b0 = (1.0 + cosOmega) / 2.0
		b1 = -(1.0 + cosOmega)
		b2 = (1.0 + cosOmega) / 2.0
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1.0 - cosOmega) / 2.0
		b1 = 1.0 - cosOmega
		b2 = (1.0 - cosOmega) / 2.0
	}
	a0 := 1.0 + alpha
	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = -2.0 * cosOmega / a0
	f.a2 = (1.0 - alpha) / a0
}

func flushDenormal(v float64) float64 {
	if math.Abs(v) < 1e-15 {
		return 0
	}
	return v
}
