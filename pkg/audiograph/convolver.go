package audiograph

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// convolverBlock is the partition size of the convolution engine. The
// convolver output lags its input by one partition.
const convolverBlock = 8 * RenderQuantum

// Impulse normalization constants for a reverb that sits at a comfortable
// level regardless of impulse energy.
const (
	gainCalibration           = 0.00125
	gainCalibrationSampleRate = 44100
	minPower                  = 0.000125
)

// ConvolverNode convolves its input with an impulse response using uniformly
// partitioned overlap-save FFT convolution. A stereo impulse convolves each
// input channel with the matching impulse channel.
type ConvolverNode struct {
	*node
	buffer *Buffer
	scale  float32

	partitions int
	spectra    [2][][]complex128 // impulse partitions, 2*block bins each
	history    [2][][]complex128 // input spectra, ring of `partitions`
	head       int

	prev, cur [2][]float64
	outBlock  [2][]float32
	pos       int
	idle      int
	quiet     bool
}

// NewConvolver creates a convolver without an impulse; it outputs silence
// until SetBuffer is called.
func (c *Context) NewConvolver() *ConvolverNode {
	v := &ConvolverNode{quiet: true}
	v.node = newNode(c, v)
	for ch := range 2 {
		v.prev[ch] = make([]float64, convolverBlock)
		v.cur[ch] = make([]float64, convolverBlock)
		v.outBlock[ch] = make([]float32, convolverBlock)
	}
	return v
}

// SetBuffer installs the impulse response. With normalize set the impulse
// energy is calibrated to a fixed loudness.
func (v *ConvolverNode) SetBuffer(buf *Buffer, normalize bool) {
	var spectra [2][][]complex128
	partitions := 0
	scale := float32(1)
	if buf != nil && buf.Len() > 0 {
		partitions = (buf.Len() + convolverBlock - 1) / convolverBlock
		for ch := range 2 {
			src := buf.Channel(min(ch, buf.NumChannels()-1))
			spectra[ch] = make([][]complex128, partitions)
			for k := range partitions {
				seg := make([]complex128, 2*convolverBlock)
				for i := 0; i < convolverBlock && k*convolverBlock+i < len(src); i++ {
					seg[i] = complex(float64(src[k*convolverBlock+i]), 0)
				}
				spectra[ch][k] = fft.FFT(seg)
			}
		}
		if normalize {
			scale = float32(normalizationScale(buf))
		}
	}

	v.ctx.mu.Lock()
	defer v.ctx.mu.Unlock()
	v.buffer = buf
	v.scale = scale
	v.partitions = partitions
	v.spectra = spectra
	v.reset()
}

// reset clears the convolution history. Must be called with ctx.mu held.
func (v *ConvolverNode) reset() {
	for ch := range 2 {
		v.history[ch] = make([][]complex128, v.partitions)
		clear(v.prev[ch])
		clear(v.cur[ch])
		clear(v.outBlock[ch])
	}
	v.head = 0
	v.pos = 0
	v.idle = 0
	v.quiet = true
}

func (v *ConvolverNode) process(in, out *bus, _ float64) {
	if v.partitions == 0 {
		out.reset()
		out.channels = 2
		return
	}

	if in.silent {
		v.idle += RenderQuantum
	} else {
		v.idle = 0
		v.quiet = false
	}
	if !v.quiet && v.idle > (v.partitions+2)*convolverBlock {
		v.reset()
	}
	if v.quiet {
		out.reset()
		out.channels = 2
		return
	}

	for ch := range 2 {
		copy(out.ch[ch][:], v.outBlock[ch][v.pos:v.pos+RenderQuantum])
		for i := range RenderQuantum {
			v.cur[ch][v.pos+i] = float64(in.ch[ch][i])
		}
	}
	out.channels = 2
	out.silent = false

	v.pos += RenderQuantum
	if v.pos == convolverBlock {
		v.convolveBlock()
		v.pos = 0
	}
}

// convolveBlock runs one overlap-save step over [prev | cur].
func (v *ConvolverNode) convolveBlock() {
	n := 2 * convolverBlock
	for ch := range 2 {
		window := make([]complex128, n)
		for i, s := range v.prev[ch] {
			window[i] = complex(s, 0)
		}
		for i, s := range v.cur[ch] {
			window[convolverBlock+i] = complex(s, 0)
		}
		v.history[ch][v.head] = fft.FFT(window)

		acc := make([]complex128, n)
		for k := range v.partitions {
			x := v.history[ch][(v.head-k+v.partitions)%v.partitions]
			if x == nil {
				continue
			}
			h := v.spectra[ch][k]
			for j := range acc {
				acc[j] += x[j] * h[j]
			}
		}
		y := fft.IFFT(acc)
		for i := range convolverBlock {
			v.outBlock[ch][i] = float32(real(y[convolverBlock+i])) * v.scale
		}
		v.prev[ch], v.cur[ch] = v.cur[ch], v.prev[ch]
	}
	v.head = (v.head + 1) % v.partitions
}

func normalizationScale(buf *Buffer) float64 {
	var power float64
	for ch := range buf.NumChannels() {
		for _, s := range buf.Channel(ch) {
			power += float64(s) * float64(s)
		}
	}
	power = math.Sqrt(power / float64(buf.NumChannels()*buf.Len()))
	if math.IsNaN(power) || math.IsInf(power, 0) || power < minPower {
		power = minPower
	}
	scale := gainCalibration / power
	if buf.SampleRate() > 0 {
		scale *= float64(gainCalibrationSampleRate) / float64(buf.SampleRate())
	}
	return scale
}
