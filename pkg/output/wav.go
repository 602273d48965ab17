package output

import (
	"fmt"
	"io"
	"math"

	wav "github.com/youpy/go-wav"

	"github.com/zurustar/seismosonic/pkg/audiograph"
)

const (
	wavChannels      = 2
	wavBitsPerSample = 16
	wavBlockFrames   = 4096
)

// RenderWAV advances an offline context by seconds and writes the rendered
// audio to w as 16-bit stereo PCM. The context must be running and must not
// have a sink. It returns the number of frames written.
func RenderWAV(w io.Writer, ac *audiograph.Context, seconds float64) (int, error) {
	if ac.State() != audiograph.StateRunning {
		return 0, fmt.Errorf("cannot render: audio clock is %s", ac.State())
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("cannot render %.3f seconds", seconds)
	}

	sr := ac.SampleRate()
	total := int(math.Ceil(seconds * float64(sr)))
	writer := wav.NewWriter(w, uint32(total), wavChannels, uint32(sr), wavBitsPerSample)

	left := make([]float32, wavBlockFrames)
	right := make([]float32, wavBlockFrames)
	samples := make([]wav.Sample, wavBlockFrames)

	written := 0
	for written < total {
		n := min(total-written, wavBlockFrames)
		ac.Render(left[:n], right[:n])
		for i := range n {
			samples[i].Values[0] = pcm16(left[i])
			samples[i].Values[1] = pcm16(right[i])
		}
		if err := writer.WriteSamples(samples[:n]); err != nil {
			return written, fmt.Errorf("failed to write samples: %w", err)
		}
		written += n
	}
	return written, nil
}

func pcm16(v float32) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(v * math.MaxInt16)
}
