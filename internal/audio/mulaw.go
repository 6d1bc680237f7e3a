package audio

import (
	"context"
	"fmt"

	"github.com/zaf/g711"
)

const telephonyRate = 8000

// Mulaw converts 16-bit little-endian PCM at a fixed input rate to 8kHz
// mono mu-law without an external process. Used when the agent emits raw
// pcm_* output and no ffmpeg binary is configured.
type Mulaw struct {
	inputRate int
	channels  int
}

func NewMulaw(inputRate, channels int) (*Mulaw, error) {
	if inputRate < telephonyRate {
		return nil, fmt.Errorf("input rate %d below telephony rate %d", inputRate, telephonyRate)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	return &Mulaw{inputRate: inputRate, channels: channels}, nil
}

func (m *Mulaw) Transcode(_ context.Context, in []byte) ([]byte, error) {
	if len(in)%2 != 0 {
		return nil, fmt.Errorf("pcm chunk length %d is not sample-aligned", len(in))
	}

	mono := in
	if m.channels == 2 {
		mono = downmixStereo(in)
	}
	pcm8k := resampleLinear(mono, m.inputRate, telephonyRate)
	return g711.EncodeUlaw(pcm8k), nil
}

// downmixStereo averages interleaved left/right 16-bit samples.
func downmixStereo(in []byte) []byte {
	out := make([]byte, 0, len(in)/2)
	for i := 0; i+3 < len(in); i += 4 {
		left := int16(in[i]) | int16(in[i+1])<<8
		right := int16(in[i+2]) | int16(in[i+3])<<8
		mixed := int16((int32(left) + int32(right)) / 2)
		out = append(out, byte(mixed), byte(mixed>>8))
	}
	return out
}

// resampleLinear converts mono 16-bit PCM between sample rates with linear
// interpolation. Good enough for narrowband telephony output.
func resampleLinear(in []byte, fromRate, toRate int) []byte {
	if fromRate == toRate {
		return in
	}
	samples := len(in) / 2
	if samples < 2 {
		return nil
	}

	ratio := float64(fromRate) / float64(toRate)
	outSamples := int(float64(samples) / ratio)
	out := make([]byte, 0, outSamples*2)

	for i := 0; i < outSamples; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx+1 >= samples {
			break
		}
		frac := pos - float64(idx)

		s1 := int16(in[idx*2]) | int16(in[idx*2+1])<<8
		s2 := int16(in[(idx+1)*2]) | int16(in[(idx+1)*2+1])<<8
		v := int16(float64(s1)*(1-frac) + float64(s2)*frac)

		out = append(out, byte(v), byte(v>>8))
	}
	return out
}

