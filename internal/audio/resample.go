package audio

import (
	"fmt"
)

// Conform converts 16-bit PCM to the target sample rate and channel count.
// Channels are averaged down to mono before resampling; upmixing is not
// supported. Resampling is linear interpolation, which is adequate for speech.
func Conform(w *WAV, target Format) ([]byte, error) {
	if w.Format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (want 16)", w.Format.BitsPerSample)
	}
	if target.Channels != 1 && target.Channels != w.Format.Channels {
		return nil, fmt.Errorf("cannot convert %d channels to %d", w.Format.Channels, target.Channels)
	}

	samples := bytesToInt16(w.PCM)
	channels := w.Format.Channels
	if target.Channels == 1 && channels > 1 {
		samples = downmix(samples, channels)
		channels = 1
	}

	if w.Format.SampleRate != target.SampleRate {
		samples = resample(samples, channels, w.Format.SampleRate, target.SampleRate)
	}
	return int16ToBytes(samples), nil
}

func downmix(samples []int16, channels int) []int16 {
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

func resample(samples []int16, channels, from, to int) []int16 {
	frames := len(samples) / channels
	if frames == 0 {
		return nil
	}
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	ratio := float64(from) / float64(to)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= frames {
			next = frames - 1
		}
		for c := 0; c < channels; c++ {
			a := float64(samples[idx*channels+c])
			b := float64(samples[next*channels+c])
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}

func bytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

func int16ToBytes(data []int16) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
