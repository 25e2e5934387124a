package audio

import "math"

// Resample converts samples from inRate to outRate using linear
// interpolation. Equal rates return the input slice unchanged. The output
// length is floor(len(samples) * outRate / inRate). Linear interpolation is
// not band-limited; speech transcription tolerates the aliasing, and
// ResampleSinc is available where quality matters more than speed.
func Resample(samples []float32, inRate, outRate uint32) []float32 {
	if inRate == outRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		i1 := i0 + 1
		if i1 >= len(samples) {
			i1 = len(samples) - 1
		}
		frac := float32(pos - float64(i0))
		out[i] = samples[i0]*(1-frac) + samples[i1]*frac
	}
	return out
}

// sincTaps is the half-width of the windowed-sinc kernel. 16 taps per side
// keeps the kernel cheap while pushing aliasing well below speech noise.
const sincTaps = 16

// ResampleSinc converts samples from inRate to outRate using a Hann-windowed
// sinc kernel. Same ratio and output-length contract as Resample; equal
// rates pass the input through unchanged.
func ResampleSinc(samples []float32, inRate, outRate uint32) []float32 {
	if inRate == outRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	// When downsampling the kernel cutoff follows the output Nyquist.
	cutoff := 1.0
	if ratio > 1 {
		cutoff = 1 / ratio
	}

	for i := 0; i < outLen; i++ {
		center := float64(i) * ratio
		var sum, norm float64
		for j := int(center) - sincTaps; j <= int(center)+sincTaps; j++ {
			if j < 0 || j >= len(samples) {
				continue
			}
			x := center - float64(j)
			w := windowedSinc(x*cutoff, float64(sincTaps))
			sum += float64(samples[j]) * w
			norm += w
		}
		if norm != 0 {
			out[i] = float32(sum / norm)
		}
	}
	return out
}

// windowedSinc evaluates sinc(x) under a Hann window of half-width taps.
func windowedSinc(x, taps float64) float64 {
	if x == 0 {
		return 1
	}
	if math.Abs(x) >= taps {
		return 0
	}
	px := math.Pi * x
	sinc := math.Sin(px) / px
	hann := 0.5 + 0.5*math.Cos(px/taps)
	return sinc * hann
}

// DownmixMono averages interleaved multi-channel samples into one channel.
// Mono input is returned unchanged. A trailing partial frame is dropped.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
