package transcribe

import (
	"math"
	"runtime"
	"sync"
)

// Mel feature geometry: 25 ms windows with a 10 ms hop at 16 kHz, the usual
// front end for speech models.
const (
	melWindowSize = 400
	melHopSize    = 160
	melFreqBins   = melWindowSize/2 + 1
)

// melExtractor converts mono 16 kHz samples into log-mel feature frames.
// The filterbank and window are precomputed once per engine instance.
type melExtractor struct {
	bins    int
	window  []float64
	filters [][]float64 // [bin][freqBin] triangular weights
	workers int
}

// newMelExtractor builds the Hann window and triangular mel filterbank.
// workers > 1 enables the parallel extraction path.
func newMelExtractor(bins, workers int) *melExtractor {
	window := make([]float64, melWindowSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(melWindowSize-1))
	}
	return &melExtractor{
		bins:    bins,
		window:  window,
		filters: melFilterbank(bins),
		workers: workers,
	}
}

// Extract returns one feature vector of length bins per frame. When the
// extractor was built with multiple workers the frames are computed in
// parallel; the serial path produces identical output.
func (m *melExtractor) Extract(samples []float32) [][]float32 {
	if len(samples) < melWindowSize {
		return nil
	}
	frames := 1 + (len(samples)-melWindowSize)/melHopSize
	out := make([][]float32, frames)

	if m.workers <= 1 || frames < m.workers {
		for f := 0; f < frames; f++ {
			out[f] = m.frame(samples, f)
		}
		return out
	}

	var wg sync.WaitGroup
	chunk := (frames + m.workers - 1) / m.workers
	for w := 0; w < m.workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > frames {
			hi = frames
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for f := lo; f < hi; f++ {
				out[f] = m.frame(samples, f)
			}
		}(lo, hi)
	}
	wg.Wait()
	return out
}

// frame computes the log-mel vector for one window via a direct DFT. The
// window is short enough that the quadratic transform stays cheap.
func (m *melExtractor) frame(samples []float32, f int) []float32 {
	start := f * melHopSize

	var windowed [melWindowSize]float64
	for i := 0; i < melWindowSize; i++ {
		windowed[i] = float64(samples[start+i]) * m.window[i]
	}

	var power [melFreqBins]float64
	for k := 0; k < melFreqBins; k++ {
		var re, im float64
		omega := -2 * math.Pi * float64(k) / float64(melWindowSize)
		for n := 0; n < melWindowSize; n++ {
			angle := omega * float64(n)
			re += windowed[n] * math.Cos(angle)
			im += windowed[n] * math.Sin(angle)
		}
		power[k] = re*re + im*im
	}

	vec := make([]float32, m.bins)
	for b := 0; b < m.bins; b++ {
		var sum float64
		for k, w := range m.filters[b] {
			if w != 0 {
				sum += w * power[k]
			}
		}
		vec[b] = float32(math.Log(sum + 1e-10))
	}
	return vec
}

// melFilterbank builds triangular filters evenly spaced on the mel scale
// between 0 Hz and Nyquist for 16 kHz input.
func melFilterbank(bins int) [][]float64 {
	const nyquist = float64(RequiredSampleRate) / 2

	melMax := hzToMel(nyquist)
	points := make([]float64, bins+2)
	for i := range points {
		points[i] = melToHz(melMax * float64(i) / float64(bins+1))
	}

	binOf := func(hz float64) float64 {
		return hz / nyquist * float64(melFreqBins-1)
	}

	filters := make([][]float64, bins)
	for b := 0; b < bins; b++ {
		filters[b] = make([]float64, melFreqBins)
		lo, mid, hi := binOf(points[b]), binOf(points[b+1]), binOf(points[b+2])
		for k := 0; k < melFreqBins; k++ {
			fk := float64(k)
			switch {
			case fk > lo && fk <= mid:
				filters[b][k] = (fk - lo) / (mid - lo)
			case fk > mid && fk < hi:
				filters[b][k] = (hi - fk) / (hi - mid)
			}
		}
	}
	return filters
}

func hzToMel(hz float64) float64  { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// featureWorkers picks the parallel fan-out for mel extraction. A single
// CPU (or a constrained runtime) degrades to the serial path.
func featureWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
