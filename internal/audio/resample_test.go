package audio

import (
	"math"
	"testing"
)

func TestResampleIdentity(t *testing.T) {
	in := []float32{0.0, 0.25, 0.5, 0.75, 1.0}
	for _, rate := range []uint32{8000, 16000, 44100, 48000} {
		out := Resample(in, rate, rate)
		if len(out) != len(in) {
			t.Fatalf("Resample(s, %d, %d) changed length: %d -> %d", rate, rate, len(in), len(out))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("rate %d: sample %d = %f, want %f", rate, i, out[i], in[i])
			}
		}
	}
}

func TestResampleOutputLength(t *testing.T) {
	tests := []struct {
		inLen   int
		inRate  uint32
		outRate uint32
	}{
		{44100, 44100, 16000},
		{48000, 48000, 16000},
		{16000, 16000, 48000},
		{1000, 22050, 16000},
		{5, 44100, 16000},
	}
	for _, tt := range tests {
		in := make([]float32, tt.inLen)
		out := Resample(in, tt.inRate, tt.outRate)
		want := int(float64(tt.inLen) / (float64(tt.inRate) / float64(tt.outRate)))
		if len(out) != want {
			t.Errorf("Resample(len %d, %d, %d) produced %d samples, want %d",
				tt.inLen, tt.inRate, tt.outRate, len(out), want)
		}
	}
}

func TestResampleDownsampleShorter(t *testing.T) {
	in := []float32{0.0, 0.25, 0.5, 0.75, 1.0}
	out := Resample(in, 44100, 16000)
	if len(out) == 0 {
		t.Fatal("downsampled output is empty")
	}
	if len(out) >= len(in) {
		t.Errorf("downsampling 44100->16000 should shorten: %d -> %d", len(in), len(out))
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Halving the rate of a ramp keeps values on the ramp.
	in := make([]float32, 100)
	for i := range in {
		in[i] = float32(i) / 100
	}
	out := Resample(in, 32000, 16000)
	for i, v := range out {
		want := float32(i*2) / 100
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Fatalf("sample %d = %f, want %f", i, v, want)
		}
	}
}

func TestResampleSincLengthMatchesLinear(t *testing.T) {
	in := make([]float32, 4410)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}
	linear := Resample(in, 44100, 16000)
	sinc := ResampleSinc(in, 44100, 16000)
	if len(sinc) != len(linear) {
		t.Fatalf("sinc length %d != linear length %d", len(sinc), len(linear))
	}
}

func TestResampleSincIdentity(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3}
	out := ResampleSinc(in, 16000, 16000)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("identity sinc changed sample %d: %f -> %f", i, in[i], out[i])
		}
	}
}

func TestResampleSincPreservesTone(t *testing.T) {
	// A 440 Hz tone downsampled to 16 kHz should keep its amplitude within
	// a few percent away from the edges.
	in := make([]float32, 44100)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}
	out := ResampleSinc(in, 44100, 16000)

	var peak float64
	for _, v := range out[100 : len(out)-100] {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if peak < 0.9 || peak > 1.1 {
		t.Errorf("peak after sinc resample = %f, want ~1.0", peak)
	}
}

func TestDownmixMono(t *testing.T) {
	stereo := []float32{1.0, 0.0, 0.5, 0.5, -1.0, 1.0}
	mono := DownmixMono(stereo, 2)
	want := []float32{0.5, 0.5, 0.0}
	if len(mono) != len(want) {
		t.Fatalf("got %d frames, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("frame %d = %f, want %f", i, mono[i], want[i])
		}
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2}
	out := DownmixMono(in, 1)
	if &out[0] != &in[0] {
		t.Error("mono input should pass through unchanged")
	}
}
