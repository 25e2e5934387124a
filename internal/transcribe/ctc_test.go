package transcribe

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// writeCTCModel writes a model file whose bias alone decides the argmax:
// with zero weights the token with the largest bias wins on every frame.
func writeCTCModel(t *testing.T, model ctcModel) string {
	t.Helper()
	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func rigModel(winnerBias []float32, bins int) ctcModel {
	return ctcModel{
		Vocab:   []string{"<blank>", "▁hi", "▁there"},
		MelBins: bins,
		Weights: make([]float32, 3*bins),
		Bias:    winnerBias,
	}
}

func speechAudio(n int) *AudioData {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2*math.Pi*300*float64(i)/16000)) * 0.3
	}
	return &AudioData{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestNewCTCPluginMissingFile(t *testing.T) {
	_, err := NewCTCPlugin(filepath.Join(t.TempDir(), "missing.json"), testLogger())
	if err == nil {
		t.Fatal("missing model file should fail construction")
	}
	if apperr.KindOf(err) != apperr.KindModelNotFound {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindModelNotFound)
	}
}

func TestCTCInitializeBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}
	err = p.Initialize()
	if apperr.KindOf(err) != apperr.KindModelLoadFailed {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindModelLoadFailed)
	}
	if p.IsInitialized() {
		t.Error("failed Initialize left plugin initialized")
	}
}

func TestCTCModelValidate(t *testing.T) {
	tests := []struct {
		name  string
		model ctcModel
	}{
		{"empty vocab", ctcModel{MelBins: 4}},
		{"no mel bins", ctcModel{Vocab: []string{"<blank>", "a"}}},
		{"weight shape", ctcModel{Vocab: []string{"<blank>", "a"}, MelBins: 4, Weights: make([]float32, 3), Bias: make([]float32, 2)}},
		{"bias shape", ctcModel{Vocab: []string{"<blank>", "a"}, MelBins: 4, Weights: make([]float32, 8), Bias: make([]float32, 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCTCModel(t, tt.model)
			p, err := NewCTCPlugin(path, testLogger())
			if err != nil {
				t.Fatalf("NewCTCPlugin: %v", err)
			}
			err = p.Initialize()
			if apperr.KindOf(err) != apperr.KindModelLoadFailed {
				t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindModelLoadFailed)
			}
		})
	}
}

func TestCTCTranscribeNotInitialized(t *testing.T) {
	path := writeCTCModel(t, rigModel([]float32{0, 10, 0}, 4))
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}
	_, err = p.Transcribe(speechAudio(1600))
	if apperr.KindOf(err) != apperr.KindNotInitialized {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindNotInitialized)
	}
}

func TestCTCTranscribeDecodesVocabToken(t *testing.T) {
	// bias[1] dominates on every frame, so greedy decode collapses the whole
	// utterance into one "▁hi" token.
	path := writeCTCModel(t, rigModel([]float32{0, 10, 0}, 4))
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer p.Shutdown()

	tr, err := p.Transcribe(speechAudio(16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hi" {
		t.Errorf("Text = %q, want %q", tr.Text, "hi")
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if seg.Text != "hi" {
		t.Errorf("segment text = %q, want %q", seg.Text, "hi")
	}
	if seg.StartMS != 0 {
		t.Errorf("segment start = %d ms, want 0", seg.StartMS)
	}
	if seg.EndMS <= seg.StartMS {
		t.Errorf("segment end %d ms not after start %d ms", seg.EndMS, seg.StartMS)
	}
	if seg.Confidence < 0.99 {
		t.Errorf("confidence = %f, want near 1 for a dominant bias", seg.Confidence)
	}
}

func TestCTCTranscribeAllBlank(t *testing.T) {
	path := writeCTCModel(t, rigModel([]float32{10, 0, 0}, 4))
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer p.Shutdown()

	_, err = p.Transcribe(speechAudio(16000))
	if apperr.KindOf(err) != apperr.KindBlankAudio {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindBlankAudio)
	}
}

func TestCTCTranscribeTooShort(t *testing.T) {
	path := writeCTCModel(t, rigModel([]float32{0, 10, 0}, 4))
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer p.Shutdown()

	// Shorter than one analysis window (400 samples).
	_, err = p.Transcribe(speechAudio(100))
	if apperr.KindOf(err) != apperr.KindBlankAudio {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindBlankAudio)
	}
}

func TestCTCLifecycleRoundTrip(t *testing.T) {
	path := writeCTCModel(t, rigModel([]float32{0, 10, 0}, 4))
	p, err := NewCTCPlugin(path, testLogger())
	if err != nil {
		t.Fatalf("NewCTCPlugin: %v", err)
	}

	if p.IsInitialized() {
		t.Error("fresh plugin should not be initialized")
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("second Initialize should be a no-op: %v", err)
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if p.IsInitialized() {
		t.Error("plugin still initialized after Shutdown")
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("re-Initialize after Shutdown: %v", err)
	}
	if _, err := p.Transcribe(speechAudio(16000)); err != nil {
		t.Errorf("Transcribe after re-Initialize: %v", err)
	}
}

func TestSPTokensToText(t *testing.T) {
	tests := []struct {
		tokens []string
		want   string
	}{
		{[]string{"▁hi"}, "hi"},
		{[]string{"▁hi", "▁there"}, "hi there"},
		{[]string{"▁jour", "nal"}, "journal"},
		{[]string{}, ""},
	}
	for _, tt := range tests {
		if got := spTokensToText(tt.tokens); got != tt.want {
			t.Errorf("spTokensToText(%v) = %q, want %q", tt.tokens, got, tt.want)
		}
	}
}

func TestMelExtractFrameCount(t *testing.T) {
	m := newMelExtractor(8, 1)

	tests := []struct {
		samples int
		frames  int
	}{
		{399, 0},
		{400, 1},
		{560, 2},
		{16000, 1 + (16000-melWindowSize)/melHopSize},
	}
	for _, tt := range tests {
		in := make([]float32, tt.samples)
		got := m.Extract(in)
		if len(got) != tt.frames {
			t.Errorf("Extract(%d samples) = %d frames, want %d", tt.samples, len(got), tt.frames)
		}
	}
}

func TestMelExtractParallelMatchesSerial(t *testing.T) {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(math.Sin(2*math.Pi*440*float64(i)/16000)) * 0.5
	}

	serial := newMelExtractor(16, 1).Extract(samples)
	parallel := newMelExtractor(16, 4).Extract(samples)

	if len(serial) != len(parallel) {
		t.Fatalf("frame counts differ: serial %d, parallel %d", len(serial), len(parallel))
	}
	for f := range serial {
		for b := range serial[f] {
			if serial[f][b] != parallel[f][b] {
				t.Fatalf("frame %d bin %d: serial %f != parallel %f", f, b, serial[f][b], parallel[f][b])
			}
		}
	}
}

func TestFeatureWorkersRange(t *testing.T) {
	n := featureWorkers()
	if n < 1 || n > 8 {
		t.Errorf("featureWorkers() = %d, want within [1, 8]", n)
	}
}
