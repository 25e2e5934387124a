package transcribe

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/extrophi/voicejournal/internal/apperr"
)

const (
	ctcVersion = "1.0.0"
	ctcBlankID = 0
)

// ctcModel is the on-disk model: a vocabulary and one linear acoustic layer
// mapping mel features to per-token logits. Weights are row-major
// [vocab][mel_bins]. Token 0 is the CTC blank; SentencePiece-style "▁"
// markers in vocab entries become spaces on decode.
type ctcModel struct {
	Vocab   []string  `json:"vocab"`
	MelBins int       `json:"mel_bins"`
	Weights []float32 `json:"weights"`
	Bias    []float32 `json:"bias"`
}

func (m *ctcModel) validate() error {
	if len(m.Vocab) < 2 {
		return apperr.E(apperr.KindModelLoadFailed, "vocabulary has %d entries, want at least blank plus one token", len(m.Vocab))
	}
	if m.MelBins <= 0 {
		return apperr.E(apperr.KindModelLoadFailed, "mel_bins must be positive, got %d", m.MelBins)
	}
	if len(m.Weights) != len(m.Vocab)*m.MelBins {
		return apperr.E(apperr.KindModelLoadFailed, "weights length %d does not match vocab %d x mel_bins %d",
			len(m.Weights), len(m.Vocab), m.MelBins)
	}
	if len(m.Bias) != len(m.Vocab) {
		return apperr.E(apperr.KindModelLoadFailed, "bias length %d does not match vocab %d", len(m.Bias), len(m.Vocab))
	}
	return nil
}

// CTCPlugin is the pure-Go engine: log-mel features through a linear
// acoustic layer with greedy CTC decoding. No native code anywhere on the
// path, which makes it the fallback when libvosk is not installed.
type CTCPlugin struct {
	modelPath string
	log       *slog.Logger

	mu          sync.Mutex
	model       *ctcModel
	mel         *melExtractor
	initialized bool
}

// NewCTCPlugin validates that the model file exists; parsing is deferred to
// Initialize so construction failures stay distinct from load failures.
func NewCTCPlugin(modelPath string, log *slog.Logger) (*CTCPlugin, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, apperr.E(apperr.KindModelNotFound, "ctc model not found at %s", modelPath)
	}
	return &CTCPlugin{modelPath: modelPath, log: log}, nil
}

func (c *CTCPlugin) Name() string    { return "ctc" }
func (c *CTCPlugin) Version() string { return ctcVersion }

// Initialize parses the model and picks the feature-extraction path. More
// than one CPU enables parallel extraction; otherwise the serial path is
// used. Either way initialization succeeds: the path choice only affects
// throughput, and it is logged for diagnosis.
func (c *CTCPlugin) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	data, err := os.ReadFile(c.modelPath)
	if err != nil {
		return apperr.Wrap(apperr.KindModelLoadFailed, err, "reading ctc model %s", c.modelPath)
	}
	var model ctcModel
	if err := json.Unmarshal(data, &model); err != nil {
		return apperr.Wrap(apperr.KindModelLoadFailed, err, "parsing ctc model %s", c.modelPath)
	}
	if err := model.validate(); err != nil {
		return err
	}

	workers := featureWorkers()
	if workers > 1 {
		c.log.Info("ctc engine initialized", "model", c.modelPath, "feature_path", "parallel", "workers", workers)
	} else {
		c.log.Info("ctc engine initialized", "model", c.modelPath, "feature_path", "serial")
	}

	c.model = &model
	c.mel = newMelExtractor(model.MelBins, workers)
	c.initialized = true
	return nil
}

// Transcribe extracts mel features, scores each frame through the acoustic
// layer and greedy-decodes the CTC alignment: repeats collapse, blanks
// separate, token runs become timed segments.
func (c *CTCPlugin) Transcribe(audio *AudioData) (*Transcript, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, errNotInitialized(c.Name())
	}
	if err := ValidateFormat(audio); err != nil {
		return nil, err
	}

	frames := c.mel.Extract(audio.Samples)
	if len(frames) == 0 {
		return nil, apperr.E(apperr.KindBlankAudio, "audio shorter than one analysis window")
	}

	var (
		segments []TranscriptSegment
		text     strings.Builder
		prev     = ctcBlankID

		segStart   int
		segTokens  []string
		segConfSum float64
		segConfN   int
	)

	flush := func(endFrame int) {
		if len(segTokens) == 0 {
			return
		}
		seg := TranscriptSegment{
			StartMS:    frameToMS(segStart),
			EndMS:      frameToMS(endFrame),
			Text:       spTokensToText(segTokens),
			Confidence: float32(segConfSum / float64(segConfN)),
		}
		if seg.Text != "" {
			segments = append(segments, seg)
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(seg.Text)
		}
		segTokens = nil
		segConfSum = 0
		segConfN = 0
	}

	for f, vec := range frames {
		token, conf := c.score(vec)
		if token == ctcBlankID {
			flush(f)
			prev = ctcBlankID
			continue
		}
		if token == prev {
			continue // collapse repeats
		}
		if len(segTokens) == 0 {
			segStart = f
		}
		segTokens = append(segTokens, c.model.Vocab[token])
		segConfSum += conf
		segConfN++
		prev = token
	}
	flush(len(frames))

	out := strings.TrimSpace(text.String())
	if out == "" {
		return nil, apperr.E(apperr.KindBlankAudio, "no speech detected")
	}
	return &Transcript{Text: out, Segments: segments}, nil
}

// score runs one mel vector through the linear layer and returns the argmax
// token with its softmax probability.
func (c *CTCPlugin) score(vec []float32) (int, float64) {
	vocab := len(c.model.Vocab)
	logits := make([]float64, vocab)
	best := 0
	for t := 0; t < vocab; t++ {
		sum := float64(c.model.Bias[t])
		row := c.model.Weights[t*c.model.MelBins:]
		for i, v := range vec {
			sum += float64(row[i]) * float64(v)
		}
		logits[t] = sum
		if sum > logits[best] {
			best = t
		}
	}

	var denom float64
	for _, l := range logits {
		denom += math.Exp(l - logits[best])
	}
	return best, 1 / denom
}

// Shutdown drops the model so it can be garbage-collected. Re-Initialize
// reloads from disk.
func (c *CTCPlugin) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = nil
	c.mel = nil
	c.initialized = false
	return nil
}

func (c *CTCPlugin) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// frameToMS converts a mel frame index to its start time in milliseconds.
func frameToMS(frame int) uint64 {
	return uint64(frame) * melHopSize * 1000 / RequiredSampleRate
}

// spTokensToText joins SentencePiece-style tokens, turning "▁" markers into
// word boundaries.
func spTokensToText(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t)
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), "▁", " "))
}
