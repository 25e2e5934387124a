package transcribe

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/extrophi/voicejournal/internal/apperr"
)

const voskVersion = "0.3.50"

// VoskPlugin wraps the native Vosk recognizer (libvosk via its C ABI). The
// model directory is checked at construction; the heavyweight load happens
// in Initialize.
type VoskPlugin struct {
	modelPath string
	language  string
	log       *slog.Logger

	mu          sync.Mutex
	model       *vosk.VoskModel
	recognizer  *vosk.VoskRecognizer
	initialized bool
}

// voskResult mirrors the recognizer's final-result JSON.
type voskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf  float64 `json:"conf"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Word  string  `json:"word"`
	} `json:"result"`
}

// NewVoskPlugin validates that the model directory exists. A missing path is
// a model_not_found error, distinct from the model_load_failed that
// Initialize reports when libvosk rejects the directory's contents.
func NewVoskPlugin(modelPath, language string, log *slog.Logger) (*VoskPlugin, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, apperr.E(apperr.KindModelNotFound, "vosk model not found at %s; run 'voicejournal models download'", modelPath)
	}
	return &VoskPlugin{modelPath: modelPath, language: language, log: log}, nil
}

func (v *VoskPlugin) Name() string    { return "vosk" }
func (v *VoskPlugin) Version() string { return voskVersion }

// Initialize loads the model and builds a 16 kHz recognizer. Idempotent.
func (v *VoskPlugin) Initialize() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return nil
	}

	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(v.modelPath)
	if err != nil {
		return apperr.Wrap(apperr.KindModelLoadFailed, err, "loading vosk model from %s", v.modelPath)
	}
	if model == nil {
		return apperr.E(apperr.KindModelLoadFailed, "vosk returned no model for %s", v.modelPath)
	}

	recognizer, err := vosk.NewRecognizer(model, float64(RequiredSampleRate))
	if err != nil {
		model.Free()
		return apperr.Wrap(apperr.KindModelLoadFailed, err, "creating vosk recognizer")
	}
	// Word-level results carry the timestamps and confidences the
	// transcript segments are built from.
	recognizer.SetWords(1)

	v.model = model
	v.recognizer = recognizer
	v.initialized = true
	v.log.Info("vosk engine initialized", "model", v.modelPath)
	return nil
}

// Transcribe feeds the audio through the recognizer and maps word results
// to transcript segments.
func (v *VoskPlugin) Transcribe(audio *AudioData) (*Transcript, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, errNotInitialized(v.Name())
	}
	if err := ValidateFormat(audio); err != nil {
		return nil, err
	}

	// AcceptWaveform's return flags an utterance boundary for streaming
	// callers choosing between Result and PartialResult. The single-shot
	// path always flushes through FinalResult, so the state is not
	// consulted.
	_ = v.recognizer.AcceptWaveform(floatToPCM16(audio.Samples))

	var res voskResult
	if err := json.Unmarshal([]byte(v.recognizer.FinalResult()), &res); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscriptionFailed, err, "parsing vosk result")
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, apperr.E(apperr.KindBlankAudio, "no speech detected")
	}

	segments := make([]TranscriptSegment, 0, len(res.Result))
	for _, w := range res.Result {
		segments = append(segments, TranscriptSegment{
			StartMS:    uint64(w.Start * 1000),
			EndMS:      uint64(w.End * 1000),
			Text:       w.Word,
			Confidence: float32(w.Conf),
		})
	}

	return &Transcript{Text: text, Language: v.language, Segments: segments}, nil
}

// Shutdown frees the recognizer and model. Re-Initialize is permitted.
func (v *VoskPlugin) Shutdown() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil
	}
	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	v.initialized = false
	return nil
}

func (v *VoskPlugin) IsInitialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}

// floatToPCM16 converts normalized samples to the little-endian 16-bit PCM
// bytes Vosk accepts. Out-of-range input is clamped.
func floatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
