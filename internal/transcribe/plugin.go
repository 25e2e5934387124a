// Package transcribe defines the transcription engine contract and the
// manager that multiplexes interchangeable engines behind one entry point.
//
// Engines:
//   - vosk: native Vosk recognizer via its C dynamic library (default)
//   - ctc: pure-Go mel-spectrogram + greedy CTC decoder
package transcribe

import (
	"github.com/extrophi/voicejournal/internal/apperr"
)

// Engine input contract. Callers resample and downmix before Transcribe.
const (
	RequiredSampleRate = 16000
	RequiredChannels   = 1
)

// AudioData is an immutable capture result handed to engines. Samples are
// interleaved when Channels > 1, each value nominally in [-1.0, 1.0], and
// len(Samples) should be a multiple of Channels.
type AudioData struct {
	Samples    []float32
	SampleRate uint32
	Channels   uint16
}

// DurationMS returns the audio length in milliseconds.
func (a *AudioData) DurationMS() uint64 {
	if a.SampleRate == 0 || a.Channels == 0 {
		return 0
	}
	frames := uint64(len(a.Samples)) / uint64(a.Channels)
	return frames * 1000 / uint64(a.SampleRate)
}

// TranscriptSegment is one timed span of recognized speech.
type TranscriptSegment struct {
	StartMS    uint64  `json:"start_ms"`
	EndMS      uint64  `json:"end_ms"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Transcript is the result of one transcription call. Language is an ISO
// 639-1 code or empty when the engine does not detect one.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// PluginInfo is a point-in-time snapshot of a registered engine.
type PluginInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Active      bool   `json:"is_active"`
	Initialized bool   `json:"is_initialized"`
}

// Plugin is the lifecycle and operation contract every engine implements.
//
// State machine: Uninitialized --Initialize--> Ready --Shutdown-->
// Uninitialized. Initialize on a Ready engine is a no-op success;
// re-initializing after Shutdown is permitted. Transcribe on an engine that
// is not Ready fails with a not_initialized error.
type Plugin interface {
	Name() string
	Version() string
	Initialize() error
	// Transcribe converts audio to text. The input must match
	// RequiredSampleRate/RequiredChannels; anything else fails with
	// invalid_audio_format.
	Transcribe(audio *AudioData) (*Transcript, error)
	Shutdown() error
	IsInitialized() bool
}

// ValidateFormat checks audio against the engine input contract.
func ValidateFormat(audio *AudioData) error {
	if audio == nil || len(audio.Samples) == 0 {
		return apperr.E(apperr.KindInvalidAudioFormat, "audio is empty")
	}
	if audio.SampleRate != RequiredSampleRate {
		return apperr.E(apperr.KindInvalidAudioFormat,
			"sample rate %d Hz not supported, want %d Hz", audio.SampleRate, RequiredSampleRate)
	}
	if audio.Channels != RequiredChannels {
		return apperr.E(apperr.KindInvalidAudioFormat,
			"%d channels not supported, want mono", audio.Channels)
	}
	return nil
}

func errNotInitialized(name string) error {
	return apperr.E(apperr.KindNotInitialized, "plugin %q is not initialized", name)
}
