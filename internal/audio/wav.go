package audio

import (
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// WriteWAV encodes samples as 16-bit signed mono PCM at the given rate.
// Input outside [-1.0, 1.0] is clamped before scaling; callers that care
// about headroom should normalize upstream.
func WriteWAV(path string, samples []float32, sampleRate uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, err, "creating %s", path)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, int(sampleRate), 16, 1, 1)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "writing PCM to %s", path)
	}
	if err := enc.Close(); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "finalizing %s", path)
	}
	return nil
}

// ReadWAV decodes a WAV file into normalized float32 samples and reports the
// file's sample rate. Multi-channel files are downmixed to mono.
func ReadWAV(path string) ([]float32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindIO, err, "opening %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindIO, err, "decoding %s", path)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}

	channels := buf.Format.NumChannels
	if channels > 1 {
		samples = DownmixMono(samples, channels)
	}
	return samples, uint32(buf.Format.SampleRate), nil
}
