// Package audio provides microphone capture, sample-rate conversion and WAV
// encoding for the journaling pipeline.
package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/extrophi/voicejournal/internal/apperr"
)

const (
	// DefaultCaptureRate is used when the config does not pin a rate.
	// Capture happens at this rate; resampling to the engine rate (16 kHz)
	// is deferred to the save/transcribe path.
	DefaultCaptureRate = 44100

	// minBufferFrames is the floor for the capture period size.
	minBufferFrames = 512
)

// RecorderConfig selects the capture format. Channels are always forced to
// mono regardless of what the device natively produces.
type RecorderConfig struct {
	SampleRate   uint32
	BufferFrames uint32
}

// Recorder owns one capture stream and accumulates samples into a shared
// buffer. All of Start, Stop and PeakLevel may be called from a different
// goroutine than the realtime data callback; the recorderState mutex is the
// only synchronization between them.
type Recorder struct {
	ctx          *malgo.AllocatedContext
	deviceName   string
	sampleRate   uint32
	bufferFrames uint32
	log          *slog.Logger

	st recorderState
}

// recorderState is shared between the realtime callback and control calls.
// Critical sections stay short: an append, flag flips, and the drain on stop.
type recorderState struct {
	mu        sync.Mutex
	recording bool
	device    *malgo.Device
	samples   []float32
	peak      float32
}

// NewRecorder initializes the audio context and picks the default capture
// device. It fails with a no_device error when the platform reports no
// capture devices at all.
func NewRecorder(cfg RecorderConfig, log *slog.Logger) (*Recorder, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultCaptureRate
	}
	if cfg.BufferFrames < minBufferFrames {
		cfg.BufferFrames = minBufferFrames
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDeviceInit, err, "initializing audio context")
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, apperr.Wrap(apperr.KindDeviceInit, err, "enumerating capture devices")
	}
	if len(infos) == 0 {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, apperr.E(apperr.KindNoDevice, "no microphone found; connect a microphone and try again")
	}

	name := infos[0].Name()
	for _, info := range infos {
		if info.IsDefault > 0 {
			name = info.Name()
			break
		}
	}

	r := &Recorder{
		ctx:          ctx,
		deviceName:   name,
		sampleRate:   cfg.SampleRate,
		bufferFrames: cfg.BufferFrames,
		log:          log,
	}
	log.Info("recorder ready", "device", name, "sample_rate", cfg.SampleRate, "buffer_frames", cfg.BufferFrames)
	return r, nil
}

// Start begins capture. Calling Start while already recording is a no-op
// success; the session in progress keeps its buffer and peak level.
func (r *Recorder) Start() error {
	r.st.mu.Lock()
	if r.st.recording {
		r.st.mu.Unlock()
		return nil
	}
	r.st.samples = r.st.samples[:0]
	r.st.peak = 0
	r.st.recording = true
	r.st.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = r.sampleRate
	deviceCfg.PeriodSizeInFrames = r.bufferFrames

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: r.onData})
	if err != nil {
		r.abortStart()
		return apperr.Wrap(apperr.KindDeviceInit, err, "initializing capture device %q", r.deviceName)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		r.abortStart()
		return apperr.Wrap(apperr.KindDeviceInit, err, "starting capture device %q", r.deviceName)
	}

	r.st.mu.Lock()
	r.st.device = device
	r.st.mu.Unlock()
	return nil
}

func (r *Recorder) abortStart() {
	r.st.mu.Lock()
	r.st.recording = false
	r.st.mu.Unlock()
}

// Stop tears down the stream and moves the accumulated samples out, leaving
// an empty accumulator. It fails with not_recording when no session is
// active; the handoff is exclusive, so a second Stop also fails.
func (r *Recorder) Stop() ([]float32, error) {
	r.st.mu.Lock()
	if !r.st.recording {
		r.st.mu.Unlock()
		return nil, apperr.E(apperr.KindNotRecording, "recorder is not running")
	}
	// Flip the flag before tearing the device down so a callback that races
	// with Uninit drops its buffer instead of blocking against us.
	r.st.recording = false
	device := r.st.device
	r.st.device = nil
	r.st.mu.Unlock()

	if device != nil {
		device.Uninit()
	}

	r.st.mu.Lock()
	samples := r.st.samples
	r.st.samples = nil
	r.st.mu.Unlock()
	return samples, nil
}

// IsRecording reports whether a capture session is active.
func (r *Recorder) IsRecording() bool {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.recording
}

// PeakLevel returns the maximum absolute sample amplitude observed during
// the current session. It never blocks the caller: if the state lock is
// contended it returns 0 rather than wait on the realtime callback.
func (r *Recorder) PeakLevel() float32 {
	if !r.st.mu.TryLock() {
		return 0
	}
	peak := r.st.peak
	r.st.mu.Unlock()
	return peak
}

// SampleRate returns the capture rate fixed at construction.
func (r *Recorder) SampleRate() uint32 { return r.sampleRate }

// Close releases the device and context. Safe to call after Stop.
func (r *Recorder) Close() error {
	r.st.mu.Lock()
	if r.st.device != nil {
		r.st.device.Uninit()
		r.st.device = nil
	}
	r.st.recording = false
	r.st.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return apperr.Wrap(apperr.KindDeviceInit, err, "uninitializing audio context")
		}
		r.ctx.Free()
		r.ctx = nil
	}
	return nil
}

// onData runs on the realtime audio thread. It appends the incoming frames
// and tracks the session peak; samples arriving after Stop flipped the
// recording flag are dropped.
func (r *Recorder) onData(_, pSamples []byte, frameCount uint32) {
	samples := bytesToFloat32(pSamples, frameCount)

	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}

	r.st.mu.Lock()
	if !r.st.recording {
		r.st.mu.Unlock()
		return
	}
	r.st.samples = append(r.st.samples, samples...)
	if peak > r.st.peak {
		r.st.peak = peak
	}
	r.st.mu.Unlock()
}

// bytesToFloat32 converts little-endian float32 frames to a sample slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
