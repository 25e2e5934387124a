// Package apperr defines the tagged errors that cross package boundaries.
// Every caller-facing failure is a Kind plus a human-readable message so the
// presentation layer can render it without inspecting concrete error types.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure.
type Kind string

const (
	// Audio capture.
	KindPermissionDenied Kind = "permission_denied"
	KindNoDevice         Kind = "no_device"
	KindDeviceInit       Kind = "device_init_failed"
	KindAlreadyRecording Kind = "already_recording"
	KindNotRecording     Kind = "not_recording"
	KindStreamLost       Kind = "stream_disconnected"
	KindBufferOverflow   Kind = "buffer_overflow"
	KindRecordingFailed  Kind = "recording_failed"

	// Transcription / plugins.
	KindModelNotFound       Kind = "model_not_found"
	KindModelLoadFailed     Kind = "model_load_failed"
	KindNotInitialized      Kind = "not_initialized"
	KindInvalidAudioFormat  Kind = "invalid_audio_format"
	KindTranscriptionFailed Kind = "transcription_failed"
	KindTranscriptionTimout Kind = "transcription_timeout"
	KindBlankAudio          Kind = "blank_audio"

	// Plugin registry.
	KindDuplicatePlugin Kind = "duplicate_plugin"
	KindPluginNotFound  Kind = "plugin_not_found"

	// I/O and storage.
	KindIO       Kind = "io_error"
	KindStorage  Kind = "storage_error"
	KindNotFound Kind = "not_found"
)

// Error is a tagged, serializable error. Message never contains raw native
// error dumps; Err carries the wrapped cause for logs only.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two apperr errors by Kind, so callers can compare against
// sentinel values built with E.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E builds a tagged error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a tagged error around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or "" if err is not tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err carries the given kind anywhere in its chain.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
