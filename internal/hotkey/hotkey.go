// Package hotkey emits start/stop events from a global key combo, either
// hold-to-record or press-to-toggle.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Event signals a recording state change requested via the hotkey.
type Event int

const (
	// StartRecording is emitted when the combo activates.
	StartRecording Event = iota
	// StopRecording is emitted when the combo deactivates.
	StopRecording
)

// Listener watches one global key combo.
type Listener struct {
	keys   []string
	toggle bool
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewListener builds a listener for the given lowercase key names. mode is
// "hold" (down starts, up stops) or "toggle" (each press flips).
func NewListener(keys []string, mode string) *Listener {
	return &Listener{
		keys:   keys,
		toggle: mode == "toggle",
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the channel carrying hotkey events. Closed when the
// listener stops.
func (l *Listener) Events() <-chan Event { return l.events }

// Run blocks servicing the OS hook; call it in a goroutine. It returns when
// Stop is called, closing the events channel.
func (l *Listener) Run() {
	if l.toggle {
		var mu sync.Mutex
		recording := false
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) {
			mu.Lock()
			recording = !recording
			ev := StartRecording
			if !recording {
				ev = StopRecording
			}
			mu.Unlock()
			l.emit(ev)
		})
	} else {
		hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(StartRecording) })
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.emit(StopRecording) })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.events)
}

// Stop ends the hook loop. Idempotent.
func (l *Listener) Stop() {
	l.once.Do(func() { close(l.done) })
}

// emit drops the event when the consumer is behind rather than block the
// hook thread.
func (l *Listener) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
	}
}
