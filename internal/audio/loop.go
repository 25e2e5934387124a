package audio

import (
	"log/slog"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// Controller is the recorder surface the command loop drives. *Recorder
// satisfies it; tests substitute a fake.
type Controller interface {
	Start() error
	Stop() ([]float32, error)
	PeakLevel() float32
	SampleRate() uint32
	Close() error
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdPeak
	cmdRate
	cmdShutdown
)

type command struct {
	kind  cmdKind
	reply chan response
}

type response struct {
	samples []float32
	level   float32
	rate    uint32
	err     error
}

// Loop serializes recorder access behind a single worker goroutine. Multiple
// callers send commands over one unbuffered channel and block on a
// per-request reply; the worker processes commands strictly in send order,
// so a Stop issued after a Start always observes the recording in progress.
type Loop struct {
	cmds chan command
	done chan struct{}
}

// StartLoop spawns the worker goroutine that owns rec. The loop takes over
// rec's lifetime: Shutdown closes the recorder.
func StartLoop(rec Controller, log *slog.Logger) *Loop {
	l := &Loop{
		cmds: make(chan command),
		done: make(chan struct{}),
	}
	go l.run(rec, log)
	return l
}

func (l *Loop) run(rec Controller, log *slog.Logger) {
	defer close(l.done)
	for cmd := range l.cmds {
		switch cmd.kind {
		case cmdStart:
			cmd.reply <- response{err: rec.Start()}
		case cmdStop:
			samples, err := rec.Stop()
			cmd.reply <- response{samples: samples, err: err}
		case cmdPeak:
			cmd.reply <- response{level: rec.PeakLevel()}
		case cmdRate:
			cmd.reply <- response{rate: rec.SampleRate()}
		case cmdShutdown:
			if err := rec.Close(); err != nil {
				log.Error("closing recorder", "error", err)
			}
			cmd.reply <- response{}
			return
		}
	}
}

var errLoopClosed = apperr.E(apperr.KindRecordingFailed, "audio loop has shut down")

func (l *Loop) send(kind cmdKind) response {
	reply := make(chan response, 1)
	select {
	case l.cmds <- command{kind: kind, reply: reply}:
		return <-reply
	case <-l.done:
		return response{err: errLoopClosed}
	}
}

// Start begins a capture session.
func (l *Loop) Start() error {
	return l.send(cmdStart).err
}

// Stop ends the session and returns the captured samples.
func (l *Loop) Stop() ([]float32, error) {
	resp := l.send(cmdStop)
	return resp.samples, resp.err
}

// PeakLevel reads the live meter. Returns 0 after shutdown.
func (l *Loop) PeakLevel() float32 {
	return l.send(cmdPeak).level
}

// SampleRate reports the capture rate. Returns 0 after shutdown.
func (l *Loop) SampleRate() uint32 {
	return l.send(cmdRate).rate
}

// Shutdown stops the worker and closes the recorder. Idempotent.
func (l *Loop) Shutdown() {
	l.send(cmdShutdown)
}
