// Package telemetry implements the external.Logger contract: a sink that
// never blocks the caller. Events are handed to a bounded channel drained
// by a single background goroutine that writes through
// github.com/charmbracelet/log; a full channel drops the event rather than
// stalling whoever is logging (the audio callback, the hardware state
// machine, the save worker).
package telemetry

import (
	"os"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

// queueDepth bounds how many pending log events may be buffered before new
// ones are dropped. Generous enough to absorb a burst of per-speaker
// failures from one hardware transition without blocking.
const queueDepth = 256

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

type event struct {
	level level
	msg   string
	kv    []any
}

// Logger is a dropping, asynchronous external.Logger.
type Logger struct {
	events  chan event
	dropped atomic.Uint64
	sink    *charmlog.Logger
}

// New starts a Logger writing to stderr via charmbracelet/log.
func New() *Logger {
	l := &Logger{
		events: make(chan event, queueDepth),
		sink:   charmlog.NewWithOptions(os.Stderr, charmlog.Options{ReportTimestamp: true}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	for ev := range l.events {
		switch ev.level {
		case levelDebug:
			l.sink.Debug(ev.msg, ev.kv...)
		case levelInfo:
			l.sink.Info(ev.msg, ev.kv...)
		case levelWarn:
			l.sink.Warn(ev.msg, ev.kv...)
		case levelError:
			l.sink.Error(ev.msg, ev.kv...)
		}
	}
}

func (l *Logger) emit(lvl level, msg string, kv ...any) {
	select {
	case l.events <- event{level: lvl, msg: msg, kv: kv}:
	default:
		// Queue full: drop rather than block the caller.
		l.dropped.Add(1)
	}
}

// Dropped returns the total number of log events discarded because the
// queue was full. The status surface does not report it.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(levelDebug, msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(levelInfo, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.emit(levelWarn, msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.emit(levelError, msg, kv...) }

// Close closes the event queue; the background writer exits after writing
// the events already queued. Close does not wait for that. Safe to call
// once.
func (l *Logger) Close() {
	close(l.events)
}
