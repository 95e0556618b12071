// Package logging is the process-wide log sink. It mirrors the teacher's
// internal/monitoring.Logf/SetLogger shape: a package-level function
// variable defaulting to the standard logger, swappable so tests can
// capture or silence output, generalized to the five levels spec.md §6
// recognizes (E, W, I, D, V).
package logging

import (
	"log"
	"os"
)

// Level is the verbosity threshold, ordered least to most verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelVerbose
)

func ParseLevel(s string) Level {
	switch s {
	case "E":
		return LevelError
	case "W":
		return LevelWarn
	case "I":
		return LevelInfo
	case "D":
		return LevelDebug
	case "V":
		return LevelVerbose
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelError:
		return "E"
	case LevelWarn:
		return "W"
	case LevelInfo:
		return "I"
	case LevelDebug:
		return "D"
	case LevelVerbose:
		return "V"
	default:
		return "?"
	}
}

// sink is the injectable printf-style target. Tests replace it with
// SetSink to capture output; production leaves it at the default.
var sink func(format string, v ...interface{}) = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds).Printf

// threshold is the current verbosity; messages more verbose than this are
// dropped before reaching sink.
var threshold = LevelInfo

// SetSink replaces the package logger. Passing nil restores a no-op sink.
func SetSink(f func(format string, v ...interface{})) {
	if f == nil {
		sink = func(string, ...interface{}) {}
		return
	}
	sink = f
}

// SetLevel sets the verbosity threshold; messages above it are dropped.
func SetLevel(l Level) { threshold = l }

func logf(l Level, format string, v ...interface{}) {
	if l > threshold {
		return
	}
	sink("["+l.String()+"] "+format, v...)
}

func Errorf(format string, v ...interface{})   { logf(LevelError, format, v...) }
func Warnf(format string, v ...interface{})    { logf(LevelWarn, format, v...) }
func Infof(format string, v ...interface{})    { logf(LevelInfo, format, v...) }
func Debugf(format string, v ...interface{})   { logf(LevelDebug, format, v...) }
func Verbosef(format string, v ...interface{}) { logf(LevelVerbose, format, v...) }
