// Package xlog provides the minimal leveled logging used across the
// pipeline. There is no structured logging library in the dependency
// graph; like the archive decoder this is built on, logging here is a
// thin wrapper over the standard library "log" package.
package xlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level selects which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger tags every line with a request id so that interleaved
// goroutines (subsetter workers, sampler readers, proxy slots) can be
// told apart in a shared process log.
type Logger struct {
	requestID string
	min       Level
	out       *log.Logger
}

// New builds a Logger writing to w, tagged with requestID. Messages
// below min are discarded without formatting their arguments.
func New(w io.Writer, requestID string, min Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		requestID: requestID,
		min:       min,
		out:       log.New(w, "", log.LstdFlags|log.Lmicroseconds),
	}
}

// Default returns a Logger writing to stderr at LevelInfo, with no
// request tag. Convenient for packages exercised outside of a request
// context (CLI startup, tests).
func Default() *Logger {
	return New(os.Stderr, "", LevelInfo)
}

// With returns a copy of the Logger tagged for a different request id.
func (lg *Logger) With(requestID string) *Logger {
	cp := *lg
	cp.requestID = requestID
	return &cp
}

func (lg *Logger) log(lvl Level, format string, args ...interface{}) {
	if lg == nil || lvl < lg.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if lg.requestID != "" {
		lg.out.Printf("[%s] [%s] %s", lvl, lg.requestID, msg)
	} else {
		lg.out.Printf("[%s] %s", lvl, msg)
	}
}

func (lg *Logger) Debugf(format string, args ...interface{}) { lg.log(LevelDebug, format, args...) }
func (lg *Logger) Infof(format string, args ...interface{})  { lg.log(LevelInfo, format, args...) }
func (lg *Logger) Warnf(format string, args ...interface{})  { lg.log(LevelWarn, format, args...) }
func (lg *Logger) Errorf(format string, args ...interface{}) { lg.log(LevelError, format, args...) }
