// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log reconstructs the small Helper/Filter/Level logging API the
// teacher package imports as github.com/saferwall/pe/log, whose source
// was not available to vendor: only its call sites (NewStdLogger,
// NewFilter, FilterLevel, NewHelper, LevelError, and the Helper's
// Debug/Debugf/Warn/Warnf/Error/Errorf methods) were observed, so the
// API is rebuilt here from those call sites rather than guessed at from
// an unrelated upstream package.
package log

import (
	"fmt"
	"io"
	"os"
)

// Level is the severity of one log record.
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

// Logger is the minimal sink every backend implements.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes every record to an io.Writer as "LEVEL msg\n".
type stdLogger struct {
	w io.Writer
}

// NewStdLogger returns a Logger that writes plain lines to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (s *stdLogger) Log(level Level, msg string) error {
	_, err := fmt.Fprintf(s.w, "%s %s\n", level, msg)
	return err
}

// filter wraps a Logger, dropping records below a minimum level.
type filter struct {
	next Logger
	min  Level
}

// FilterOption configures a filter constructed by NewFilter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level a filtered Logger passes through.
func FilterLevel(min Level) FilterOption {
	return func(f *filter) { f.min = min }
}

// NewFilter wraps next with the given options, most usefully FilterLevel.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// Helper is the convenience wrapper every package in this module logs
// through, matching the teacher's pe.logger field type.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in the Debug/Warn/Error convenience methods.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) Debug(msg string)  { h.log(LevelDebug, msg) }
func (h *Helper) Warn(msg string)   { h.log(LevelWarn, msg) }
func (h *Helper) Error(msg string)  { h.log(LevelError, msg) }
func (h *Helper) Info(msg string)   { h.log(LevelInfo, msg) }

func (h *Helper) Debugf(format string, args ...any) { h.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (h *Helper) Warnf(format string, args ...any)  { h.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (h *Helper) Errorf(format string, args ...any) { h.log(LevelError, fmt.Sprintf(format, args...)) }
func (h *Helper) Infof(format string, args ...any)  { h.log(LevelInfo, fmt.Sprintf(format, args...)) }

func (h *Helper) log(level Level, msg string) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, msg)
}

// Default returns the Helper used when no custom Logger is supplied:
// stdout, filtered to warnings and above. This is one level more verbose
// than saferwall-pe's own production default (errors only), since the
// orchestrator's soft-failure paths (missing file object, unreadable
// catalog, profile fallback) are reported as warnings and would
// otherwise never surface.
func Default() *Helper {
	return NewHelper(NewFilter(NewStdLogger(os.Stdout), FilterLevel(LevelWarn)))
}
