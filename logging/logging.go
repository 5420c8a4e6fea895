// Package logging provides the leveled, structured logger every other
// package logs through (§4.K): a named sub-logger per component carrying
// a "component" field, built on top of sirupsen/logrus.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level is the verbosity knob exposed to configuration and the CLI.
type Level string

const (
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Components named in §4.K: a sub-logger is built for each, carrying a
// "component" field so log aggregation can filter by subsystem.
const (
	ComponentGA     = "ga"
	ComponentSMT    = "smt"
	ComponentState  = "state"
	ComponentDecode = "decode"
	ComponentExec   = "exec"
	ComponentWCET   = "wcet"
)

// Logger wraps the root logrus.Logger and hands out per-component
// sub-loggers. A single Logger is constructed once per process (by the
// CLI, from the resolved configuration) and threaded through explicitly
// rather than relied on as a package-level global, so tests can run with
// an isolated logger.
type Logger struct {
	root *logrus.Logger
}

// New builds a Logger at the given verbosity, writing structured
// (logfmt-style via logrus's TextFormatter) entries to w. Passing a nil
// writer defaults to os.Stderr.
func New(level Level, w *os.File) *Logger {
	root := logrus.New()
	root.SetLevel(level.logrusLevel())
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if w != nil {
		root.SetOutput(w)
	}
	return &Logger{root: root}
}

// For returns the named component's sub-logger. Per §4.K: trace logs
// every GA op executed, debug logs every fork/terminate decision, info
// logs only per-path termination and the final WCET summary — callers
// pick the right level when they log, this method only attaches the
// component field.
func (l *Logger) For(component string) *logrus.Entry {
	return l.root.WithField("component", component)
}

// SetLevel adjusts verbosity after construction. The CLI does not call it:
// it folds a --verbose flag into the config's level before calling New.
func (l *Logger) SetLevel(level Level) {
	l.root.SetLevel(level.logrusLevel())
}
