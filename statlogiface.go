package etl

import (
	"io"
	"log"
	"time"
)

// Statter is the interface that stats collectors must implement to get
// counts and timings out of a run.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter drops everything.
type NopStatter struct{}

func (NopStatter) Count(name string, value int64, rate float64, tags ...string) {}

func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

func (NopStatter) Set(name string, value string, rate float64, tags ...string) {}

func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Logger is what steps, the runner and the dataset helpers log through.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NopLogger drops everything.
type NopLogger struct{}

func (NopLogger) Printf(format string, v ...interface{}) {}

func (NopLogger) Debugf(format string, v ...interface{}) {}

// StdLogger logs Printf calls and drops Debugf calls.
type StdLogger struct {
	*log.Logger
}

// NewStdLogger returns a StdLogger writing to w.
func NewStdLogger(w io.Writer) StdLogger {
	return StdLogger{log.New(w, "", log.LstdFlags)}
}

func (s StdLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

func (StdLogger) Debugf(format string, v ...interface{}) {}

// VerboseLogger logs everything.
type VerboseLogger struct {
	*log.Logger
}

// NewVerboseLogger returns a VerboseLogger writing to w.
func NewVerboseLogger(w io.Writer) VerboseLogger {
	return VerboseLogger{log.New(w, "", log.LstdFlags)}
}

func (s VerboseLogger) Printf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}

func (s VerboseLogger) Debugf(format string, v ...interface{}) {
	s.Logger.Printf("DEBUG "+format, v...)
}
