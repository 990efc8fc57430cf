package engine

import "github.com/foldback/foldback/pkg/plog"

// Logger is the status-line capability handed to the engine by its caller.
// Lines emitted through it narrate the run for a user (CLI output, GUI
// status pane); structured diagnostics go through plog independently.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Success(msg string)
}

// PlogLogger routes status lines into the process-wide structured logger.
type PlogLogger struct{}

func (PlogLogger) Info(msg string)    { plog.Info(msg) }
func (PlogLogger) Warn(msg string)    { plog.Warn(msg) }
func (PlogLogger) Error(msg string)   { plog.Error(msg) }
func (PlogLogger) Success(msg string) { plog.Success(msg) }

// nopLogger is used when the caller provides no Logger.
type nopLogger struct{}

func (nopLogger) Info(string)    {}
func (nopLogger) Warn(string)    {}
func (nopLogger) Error(string)   {}
func (nopLogger) Success(string) {}

var _ Logger = PlogLogger{}
var _ Logger = nopLogger{}
