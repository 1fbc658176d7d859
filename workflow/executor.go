package workflow

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used by the workflow package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// Executor advances or rejects a pending lifecycle request.
type Executor interface {
	// Name identifies the executor in logs and metrics.
	Name() string
	CanHandle(req *Request) bool
	// Initialize replaces the executor parameters. It may be called again
	// at any time; parameters are checked on every Execute.
	Initialize(params map[string]any) error
	Execute(ctx context.Context, req *Request) error
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any)                 {}
func (nopLogger) Debug(string, ...any)                 {}
func (nopLogger) Info(string, ...any)                  {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (nopLogger) Fatal(string, ...any)                 {}
func (n nopLogger) WithContext(context.Context) Logger { return n }

func resolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return resolved
		}
	}
	if logger != nil {
		return logger
	}
	return nopLogger{}
}
