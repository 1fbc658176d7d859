package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider = glog.LoggerProvider

// ResolveLogger returns a provider and the logger registered under name.
// The explicit logger is used when the provider has nothing for name, and
// the default console logger when both are missing.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return provider, resolved
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticLoggerProvider{logger: logger}, logger
}

type staticLoggerProvider struct {
	logger Logger
}

func (p staticLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

// ActorRef identifies who or what triggered a lifecycle action.
type ActorRef struct {
	ID   string
	Type string
}

func (a ActorRef) orSystem() ActorRef {
	if a == (ActorRef{}) {
		return ActorRef{Type: "system"}
	}
	return a
}

type defLogger struct {
	ctx context.Context
}

func defaultLogger() Logger {
	return defLogger{}
}

func (d defLogger) Trace(msg string, args ...any) { d.print("TRC", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Fatal(msg string, args ...any) { d.print("FTL", msg, args...) }

func (d defLogger) WithContext(ctx context.Context) Logger {
	return defLogger{ctx: ctx}
}

func (d defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level)
	b.WriteString("] IDENTITY ")
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Println(b.String())
}
