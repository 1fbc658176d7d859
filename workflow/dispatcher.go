package workflow

import (
	"context"
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/goliatone/go-identity/workflow"
	spanName   = "workflow.dispatch"

	outcomeSuccess = "success"
	outcomeError   = "error"
	noExecutor     = "none"
)

// Dispatcher routes requests to the first registered executor that can
// handle them. Registration order decides precedence.
type Dispatcher struct {
	mu        sync.RWMutex
	executors []Executor
	tracer    trace.Tracer
	counter   *prometheus.CounterVec
	logger    Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDispatchCounter counts dispatches by executor and outcome.
func WithDispatchCounter(counter *prometheus.CounterVec) DispatcherOption {
	return func(d *Dispatcher) {
		d.counter = counter
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherLoggerProvider resolves the logger from provider.
func WithDispatcherLoggerProvider(provider LoggerProvider) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = resolveLogger("identity.workflow.dispatcher", provider, d.logger)
	}
}

// NewDispatchCounter returns the dispatch counter, registered with reg when
// reg is not nil.
func NewDispatchCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "workflow_dispatch_total",
		Help:      "Workflow dispatches by executor and outcome.",
	}, []string{"executor", "outcome"})

	if reg == nil {
		return counter, nil
	}

	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

// NewDispatcher returns a dispatcher holding executors in the given order.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tracer: otel.Tracer(tracerName),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Register appends executors to the registry. Nil executors are ignored.
func (d *Dispatcher) Register(executors ...Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range executors {
		if e != nil {
			d.executors = append(d.executors, e)
		}
	}
}

// Executors returns the registered executors in dispatch order.
func (d *Dispatcher) Executors() []Executor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Executor, len(d.executors))
	copy(out, d.executors)
	return out
}

// Dispatch executes req with the first executor whose CanHandle returns
// true. A nil error means the request was accepted, not completed.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) error {
	if req == nil {
		return newError(ErrInvalidRequest, nil, map[string]any{"reason": "request is nil"})
	}

	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("workflow.request_id", req.ID()),
		attribute.String("workflow.event_type", req.EventType()),
	))
	defer span.End()

	executor := d.selectExecutor(req)
	if executor == nil {
		err := newError(ErrNoExecutorFound, nil, map[string]any{
			"request_id": req.ID(),
			"event_type": req.EventType(),
		})
		d.finish(span, noExecutor, err)
		d.logger.WithContext(ctx).Warn("no workflow executor found", "request_id", req.ID())
		return err
	}

	span.SetAttributes(attribute.String("workflow.executor", executor.Name()))

	err := executor.Execute(ctx, req)
	d.finish(span, executor.Name(), err)
	if err != nil {
		d.logger.WithContext(ctx).Error("workflow dispatch failed",
			"request_id", req.ID(),
			"executor", executor.Name(),
			"error", err,
		)
		return err
	}

	d.logger.WithContext(ctx).Debug("workflow request dispatched",
		"request_id", req.ID(),
		"executor", executor.Name(),
	)
	return nil
}

func (d *Dispatcher) selectExecutor(req *Request) Executor {
	for _, e := range d.Executors() {
		if e.CanHandle(req) {
			return e
		}
	}
	return nil
}

func (d *Dispatcher) finish(span trace.Span, executor string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.TextCode != "" {
			outcome = rich.TextCode
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if d.counter != nil {
		d.counter.WithLabelValues(executor, outcome).Inc()
	}
}
