package workflow

import (
	"context"
	"fmt"
	"sync"
)

// RemoteExecutorName is the name reported by RemoteExecutor.
const RemoteExecutorName = "DefaultBPELExecutor"

// Parameter keys read by RemoteExecutor.
const (
	ParamEndpoint      = "EPR"
	ParamServiceAction = "ServiceAction"
	ParamAuthUser      = "User"
	ParamAuthPassword  = "UserPassword"
)

// RequiredParameters lists the keys RemoteExecutor checks, in check order.
var RequiredParameters = []string{
	ParamEndpoint,
	ParamServiceAction,
	ParamAuthUser,
	ParamAuthPassword,
}

const payloadContentType = "application/xml"

// RemoteExecutor posts requests to a remote workflow engine.
type RemoteExecutor struct {
	mu        sync.RWMutex
	params    map[string]any
	transport Transport
	matcher   func(*Request) bool
	logger    Logger
}

// RemoteExecutorOption customizes a RemoteExecutor.
type RemoteExecutorOption func(*RemoteExecutor)

// WithTransport sets the transport used for the remote call.
func WithTransport(t Transport) RemoteExecutorOption {
	return func(e *RemoteExecutor) {
		if t != nil {
			e.transport = t
		}
	}
}

// WithRequestMatcher restricts which requests the executor accepts.
// Without a matcher every request is accepted.
func WithRequestMatcher(match func(*Request) bool) RemoteExecutorOption {
	return func(e *RemoteExecutor) {
		e.matcher = match
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger Logger) RemoteExecutorOption {
	return func(e *RemoteExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorLoggerProvider resolves the logger from provider.
func WithExecutorLoggerProvider(provider LoggerProvider) RemoteExecutorOption {
	return func(e *RemoteExecutor) {
		e.logger = resolveLogger("identity.workflow.remote_executor", provider, e.logger)
	}
}

// NewRemoteExecutor returns an executor holding params.
func NewRemoteExecutor(params map[string]any, opts ...RemoteExecutorOption) *RemoteExecutor {
	e := &RemoteExecutor{
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.transport == nil {
		e.transport = NewFastHTTPTransport(nil, e.logger)
	}
	e.params = copyParams(params)
	return e
}

var _ Executor = (*RemoteExecutor)(nil)

// Name implements Executor.
func (e *RemoteExecutor) Name() string {
	return RemoteExecutorName
}

// CanHandle implements Executor.
func (e *RemoteExecutor) CanHandle(req *Request) bool {
	if req == nil {
		return false
	}
	if e.matcher == nil {
		return true
	}
	return e.matcher(req)
}

// Initialize implements Executor.
func (e *RemoteExecutor) Initialize(params map[string]any) error {
	copied := copyParams(params)

	e.mu.Lock()
	e.params = copied
	e.mu.Unlock()
	return nil
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return copied
}

// Execute implements Executor. Parameters are checked before anything is
// sent; a missing one fails without touching the transport.
func (e *RemoteExecutor) Execute(ctx context.Context, req *Request) error {
	if req == nil {
		return newError(ErrInvalidRequest, nil, map[string]any{"reason": "request is nil"})
	}

	call, err := e.buildCall(req)
	if err != nil {
		return err
	}

	if err := e.transport.Send(ctx, call); err != nil {
		e.logger.WithContext(ctx).Error("remote workflow call failed",
			"request_id", req.ID(),
			"endpoint", call.Endpoint,
			"error", err,
		)
		return newError(ErrRemoteInvocationFailed, err, map[string]any{
			"request_id": req.ID(),
			"endpoint":   call.Endpoint,
		})
	}

	return nil
}

func (e *RemoteExecutor) buildCall(req *Request) (Call, error) {
	e.mu.RLock()
	params := e.params
	e.mu.RUnlock()

	values := make(map[string]string, len(RequiredParameters))
	for _, key := range RequiredParameters {
		raw, ok := params[key]
		value := paramString(raw)
		if !ok || value == "" {
			return Call{}, newError(ErrMissingExecutorParameter, nil, map[string]any{
				"executor":   RemoteExecutorName,
				"parameter":  key,
				"request_id": req.ID(),
			})
		}
		values[key] = value
	}

	body, err := BuildPayload(req)
	if err != nil {
		return Call{}, fmt.Errorf("build workflow payload for request %s: %w", req.ID(), err)
	}

	return Call{
		Endpoint:    values[ParamEndpoint],
		Action:      values[ParamServiceAction],
		Username:    values[ParamAuthUser],
		Password:    values[ParamAuthPassword],
		ContentType: payloadContentType,
		Body:        body,
	}, nil
}

func paramString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case []rune:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
