package workflow

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeMissingExecutorParameter = "MISSING_EXECUTOR_PARAMETER"
	TextCodeRemoteInvocationFailed   = "REMOTE_INVOCATION_FAILED"
	TextCodeNoExecutorFound          = "NO_EXECUTOR_FOUND"
	TextCodeInvalidRequest           = "INVALID_WORKFLOW_REQUEST"
)

// ErrMissingExecutorParameter is returned before any network call when a
// required executor parameter is absent or empty.
var ErrMissingExecutorParameter = goerrors.New("missing executor parameter", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingExecutorParameter).
	WithCode(goerrors.CodeBadRequest)

// ErrRemoteInvocationFailed wraps transport failures of the remote call.
var ErrRemoteInvocationFailed = goerrors.New("remote workflow invocation failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeRemoteInvocationFailed).
	WithCode(goerrors.CodeInternal)

// ErrNoExecutorFound is returned when no registered executor can handle a request.
var ErrNoExecutorFound = goerrors.New("no workflow executor can handle the request", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoExecutorFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidRequest is returned for nil requests.
var ErrInvalidRequest = goerrors.New("invalid workflow request", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

func newError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone.WithMetadata(metadata)
	}
	return clone
}
