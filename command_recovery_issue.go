package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// IssueRecoveryMessage asks for a new confirmation code or temporary password.
type IssueRecoveryMessage struct {
	Username   string
	TenantID   int
	Kind       MetadataType
	OnResponse func(resp *IssueRecoveryResponse)
}

func (m IssueRecoveryMessage) Type() string { return "identity.recovery.issue" }

// IssueRecoveryResponse carries the issued secret. It is handed out once
// and never stored in plain text for temporary passwords.
type IssueRecoveryResponse struct {
	Username string
	Kind     MetadataType
	Secret   string
}

// IssueRecoveryHandler issues recovery material through the engine.
type IssueRecoveryHandler struct {
	engine *Engine
	logger Logger
}

func NewIssueRecoveryHandler(engine *Engine) *IssueRecoveryHandler {
	return &IssueRecoveryHandler{engine: engine, logger: defLogger{}}
}

// WithLogger overrides the logger used by the handler.
func (h *IssueRecoveryHandler) WithLogger(logger Logger) *IssueRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *IssueRecoveryHandler) Execute(ctx context.Context, msg IssueRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before issuing recovery material")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *IssueRecoveryHandler) execute(ctx context.Context, msg IssueRecoveryMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	resp := &IssueRecoveryResponse{Username: msg.Username, Kind: msg.Kind}

	switch msg.Kind {
	case MetadataConfirmationCode:
		code, err := h.engine.IssueConfirmationCode(ctx, msg.Username, msg.TenantID)
		if err != nil {
			return commandError(err, "failed to issue confirmation code")
		}
		resp.Secret = code
	case MetadataTemporaryPassword:
		password, err := h.engine.IssueTemporaryPassword(ctx, msg.Username, msg.TenantID)
		if err != nil {
			return commandError(err, "failed to issue temporary password")
		}
		resp.Secret = string(password)
	default:
		return newError(ErrInvalidRecoveryMetadata, nil, map[string]any{
			"username":      msg.Username,
			"metadata_type": msg.Kind,
			"reason":        "only single use recovery material can be issued",
		})
	}

	h.logger.Info("recovery material issued", "username", msg.Username, "tenant", msg.TenantID, "kind", msg.Kind)

	if msg.OnResponse != nil {
		msg.OnResponse(resp)
	}
	return nil
}
