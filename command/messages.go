package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeDispatch           = "integrations.command.dispatch"
	TypeRecoverAndRetry    = "integrations.command.dispatch.recover"
	TypeRefreshIntegration = "integrations.command.refresh"
)

type DispatchMessage struct {
	Request core.DispatchRequest
}

func (DispatchMessage) Type() string { return TypeDispatch }

func (m DispatchMessage) Validate() error {
	return validateDispatchRequest(m.Request)
}

// RecoverAndRetryMessage dispatches with a single refresh-and-retry cycle.
type RecoverAndRetryMessage struct {
	Request core.DispatchRequest
}

func (RecoverAndRetryMessage) Type() string { return TypeRecoverAndRetry }

func (m RecoverAndRetryMessage) Validate() error {
	return validateDispatchRequest(m.Request)
}

type RefreshIntegrationMessage struct {
	Request core.RefreshIntegrationRequest
}

func (RefreshIntegrationMessage) Type() string { return TypeRefreshIntegration }

func (m RefreshIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.Request.IntegrationID) == "" {
		return commandValidationError("integration_id", "integration id is required")
	}
	return nil
}

func validateDispatchRequest(req core.DispatchRequest) error {
	if strings.TrimSpace(req.IntegrationID) == "" {
		return commandValidationError("integration_id", "integration id is required")
	}
	if strings.TrimSpace(req.Operation) == "" {
		return commandValidationError("operation", "operation is required")
	}
	if req.RetryBudget < 0 {
		return commandInvalidInputError("command: retry budget must not be negative")
	}
	return nil
}
