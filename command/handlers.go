package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

type MutatingService interface {
	Dispatch(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error)
	RecoverAndRetry(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error)
	RefreshIntegration(ctx context.Context, req core.RefreshIntegrationRequest) (core.RefreshIntegrationResult, error)
}

type DispatchCommand struct {
	service MutatingService
}

func NewDispatchCommand(service MutatingService) *DispatchCommand {
	return &DispatchCommand{service: service}
}

func (c *DispatchCommand) Execute(ctx context.Context, msg DispatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.Dispatch(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecoverAndRetryCommand struct {
	service MutatingService
}

func NewRecoverAndRetryCommand(service MutatingService) *RecoverAndRetryCommand {
	return &RecoverAndRetryCommand{service: service}
}

func (c *RecoverAndRetryCommand) Execute(ctx context.Context, msg RecoverAndRetryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.RecoverAndRetry(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshIntegrationCommand struct {
	service MutatingService
}

func NewRefreshIntegrationCommand(service MutatingService) *RefreshIntegrationCommand {
	return &RefreshIntegrationCommand{service: service}
}

func (c *RefreshIntegrationCommand) Execute(ctx context.Context, msg RefreshIntegrationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshIntegration(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
