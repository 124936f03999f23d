package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Dispatch invokes one named capability of an integration's provider,
// refreshing the credential and retrying when the provider reports the access
// token as expired.
func (s *Service) Dispatch(ctx context.Context, req DispatchRequest) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id": req.OrganizationID,
		"integration_id":  req.IntegrationID,
		"capability":      req.Operation,
	}
	defer func() {
		fields["invocations"] = result.Invocations
		fields["refreshes"] = result.Refreshes
		s.observeOperation(ctx, startedAt, "dispatch", err, fields)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	integrationID := strings.TrimSpace(req.IntegrationID)
	operation := strings.TrimSpace(req.Operation)
	if integrationID == "" {
		err = badInputError("core: integration id is required")
		return DispatchResult{}, err
	}
	if operation == "" {
		err = badInputError("core: operation is required")
		return DispatchResult{}, err
	}

	integration, err := s.loadIntegration(ctx, req.OrganizationID, integrationID)
	if err != nil {
		return DispatchResult{}, err
	}
	fields["provider"] = integration.ProviderIdentifier
	if integration.Disabled {
		err = integrationDisabledError(integration)
		return DispatchResult{}, err
	}

	descriptor, err := s.resolveDescriptor(integration.ProviderIdentifier)
	if err != nil {
		return DispatchResult{}, err
	}
	fn, ok := descriptor.Operation(operation)
	if !ok {
		err = operationNotFoundError(descriptor.Identifier, operation)
		return DispatchResult{}, err
	}

	budget := req.RetryBudget
	if budget <= 0 {
		budget = s.config.Refresh.RetryBudget
	}
	if budget <= 0 {
		budget = DefaultRetryBudget
	}

	current := integration
	if descriptor.RefreshCooldownRequired {
		// A credential still inside its recovery window is not accepted yet.
		if waitErr := s.waitForRecoveryWindow(ctx, current); waitErr != nil {
			err = cancelledError(waitErr, current, operation)
			return result, err
		}
	}
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = cancelledError(ctxErr, current, operation)
			return result, err
		}
		result.Invocations++
		outcome := invokeOperation(ctx, fn, current, req.Params)

		switch outcome.Kind {
		case ResultSuccess:
			result.Value = outcome.Value
			return result, nil
		case ResultTokenExpired:
			if result.Refreshes >= budget {
				err = exhaustedRetriesError(current, operation, result.Invocations)
				return result, err
			}
			s.logInfo(ctx, "access token rejected by provider", mergeFields(integrationFields(current, operation), map[string]any{
				"reason":  outcome.Reason,
				"attempt": result.Invocations,
			}))
			refreshed, _, refreshErr := s.refreshCredential(ctx, descriptor, current, operation)
			if refreshErr != nil {
				err = refreshErr
				return result, err
			}
			result.Refreshes++
			current = refreshed
			if descriptor.RefreshCooldownRequired {
				if waitErr := s.waitForCooldown(ctx, current); waitErr != nil {
					err = cancelledError(waitErr, current, operation)
					return result, err
				}
			}
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = cancelledError(ctxErr, current, operation)
				return result, err
			}
			err = transientError(outcome.Err, current, operation)
			return result, err
		}
	}
}

// RecoverAndRetry runs a single recovery cycle: refresh the credential of
// integration, honour the provider cooldown, then invoke the operation again.
func (s *Service) RecoverAndRetry(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	req.RetryBudget = 1
	return s.Dispatch(ctx, req)
}

func invokeOperation(ctx context.Context, fn OperationFunc, integration Integration, params Params) (out Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = Failure(fmt.Errorf("core: provider operation panicked: %v", recovered))
		}
	}()
	return fn(ctx, integration.AccessToken, params.Clone(), integration.InternalID, integration.Clone()).normalize()
}

// waitForCooldown blocks until the cooldown window after the last refresh has
// elapsed.
func (s *Service) waitForCooldown(ctx context.Context, integration Integration) error {
	if s.cooldown <= 0 {
		return nil
	}
	delay := s.cooldown
	if integration.TokenRefreshedAt != nil {
		delay = integration.TokenRefreshedAt.Add(s.cooldown).Sub(s.clock())
		if delay > s.cooldown {
			delay = s.cooldown
		}
	}
	if delay <= 0 {
		return nil
	}
	return s.wait(ctx, delay)
}

// waitForRecoveryWindow holds back a dispatch whose stored credential was
// refreshed less than one cooldown ago.
func (s *Service) waitForRecoveryWindow(ctx context.Context, integration Integration) error {
	if integration.TokenRefreshedAt == nil {
		return nil
	}
	return s.waitForCooldown(ctx, integration)
}

func (s *Service) loadIntegration(ctx context.Context, organizationID string, integrationID string) (Integration, error) {
	if s == nil || s.integrationStore == nil {
		return Integration{}, s.mapError(fmt.Errorf("core: integration store is not configured"))
	}
	integration, err := s.integrationStore.Get(ctx, integrationID)
	if err != nil {
		if KindOf(s.mapError(err)) == KindNotFound {
			return Integration{}, integrationNotFoundError(err, integrationID)
		}
		if isContextDone(err) {
			return Integration{}, cancelledError(err, Integration{ID: integrationID}, "")
		}
		return Integration{}, s.mapError(err)
	}
	if !integration.BelongsTo(organizationID) {
		return Integration{}, integrationNotFoundError(nil, integrationID)
	}
	return integration, nil
}

func (s *Service) resolveDescriptor(providerIdentifier string) (ProviderDescriptor, error) {
	if s == nil || s.registry == nil {
		return ProviderDescriptor{}, providerNotFoundError(nil, providerIdentifier)
	}
	descriptor, err := s.registry.Resolve(providerIdentifier)
	if err != nil {
		return ProviderDescriptor{}, providerNotFoundError(err, providerIdentifier)
	}
	return descriptor, nil
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := cloneFields(base)
	for key, value := range extra {
		out[key] = value
	}
	return out
}
