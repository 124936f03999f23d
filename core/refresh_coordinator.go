package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type refreshOutcome struct {
	integration Integration
	refreshed   bool
}

// RefreshIntegration replaces the stored credential of an integration using its
// provider's refresh contract. Concurrent callers share one refresh.
func (s *Service) RefreshIntegration(ctx context.Context, req RefreshIntegrationRequest) (result RefreshIntegrationResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id": req.OrganizationID,
		"integration_id":  req.IntegrationID,
	}
	defer func() {
		fields["refreshed"] = result.Refreshed
		s.observeOperation(ctx, startedAt, "refresh_integration", err, fields)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	integrationID := strings.TrimSpace(req.IntegrationID)
	if integrationID == "" {
		err = badInputError("core: integration id is required")
		return RefreshIntegrationResult{}, err
	}
	integration, err := s.loadIntegration(ctx, req.OrganizationID, integrationID)
	if err != nil {
		return RefreshIntegrationResult{}, err
	}
	fields["provider"] = integration.ProviderIdentifier
	if integration.Disabled {
		err = integrationDisabledError(integration)
		return RefreshIntegrationResult{}, err
	}
	descriptor, err := s.resolveDescriptor(integration.ProviderIdentifier)
	if err != nil {
		return RefreshIntegrationResult{}, err
	}

	refreshed, didRefresh, err := s.refreshCredential(ctx, descriptor, integration, "")
	if err != nil {
		return RefreshIntegrationResult{}, err
	}
	return RefreshIntegrationResult{Integration: refreshed.Redacted(), Refreshed: didRefresh}, nil
}

// refreshCredential returns a credential newer than stale. Callers holding the
// same stale credential join one in-flight refresh; a caller whose stale token
// was already replaced reuses the stored credential without calling the
// provider.
func (s *Service) refreshCredential(
	ctx context.Context,
	descriptor ProviderDescriptor,
	stale Integration,
	operation string,
) (Integration, bool, error) {
	ttl := s.config.Refresh.LockTTL()
	ch := s.refreshes.DoChan(refreshFlightKey(stale), func() (any, error) {
		// The flight outlives the caller that started it; joined callers wait on it.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ttl)
		defer cancel()
		return s.runRefresh(flightCtx, descriptor, stale, ttl)
	})

	select {
	case <-ctx.Done():
		return Integration{}, false, cancelledError(ctx.Err(), stale, operation)
	case res := <-ch:
		if res.Err != nil {
			return Integration{}, false, res.Err
		}
		outcome, ok := res.Val.(refreshOutcome)
		if !ok {
			return Integration{}, false, s.mapError(fmt.Errorf("core: unexpected refresh outcome %T", res.Val))
		}
		return outcome.integration.Clone(), outcome.refreshed, nil
	}
}

func (s *Service) runRefresh(
	ctx context.Context,
	descriptor ProviderDescriptor,
	stale Integration,
	ttl time.Duration,
) (outcome refreshOutcome, err error) {
	startedAt := time.Now().UTC()
	fields := integrationFields(stale, "")
	defer func() {
		fields["refreshed"] = outcome.refreshed
		s.observeOperation(ctx, startedAt, "refresh_credential", err, fields)
	}()

	handle, err := s.locker.Acquire(ctx, stale.ID, ttl)
	if err != nil {
		err = transientError(err, stale, "refresh")
		return refreshOutcome{}, err
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.logWarn(ctx, "integration refresh lock release failed", mergeFields(fields, map[string]any{
				"unlock_error": unlockErr.Error(),
			}))
		}
	}()

	current, err := s.reloadIntegration(ctx, stale.ID)
	if err != nil {
		err = s.mapError(err)
		return refreshOutcome{}, err
	}
	if current.Disabled {
		err = reconnectRequiredError(current)
		return refreshOutcome{}, err
	}
	if current.AccessToken != stale.AccessToken {
		fields["reused"] = true
		return refreshOutcome{integration: current}, nil
	}

	credential, err := descriptor.Refresher.Refresh(ctx, current.Clone())
	if err != nil {
		err = transientError(err, current, "refresh")
		return refreshOutcome{}, err
	}

	now := s.clock()
	if credential == nil || strings.TrimSpace(credential.AccessToken) == "" {
		patch := IntegrationPatch{
			Disabled:      boolPtr(true),
			RefreshNeeded: boolPtr(true),
		}
		if updateErr := s.integrationStore.Update(ctx, current.ID, patch); updateErr != nil {
			err = s.mapError(updateErr)
			return refreshOutcome{}, err
		}
		s.logWarn(ctx, "integration refresh token rejected, reconnect required", fields)
		err = reconnectRequiredError(current)
		return refreshOutcome{}, err
	}

	patch := IntegrationPatch{
		AccessToken:      stringPtr(credential.AccessToken),
		TokenRefreshedAt: timePtr(now),
		RefreshNeeded:    boolPtr(false),
	}
	if strings.TrimSpace(credential.RefreshToken) != "" {
		patch.RefreshToken = stringPtr(credential.RefreshToken)
	}
	if credential.ExpiresIn > 0 {
		patch.TokenExpiresAt = timePtr(now.Add(credential.ExpiresIn))
	}
	if err = s.integrationStore.Update(ctx, current.ID, patch); err != nil {
		err = s.mapError(err)
		return refreshOutcome{}, err
	}
	return refreshOutcome{integration: patch.Apply(current, now), refreshed: true}, nil
}

// reloadIntegration reads the record behind the lock, bypassing any read
// cache the store keeps.
func (s *Service) reloadIntegration(ctx context.Context, id string) (Integration, error) {
	if fresh, ok := s.integrationStore.(FreshIntegrationReader); ok {
		return fresh.GetFresh(ctx, id)
	}
	return s.integrationStore.Get(ctx, id)
}

// refreshFlightKey groups callers by integration and the credential they saw
// rejected, so a caller that loaded an already-replaced token does not join a
// flight started for the previous one.
func refreshFlightKey(integration Integration) string {
	sum := sha256.Sum256([]byte(integration.AccessToken))
	return integration.ID + ":" + hex.EncodeToString(sum[:8])
}
