package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testProviderID = "testprov"

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// scriptedOperation replays results in order and repeats the last one.
type scriptedOperation struct {
	mu      sync.Mutex
	results []Result
	tokens  []string
	params  []Params
}

func (o *scriptedOperation) call(_ context.Context, accessToken string, params Params, _ string, _ Integration) Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tokens = append(o.tokens, accessToken)
	o.params = append(o.params, params)
	if len(o.results) == 0 {
		return Success(nil)
	}
	index := len(o.tokens) - 1
	if index >= len(o.results) {
		index = len(o.results) - 1
	}
	return o.results[index]
}

func (o *scriptedOperation) seenTokens() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.tokens...)
}

// tokenGuardOperation accepts only the valid token and reports expiry
// otherwise.
type tokenGuardOperation struct {
	valid string
	calls atomic.Int32
}

func (o *tokenGuardOperation) call(_ context.Context, accessToken string, params Params, internalID string, _ Integration) Result {
	o.calls.Add(1)
	if accessToken != o.valid {
		return TokenExpired("401 unauthorized")
	}
	return Success(map[string]any{"internal_id": internalID, "params": map[string]any(params)})
}

type countingRefresher struct {
	calls      atomic.Int32
	credential *RefreshedCredential
	err        error
	gate       chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context, _ Integration) (*RefreshedCredential, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.credential == nil {
		return nil, nil
	}
	copied := *r.credential
	return &copied, nil
}

type recordingWaiter struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (w *recordingWaiter) wait(ctx context.Context, delay time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, delay)
	w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	return ctx.Err()
}

func (w *recordingWaiter) recorded() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

func freshCredential() *RefreshedCredential {
	return &RefreshedCredential{
		AccessToken:  "fresh-token",
		RefreshToken: "fresh-refresh",
		ExpiresIn:    time.Hour,
	}
}

func seedIntegration(id string) Integration {
	return Integration{
		ID:                 id,
		OrganizationID:     "org_1",
		ProviderIdentifier: testProviderID,
		Name:               "Account " + id,
		AccessToken:        "stale-token",
		RefreshToken:       "stale-refresh",
		InternalID:         "ext_" + id,
		CreatedAt:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testDescriptor(refresher Refresher, cooldown bool, ops map[string]OperationFunc) ProviderDescriptor {
	return ProviderDescriptor{
		Identifier:              testProviderID,
		Capabilities:            ops,
		RefreshCooldownRequired: cooldown,
		Refresher:               refresher,
	}
}

func newTestService(t *testing.T, store IntegrationStore, descriptor ProviderDescriptor, opts ...Option) *Service {
	t.Helper()
	registry := NewProviderRegistry()
	if err := registry.Register(descriptor); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	base := []Option{
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithRegistry(registry),
		WithIntegrationStore(store),
		WithRefreshCooldown(0),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustGet(t *testing.T, store IntegrationStore, id string) Integration {
	t.Helper()
	integration, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get integration %s: %v", id, err)
	}
	return integration
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected error kind %s, got %s (%v)", want, got, err)
	}
}

// failingStore returns err from every call.
type failingStore struct {
	err error
}

func (s failingStore) Get(context.Context, string) (Integration, error) {
	return Integration{}, s.err
}

func (s failingStore) Update(context.Context, string, IntegrationPatch) error {
	return s.err
}

var errBoom = fmt.Errorf("boom")
