package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultLockPollInitial = 5 * time.Millisecond
	defaultLockPollMax     = 250 * time.Millisecond
)

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultLockPollInitial
	}
	max := s.Max
	if max <= 0 {
		max = defaultLockPollMax
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// TryLocker is a single non-blocking acquisition attempt. ok is false when the
// lock is currently held elsewhere.
type TryLocker interface {
	TryAcquire(ctx context.Context, integrationID string, ttl time.Duration) (handle LockHandle, ok bool, err error)
}

// AcquireWithBackoff polls locker until the lock is obtained or ctx is done.
func AcquireWithBackoff(
	ctx context.Context,
	locker TryLocker,
	backoff BackoffScheduler,
	integrationID string,
	ttl time.Duration,
) (LockHandle, error) {
	if locker == nil {
		return nil, fmt.Errorf("core: integration locker is not configured")
	}
	if backoff == nil {
		backoff = ExponentialBackoffScheduler{}
	}
	for attempt := 1; ; attempt++ {
		handle, ok, err := locker.TryAcquire(ctx, integrationID, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return handle, nil
		}
		if err := waitWithContext(ctx, backoff.NextDelay(attempt)); err != nil {
			return nil, err
		}
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryIntegrationLocker is a process-local keyed lock with lease expiry.
type MemoryIntegrationLocker struct {
	mu      sync.Mutex
	locks   map[string]memoryLease
	backoff BackoffScheduler
	nowFn   func() time.Time
	seq     uint64
}

type memoryLease struct {
	until time.Time
	token uint64
}

func NewMemoryIntegrationLocker() *MemoryIntegrationLocker {
	return &MemoryIntegrationLocker{
		locks:   make(map[string]memoryLease),
		backoff: ExponentialBackoffScheduler{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryIntegrationLocker) Acquire(ctx context.Context, integrationID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: integration locker is not configured")
	}
	return AcquireWithBackoff(ctx, l, l.backoff, integrationID, ttl)
}

func (l *MemoryIntegrationLocker) TryAcquire(_ context.Context, integrationID string, ttl time.Duration) (LockHandle, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("core: integration locker is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, false, fmt.Errorf("core: integration id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTLSeconds * time.Second
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.locks[integrationID]; ok && now.Before(lease.until) {
		return nil, false, nil
	}
	l.seq++
	l.locks[integrationID] = memoryLease{until: now.Add(ttl), token: l.seq}
	return &memoryLockHandle{locker: l, integrationID: integrationID, token: l.seq}, true, nil
}

type memoryLockHandle struct {
	locker        *MemoryIntegrationLocker
	integrationID string
	token         uint64
	once          sync.Once
}

// Unlock releases the lease only if it was not reclaimed after expiry.
func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		if lease, ok := h.locker.locks[h.integrationID]; ok && lease.token == h.token {
			delete(h.locker.locks, h.integrationID)
		}
	})
	return nil
}
