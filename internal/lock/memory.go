package lock

import (
	"context"
	"sync"
	"time"
)

type holder struct {
	token   string
	expires time.Time
}

// Memory is an in-process Locker.
type Memory struct {
	mu    sync.Mutex
	held  map[string]holder
	retry time.Duration
	now   func() time.Time
}

func NewMemory(retry time.Duration) *Memory {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	return &Memory{held: map[string]holder{}, retry: retry, now: time.Now}
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := newToken()
	for {
		if m.tryAcquire(key, token, ttl) {
			return &Lease{Key: key, Token: token, release: m.release}, nil
		}
		if err := sleepCtx(ctx, m.retry); err != nil {
			return nil, err
		}
	}
}

func (m *Memory) tryAcquire(key, token string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if h, ok := m.held[key]; ok && now.Before(h.expires) {
		return false
	}
	m.held[key] = holder{token: token, expires: now.Add(ttl)}
	return true
}

func (m *Memory) release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.held[key]
	if !ok || h.token != token {
		return ErrNotHeld
	}
	delete(m.held, key)
	return nil
}
