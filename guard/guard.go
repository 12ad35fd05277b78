// Package guard holds the per-chain "claims in progress" flag. A chain has at
// most one attestation run at a time; a lease expires on its own after its
// TTL so a stuck run cannot hold the chain forever.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"state-connector/models"
)

// Guard hands out exclusive per-chain leases.
type Guard interface {
	// Acquire returns a lease token, or models.ErrClaimsInProgress when
	// the chain is already held.
	Acquire(ctx context.Context, chain string, ttl time.Duration) (string, error)
	// Release frees the lease if token still owns it.
	Release(ctx context.Context, chain, token string) error
	// Held reports whether chain currently has a live lease.
	Held(ctx context.Context, chain string) (bool, error)
}

type lease struct {
	token   string
	expires time.Time
}

// Memory is a Guard for a single process.
type Memory struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewMemory returns an in-process guard. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{leases: make(map[string]lease), now: now}
}

func (m *Memory) Acquire(_ context.Context, chain string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if l, ok := m.leases[chain]; ok && now.Before(l.expires) {
		return "", models.ErrClaimsInProgress
	}
	token := uuid.NewString()
	m.leases[chain] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (m *Memory) Release(_ context.Context, chain, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[chain]; ok && l.token == token {
		delete(m.leases, chain)
	}
	return nil
}

func (m *Memory) Held(_ context.Context, chain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[chain]
	return ok && m.now().Before(l.expires), nil
}
