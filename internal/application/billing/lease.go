package billing

import (
	"context"
	"sync"
	"time"
)

var _ Lease = (*MemoryLease)(nil)

// MemoryLease exclusión dentro de un solo proceso. Se usa cuando no hay Redis.
type MemoryLease struct {
	mu   sync.Mutex
	held map[string]leaseEntry
	seq  uint64
	now  func() time.Time
}

type leaseEntry struct {
	token   uint64
	expires time.Time
}

// NewMemoryLease construye un lease en memoria.
func NewMemoryLease() *MemoryLease {
	return &MemoryLease{held: make(map[string]leaseEntry), now: time.Now}
}

// Acquire toma la clave si está libre o expirada.
func (l *MemoryLease) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	l.seq++
	token := l.seq
	l.held[key] = leaseEntry{token: token, expires: now.Add(ttl)}

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Si expiró y otro la tomó, no es nuestra.
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
	}
	return release, true, nil
}
