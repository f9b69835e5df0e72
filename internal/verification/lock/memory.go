package lock

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	owner   string
	expires time.Time
}

// MemoryBackend keeps lock records in process. Suitable for single-instance
// deployments and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]memoryRecord), now: time.Now}
}

func (b *MemoryBackend) TryAcquire(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if rec, ok := b.records[name]; ok && now.Before(rec.expires) {
		return false, nil
	}
	b.records[name] = memoryRecord{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (b *MemoryBackend) Release(_ context.Context, name, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.records[name]; ok && rec.owner == owner {
		delete(b.records, name)
	}
	return nil
}
