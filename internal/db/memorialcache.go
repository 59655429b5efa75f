package db

import (
	"sync"

	"github.com/ChaseHampton/lapida/internal/domain"
)

// MemorialCache remembers which memorial ids were already archived.
type MemorialCache struct {
	mu    sync.RWMutex
	cache map[string]bool
}

func NewMemorialCache() *MemorialCache {
	return &MemorialCache{
		cache: make(map[string]bool),
	}
}

func (mc *MemorialCache) Seen(id string) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.cache[id]
}

// Claim splits memorials into ones not seen before and ones already seen, and
// marks the new ones seen in the same step. Two pages carrying the same
// memorial therefore never both report it as new.
func (mc *MemorialCache) Claim(memorials []domain.Memorial) ([]domain.Memorial, []domain.Memorial) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var fresh []domain.Memorial
	var seen []domain.Memorial
	for _, memorial := range memorials {
		if mc.cache[memorial.ID] {
			seen = append(seen, memorial)
			continue
		}
		mc.cache[memorial.ID] = true
		fresh = append(fresh, memorial)
	}
	return fresh, seen
}

func (mc *MemorialCache) MarkSeen(ids []string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, id := range ids {
		mc.cache[id] = true
	}
}

// Forget drops ids, used when their snapshot could not be recorded.
func (mc *MemorialCache) Forget(ids []string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, id := range ids {
		delete(mc.cache, id)
	}
}

func (mc *MemorialCache) Size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.cache)
}
