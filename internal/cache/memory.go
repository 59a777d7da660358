// Package cache provides the in-process profile cache and the Redis-backed
// reasoning cache used by the matching service.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const (
	defaultMemoryItems = 256
	defaultMemoryTTL   = 15 * time.Minute
)

// Stats represents cache performance statistics
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// MemoryCache is an expiring LRU of patient profiles
type MemoryCache struct {
	patients *expirable.LRU[string, *domain.PatientProfile]
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewMemoryCache creates a profile cache. Non-positive arguments use defaults.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMemoryItems
	}
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	return &MemoryCache{
		patients: expirable.NewLRU[string, *domain.PatientProfile](maxItems, nil, ttl),
	}
}

// GetPatient returns a cached profile.
func (c *MemoryCache) GetPatient(patientID string) (*domain.PatientProfile, bool) {
	p, ok := c.patients.Get(patientID)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return p, ok
}

// SetPatient caches a profile.
func (c *MemoryCache) SetPatient(patientID string, profile *domain.PatientProfile) {
	c.patients.Add(patientID, profile)
}

// Invalidate drops a cached profile.
func (c *MemoryCache) Invalidate(patientID string) {
	c.patients.Remove(patientID)
}

// Stats returns hit/miss counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.patients.Len(),
	}
}
