package jwtauth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

var (
	roleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_role_override_cache_hits_total",
		Help: "Role override lookups served from the in-memory cache.",
	})
	roleCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_role_override_cache_misses_total",
		Help: "Role override lookups that went to the backing store.",
	})
)

type cachedRole struct {
	role domain.Role
	ok   bool
}

// CachedRoleStore fronts a UserRoleStore with a per-instance TTL cache.
// SetRole evicts the user's entry so this instance sees a role change at once;
// other instances see it after the TTL.
type CachedRoleStore struct {
	next  ports.UserRoleStore
	cache *expirable.LRU[string, cachedRole]
}

func NewCachedRoleStore(next ports.UserRoleStore, maxSize int, ttl time.Duration) *CachedRoleStore {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedRoleStore{
		next:  next,
		cache: expirable.NewLRU[string, cachedRole](maxSize, nil, ttl),
	}
}

func (c *CachedRoleStore) GetRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	if entry, ok := c.cache.Get(userID); ok {
		roleCacheHitsTotal.Inc()
		return entry.role, entry.ok, nil
	}
	roleCacheMissesTotal.Inc()

	role, ok, err := c.next.GetRole(ctx, userID)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(userID, cachedRole{role: role, ok: ok})
	return role, ok, nil
}

func (c *CachedRoleStore) SetRole(ctx context.Context, userID string, role domain.Role) error {
	if err := c.next.SetRole(ctx, userID, role); err != nil {
		return err
	}
	c.cache.Remove(userID)
	return nil
}
