/**
 * @description
 * This file provides the RoleResolver, a read-through cache for account
 * roles. Authorization checks run on almost every request, and roles are
 * immutable for the lifetime of an account, so a short in-process cache
 * removes the hot lookup from the request path. Lookups for uncached ids
 * are batched into a single query.
 *
 * @dependencies
 * - github.com/patrickmn/go-cache: In-process TTL cache.
 * - internal/store: Repository interface for role lookups.
 */
package app

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/painelpro/reseller-service/internal/domain"
	"github.com/painelpro/reseller-service/internal/store"
)

// RoleResolver caches account id to role lookups. Roles never change after
// creation, so entries only need invalidation when an account is deleted.
type RoleResolver struct {
	repo  store.Repository
	cache *cache.Cache
}

// NewRoleResolver creates a resolver backed by the given repository.
func NewRoleResolver(repo store.Repository) *RoleResolver {
	return &RoleResolver{
		repo:  repo,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Role resolves the role of a single account.
func (r *RoleResolver) Role(ctx context.Context, accountID int64) (domain.Role, error) {
	roles, err := r.Roles(ctx, []int64{accountID})
	if err != nil {
		return "", err
	}
	role, ok := roles[accountID]
	if !ok {
		return "", store.ErrAccountNotFound
	}
	return role, nil
}

// Roles resolves the roles of several accounts at once. Cached entries are
// served locally and the remaining ids go to the database in one query.
// Ids that do not exist are absent from the returned map.
func (r *RoleResolver) Roles(ctx context.Context, accountIDs []int64) (map[int64]domain.Role, error) {
	resolved := make(map[int64]domain.Role, len(accountIDs))
	var misses []int64
	for _, id := range accountIDs {
		if cached, ok := r.cache.Get(roleCacheKey(id)); ok {
			resolved[id] = cached.(domain.Role)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return resolved, nil
	}

	fetched, err := r.repo.FindRolesByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, role := range fetched {
		r.cache.Set(roleCacheKey(id), role, cache.DefaultExpiration)
		resolved[id] = role
	}
	return resolved, nil
}

// Prime records a freshly created account's role without a database round trip.
func (r *RoleResolver) Prime(accountID int64, role domain.Role) {
	r.cache.Set(roleCacheKey(accountID), role, cache.DefaultExpiration)
}

// Invalidate drops a cached role. Called when an account is deleted.
func (r *RoleResolver) Invalidate(accountID int64) {
	r.cache.Delete(roleCacheKey(accountID))
}

func roleCacheKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
