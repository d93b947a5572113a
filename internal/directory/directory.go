// Package directory resolves employee ids to display names and roles. The
// employee master lives outside this service; this is a read-through cache
// over its projection table.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-crm/meridian-crm/internal/shared"
)

// Employee is the resolved projection.
type Employee struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// StorePort reads the employee projection.
type StorePort interface {
	GetEmployee(ctx context.Context, id int64) (Employee, error)
}

// Resolver caches employee lookups in redis in front of the store. Cache
// failures degrade to store reads, never to request failures.
type Resolver struct {
	store  StorePort
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver builds a Resolver. A nil cache client disables caching.
func NewResolver(store StorePort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns the employee for id.
func (r *Resolver) Resolve(ctx context.Context, id int64) (Employee, error) {
	if id == 0 {
		return Employee{}, shared.E(shared.ErrValidation, "employee id required")
	}

	key := cacheKey(id)
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key).Bytes()
		if err == nil {
			var emp Employee
			if err := json.Unmarshal(raw, &emp); err == nil {
				return emp, nil
			}
		} else if !errors.Is(err, redis.Nil) && r.logger != nil {
			r.logger.Warn("directory cache read", slog.Any("error", err))
		}
	}

	emp, err := r.store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, err
	}

	if r.cache != nil {
		if raw, err := json.Marshal(emp); err == nil {
			if err := r.cache.Set(ctx, key, raw, r.ttl).Err(); err != nil && r.logger != nil {
				r.logger.Warn("directory cache write", slog.Any("error", err))
			}
		}
	}
	return emp, nil
}

// Invalidate drops a cached employee, used when the projection is refreshed.
func (r *Resolver) Invalidate(ctx context.Context, id int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, cacheKey(id)).Err()
}

func cacheKey(id int64) string {
	return fmt.Sprintf("directory:employee:%d", id)
}
