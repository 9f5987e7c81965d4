// Package session resolves the default messaging channel of a company.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/store"
)

// Cache wraps a SessionStore with a size and TTL bounded LRU. Companies
// without a session are cached too, so the imports of a tenant that never
// configured a channel do not query the store every time.
type Cache struct {
	next  store.SessionStore
	cache *expirable.LRU[string, *model.Session]
}

// NewCache returns next unchanged when size or ttl disable caching.
func NewCache(next store.SessionStore, size int, ttl time.Duration) store.SessionStore {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &Cache{
		next:  next,
		cache: expirable.NewLRU[string, *model.Session](size, nil, ttl),
	}
}

// DefaultSession implements store.SessionStore.
func (c *Cache) DefaultSession(ctx context.Context, companyID string) (*model.Session, error) {
	if sess, ok := c.cache.Get(companyID); ok {
		zap.L().Debug("session: cache hit", zap.String("company_id", companyID))
		if sess == nil {
			return nil, store.ErrNotFound
		}
		cp := *sess
		return &cp, nil
	}

	sess, err := c.next.DefaultSession(ctx, companyID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.cache.Add(companyID, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	cp := *sess
	c.cache.Add(companyID, &cp)
	return sess, nil
}

// Invalidate drops the cached entry of a company.
func (c *Cache) Invalidate(companyID string) {
	c.cache.Remove(companyID)
}
