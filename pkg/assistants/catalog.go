package assistants

import (
	"context"
	"fmt"
	"time"

	"github.com/killallgit/composer/pkg/logger"
	"github.com/patrickmn/go-cache"
)

const listKey = "assistants"

// Lister fetches the current assistant list from the backend.
type Lister interface {
	ListAssistants(ctx context.Context) ([]Assistant, error)
}

// Catalog caches the assistant listing.
type Catalog struct {
	lister    Lister
	cache     *cache.Cache
	preferred string
}

// NewCatalog creates a catalog whose listing expires after ttl. preferred
// names the assistant returned by Default; empty means the first one.
func NewCatalog(lister Lister, ttl time.Duration, preferred string) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{
		lister:    lister,
		cache:     cache.New(ttl, 2*ttl),
		preferred: preferred,
	}
}

func (c *Catalog) List(ctx context.Context) ([]Assistant, error) {
	if cached, ok := c.cache.Get(listKey); ok {
		return cached.([]Assistant), nil
	}

	log := logger.WithComponent("catalog")
	list, err := c.lister.ListAssistants(ctx)
	if err != nil {
		log.Error("Failed to list assistants", "error", err)
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	log.Debug("Loaded assistants", "count", len(list))

	c.cache.SetDefault(listKey, list)
	return list, nil
}

// Lookup finds an assistant by name.
func (c *Catalog) Lookup(ctx context.Context, name string) (Assistant, error) {
	list, err := c.List(ctx)
	if err != nil {
		return Assistant{}, err
	}
	for _, a := range list {
		if a.Name == name {
			return a, nil
		}
	}
	return Assistant{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Default returns the preferred assistant, or the first one listed.
func (c *Catalog) Default(ctx context.Context) (Assistant, error) {
	if c.preferred != "" {
		return c.Lookup(ctx, c.preferred)
	}
	list, err := c.List(ctx)
	if err != nil {
		return Assistant{}, err
	}
	if len(list) == 0 {
		return Assistant{}, ErrNoAssistants
	}
	return list[0], nil
}

// Invalidate drops the cached listing.
func (c *Catalog) Invalidate() {
	c.cache.Delete(listKey)
}
