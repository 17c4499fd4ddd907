package dbhelper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

const (
	connCacheSize  = 50
	connCacheMaxAge = 10 * time.Minute
)

type cacheEntry struct {
	connectionID string
	createdAt    time.Time
}

// ConnectionCache backs connect_cached: a bounded, LRU-evicted cache of live
// connection ids keyed by cache_key (or a dsn/username/options hash when no
// explicit key is given), using hashicorp/golang-lru for the bounded cache.
type ConnectionCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *cacheEntry]
	reg *registry.Registry
}

// NewConnectionCache builds a cache that, on eviction, disconnects the
// evicted connection through reg so the resource registry and the cache
// never disagree about what is live.
func NewConnectionCache(reg *registry.Registry) *ConnectionCache {
	cc := &ConnectionCache{reg: reg}
	evicted, err := lru.NewWithEvict(connCacheSize, func(_ string, entry *cacheEntry) {
		reg.Destroy(entry.connectionID)
	})
	if err != nil {
		// connCacheSize is a positive compile-time constant; NewWithEvict only
		// fails for size <= 0.
		panic(err)
	}
	cc.lru = evicted
	return cc
}

func cacheKeyFor(dsn, username string, optionsRaw json.RawMessage, explicitKey string) string {
	if explicitKey != "" {
		return explicitKey
	}
	h := sha256.New()
	h.Write([]byte(dsn))
	h.Write([]byte{0})
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write(optionsRaw)
	return hex.EncodeToString(h.Sum(nil))
}

// connectCached reuses a live, non-expired cached connection when one exists
// under the resolved key, otherwise connects as normal and caches the
// result.
func (cc *ConnectionCache) connectCached(ctx context.Context, reg *registry.Registry, p *modules.Params) (any, error) {
	var dsn, username, password, explicitKey string
	if err := p.Bind("dsn", 0, true, &dsn); err != nil {
		return nil, err
	}
	if err := p.Bind("username", 1, false, &username); err != nil {
		return nil, err
	}
	if err := p.Bind("password", 2, false, &password); err != nil {
		return nil, err
	}
	if err := p.Bind("cache_key", 4, false, &explicitKey); err != nil {
		return nil, err
	}

	optionsRaw, _ := p.Get("options")
	key := cacheKeyFor(dsn, username, optionsRaw, explicitKey)

	cc.mu.Lock()
	if hit, ok := cc.lru.Get(key); ok {
		if time.Since(hit.createdAt) < connCacheMaxAge {
			if entry, conn, err := lookupConnection(reg, hit.connectionID); err == nil {
				entry.Lock()
				state := conn.state
				entry.Unlock()
				if state != stateClosed {
					cc.mu.Unlock()
					reg.Touch(hit.connectionID)
					return map[string]any{
						"connection_id": hit.connectionID,
						"connected":     true,
						"auth_mode":     string(conn.authMode),
						"cached":        true,
					}, nil
				}
			}
		}
		cc.lru.Remove(key)
	}
	cc.mu.Unlock()

	result, err := connect(ctx, reg, p)
	if err != nil {
		return nil, err
	}

	m, _ := result.(map[string]any)
	connID, _ := m["connection_id"].(string)

	cc.mu.Lock()
	cc.lru.Add(key, &cacheEntry{connectionID: connID, createdAt: time.Now()})
	cc.mu.Unlock()

	m["cached"] = false
	return m, nil
}
