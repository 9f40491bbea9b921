package signer

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// CachingResolver keeps successfully resolved signers in an expiring LRU so
// KMS backends do not fetch the public key on every request. Failures are
// never cached. The cache owns its signers and closes them on eviction.
type CachingResolver struct {
	inner  IResolver
	cache  *expirable.LRU[common.Hash, ISigner]
	logger *zap.Logger

	// serializes misses so a signer is never replaced without being closed
	mu sync.Mutex
}

func NewCachingResolver(inner IResolver, cfg *CacheConfig, logger *zap.Logger) *CachingResolver {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	c := &CachingResolver{
		inner:  inner,
		logger: logger,
	}
	c.cache = expirable.NewLRU[common.Hash, ISigner](size, c.evicted, cfg.TTL)
	return c
}

func (c *CachingResolver) evicted(_ common.Hash, s ISigner) {
	c.logger.Sugar().Debugw("Evicted cached signer", "address", s.Address().Hex())
	closeSigner(s, c.logger)
}

func (c *CachingResolver) Resolve(ctx context.Context) (ISigner, error) {
	key := c.inner.Descriptor().Fingerprint()
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}

	s, err := c.inner.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, s)
	c.logger.Sugar().Debugw("Cached resolved signer",
		"kind", c.inner.Descriptor().Kind,
		"address", s.Address().Hex(),
	)
	return s, nil
}

// Release is a no-op: cached signers stay open until evicted.
func (c *CachingResolver) Release(ISigner) {}

func (c *CachingResolver) Descriptor() *Descriptor {
	return c.inner.Descriptor()
}

// Purge drops and closes every cached signer.
func (c *CachingResolver) Purge() {
	c.cache.Purge()
}

var (
	_ IResolver = (*Resolver)(nil)
	_ IResolver = (*CachingResolver)(nil)
)
