// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package resolver

import (
	"github.com/decred/dcrd/container/lru"
)

const (
	// DefaultCacheSize is the default number of script resolutions kept by
	// a CachingResolver.
	DefaultCacheSize = 1000
)

// cacheEntry is the memoized outcome of a single Resolve call.
type cacheEntry struct {
	res *Resolution
	err error
}

// CachingResolver memoizes the resolutions of another Resolver in a bounded
// LRU cache keyed by the raw script.  It is useful when many packets spending
// the same scripts are analyzed back to back.
//
// Cached resolutions are shared between callers and must be treated as read
// only.
type CachingResolver struct {
	inner Resolver
	cache *lru.Map[string, cacheEntry]
}

// A compile-time assertion to ensure CachingResolver implements Resolver.
var _ Resolver = (*CachingResolver)(nil)

// NewCachingResolver wraps inner with an LRU cache holding up to size
// resolutions.  A size of zero selects DefaultCacheSize.
func NewCachingResolver(inner Resolver, size uint32) *CachingResolver {
	if size == 0 {
		size = DefaultCacheSize
	}
	return &CachingResolver{
		inner: inner,
		cache: lru.NewMap[string, cacheEntry](size),
	}
}

// Resolve returns the cached resolution of script, resolving it with the
// wrapped resolver on a miss.  Errors are cached as well since resolution is
// a pure function of the script.
//
// This function is safe for concurrent access.
func (c *CachingResolver) Resolve(script []byte) (*Resolution, error) {
	key := string(script)
	if entry, ok := c.cache.Get(key); ok {
		return entry.res, entry.err
	}

	res, err := c.inner.Resolve(script)
	c.cache.Put(key, cacheEntry{res: res, err: err})

	log.Tracef("Cached resolution of script %x", script)

	return res, err
}
