// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package paths

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL bounds how long a cached read may be served without
// re-statting the file.
const DefaultCacheTTL = 1 * time.Second

const cacheSize = 256

type readCache struct {
	lru *expirable.LRU[string, interface{}]
}

func newReadCache() *readCache {
	return &readCache{
		lru: expirable.NewLRU[string, interface{}](cacheSize, nil, DefaultCacheTTL),
	}
}

// key incorporates the file mtime so any on-disk change misses the cache.
func (c *readCache) key(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return path + "|missing"
	}
	return fmt.Sprintf("%s|%d|%d", path, fi.ModTime().UnixNano(), fi.Size())
}

func (c *readCache) get(path string) (interface{}, bool) {
	return c.lru.Get(c.key(path))
}

func (c *readCache) put(path string, value interface{}) {
	c.lru.Add(c.key(path), value)
}

func (c *readCache) invalidate(path string) {
	// The mtime-based key already misses after a write; removing both the
	// current and pre-write keys keeps the cache from serving a stale entry
	// within the same clock tick.
	c.lru.Remove(c.key(path))
	c.lru.Remove(path + "|missing")
}

// GetCached returns the parsed contents of a JSON state file through a TTL
// cache keyed by path and mtime. Missing files return defaultValue. Writes
// through AtomicWriteJSON invalidate the entry.
func (r *Resolver) GetCached(path string, defaultValue interface{}) (interface{}, error) {
	if v, ok := r.cache.get(path); ok {
		return v, nil
	}
	v, err := r.SafeReadJSON(path, "")
	if err != nil {
		return nil, err
	}
	if v == nil {
		return defaultValue, nil
	}
	r.cache.put(path, v)
	return v, nil
}
