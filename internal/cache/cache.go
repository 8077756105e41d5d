package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores fetched nanopublications keyed by CacheKey
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a cache key from a nanopub URI
func CacheKey(uri string) string {
	hash := sha256.Sum256([]byte(uri))
	return "nanoreport:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by the arguments: a memory cache, a disk
// cache under dir, or both layered when dir is set and memory is enabled
func New(memory bool, dir string, ttl time.Duration) Cache {
	switch {
	case memory && dir != "":
		return NewLayeredCache(NewMemoryCache(ttl, 10*time.Minute), NewDiskCache(dir, ttl))
	case dir != "":
		return NewDiskCache(dir, ttl)
	default:
		return NewMemoryCache(ttl, 10*time.Minute)
	}
}
