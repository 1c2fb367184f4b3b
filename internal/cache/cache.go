// Package cache stores raw NER responses keyed by service source and query
// text, in memory and optionally on disk.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/entrole/internal/model"
)

const keyPrefix = "entrole:ner:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// NerKey derives the cache key of one NER request. The source is part of the
// key because the service tailors results per calling source.
func NerKey(source, query string) string {
	hash := sha256.Sum256([]byte(source + "\x00" + query))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: nothing when disabled, memory only
// when no disk directory is set, memory in front of disk otherwise
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Noop{}
	}

	memoryTTL := time.Duration(cfg.MemoryTTL) * time.Minute
	if cfg.DiskDir == "" {
		return NewMemoryCache(memoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(memoryTTL, cfg.DiskDir, time.Duration(cfg.DiskTTL)*time.Hour)
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) {
	return nil, false
}

func (Noop) Set(string, []byte, time.Duration) error {
	return nil
}

func (Noop) Delete(string) error {
	return nil
}

func (Noop) Clear() error {
	return nil
}
