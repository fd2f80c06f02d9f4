// Package cache provides a byte cache used to avoid re-reading genome
// regions and re-parsing GWAS summary tables.
//
// Two backends are provided: a file-based cache for CLI usage and a
// Redis-backed cache for the HTTP server, plus a null cache for
// disabling caching entirely. Keys are derived from the inputs with a
// Keyer so CLI and server agree on key layout.
package cache

import (
	"context"
	"time"
)

// TTLs per artifact class. Genome regions never change for a given
// build, so they keep the longest lifetime.
const (
	TTLRegion = 30 * 24 * time.Hour
	TTLTable  = 7 * 24 * time.Hour
	TTLResult = 24 * time.Hour
)

// Cache is the interface for cache backends.
type Cache interface {
	// Get retrieves a value. The second return value reports whether
	// the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A zero TTL means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys for the toolkit's cacheable artifacts.
type Keyer interface {
	// RegionKey identifies a genome region fetch.
	RegionKey(genome, sequence string, start, end int) string

	// TableKey identifies a parsed input table by its content hash.
	TableKey(kind, contentHash string) string

	// ResultKey identifies an analysis result by its options.
	ResultKey(kind string, opts any) string
}

// DefaultKeyer generates unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// RegionKey generates a key for a genome region fetch.
func (k *DefaultKeyer) RegionKey(genome, sequence string, start, end int) string {
	return hashKey("region", genome, sequence, start, end)
}

// TableKey generates a key for a parsed input table.
func (k *DefaultKeyer) TableKey(kind, contentHash string) string {
	return "table:" + kind + ":" + contentHash
}

// ResultKey generates a key for an analysis result.
func (k *DefaultKeyer) ResultKey(kind string, opts any) string {
	return hashKey("result:"+kind, opts)
}
