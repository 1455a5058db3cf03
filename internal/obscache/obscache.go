// Package obscache guards expensive upstream geo-queries behind a TTL
// key-value cache. Only the configured home coordinate is ever cached: cache
// keys derive from that fixed pair, and requests for any other coordinates
// bypass the cache entirely.
package obscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "obscache.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger(logFilePath, "obscache", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize obscache file logger", "error", err)
		logger = logging.NewDiscardLogger("obscache", serviceLevelVar)
	}
}

const (
	// DefaultObservationTTL bounds how long a cached species search lives.
	DefaultObservationTTL = 24 * time.Hour

	// DefaultTaxonTTL bounds how long cached remote taxon completions live.
	DefaultTaxonTTL = 24 * time.Hour
)

// Store is the key-value backend contract. Implementations enforce TTL expiry
// themselves; the cache layer never evicts or refreshes explicitly.
type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cache implements the observation caching policy on top of a Store.
type Cache struct {
	store          Store
	home           geo.Pair
	observationTTL time.Duration
	taxonTTL       time.Duration
}

// New creates a cache bound to the configured home coordinate.
func New(store Store, home geo.Pair) *Cache {
	return &Cache{
		store:          store,
		home:           home,
		observationTTL: DefaultObservationTTL,
		taxonTTL:       DefaultTaxonTTL,
	}
}

// Cacheable reports whether a species search for the given coordinates may
// touch the cache. Exact float equality with the configured home pair is
// deliberate: the policy caches one canonical coordinate only.
func (c *Cache) Cacheable(p geo.Pair) bool {
	return p.Lat == c.home.Lat && p.Lng == c.home.Lng
}

// speciesSearchKey derives the cache key from the home coordinate, never from
// the requested one.
func (c *Cache) speciesSearchKey() string {
	return fmt.Sprintf("speciesSearch:%g:%g", c.home.Lat, c.home.Lng)
}

func taxonFindKey(query string) string {
	return "taxonFind:" + strings.ToLower(query)
}

// GetObservations returns the cached species search result for the given
// coordinates. Non-home coordinates always miss. Store errors are logged and
// reported as a miss so the caller falls through to the upstream query.
func (c *Cache) GetObservations(ctx context.Context, p geo.Pair) ([]ebird.Observation, bool) {
	if c == nil || c.store == nil || !c.Cacheable(p) {
		return nil, false
	}

	raw, found, err := c.store.Get(ctx, c.speciesSearchKey())
	if err != nil {
		logger.Warn("observation cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var observations []ebird.Observation
	if err := json.Unmarshal([]byte(raw), &observations); err != nil {
		logger.Warn("observation cache entry corrupt, ignoring", "error", err)
		return nil, false
	}

	logger.Debug("observation cache hit", "count", len(observations))
	return observations, true
}

// SetObservations writes a species search result for the given coordinates.
// Writes for non-home coordinates are dropped per the keying policy. The
// write completes before returning so a subsequent read in the same control
// flow observes it.
func (c *Cache) SetObservations(ctx context.Context, p geo.Pair, observations []ebird.Observation) {
	if c == nil || c.store == nil || !c.Cacheable(p) {
		return
	}

	raw, err := json.Marshal(observations)
	if err != nil {
		logger.Warn("observation cache encode failed", "error", err)
		return
	}

	if err := c.store.Set(ctx, c.speciesSearchKey(), string(raw), c.observationTTL); err != nil {
		logger.Warn("observation cache write failed", "error", err)
	}
}

// GetTaxonResults returns cached remote taxon completions for a query. This
// is the one cache variant keyed by user-entered text.
func (c *Cache) GetTaxonResults(ctx context.Context, query string) ([]ebird.TaxonFindResult, bool) {
	if c == nil || c.store == nil || query == "" {
		return nil, false
	}

	raw, found, err := c.store.Get(ctx, taxonFindKey(query))
	if err != nil {
		logger.Warn("taxon cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var results []ebird.TaxonFindResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		logger.Warn("taxon cache entry corrupt, ignoring", "error", err)
		return nil, false
	}

	return results, true
}

// SetTaxonResults caches remote taxon completions for a query.
func (c *Cache) SetTaxonResults(ctx context.Context, query string, results []ebird.TaxonFindResult) {
	if c == nil || c.store == nil || query == "" {
		return
	}

	raw, err := json.Marshal(results)
	if err != nil {
		logger.Warn("taxon cache encode failed", "error", err)
		return
	}

	if err := c.store.Set(ctx, taxonFindKey(query), string(raw), c.taxonTTL); err != nil {
		logger.Warn("taxon cache write failed", "error", err)
	}
}
