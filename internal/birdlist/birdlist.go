// Package birdlist drives the paginated species list: filtering by family
// group and loading images for the visible batch.
package birdlist

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tphakala/birdsearch-go/internal/imageprovider"
	"github.com/tphakala/birdsearch-go/internal/logging"
	"github.com/tphakala/birdsearch-go/internal/taxonomy"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger(filepath.Join("logs", "birdlist.log"), "birdlist", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize birdlist file logger", "error", err)
		logger = logging.NewDiscardLogger("birdlist", serviceLevelVar)
	}
}

// DefaultBatchSize is the page size used when no batch size is configured.
const DefaultBatchSize = 20

// Loader paginates a filtered species list and loads images batch by batch.
// It is a two-state machine: idle or loading. Load requests arriving while a
// load is in flight are dropped, and concurrent loads of the same page are
// collapsed through singleflight.
type Loader struct {
	images    *imageprovider.BirdImageCache
	batchSize int
	sf        singleflight.Group

	mu       sync.Mutex
	entries  []taxonomy.SpeciesEntry
	taxonomy map[string]string
	group    string
	page     int
	loading  bool
	loaded   map[string]imageprovider.BirdImage
}

// NewLoader creates a loader over the given image cache.
func NewLoader(images *imageprovider.BirdImageCache, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{
		images:    images,
		batchSize: batchSize,
		group:     taxonomy.AllGroups,
		loaded:    make(map[string]imageprovider.BirdImage),
	}
}

// SetSpecies replaces the species set backing the list. The group filter,
// page counter, and loaded images all reset since they belong to the previous
// set.
func (l *Loader) SetSpecies(entries []taxonomy.SpeciesEntry, speciesTaxonomy map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = entries
	l.taxonomy = speciesTaxonomy
	l.group = taxonomy.AllGroups
	l.page = 0
	l.loaded = make(map[string]imageprovider.BirdImage)
}

// SetGroup changes the family-group filter and resets pagination. A group
// that matches no species reverts the filter to AllGroups so the list never
// silently goes blank.
func (l *Loader) SetGroup(group string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if group != taxonomy.AllGroups && len(taxonomy.FilterByGroup(l.entries, l.taxonomy, group)) == 0 {
		logger.Debug("group filter matched nothing, reverting", "group", group)
		group = taxonomy.AllGroups
	}
	l.group = group
	l.page = 0
}

// Group returns the active family-group filter.
func (l *Loader) Group() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.group
}

// Page returns the current zero-based page.
func (l *Loader) Page() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}

// Loading reports whether a batch load is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Filtered returns the species entries visible under the active filter.
func (l *Loader) Filtered() []taxonomy.SpeciesEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return taxonomy.FilterByGroup(l.entries, l.taxonomy, l.group)
}

// Visible returns the entries the current page reveals: everything up to and
// including the current page under All Groups, or the whole subset under a
// specific group filter.
func (l *Loader) Visible() []taxonomy.SpeciesEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	filtered := taxonomy.FilterByGroup(l.entries, l.taxonomy, l.group)
	if l.group != taxonomy.AllGroups {
		return filtered
	}

	end := (l.page + 1) * l.batchSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[:end]
}

// Images returns a snapshot of every image loaded so far this session.
func (l *Loader) Images() map[string]imageprovider.BirdImage {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]imageprovider.BirdImage, len(l.loaded))
	for k, v := range l.loaded {
		snapshot[k] = v
	}
	return snapshot
}

// lastPage returns the zero-based final page for n entries.
func (l *Loader) lastPage(n int) int {
	if n == 0 {
		return 0
	}
	return (n - 1) / l.batchSize
}

// currentBatch returns the entries to load for the present filter and page.
// AllGroups paginates; a specific group loads its whole subset at once since
// group subsets are small.
func (l *Loader) currentBatch() ([]taxonomy.SpeciesEntry, string) {
	filtered := taxonomy.FilterByGroup(l.entries, l.taxonomy, l.group)

	if l.group != taxonomy.AllGroups {
		return filtered, fmt.Sprintf("group:%s", l.group)
	}

	start := l.page * l.batchSize
	if start >= len(filtered) {
		return nil, ""
	}
	end := start + l.batchSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], fmt.Sprintf("page:%d", l.page)
}

// LoadBatch fetches images for the current page under the active filter. It
// is a no-op while another load is in flight. A fetch failure for one species
// never discards images already loaded.
func (l *Loader) LoadBatch(ctx context.Context) {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return
	}
	batch, key := l.currentBatch()
	if len(batch) == 0 {
		l.mu.Unlock()
		return
	}
	l.loading = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.loading = false
		l.mu.Unlock()
	}()

	result, err, _ := l.sf.Do(key, func() (any, error) {
		return l.fetchBatch(ctx, batch), nil
	})
	if err != nil {
		// fetchBatch never errors, singleflight only relays panics here
		logger.Error("batch load failed", "key", key, "error", err)
		return
	}

	images := result.(map[string]imageprovider.BirdImage)

	l.mu.Lock()
	for name, img := range images {
		// only new keys merge in, an earlier image for a species stays put
		if _, ok := l.loaded[name]; !ok {
			l.loaded[name] = img
		}
	}
	l.mu.Unlock()

	logger.Debug("batch loaded", "key", key, "fetched", len(images), "requested", len(batch))
}

// LoadMore advances to the next page and loads it. It is a no-op while a load
// is in flight or when the current page is already the last one.
func (l *Loader) LoadMore(ctx context.Context) {
	l.mu.Lock()
	if l.loading || l.group != taxonomy.AllGroups {
		l.mu.Unlock()
		return
	}
	filtered := taxonomy.FilterByGroup(l.entries, l.taxonomy, l.group)
	if l.page >= l.lastPage(len(filtered)) {
		l.mu.Unlock()
		return
	}
	l.page++
	l.mu.Unlock()

	l.LoadBatch(ctx)
}

// fetchBatch resolves images for a batch through the cache. Individual fetch
// failures are logged and skipped so the rest of the batch still renders.
func (l *Loader) fetchBatch(ctx context.Context, batch []taxonomy.SpeciesEntry) map[string]imageprovider.BirdImage {
	images := make(map[string]imageprovider.BirdImage, len(batch))
	for _, entry := range batch {
		img, err := l.images.Get(ctx, entry.CommonName)
		if err != nil {
			logger.Warn("image fetch failed, skipping species",
				"common_name", entry.CommonName, "error", err)
			continue
		}
		images[entry.CommonName] = img
	}
	return images
}
