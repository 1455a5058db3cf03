// Package suggest produces ranked name completions for partial input: fuzzy
// matches against the locally loaded species set first, falling back to
// remote full-taxonomy resolvers when local matching comes up empty.
package suggest

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

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

	logger, _, err = logging.NewFileLogger(filepath.Join("logs", "suggest.log"), "suggest", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize suggest file logger", "error", err)
		logger = logging.NewDiscardLogger("suggest", serviceLevelVar)
	}
}

const (
	// minPartialLen is the minimum input length for any matching at all.
	minPartialLen = 2

	// remoteFallbackMinLen is the minimum input length for the remote
	// fallback when local matching finds nothing.
	remoteFallbackMinLen = 3

	// expansionMinLen is the minimum input length for the same-family
	// expansion of local matches.
	expansionMinLen = 5

	// expansionCap bounds how many family siblings are appended.
	expansionCap = 4
)

// Result is an ordered suggestion list: either local names or extended
// candidates from the remote taxonomy, never both.
type Result struct {
	Local    []string                `json:"local,omitempty"`
	Extended []taxonomy.SpeciesEntry `json:"extended,omitempty"`
}

// Empty reports whether the result carries no suggestions.
func (r Result) Empty() bool {
	return len(r.Local) == 0 && len(r.Extended) == 0
}

// Engine resolves partial input against a local species set with remote
// fallback. The generation counter implements keystroke debouncing: each
// Suggest call obtains a new generation, and only the result whose
// generation is still current may be applied.
type Engine struct {
	cfg   Config
	chain []Resolver
	gen   atomic.Uint64
}

// NewEngine creates an engine with the given fuzzy config and remote
// fallback chain, tried in order.
func NewEngine(cfg Config, chain ...Resolver) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Distance <= 0 {
		cfg.Distance = DefaultConfig().Distance
	}
	return &Engine{cfg: cfg, chain: chain}
}

// Suggest resolves partial input against localNames (lowercased common name
// to species code) and the session taxonomy. It returns the suggestions and
// the generation token under which they were computed; the caller must
// discard the result if Current reports the token stale.
func (e *Engine) Suggest(ctx context.Context, partial string, localNames map[string]string, speciesTaxonomy map[string]string) (Result, uint64) {
	gen := e.gen.Add(1)

	runes := []rune(partial)
	if len(runes) < minPartialLen {
		return Result{}, gen
	}

	partialLower := strings.ToLower(partial)
	matches := e.localMatches(partialLower, localNames)

	if len(matches) == 0 {
		if len(runes) >= remoteFallbackMinLen {
			return Result{Extended: e.resolveRemote(ctx, partial)}, gen
		}
		return Result{}, gen
	}

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}

	if len(runes) >= expansionMinLen {
		names = e.expandFamily(names, localNames, speciesTaxonomy)
	}

	return Result{Local: names}, gen
}

// Extended resolves a query against the remote fallback chain directly,
// bypassing local matching. Used when the caller explicitly wants
// full-taxonomy candidates.
func (e *Engine) Extended(ctx context.Context, query string) []taxonomy.SpeciesEntry {
	return e.resolveRemote(ctx, query)
}

// Current reports whether the generation token still belongs to the latest
// Suggest call. Stale results must be dropped, not merely delayed.
func (e *Engine) Current(gen uint64) bool {
	return e.gen.Load() == gen
}

type localMatch struct {
	name  string
	score float64
}

// localMatches scores every local name and keeps those strictly below the
// threshold, best first. Equal scores order alphabetically so results are
// deterministic regardless of map iteration order.
func (e *Engine) localMatches(partialLower string, localNames map[string]string) []localMatch {
	matches := make([]localMatch, 0, 8)
	for name := range localNames {
		if s := score(partialLower, name, e.cfg); s < e.cfg.Threshold {
			matches = append(matches, localMatch{name: name, score: s})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].name < matches[j].name
	})

	return matches
}

// expandFamily appends up to expansionCap additional local names sharing the
// best match's family group: a cheap "did you mean a relative" hint. One
// slot is surrendered when the fuzzy list already offers an alternative.
func (e *Engine) expandFamily(names []string, localNames, speciesTaxonomy map[string]string) []string {
	bestFamily := speciesTaxonomy[localNames[names[0]]]
	if bestFamily == "" {
		return names
	}

	capacity := expansionCap
	if len(names) > 1 {
		capacity--
	}

	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}

	siblings := make([]string, 0, capacity)
	for name, code := range localNames {
		if _, ok := present[name]; ok {
			continue
		}
		if speciesTaxonomy[code] == bestFamily {
			siblings = append(siblings, name)
		}
	}
	sort.Strings(siblings)

	if len(siblings) > capacity {
		siblings = siblings[:capacity]
	}

	return append(names, siblings...)
}

// resolveRemote walks the fallback chain in order and returns the first
// non-empty result. Resolver errors are logged and treated as "no result";
// the chain never fails hard.
func (e *Engine) resolveRemote(ctx context.Context, query string) []taxonomy.SpeciesEntry {
	for _, resolver := range e.chain {
		entries, err := resolver.Resolve(ctx, query)
		if err != nil {
			logger.Warn("remote resolver failed, trying next",
				"resolver", resolver.Name(), "query", query, "error", err)
			continue
		}
		if len(entries) > 0 {
			logger.Debug("remote resolver produced candidates",
				"resolver", resolver.Name(), "query", query, "count", len(entries))
			return entries
		}
	}
	return nil
}
