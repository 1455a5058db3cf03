// Package session holds the state of one browsing session: the loaded species
// set, its taxonomy, the map center, and the pending suggestion selection.
// State is explicit and mutex-guarded, never package-global.
package session

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/logging"
	"github.com/tphakala/birdsearch-go/internal/suggest"
	"github.com/tphakala/birdsearch-go/internal/taxonomy"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger(filepath.Join("logs", "session.log"), "session", serviceLevelVar)
	if err != nil {
		logging.Error("Failed to initialize session file logger", "error", err)
		logger = logging.NewDiscardLogger("session", serviceLevelVar)
	}
}

// Session is the state of one search-and-browse session.
type Session struct {
	mu sync.Mutex

	entries       []taxonomy.SpeciesEntry
	taxonomyMap   map[string]string
	orderedGroups []string
	center        geo.Pair
	label         string

	suggestions   suggest.Result
	suggestionGen uint64
	selected      *taxonomy.SpeciesEntry
}

// New creates an empty session.
func New() *Session {
	return &Session{}
}

// SetSpecies installs a freshly loaded species set. Any pending suggestion
// state belongs to the previous set and is dropped.
func (s *Session) SetSpecies(entries []taxonomy.SpeciesEntry, taxonomyMap map[string]string, orderedGroups []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = entries
	s.taxonomyMap = taxonomyMap
	s.orderedGroups = orderedGroups
	s.suggestions = suggest.Result{}
	s.suggestionGen = 0
	s.selected = nil

	logger.Debug("species set installed", "species", len(entries), "groups", len(orderedGroups))
}

// MergeTaxonomy folds newly resolved family assignments into the session
// taxonomy without discarding codes resolved earlier.
func (s *Session) MergeTaxonomy(families map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.taxonomyMap == nil {
		s.taxonomyMap = make(map[string]string, len(families))
	}
	for code, family := range families {
		s.taxonomyMap[code] = family
	}
}

// Species returns the loaded species set and its taxonomy.
func (s *Session) Species() ([]taxonomy.SpeciesEntry, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries, s.taxonomyMap
}

// SetOrderedGroups installs the canonical group ordering without touching the
// rest of the session state.
func (s *Session) SetOrderedGroups(orderedGroups []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderedGroups = orderedGroups
}

// OrderedGroups returns the canonical group ordering of the loaded set.
func (s *Session) OrderedGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedGroups
}

// SetCenter records the map center and its display label.
func (s *Session) SetCenter(center geo.Pair, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.center = center
	s.label = label
}

// Center returns the map center and its display label.
func (s *Session) Center() (geo.Pair, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.label
}

// ApplySuggestions installs a suggestion result if its generation is still
// current, and reports whether it was applied. Stale results are discarded
// whole; a stale result never partially overwrites a newer one.
func (s *Session) ApplySuggestions(result suggest.Result, gen uint64, engine *suggest.Engine) bool {
	if !engine.Current(gen) {
		logger.Debug("discarding stale suggestion result", "generation", gen)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.suggestionGen {
		return false
	}
	s.suggestions = result
	s.suggestionGen = gen
	return true
}

// Suggestions returns the current suggestion lists.
func (s *Session) Suggestions() suggest.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestions
}

// Select records a chosen suggestion. The choice and the list clearing are one
// atomic step so no observer sees a selection alongside live suggestion lists.
func (s *Session) Select(entry taxonomy.SpeciesEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = &entry
	s.suggestions = suggest.Result{}

	logger.Debug("suggestion selected", "common_name", entry.CommonName, "species_code", entry.SpeciesCode)
}

// Selected returns the chosen species. Submission is gated on ok: no selection
// means nothing to submit.
func (s *Session) Selected() (taxonomy.SpeciesEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return taxonomy.SpeciesEntry{}, false
	}
	return *s.selected, true
}

// ClearSelection drops the pending selection, e.g. when the input changes
// after a pick.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Comparison is the species overlap between two locations.
type Comparison struct {
	Common     []taxonomy.SpeciesEntry `json:"common"`
	OnlyFirst  []taxonomy.SpeciesEntry `json:"onlyFirst"`
	OnlySecond []taxonomy.SpeciesEntry `json:"onlySecond"`
}

// Compare splits two species lists into shared and location-unique species.
// Matching is by case-insensitive common name; each output list preserves
// input order and is deduplicated.
func Compare(first, second []taxonomy.SpeciesEntry) Comparison {
	firstKeys := keySet(first)
	secondKeys := keySet(second)

	var c Comparison
	seen := make(map[string]struct{})
	for _, e := range first {
		key := strings.ToLower(e.CommonName)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := secondKeys[key]; ok {
			c.Common = append(c.Common, e)
		} else {
			c.OnlyFirst = append(c.OnlyFirst, e)
		}
	}

	seen = make(map[string]struct{})
	for _, e := range second {
		key := strings.ToLower(e.CommonName)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := firstKeys[key]; !ok {
			c.OnlySecond = append(c.OnlySecond, e)
		}
	}

	return c
}

func keySet(entries []taxonomy.SpeciesEntry) map[string]struct{} {
	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keys[strings.ToLower(e.CommonName)] = struct{}{}
	}
	return keys
}
