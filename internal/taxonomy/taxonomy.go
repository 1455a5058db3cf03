// Package taxonomy orders and groups species lists against a canonical
// family-group ordering.
package taxonomy

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// AllGroups is the filter value that selects every family group.
const AllGroups = "All Groups"

// IndexUnmatched sorts groups with no token overlap after every known group.
const IndexUnmatched = math.MaxInt

// SpeciesEntry pairs a species common name with its stable eBird species code.
// The common name is the unique key within one loaded species set.
type SpeciesEntry struct {
	CommonName  string `json:"name"`
	SpeciesCode string `json:"code"`
}

// IndexOf classifies a family-group string into a position in the canonical
// ordering. An exact match wins immediately. Otherwise the group is tokenized
// on whitespace and every candidate is scanned; a candidate sharing any token
// (other than the connective "and") records its index, and the LAST
// overlapping candidate wins. Groups with no overlap return IndexUnmatched.
//
// Last-match-wins can produce non-transitive orderings when group names share
// common tokens. That quirk is inherited behavior and is kept on purpose.
func IndexOf(group string, ordered []string) int {
	for i, candidate := range ordered {
		if candidate == group {
			return i
		}
	}

	index := -1
	tokens := strings.Fields(group)
	for i, candidate := range ordered {
		candidateTokens := strings.Fields(candidate)
		for _, token := range tokens {
			if token == "and" {
				continue
			}
			if containsToken(candidateTokens, token) {
				index = i
				break
			}
		}
	}

	if index == -1 {
		return IndexUnmatched
	}
	return index
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

// OrderedGroups deduplicates a sequence of family-group names, preserving the
// order of first occurrence and dropping empty names. The input is the
// caller's canonical taxonomy ordering, not an alphabetical listing.
func OrderedGroups(groups []string) []string {
	seen := make(map[string]struct{}, len(groups))
	ordered := make([]string, 0, len(groups))
	for _, g := range groups {
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		ordered = append(ordered, g)
	}
	return ordered
}

// GroupsInCodeOrder maps species codes through the taxonomy and returns the
// deduplicated family groups in code order. This is the canonical
// OrderedGroupList for a loaded species set.
func GroupsInCodeOrder(codes []string, taxonomy map[string]string) []string {
	groups := make([]string, 0, len(codes))
	for _, code := range codes {
		groups = append(groups, taxonomy[code])
	}
	return OrderedGroups(groups)
}

// UniqueGroups returns the family groups present in a species set, sorted
// alphabetically with the AllGroups pseudo-group prepended. This feeds the
// group filter selector, not the sort order.
func UniqueGroups(entries []SpeciesEntry, taxonomy map[string]string) []string {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if g := taxonomy[e.SpeciesCode]; g != "" {
			seen[g] = struct{}{}
		}
	}

	groups := make([]string, 0, len(seen)+1)
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	return append([]string{AllGroups}, groups...)
}

// transformName reverses the word order of a common name for collation, so
// "American Robin" sorts as "Robin, American" and congeners cluster together.
func transformName(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, " ")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ", ")
}

// SortByTaxonomy orders species entries by (family group position,
// reversed-name collation key). Entries whose species code resolves to an
// empty or missing family group sort after every entry with a known group.
// The sort is stable; the returned slice is a new allocation.
func SortByTaxonomy(entries []SpeciesEntry, taxonomy map[string]string, ordered []string) []SpeciesEntry {
	sorted := make([]SpeciesEntry, len(entries))
	copy(sorted, entries)

	// collate.Collator is not safe for concurrent use, build one per sort
	collator := collate.New(language.English)

	sort.SliceStable(sorted, func(i, j int) bool {
		group1 := taxonomy[sorted[i].SpeciesCode]
		group2 := taxonomy[sorted[j].SpeciesCode]

		switch {
		case group1 == "" && group2 == "":
			return collator.CompareString(transformName(sorted[i].CommonName), transformName(sorted[j].CommonName)) < 0
		case group1 == "":
			return false
		case group2 == "":
			return true
		}

		index1 := IndexOf(group1, ordered)
		index2 := IndexOf(group2, ordered)
		if index1 != index2 {
			return index1 < index2
		}

		return collator.CompareString(transformName(sorted[i].CommonName), transformName(sorted[j].CommonName)) < 0
	})

	return sorted
}

// FilterByGroup returns the entries whose family group matches the filter.
// AllGroups passes everything through unchanged.
func FilterByGroup(entries []SpeciesEntry, taxonomy map[string]string, group string) []SpeciesEntry {
	if group == AllGroups {
		return entries
	}
	filtered := make([]SpeciesEntry, 0, len(entries))
	for _, e := range entries {
		if taxonomy[e.SpeciesCode] == group {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
