package suggest

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Config tunes fuzzy matching. Threshold is the exclusive score cutoff
// (lower scores are better matches); Distance caps how much a substring
// match's position inside the candidate can worsen its score.
type Config struct {
	Threshold float64
	Distance  int
}

// DefaultConfig returns the fuzzy matching defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.4,
		Distance:  100,
	}
}

// score rates how well partial matches candidate on a 0 (perfect) to 1
// (unrelated) scale. Both inputs are expected lowercased. Substring hits
// score far below the threshold, weighted slightly by how deep into the
// candidate the match starts; otherwise the score is the edit distance of
// the closest candidate token (or the whole candidate) normalized by the
// longer operand.
func score(partial, candidate string, cfg Config) float64 {
	if partial == candidate {
		return 0
	}

	if idx := strings.Index(candidate, partial); idx >= 0 {
		depth := idx
		if depth > cfg.Distance {
			depth = cfg.Distance
		}
		return 0.05 + 0.15*float64(depth)/float64(cfg.Distance)
	}

	best := normalizedDistance(partial, candidate)
	for _, token := range strings.Fields(candidate) {
		if d := normalizedDistance(partial, token); d < best {
			best = d
		}
	}
	return best
}

func normalizedDistance(a, b string) float64 {
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longer)
}
