package inventory

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultSimilarityThreshold is the Jaro-Winkler score above which two
	// names are treated as the same product.
	DefaultSimilarityThreshold = 0.88

	// phoneticSimilarityThreshold applies instead when the names share a
	// Double Metaphone code, so "dahi" still finds "dahee".
	phoneticSimilarityThreshold = 0.80
)

// Match is an item whose name resembles a queried name.
type Match struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// Matcher finds stored items with names similar to a new one. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher accepting scores at or above threshold. A
// non-positive threshold selects [DefaultSimilarityThreshold].
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Matcher{threshold: threshold}
}

// FindSimilar returns the items whose names resemble name, best match first.
// Names are compared case-insensitively, both whole and with spaces removed
// so that "corn flakes" matches "cornflakes".
func (m *Matcher) FindSimilar(items []Item, name string) []Match {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil
	}
	queryTokens := strings.Fields(query)
	queryCodes := codesForTokens(queryTokens)

	var out []Match
	for _, it := range items {
		candidate := strings.ToLower(strings.TrimSpace(it.Name))
		if candidate == "" {
			continue
		}
		tokens := strings.Fields(candidate)
		score := similarity(queryTokens, tokens, query, candidate)

		threshold := m.threshold
		if codesOverlap(queryCodes, codesForTokens(tokens)) {
			threshold = min(threshold, phoneticSimilarityThreshold)
		}
		if score >= threshold {
			out = append(out, Match{Item: it, Score: score})
		}
	}
	slices.SortStableFunc(out, func(a, b Match) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the better of the full-string and space-stripped
// Jaro-Winkler scores.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
