package ratings

import "github.com/aristath/rebalancer/internal/domain"

const (
	// DefaultMinScore is the lowest score admitted by default
	DefaultMinScore = 5
	// DefaultExcludedSymbol is the index ticker carried by the feed
	DefaultExcludedSymbol = "U"
)

// Filter is the watchlist policy applied before allocation
type Filter struct {
	Exclude  map[string]struct{}
	MinScore int
}

// NewFilter builds a filter from an exclusion list and a score threshold
func NewFilter(exclude []string, minScore int) Filter {
	set := make(map[string]struct{}, len(exclude))
	for _, sym := range exclude {
		set[normalizeSymbol(sym)] = struct{}{}
	}
	return Filter{Exclude: set, MinScore: minScore}
}

// DefaultFilter excludes "U" and admits scores of 5 and above
func DefaultFilter() Filter {
	return NewFilter([]string{DefaultExcludedSymbol}, DefaultMinScore)
}

// Allows reports whether an entry passes the filter
func (f Filter) Allows(e domain.RatingEntry) bool {
	if _, excluded := f.Exclude[normalizeSymbol(e.Symbol)]; excluded {
		return false
	}
	return e.RatingScore >= f.MinScore
}

// Apply returns the admitted symbols with their scores, in lookup order
func (f Filter) Apply(lookup *Lookup) []domain.ScoredSymbol {
	var out []domain.ScoredSymbol
	for _, e := range lookup.Entries() {
		if !f.Allows(e) {
			continue
		}
		out = append(out, domain.ScoredSymbol{Symbol: e.Symbol, Score: e.RatingScore})
	}
	return out
}
