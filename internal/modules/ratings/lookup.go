// Package ratings normalizes the ratings feed and applies the watchlist filter.
package ratings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
)

// Lookup indexes one ratings snapshot by symbol, preserving feed order
type Lookup struct {
	order   []string
	entries map[string]domain.RatingEntry
}

// NewLookup builds a lookup from raw entries.
// Symbols are upper-cased and trimmed; blank symbols are dropped.
// A repeated symbol keeps its first position and its last values.
func NewLookup(entries []domain.RatingEntry) *Lookup {
	l := &Lookup{
		order:   make([]string, 0, len(entries)),
		entries: make(map[string]domain.RatingEntry, len(entries)),
	}
	for _, e := range entries {
		e.Symbol = normalizeSymbol(e.Symbol)
		if e.Symbol == "" {
			continue
		}
		if _, seen := l.entries[e.Symbol]; !seen {
			l.order = append(l.order, e.Symbol)
		}
		l.entries[e.Symbol] = e
	}
	return l
}

// Get returns the entry for a symbol
func (l *Lookup) Get(symbol string) (domain.RatingEntry, bool) {
	e, ok := l.entries[normalizeSymbol(symbol)]
	return e, ok
}

// Len returns the number of distinct symbols
func (l *Lookup) Len() int {
	return len(l.order)
}

// Entries returns all entries in feed order
func (l *Lookup) Entries() []domain.RatingEntry {
	out := make([]domain.RatingEntry, 0, len(l.order))
	for _, sym := range l.order {
		out = append(out, l.entries[sym])
	}
	return out
}

// suggestionsResponse mirrors the suggestions API envelope: data.data.data[]
type suggestionsResponse struct {
	Data struct {
		Data struct {
			Data []suggestion `json:"data"`
		} `json:"data"`
	} `json:"data"`
}

type suggestion struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	RatingName string `json:"ratingName"`
	PgrRating  *int   `json:"pgrRating"`
}

// ParseSuggestions decodes a raw suggestions payload into rating entries.
// Records without a numeric rating get score 0 and are dropped by any filter.
func ParseSuggestions(payload []byte) ([]domain.RatingEntry, error) {
	var resp suggestionsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}

	entries := make([]domain.RatingEntry, 0, len(resp.Data.Data.Data))
	for _, s := range resp.Data.Data.Data {
		score := 0
		if s.PgrRating != nil {
			score = *s.PgrRating
		}
		entries = append(entries, domain.RatingEntry{
			Symbol:      s.Symbol,
			Name:        s.Name,
			RatingLabel: s.RatingName,
			RatingScore: score,
		})
	}
	return entries, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
