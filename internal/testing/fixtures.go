package testing

import "github.com/aristath/rebalancer/internal/domain"

// NewRatingFixtures returns a ratings snapshot covering the default filter's edges:
// the excluded index ticker, a below-threshold name and two score tiers.
func NewRatingFixtures() []domain.RatingEntry {
	return []domain.RatingEntry{
		{Symbol: "A", Name: "Alpha Corp", RatingLabel: "Bullish", RatingScore: 5},
		{Symbol: "B", Name: "Beta Inc", RatingLabel: "Bullish", RatingScore: 5},
		{Symbol: "C", Name: "Gamma Ltd", RatingLabel: "Very Bullish", RatingScore: 6},
		{Symbol: "U", Name: "Index", RatingLabel: "Very Bullish", RatingScore: 7},
		{Symbol: "D", Name: "Delta Co", RatingLabel: "Neutral", RatingScore: 3},
	}
}
