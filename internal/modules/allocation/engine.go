// Package allocation turns discrete rating scores into target percentages.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

const (
	// TotalPercentage is the ceiling for the sum of all target percentages
	TotalPercentage = 99.9

	// PercentageDecimals is the precision of every target percentage
	PercentageDecimals = 4
)

var totalPercentage = decimal.NewFromFloat(TotalPercentage)

// ratingGroup is the set of symbols sharing one score
type ratingGroup struct {
	score   int
	weight  float64
	symbols []string
}

// Compute assigns every scored symbol a target percentage.
//
// Each score level weighs 2^(score - lowest score) per symbol unless weights
// is non-empty, in which case weights[score] is used and missing scores weigh
// 1.0. The weighted total is scaled to TotalPercentage and every symbol in a
// group receives the same rounded share.
//
// If rounding pushes the sum above TotalPercentage, the excess is taken from
// the symbol with the smallest allocation (first in output order on ties).
// No allocation is driven below zero.
//
// The result is ordered by ascending score, then input order within a score.
// A symbol listed twice keeps its first position and its last score.
// A negative or non-finite override fails with domain.ErrInvalidWeight.
func Compute(symbols []domain.ScoredSymbol, weights map[int]float64) (domain.TargetAllocation, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	groups := groupByScore(symbols)
	if len(groups) == 0 {
		return nil, domain.ErrNoValidRatings
	}

	minScore := groups[0].score
	tierWeights := make([]float64, len(groups))
	for i, g := range groups {
		g.weight = scoreWeight(g.score, minScore, weights)
		tierWeights[i] = g.weight * float64(len(g.symbols))
	}
	totalWeight := floats.Sum(tierWeights)
	if !(totalWeight > 0) || math.IsInf(totalWeight, 0) {
		return nil, domain.ErrNoValidRatings
	}

	scale := TotalPercentage / totalWeight
	result := make(domain.TargetAllocation, 0, len(symbols))
	for _, g := range groups {
		pct := roundPct(g.weight * scale)
		for _, sym := range g.symbols {
			result = append(result, domain.TargetWeight{Symbol: sym, Percentage: pct})
		}
	}

	correctDrift(result)
	return result, nil
}

// ValidateWeights rejects negative, NaN and infinite score weights
func ValidateWeights(weights map[int]float64) error {
	for score, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: score %d has weight %v", domain.ErrInvalidWeight, score, w)
		}
	}
	return nil
}

func groupByScore(symbols []domain.ScoredSymbol) []*ratingGroup {
	order := make([]string, 0, len(symbols))
	scores := make(map[string]int, len(symbols))
	for _, s := range symbols {
		if _, seen := scores[s.Symbol]; !seen {
			order = append(order, s.Symbol)
		}
		scores[s.Symbol] = s.Score
	}

	byScore := make(map[int]*ratingGroup)
	for _, sym := range order {
		score := scores[sym]
		g, ok := byScore[score]
		if !ok {
			g = &ratingGroup{score: score}
			byScore[score] = g
		}
		g.symbols = append(g.symbols, sym)
	}

	groups := make([]*ratingGroup, 0, len(byScore))
	for _, g := range byScore {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].score < groups[j].score
	})
	return groups
}

func scoreWeight(score, minScore int, weights map[int]float64) float64 {
	if len(weights) > 0 {
		if w, ok := weights[score]; ok {
			return w
		}
		return 1.0
	}
	return math.Pow(2, float64(score-minScore))
}

// correctDrift trims rounding excess from the smallest allocation.
// An allocation never goes below zero; any remainder moves on to the next
// smallest.
func correctDrift(result domain.TargetAllocation) {
	sum := decimal.Zero
	for _, w := range result {
		sum = sum.Add(decimal.NewFromFloat(w.Percentage))
	}
	if !sum.GreaterThan(totalPercentage) {
		return
	}
	excess := sum.Sub(totalPercentage)

	idx := make([]int, len(result))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return result[idx[a]].Percentage < result[idx[b]].Percentage
	})

	for _, i := range idx {
		if !excess.IsPositive() {
			return
		}
		current := decimal.NewFromFloat(result[i].Percentage)
		take := decimal.Min(current, excess)
		result[i].Percentage = current.Sub(take).Round(PercentageDecimals).InexactFloat64()
		excess = excess.Sub(take)
	}
}

func roundPct(v float64) float64 {
	return decimal.NewFromFloat(v).Round(PercentageDecimals).InexactFloat64()
}
