package allocation

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumTolerance = 1e-9

func scored(pairs ...interface{}) []domain.ScoredSymbol {
	out := make([]domain.ScoredSymbol, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.ScoredSymbol{Symbol: pairs[i].(string), Score: pairs[i+1].(int)})
	}
	return out
}

func TestCompute_WorkedExample(t *testing.T) {
	result, err := Compute(scored("A", 5, "B", 5, "C", 6), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TargetAllocation{
		{Symbol: "A", Percentage: 24.975},
		{Symbol: "B", Percentage: 24.975},
		{Symbol: "C", Percentage: 49.95},
	}, result)
	assert.InDelta(t, TotalPercentage, result.Sum(), sumTolerance)
}

func TestCompute_AdjacentScoresDouble(t *testing.T) {
	for score := 1; score <= 6; score++ {
		t.Run(fmt.Sprintf("score %d", score), func(t *testing.T) {
			result, err := Compute(scored("LOW", score, "HIGH", score+1), nil)
			require.NoError(t, err)

			m := result.Map()
			assert.Equal(t, 2*m["LOW"], m["HIGH"])
		})
	}
}

func TestCompute_EqualWithinTier(t *testing.T) {
	result, err := Compute(scored("A", 5, "B", 6, "C", 5, "D", 7, "E", 6, "F", 5), nil)
	require.NoError(t, err)

	m := result.Map()
	assert.Equal(t, m["A"], m["C"])
	assert.Equal(t, m["A"], m["F"])
	assert.Equal(t, m["B"], m["E"])
	assert.LessOrEqual(t, result.Sum(), TotalPercentage+sumTolerance)
}

func TestCompute_OrderedByScoreThenInput(t *testing.T) {
	result, err := Compute(scored("Z", 7, "Y", 5, "X", 6, "W", 5), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "W", "X", "Z"}, result.Symbols())
}

func TestCompute_NoValidRatings(t *testing.T) {
	tests := []struct {
		name    string
		symbols []domain.ScoredSymbol
		weights map[int]float64
	}{
		{"empty input", nil, nil},
		{"all-zero overrides", scored("A", 5, "B", 6), map[int]float64{5: 0, 6: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compute(tt.symbols, tt.weights)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, domain.ErrNoValidRatings))
		})
	}
}

func TestCompute_InvalidWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[int]float64
	}{
		{"negative weight", map[int]float64{5: -1, 6: 3}},
		{"NaN weight", map[int]float64{5: math.NaN(), 6: 1}},
		{"infinite weight", map[int]float64{5: 1, 6: math.Inf(1)}},
		{"unused score still checked", map[int]float64{5: 1, 6: 1, 9: -0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compute(scored("A", 5, "B", 6), tt.weights)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, domain.ErrInvalidWeight))
			assert.False(t, errors.Is(err, domain.ErrNoValidRatings))
		})
	}
}

func TestCompute_WeightOverride(t *testing.T) {
	// Score 7 is missing from the override and weighs 1.0
	result, err := Compute(scored("A", 5, "B", 6, "C", 7), map[int]float64{5: 1, 6: 3})
	require.NoError(t, err)

	m := result.Map()
	assert.Equal(t, 19.98, m["A"])
	assert.Equal(t, 59.94, m["B"])
	assert.Equal(t, 19.98, m["C"])
}

func TestCompute_DriftCorrection(t *testing.T) {
	// 99.9 / 16 = 6.24375 rounds up to 6.2438, overshooting by 0.0008
	symbols := make([]domain.ScoredSymbol, 0, 16)
	for i := 0; i < 16; i++ {
		symbols = append(symbols, domain.ScoredSymbol{Symbol: fmt.Sprintf("S%02d", i), Score: 5})
	}

	result, err := Compute(symbols, nil)
	require.NoError(t, err)
	require.Len(t, result, 16)

	assert.Equal(t, 6.243, result[0].Percentage, "first of the tied smallest absorbs the excess")
	for _, w := range result[1:] {
		assert.Equal(t, 6.2438, w.Percentage)
	}
	assert.InDelta(t, TotalPercentage, result.Sum(), sumTolerance)
}

func TestCompute_DriftNeverNegative(t *testing.T) {
	// The zero-weight symbol is the smallest allocation and cannot absorb anything
	symbols := scored("ZERO", 4)
	for i := 0; i < 16; i++ {
		symbols = append(symbols, domain.ScoredSymbol{Symbol: fmt.Sprintf("S%02d", i), Score: 5})
	}

	result, err := Compute(symbols, map[int]float64{4: 0, 5: 1})
	require.NoError(t, err)

	for _, w := range result {
		assert.GreaterOrEqual(t, w.Percentage, 0.0)
	}
	assert.Equal(t, 0.0, result[0].Percentage)
	assert.Equal(t, 6.243, result[1].Percentage)
	assert.LessOrEqual(t, result.Sum(), TotalPercentage+sumTolerance)
}

func TestCompute_DuplicateSymbols(t *testing.T) {
	result, err := Compute(scored("A", 5, "B", 5, "A", 6), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, result.Symbols())
	assert.Equal(t, 33.3, result[0].Percentage)
	assert.Equal(t, 66.6, result[1].Percentage)
}

func TestCompute_SumBoundedAcrossShapes(t *testing.T) {
	for n := 1; n <= 40; n++ {
		symbols := make([]domain.ScoredSymbol, 0, n)
		for i := 0; i < n; i++ {
			symbols = append(symbols, domain.ScoredSymbol{Symbol: fmt.Sprintf("S%d", i), Score: 5 + i%3})
		}
		result, err := Compute(symbols, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.Sum(), TotalPercentage+sumTolerance, "n=%d", n)
		for _, w := range result {
			assert.GreaterOrEqual(t, w.Percentage, 0.0)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	input := scored("A", 7, "B", 5, "C", 6, "D", 5, "E", 7)
	first, err := Compute(input, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compute(input, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
