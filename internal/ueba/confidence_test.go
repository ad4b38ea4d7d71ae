package ueba

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfidenceScore_MatchesSpecExample(t *testing.T) {
	// S6: sample_count = 30, stddev ~= 0.3*mean -> confidence ~= 0.26.
	got := confidenceScore(30, coefficientOfVariation(0.84, 2.8))
	require.InDelta(t, 0.26, got, 0.01)
}

func TestConfidenceScore_ClampedToUnitInterval(t *testing.T) {
	require.Equal(t, 0.0, confidenceScore(0, 0))
	require.LessOrEqual(t, confidenceScore(1_000_000, 0), 1.0)
	require.GreaterOrEqual(t, confidenceScore(1, 100), 0.0)
}

func TestCoefficientOfVariation_FloorsMeanAtOne(t *testing.T) {
	require.InDelta(t, 0.5, coefficientOfVariation(0.5, 0.2), 1e-9)
}
