package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGradeForThresholdBoundaries(t *testing.T) {
	cases := []struct {
		percentage float64
		expected   string
	}{
		{100, "A"},
		{90.0, "A"},
		{89.9, "B"},
		{80.0, "B"},
		{79.9, "C"},
		{70.0, "C"},
		{69.9, "D"},
		{60.0, "D"},
		{59.9, "F"},
		{0, "F"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.expected, GradeFor(tc.percentage), "percentage %.1f", tc.percentage)
	}
}

func TestGradeForIsMonotonic(t *testing.T) {
	rank := map[string]int{"F": 0, "D": 1, "C": 2, "B": 3, "A": 4}

	previous := rank[GradeFor(0)]
	for p := 0.0; p <= 100.0; p += 0.1 {
		current := rank[GradeFor(p)]
		require.GreaterOrEqual(t, current, previous, "grade regressed at %.1f", p)
		previous = current
	}
}

func TestBatchTerminal(t *testing.T) {
	require.False(t, EvaluationBatch{Status: BatchStatusPending}.Terminal())
	require.False(t, EvaluationBatch{Status: BatchStatusProcessing}.Terminal())
	require.True(t, EvaluationBatch{Status: BatchStatusCompleted}.Terminal())
	require.True(t, EvaluationBatch{Status: BatchStatusCompletedWithErrors}.Terminal())
}
