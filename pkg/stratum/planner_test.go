package stratum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(p *Planner) []Stratum {
	var out []Stratum
	for !p.Done() {
		out = append(out, p.Current())
		p.Advance()
	}
	return out
}

func TestUnitWidthStrata(t *testing.T) {
	got := collect(NewPlanner(1, 3, 1))
	want := []Stratum{{1, 1}, {2, 2}, {3, 3}}
	assert.Equal(t, want, got)
}

func TestLastStratumClipped(t *testing.T) {
	got := collect(NewPlanner(1, 10, 4))
	want := []Stratum{{1, 4}, {5, 8}, {9, 10}}
	assert.Equal(t, want, got)
}

func TestSingleStratumCoversWholeRange(t *testing.T) {
	got := collect(NewPlanner(5, 20, 100))
	want := []Stratum{{5, 20}}
	assert.Equal(t, want, got)
}

func TestExactMultipleLeavesNoRemainder(t *testing.T) {
	got := collect(NewPlanner(1, 12, 4))
	want := []Stratum{{1, 4}, {5, 8}, {9, 12}}
	assert.Equal(t, want, got)
}

func TestContiguityAndCoverage(t *testing.T) {
	cases := []struct {
		minSize, maxSize, width int
	}{
		{1, 1, 1},
		{1, 100, 1},
		{1, 100, 7},
		{50, 393216, 1000},
		{3, 17, 5},
	}

	for _, tc := range cases {
		strata := collect(NewPlanner(tc.minSize, tc.maxSize, tc.width))
		require.NotEmpty(t, strata)

		assert.Equal(t, tc.minSize, strata[0].First)
		assert.Equal(t, tc.maxSize, strata[len(strata)-1].Last)

		for i, s := range strata {
			assert.LessOrEqual(t, s.First, s.Last)
			if i > 0 {
				assert.Equal(t, strata[i-1].Last+1, s.First, "strata must be contiguous")
			}
		}
	}
}

func TestAdvanceFastForwardMatchesFreshPlanner(t *testing.T) {
	// Replaying N completed strata must land the planner exactly where
	// an uninterrupted run would be after N strata.
	fresh := NewPlanner(1, 100, 7)
	resumed := NewPlanner(1, 100, 7)

	for i := 0; i < 5; i++ {
		fresh.Advance()
		resumed.Advance()
	}

	require.False(t, fresh.Done())
	assert.Equal(t, fresh.Current(), resumed.Current())
}

func TestStratumString(t *testing.T) {
	assert.Equal(t, "[5, 8]", Stratum{5, 8}.String())
}
