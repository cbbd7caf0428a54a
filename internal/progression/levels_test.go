package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLevelBoundaries(t *testing.T) {
	cases := map[int]string{
		0:      "beginner",
		50:     "beginner",
		51:     "regular",
		150:    "regular",
		151:    "champion",
		500:    "champion",
		501:    "legend",
		100000: "legend",
	}
	for points, want := range cases {
		assert.Equal(t, want, ComputeLevel(points), "points=%d", points)
	}
}

func TestTiersCoverAllPointsWithoutGaps(t *testing.T) {
	require.NotEmpty(t, Tiers)
	assert.Zero(t, Tiers[0].Min)
	for i := 1; i < len(Tiers); i++ {
		assert.Equal(t, Tiers[i-1].Max+1, Tiers[i].Min, "tier %s", Tiers[i].Name)
	}
	assert.Negative(t, Tiers[len(Tiers)-1].Max)
}

func TestProgressToNextLevel(t *testing.T) {
	p := ProgressToNextLevel(0)
	assert.Equal(t, 0, p.ProgressPercent)
	assert.Equal(t, 51, p.PointsNeeded)
	require.NotNil(t, p.NextTier)
	assert.Equal(t, "regular", p.NextTier.Name)

	p = ProgressToNextLevel(101)
	assert.Equal(t, 50, p.ProgressPercent)
	assert.Equal(t, 50, p.PointsNeeded)
	assert.Equal(t, "champion", p.NextTier.Name)

	p = ProgressToNextLevel(501)
	assert.Equal(t, 100, p.ProgressPercent)
	assert.Zero(t, p.PointsNeeded)
	assert.Nil(t, p.NextTier)
}

func TestCatalogueIsStatic(t *testing.T) {
	c := Catalogue()
	c[0].PointValue = 9999
	assert.Equal(t, 10, Catalogue()[0].PointValue)

	seen := map[string]bool{}
	for _, d := range Definitions() {
		assert.False(t, seen[d.ID], "duplicate badge %s", d.ID)
		seen[d.ID] = true
		assert.Positive(t, d.Requirement)
		assert.Positive(t, d.PointValue)
	}
	assert.Len(t, seen, 9)
}
