package progression

import "moodledger/internal/models"

// Tiers covers 0..∞ in ascending, gap-free order
var Tiers = []models.LevelTier{
	{Name: "beginner", Min: 0, Max: 50},
	{Name: "regular", Min: 51, Max: 150},
	{Name: "champion", Min: 151, Max: 500},
	{Name: "legend", Min: 501, Max: -1},
}

func tierIndex(points int) int {
	for i, t := range Tiers {
		if t.Contains(points) {
			return i
		}
	}
	// below the first tier
	return 0
}

// ComputeLevel returns the name of the tier containing points
func ComputeLevel(points int) string {
	return Tiers[tierIndex(points)].Name
}

// CurrentTier returns the tier containing points
func CurrentTier(points int) models.LevelTier {
	return Tiers[tierIndex(points)]
}

// ProgressToNextLevel reports how far points are through the current tier.
// At the top tier it returns {100, 0, nil}.
func ProgressToNextLevel(points int) models.LevelProgress {
	i := tierIndex(points)
	if i == len(Tiers)-1 {
		return models.LevelProgress{ProgressPercent: 100}
	}

	current, next := Tiers[i], Tiers[i+1]
	if points < current.Min {
		points = current.Min
	}
	span := next.Min - current.Min
	return models.LevelProgress{
		ProgressPercent: (points - current.Min) * 100 / span,
		PointsNeeded:    next.Min - points,
		NextTier:        &next,
	}
}
