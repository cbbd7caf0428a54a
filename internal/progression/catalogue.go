package progression

import "moodledger/internal/models"

// Metric names the value a badge's progress is derived from
type Metric string

const (
	MetricMoodCount       Metric = "mood_count"
	MetricCurrentStreak   Metric = "current_streak"
	MetricPositiveDays    Metric = "positive_days"
	MetricPostsCreated    Metric = "posts_created"
	MetricCommentsCreated Metric = "comments_created"
	MetricCirclesPostedIn Metric = "circles_posted_in"
	MetricCirclesJoined   Metric = "circles_joined"
)

// moodDriven reports whether the metric is re-derived from the mood ledger
func (m Metric) moodDriven() bool {
	switch m {
	case MetricMoodCount, MetricCurrentStreak, MetricPositiveDays:
		return true
	}
	return false
}

// Badge binds a static definition to the metric that drives it
type Badge struct {
	models.BadgeDefinition
	Metric Metric
}

var defaultCatalogue = []Badge{
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "first-steps", Name: "First Steps", Description: "Log your first mood",
			Category: models.CategoryMood, PointValue: 10, Requirement: 1, Rarity: models.RarityCommon,
		},
		Metric: MetricMoodCount,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "week-warrior", Name: "Week Warrior", Description: "Log your mood 7 days in a row",
			Category: models.CategoryStreak, PointValue: 25, Requirement: 7, Rarity: models.RarityUncommon,
		},
		Metric: MetricCurrentStreak,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "month-master", Name: "Month Master", Description: "Log your mood 30 days in a row",
			Category: models.CategoryStreak, PointValue: 100, Requirement: 30, Rarity: models.RarityRare,
		},
		Metric: MetricCurrentStreak,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "century-club", Name: "Century Club", Description: "Log 100 moods",
			Category: models.CategoryMood, PointValue: 150, Requirement: 100, Rarity: models.RarityEpic,
		},
		Metric: MetricMoodCount,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "positive-vibes", Name: "Positive Vibes", Description: "Log a good or great mood on 7 days",
			Category: models.CategoryMood, PointValue: 15, Requirement: 7, Rarity: models.RarityUncommon,
		},
		Metric: MetricPositiveDays,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "conversation-starter", Name: "Conversation Starter", Description: "Create your first post",
			Category: models.CategoryCommunity, PointValue: 10, Requirement: 1, Rarity: models.RarityCommon,
		},
		Metric: MetricPostsCreated,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "voice-heard", Name: "Voice Heard", Description: "Leave 10 comments",
			Category: models.CategoryCommunity, PointValue: 20, Requirement: 10, Rarity: models.RarityUncommon,
		},
		Metric: MetricCommentsCreated,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "circle-builder", Name: "Circle Builder", Description: "Post in 3 different circles",
			Category: models.CategoryCommunity, PointValue: 30, Requirement: 3, Rarity: models.RarityRare,
		},
		Metric: MetricCirclesPostedIn,
	},
	{
		BadgeDefinition: models.BadgeDefinition{
			ID: "circle-joiner", Name: "Circle Joiner", Description: "Join your first support circle",
			Category: models.CategoryCommunity, PointValue: 5, Requirement: 1, Rarity: models.RarityCommon,
		},
		Metric: MetricCirclesJoined,
	},
}

// Catalogue returns a copy of the built-in badge catalogue
func Catalogue() []Badge {
	return append([]Badge(nil), defaultCatalogue...)
}

// Definitions returns the static definitions of the built-in catalogue
func Definitions() []models.BadgeDefinition {
	defs := make([]models.BadgeDefinition, 0, len(defaultCatalogue))
	for _, b := range defaultCatalogue {
		defs = append(defs, b.BadgeDefinition)
	}
	return defs
}
