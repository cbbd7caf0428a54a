package models

import "time"

// BadgeCategory groups badges by the domain events that drive them
type BadgeCategory string

const (
	CategoryMood      BadgeCategory = "mood"
	CategoryStreak    BadgeCategory = "streak"
	CategoryCommunity BadgeCategory = "community"
)

// Rarity is a display hint for a badge
type Rarity string

const (
	RarityCommon   Rarity = "common"
	RarityUncommon Rarity = "uncommon"
	RarityRare     Rarity = "rare"
	RarityEpic     Rarity = "epic"
)

// BadgeDefinition is a static catalogue entry. Never mutated at runtime.
type BadgeDefinition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    BadgeCategory `json:"category"`
	PointValue  int           `json:"pointValue"`
	Requirement int           `json:"requirement"`
	Rarity      Rarity        `json:"rarity"`
}

// BadgeProgress is the runtime state of one badge
type BadgeProgress struct {
	ID         string     `json:"id"`
	Unlocked   bool       `json:"unlocked"`
	Progress   int        `json:"progress"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// CommunityStats are the counters community badges are derived from
type CommunityStats struct {
	PostsCreated    int      `json:"postsCreated"`
	CommentsCreated int      `json:"commentsCreated"`
	CirclesJoined   []string `json:"circlesJoined,omitempty"`
	CirclesPostedIn []string `json:"circlesPostedIn,omitempty"`
}

// UserProgression is the persisted gamification record
type UserProgression struct {
	Badges      []BadgeProgress `json:"badges"`
	TotalPoints int             `json:"totalPoints"`
	Level       string          `json:"level"`
	Stats       CommunityStats  `json:"stats"`
}

// BadgeChange is the record handed to the UI after an evaluation
type BadgeChange struct {
	Badge         BadgeDefinition `json:"badge"`
	Unlocked      bool            `json:"unlocked"`
	NewlyUnlocked bool            `json:"newlyUnlocked"`
	Progress      int             `json:"progress"`
	WasClose      bool            `json:"wasClose"`
}

// BadgeView joins a definition with its runtime progress
type BadgeView struct {
	Badge      BadgeDefinition `json:"badge"`
	Unlocked   bool            `json:"unlocked"`
	Progress   int             `json:"progress"`
	UnlockedAt *time.Time      `json:"unlockedAt,omitempty"`
}

// LevelTier is a named inclusive point range. Max < 0 means unbounded.
type LevelTier struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Contains reports whether points fall inside the tier
func (t LevelTier) Contains(points int) bool {
	return points >= t.Min && (t.Max < 0 || points <= t.Max)
}

// LevelProgress describes the distance to the next tier
type LevelProgress struct {
	ProgressPercent int        `json:"progressPercent"`
	PointsNeeded    int        `json:"pointsNeeded"`
	NextTier        *LevelTier `json:"nextTier"`
}
