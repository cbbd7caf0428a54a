// file: internal/services/types.go
package services

import (
	"time"

	"moodledger/internal/models"
)

// ===============================
// MOOD TYPES
// ===============================

// LogMoodRequest records the mood for Date (today when empty)
type LogMoodRequest struct {
	Date      string   `json:"date,omitempty"`
	MoodValue int      `json:"moodValue"`
	Note      string   `json:"note,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// LogMoodResponse is returned after a mood write. Warnings lists storage
// failures that were absorbed locally; the write still stands for the session.
type LogMoodResponse struct {
	Entry         models.MoodEntry     `json:"entry"`
	QueueItemID   int64                `json:"queueItemId,omitempty"`
	Changes       []models.BadgeChange `json:"changes"`
	CurrentStreak int                  `json:"currentStreak"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// StreakInfo holds the current and longest streaks
type StreakInfo struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// ===============================
// COMMUNITY TYPES
// ===============================

// CreatePostRequest creates a post, optionally inside a circle
type CreatePostRequest struct {
	CircleID string `json:"circleId,omitempty" validate:"omitempty,max=64"`
	Content  string `json:"content" validate:"required,max=5000"`
}

// CreateCommentRequest comments on a remote post
type CreateCommentRequest struct {
	PostID  string `json:"postId" validate:"required,max=64"`
	Content string `json:"content" validate:"required,max=2000"`
}

// JoinCircleRequest joins a support circle
type JoinCircleRequest struct {
	CircleID string `json:"circleId" validate:"required,max=64"`
}

// CommunityResponse is returned after a post or comment is created locally
type CommunityResponse struct {
	LocalID     string               `json:"localId"`
	QueueItemID int64                `json:"queueItemId,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	Changes     []models.BadgeChange `json:"changes"`
	Warnings    []string             `json:"warnings,omitempty"`
}

// ===============================
// PROGRESSION TYPES
// ===============================

// AwardPointsRequest grants points outside of badge unlocks
type AwardPointsRequest struct {
	Points int    `json:"points" validate:"gt=0"`
	Reason string `json:"reason" validate:"required,max=100"`
}

// ProgressView is everything a progress screen renders
type ProgressView struct {
	Progression models.UserProgression `json:"progression"`
	Level       models.LevelProgress   `json:"level"`
	Badges      []models.BadgeView     `json:"badges"`
	Streaks     StreakInfo             `json:"streaks"`
}

// ===============================
// SYNC TYPES
// ===============================

// SyncStatus describes the offline queue
type SyncStatus struct {
	Online      bool                `json:"online"`
	Pending     int                 `json:"pending"`
	Items       []models.QueueItem  `json:"items"`
	DeadLetters []models.DeadLetter `json:"deadLetters"`
}

// ===============================
// HEALTH TYPES
// ===============================

// ServiceHealth represents the health status of the service collection
type ServiceHealth struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Uptime    time.Duration            `json:"uptime"`
	Issues    []string                 `json:"issues,omitempty"`
}

// ServiceStatus represents the status of an individual component
type ServiceStatus struct {
	Name         string        `json:"name"`
	Status       string        `json:"status"` // healthy, unhealthy
	LastCheck    time.Time     `json:"last_check"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
}
