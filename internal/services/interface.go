// file: internal/services/interface.go
package services

import (
	"context"

	"moodledger/internal/models"
	"moodledger/internal/syncqueue"
)

// ===============================
// CORE SERVICE INTERFACES
// ===============================

// TrackerService orchestrates every local mutation: it writes the owning
// record, queues the remote mirror action and feeds the progression engine.
type TrackerService interface {
	// Mood ledger
	LogMood(ctx context.Context, req *LogMoodRequest) (*LogMoodResponse, error)
	DeleteMood(ctx context.Context, date string) (bool, error)
	GetMood(ctx context.Context, date string) (models.MoodEntry, bool, error)
	History(ctx context.Context, rangeName string) ([]models.MoodEntry, error)
	Summary(ctx context.Context, rangeName string) (*models.MoodSummary, error)
	Streaks(ctx context.Context) *StreakInfo

	// Community actions
	CreatePost(ctx context.Context, req *CreatePostRequest) (*CommunityResponse, error)
	CreateComment(ctx context.Context, req *CreateCommentRequest) (*CommunityResponse, error)
	JoinCircle(ctx context.Context, req *JoinCircleRequest) ([]models.BadgeChange, error)

	// Progression
	AwardPoints(ctx context.Context, req *AwardPointsRequest) (*models.UserProgression, error)
	Progress(ctx context.Context) *ProgressView

	// Sync
	SyncStatus(ctx context.Context) *SyncStatus
	SyncNow(ctx context.Context) syncqueue.DrainResult
}

// HealthChecker interface for component health checks
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	ServiceName() string
}
