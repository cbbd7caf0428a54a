package events

import (
	"time"

	"moodledger/internal/models"
)

// Event types produced by the core
const (
	TypeBadgeUnlocked         = "badge.unlocked"
	TypeBadgeProgress         = "badge.progress"
	TypePointsAwarded         = "points.awarded"
	TypeLevelChanged          = "level.changed"
	TypeSyncFailedPermanently = "sync.failed_permanently"
	TypeConnectivityChanged   = "connectivity.changed"
)

// BadgeEvent carries one badge change record to the UI
type BadgeEvent struct {
	BaseEvent
	Change models.BadgeChange `json:"change"`
}

// NewBadgeEvent creates a badge.unlocked event for a newly unlocked badge and a
// badge.progress event otherwise
func NewBadgeEvent(change models.BadgeChange, at time.Time) *BadgeEvent {
	eventType := TypeBadgeProgress
	if change.NewlyUnlocked {
		eventType = TypeBadgeUnlocked
	}
	return &BadgeEvent{
		BaseEvent: newBase(eventType, at),
		Change:    change,
	}
}

// PointsAwardedEvent is emitted whenever points are added to the total
type PointsAwardedEvent struct {
	BaseEvent
	Points      int    `json:"points"`
	Reason      string `json:"reason"`
	TotalPoints int    `json:"total_points"`
}

// NewPointsAwardedEvent creates a points.awarded event
func NewPointsAwardedEvent(points int, reason string, total int, at time.Time) *PointsAwardedEvent {
	return &PointsAwardedEvent{
		BaseEvent:   newBase(TypePointsAwarded, at),
		Points:      points,
		Reason:      reason,
		TotalPoints: total,
	}
}

// LevelChangedEvent is emitted when the total crosses a tier boundary
type LevelChangedEvent struct {
	BaseEvent
	From string `json:"from"`
	To   string `json:"to"`
}

// NewLevelChangedEvent creates a level.changed event
func NewLevelChangedEvent(from, to string, at time.Time) *LevelChangedEvent {
	return &LevelChangedEvent{
		BaseEvent: newBase(TypeLevelChanged, at),
		From:      from,
		To:        to,
	}
}

// SyncFailedEvent makes a dropped queue item observable
type SyncFailedEvent struct {
	BaseEvent
	DeadLetter models.DeadLetter `json:"dead_letter"`
}

// NewSyncFailedEvent creates a sync.failed_permanently event
func NewSyncFailedEvent(dl models.DeadLetter) *SyncFailedEvent {
	return &SyncFailedEvent{
		BaseEvent:  newBase(TypeSyncFailedPermanently, dl.DroppedAt),
		DeadLetter: dl,
	}
}

// ConnectivityEvent reports an online/offline transition
type ConnectivityEvent struct {
	BaseEvent
	Online bool `json:"online"`
}

// NewConnectivityEvent creates a connectivity.changed event
func NewConnectivityEvent(online bool, at time.Time) *ConnectivityEvent {
	return &ConnectivityEvent{
		BaseEvent: newBase(TypeConnectivityChanged, at),
		Online:    online,
	}
}
