package models

import (
	"fmt"
	"time"
)

// ActionType tags the variant carried by an Action
type ActionType string

const (
	ActionMoodLog       ActionType = "mood_log"
	ActionPostCreate    ActionType = "post_create"
	ActionCommentCreate ActionType = "comment_create"
)

// MoodLogPayload mirrors a ledger write to the remote backend
type MoodLogPayload struct {
	UserID string    `json:"userId" validate:"required"`
	Entry  MoodEntry `json:"entry"`
}

// PostCreatePayload carries a post created while possibly offline
type PostCreatePayload struct {
	UserID    string    `json:"userId" validate:"required"`
	LocalID   string    `json:"localId" validate:"required"`
	CircleID  string    `json:"circleId,omitempty"`
	Content   string    `json:"content" validate:"required,max=5000"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentCreatePayload carries a comment created while possibly offline
type CommentCreatePayload struct {
	UserID    string    `json:"userId" validate:"required"`
	LocalID   string    `json:"localId" validate:"required"`
	PostID    string    `json:"postId" validate:"required"`
	Content   string    `json:"content" validate:"required,max=2000"`
	CreatedAt time.Time `json:"createdAt"`
}

// Action is a pending mutation. Exactly one payload, matching Type, is set.
type Action struct {
	Type          ActionType            `json:"type"`
	MoodLog       *MoodLogPayload       `json:"moodLog,omitempty"`
	PostCreate    *PostCreatePayload    `json:"postCreate,omitempty"`
	CommentCreate *CommentCreatePayload `json:"commentCreate,omitempty"`
}

// NewMoodLogAction wraps a mood entry for remote mirroring
func NewMoodLogAction(userID string, entry MoodEntry) Action {
	return Action{Type: ActionMoodLog, MoodLog: &MoodLogPayload{UserID: userID, Entry: entry}}
}

// NewPostCreateAction wraps a post for remote mirroring
func NewPostCreateAction(p PostCreatePayload) Action {
	return Action{Type: ActionPostCreate, PostCreate: &p}
}

// NewCommentCreateAction wraps a comment for remote mirroring
func NewCommentCreateAction(c CommentCreatePayload) Action {
	return Action{Type: ActionCommentCreate, CommentCreate: &c}
}

// Payload returns the variant's payload, or an error if the tag and payload disagree
func (a Action) Payload() (interface{}, error) {
	set := 0
	var payload interface{}
	if a.MoodLog != nil {
		set++
		payload = a.MoodLog
	}
	if a.PostCreate != nil {
		set++
		payload = a.PostCreate
	}
	if a.CommentCreate != nil {
		set++
		payload = a.CommentCreate
	}
	if set != 1 {
		return nil, fmt.Errorf("action %q must carry exactly one payload, got %d", a.Type, set)
	}

	switch a.Type {
	case ActionMoodLog:
		if a.MoodLog == nil {
			return nil, fmt.Errorf("action %q missing mood log payload", a.Type)
		}
	case ActionPostCreate:
		if a.PostCreate == nil {
			return nil, fmt.Errorf("action %q missing post payload", a.Type)
		}
	case ActionCommentCreate:
		if a.CommentCreate == nil {
			return nil, fmt.Errorf("action %q missing comment payload", a.Type)
		}
	default:
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
	return payload, nil
}

// QueueItem is one pending mutation awaiting remote application
type QueueItem struct {
	ID            int64     `json:"id"`
	Action        Action    `json:"action"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
	RetryCount    int       `json:"retryCount"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
}

// DeadLetter records an item dropped after exhausting its attempts
type DeadLetter struct {
	Item      QueueItem `json:"item"`
	DroppedAt time.Time `json:"droppedAt"`
	Reason    string    `json:"reason"`
}
