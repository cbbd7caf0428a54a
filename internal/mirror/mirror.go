// Package mirror applies queued actions to the remote Postgres backend.
package mirror

import (
	"context"
	"database/sql"
	"fmt"

	"moodledger/internal/models"
	"moodledger/internal/syncqueue"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Executor is the slice of database.Manager the mirror needs
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
}

const upsertMoodQuery = `
	INSERT INTO mood_entries (user_id, entry_date, mood_value, label, emoji, note, tags, logged_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (user_id, entry_date) DO UPDATE SET
		mood_value = EXCLUDED.mood_value,
		label = EXCLUDED.label,
		emoji = EXCLUDED.emoji,
		note = EXCLUDED.note,
		tags = EXCLUDED.tags,
		logged_at = EXCLUDED.logged_at,
		updated_at = NOW()
	WHERE mood_entries.logged_at <= EXCLUDED.logged_at`

const createPostQuery = `
	INSERT INTO posts (user_id, local_id, circle_id, content, created_at)
	VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	ON CONFLICT (user_id, local_id) DO NOTHING`

const createCommentQuery = `
	INSERT INTO comments (user_id, local_id, post_id, content, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, local_id) DO NOTHING`

// Mirror writes actions to Postgres. Every write is idempotent so a replay
// after a lost acknowledgement is harmless.
type Mirror struct {
	db     Executor
	logger *zap.Logger
}

// New creates a mirror over db
func New(db Executor, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{db: db, logger: logger.With(zap.String("component", "mirror"))}
}

// Handlers maps every action type to its remote write
func (m *Mirror) Handlers() map[models.ActionType]syncqueue.Handler {
	return map[models.ActionType]syncqueue.Handler{
		models.ActionMoodLog:       m.UpsertMood,
		models.ActionPostCreate:    m.CreatePost,
		models.ActionCommentCreate: m.CreateComment,
	}
}

// Ping reports whether the backend is reachable; used as the connectivity probe
func (m *Mirror) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// UpsertMood writes the entry for user+date. A stored entry logged later than
// this one is left in place.
func (m *Mirror) UpsertMood(ctx context.Context, action models.Action) error {
	p := action.MoodLog
	if action.Type != models.ActionMoodLog || p == nil {
		return fmt.Errorf("mirror: expected %s action, got %s", models.ActionMoodLog, action.Type)
	}

	e := p.Entry
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	if _, err := m.db.ExecContext(ctx, upsertMoodQuery,
		p.UserID, e.Date, e.MoodValue, e.Label, e.Emoji, e.Note, pq.Array(tags), e.LoggedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert mood entry %s: %w", e.Date, err)
	}

	m.logger.Debug("Mood entry mirrored", zap.String("date", e.Date))
	return nil
}

// CreatePost inserts a post keyed by its local ID
func (m *Mirror) CreatePost(ctx context.Context, action models.Action) error {
	p := action.PostCreate
	if action.Type != models.ActionPostCreate || p == nil {
		return fmt.Errorf("mirror: expected %s action, got %s", models.ActionPostCreate, action.Type)
	}

	if _, err := m.db.ExecContext(ctx, createPostQuery,
		p.UserID, p.LocalID, p.CircleID, p.Content, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create post %s: %w", p.LocalID, err)
	}

	m.logger.Debug("Post mirrored", zap.String("local_id", p.LocalID))
	return nil
}

// CreateComment inserts a comment keyed by its local ID
func (m *Mirror) CreateComment(ctx context.Context, action models.Action) error {
	c := action.CommentCreate
	if action.Type != models.ActionCommentCreate || c == nil {
		return fmt.Errorf("mirror: expected %s action, got %s", models.ActionCommentCreate, action.Type)
	}

	if _, err := m.db.ExecContext(ctx, createCommentQuery,
		c.UserID, c.LocalID, c.PostID, c.Content, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create comment %s: %w", c.LocalID, err)
	}

	m.logger.Debug("Comment mirrored", zap.String("local_id", c.LocalID))
	return nil
}
