package mirror

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"moodledger/internal/events"
	"moodledger/internal/models"
	"moodledger/internal/storage"
	"moodledger/internal/syncqueue"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	query string
	args  []interface{}
}

type fakeExecutor struct {
	calls   []call
	execErr error
	pingErr error
}

func (f *fakeExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, call{query: query, args: args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	return nil, nil
}

func (f *fakeExecutor) PingContext(ctx context.Context) error { return f.pingErr }

func TestUpsertMood(t *testing.T) {
	db := &fakeExecutor{}
	m := New(db, zap.NewNop())
	logged := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	err := m.UpsertMood(context.Background(), models.NewMoodLogAction("user-1", models.MoodEntry{
		Date: "2025-01-01", MoodValue: 4, Label: "Good", Emoji: "🙂", LoggedAt: logged,
	}))
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	c := db.calls[0]
	assert.Contains(t, c.query, "ON CONFLICT (user_id, entry_date) DO UPDATE")
	assert.Contains(t, c.query, "WHERE mood_entries.logged_at <= EXCLUDED.logged_at", "an older retry never overwrites a newer entry")
	assert.Equal(t, "user-1", c.args[0])
	assert.Equal(t, "2025-01-01", c.args[1])
	assert.Equal(t, 4, c.args[2])
	assert.Equal(t, pq.Array([]string{}), c.args[6], "nil tags are stored as an empty array")
	assert.Equal(t, logged, c.args[7])
}

func TestCreatePostAndCommentAreIdempotentInserts(t *testing.T) {
	db := &fakeExecutor{}
	m := New(db, nil)
	ctx := context.Background()

	require.NoError(t, m.CreatePost(ctx, models.NewPostCreateAction(models.PostCreatePayload{
		UserID: "u", LocalID: "p1", CircleID: "c1", Content: "hi",
	})))
	require.NoError(t, m.CreateComment(ctx, models.NewCommentCreateAction(models.CommentCreatePayload{
		UserID: "u", LocalID: "c1", PostID: "p1", Content: "welcome",
	})))

	require.Len(t, db.calls, 2)
	for _, c := range db.calls {
		assert.True(t, strings.Contains(c.query, "DO NOTHING"))
	}
	assert.Equal(t, "p1", db.calls[0].args[1])
	assert.Equal(t, "p1", db.calls[1].args[2])
}

func TestHandlersRejectMismatchedActions(t *testing.T) {
	db := &fakeExecutor{}
	m := New(db, nil)
	post := models.NewPostCreateAction(models.PostCreatePayload{UserID: "u", LocalID: "p", Content: "x"})

	assert.Error(t, m.UpsertMood(context.Background(), post))
	assert.Error(t, m.CreateComment(context.Background(), post))
	assert.Empty(t, db.calls)
}

func TestExecErrorsAreReturned(t *testing.T) {
	db := &fakeExecutor{execErr: errors.New("connection refused")}
	err := New(db, nil).CreatePost(context.Background(), models.NewPostCreateAction(models.PostCreatePayload{
		UserID: "u", LocalID: "p", Content: "x",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, db.execErr)
}

func TestPing(t *testing.T) {
	db := &fakeExecutor{}
	m := New(db, nil)
	assert.NoError(t, m.Ping(context.Background()))
	db.pingErr = errors.New("down")
	assert.Error(t, m.Ping(context.Background()))
}

func TestHandlersDriveTheSyncQueue(t *testing.T) {
	ctx := context.Background()
	db := &fakeExecutor{}
	m := New(db, nil)

	opts := []syncqueue.Option{syncqueue.WithOnline(true)}
	for actionType, h := range m.Handlers() {
		opts = append(opts, syncqueue.WithHandler(actionType, h))
	}
	q := syncqueue.New(storage.NewMemoryAdapter(), "q", syncqueue.DefaultConfig(), events.NewNoopBus(), nil, opts...)

	_, err := q.Enqueue(ctx, models.NewMoodLogAction("u", models.MoodEntry{Date: "2025-01-01", MoodValue: 3}))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.NewCommentCreateAction(models.CommentCreatePayload{
		UserID: "u", LocalID: "c", PostID: "p", Content: "x",
	}))
	require.NoError(t, err)
	q.Wait()
	q.Drain(ctx)

	assert.Zero(t, q.Len())
	assert.Len(t, db.calls, 2)
}
