package syncqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/events"
	"moodledger/internal/models"
	"moodledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const queueKey = "test_sync_queue"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func moodAction(date string) models.Action {
	return models.NewMoodLogAction("user-1", models.MoodEntry{Date: date, MoodValue: 4})
}

func postAction(localID string) models.Action {
	return models.NewPostCreateAction(models.PostCreatePayload{
		UserID: "user-1", LocalID: localID, CircleID: "circle-a", Content: "hello",
	})
}

func TestAlwaysFailingActionIsAttemptedThreeTimesThenDropped(t *testing.T) {
	ctx := context.Background()
	bus := events.NewEventBus(nil, zap.NewNop())
	var dropped []events.Event
	require.NoError(t, bus.Subscribe(events.TypeSyncFailedPermanently, events.EventHandlerFunc{ID: "dlq", Func: func(ctx context.Context, e events.Event) error {
		dropped = append(dropped, e)
		return nil
	}}))

	var attempts int32
	q := New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), bus, zap.NewNop(),
		WithOnline(true),
		WithHandler(models.ActionMoodLog, func(ctx context.Context, a models.Action) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("mirror unavailable")
		}))

	before := q.Len()
	_, err := q.Enqueue(ctx, moodAction("2025-01-01"))
	require.NoError(t, err)
	q.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "enqueue drains opportunistically")

	q.Drain(ctx)
	res := q.Drain(ctx)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, before, q.Len())

	for i := 0; i < 3; i++ {
		res = q.Drain(ctx)
		assert.Zero(t, res.Attempted)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "no attempts after the drop")

	dls := q.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, 3, dls[0].Item.RetryCount)
	assert.Contains(t, dls[0].Item.LastError, "mirror unavailable")
	assert.Contains(t, dls[0].Reason, "dropped after 3 attempts")
	require.Len(t, dropped, 1)
}

func TestSuccessfulDrainRemovesItemsInOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()

	var order []string
	record := func(ctx context.Context, a models.Action) error {
		switch a.Type {
		case models.ActionMoodLog:
			order = append(order, a.MoodLog.Entry.Date)
		case models.ActionPostCreate:
			order = append(order, a.PostCreate.LocalID)
		}
		return nil
	}
	q := New(store, queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionMoodLog, record),
		WithHandler(models.ActionPostCreate, record))

	for _, a := range []models.Action{moodAction("2025-01-01"), postAction("p1"), moodAction("2025-01-02")} {
		_, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, q.Len())

	res := q.Drain(ctx)
	assert.True(t, res.Offline, "offline queues do not drain")
	assert.Empty(t, order)

	q.HandleConnectivity(true)
	q.Wait()

	assert.Equal(t, []string{"2025-01-01", "p1", "2025-01-02"}, order)
	assert.Zero(t, q.Len())

	raw, err := store.Get(ctx, queueKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestEnqueueRejectsInvalidActions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	q := New(store, queueKey, DefaultConfig(), nil, zap.NewNop())

	cases := map[string]models.Action{
		"no payload":       {Type: models.ActionMoodLog},
		"mismatched":       {Type: models.ActionPostCreate, MoodLog: &models.MoodLogPayload{UserID: "u"}},
		"unknown type":     {Type: "delete_everything"},
		"missing user":     models.NewMoodLogAction("", models.MoodEntry{Date: "2025-01-01", MoodValue: 3}),
		"bad mood":         models.NewMoodLogAction("u", models.MoodEntry{Date: "2025-01-01", MoodValue: 9}),
		"empty post":       models.NewPostCreateAction(models.PostCreatePayload{UserID: "u", LocalID: "l"}),
		"comment no post":  models.NewCommentCreateAction(models.CommentCreatePayload{UserID: "u", LocalID: "l", Content: "x"}),
		"two payloads set": {Type: models.ActionMoodLog, MoodLog: &models.MoodLogPayload{}, PostCreate: &models.PostCreatePayload{}},
	}
	for name, action := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := q.Enqueue(ctx, action)
			assert.True(t, apperrors.IsValidationError(err), "got %v", err)
		})
	}

	assert.Zero(t, q.Len())
	raw, err := store.Get(ctx, queueKey)
	require.NoError(t, err)
	assert.Nil(t, raw, "rejected actions never reach storage")
}

func TestMissingHandlerCountsAsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	q := New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop())
	_, err := q.Enqueue(ctx, postAction("p1"))
	require.NoError(t, err)

	q.HandleConnectivity(true)
	q.Wait()

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Contains(t, items[0].LastError, "no handler registered")
}

func TestHandlerPanicIsAFailedAttempt(t *testing.T) {
	ctx := context.Background()
	q := New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionPostCreate, func(ctx context.Context, a models.Action) error {
			panic("boom")
		}))
	_, err := q.Enqueue(ctx, postAction("p1"))
	require.NoError(t, err)

	q.HandleConnectivity(true)
	q.Wait()
	items := q.Items()
	require.Len(t, items, 1)
	assert.Contains(t, items[0].LastError, "handler panicked")
}

func TestConcurrentDrainsNeverDoubleProcess(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	calls := make(map[int64]int)
	var mu sync.Mutex

	var q *Queue
	q = New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionPostCreate, func(ctx context.Context, a models.Action) error {
			started <- struct{}{}
			<-release
			mu.Lock()
			defer mu.Unlock()
			for _, it := range q.Items() {
				if it.Action.PostCreate.LocalID == a.PostCreate.LocalID {
					calls[it.ID]++
				}
			}
			return nil
		}))

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := q.Enqueue(ctx, postAction(id))
		require.NoError(t, err)
	}
	q.HandleConnectivity(true)
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Drain(ctx)
		}()
	}
	close(release)
	wg.Wait()
	q.Wait()

	assert.Zero(t, q.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls, 3)
	for id, n := range calls {
		assert.Equal(t, 1, n, "item %d", id)
	}
}

func TestGoingOfflineMidDrainStops(t *testing.T) {
	ctx := context.Background()
	var q *Queue
	var handled []string
	q = New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionPostCreate, func(ctx context.Context, a models.Action) error {
			handled = append(handled, a.PostCreate.LocalID)
			q.HandleConnectivity(false)
			return nil
		}))

	for _, id := range []string{"p1", "p2"} {
		_, err := q.Enqueue(ctx, postAction(id))
		require.NoError(t, err)
	}
	q.HandleConnectivity(true)
	q.Wait()

	assert.Equal(t, []string{"p1"}, handled)
	require.Equal(t, 1, q.Len())
	assert.Zero(t, q.Items()[0].RetryCount, "untouched items are not charged an attempt")
}

func TestItemsEnqueuedDuringDrainAreProcessed(t *testing.T) {
	ctx := context.Background()
	var q *Queue
	var handled []string
	var mu sync.Mutex
	q = New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionPostCreate, func(ctx context.Context, a models.Action) error {
			mu.Lock()
			handled = append(handled, a.PostCreate.LocalID)
			mu.Unlock()
			if a.PostCreate.LocalID == "p1" {
				_, err := q.Enqueue(ctx, postAction("p2"))
				return err
			}
			return nil
		}))

	_, err := q.Enqueue(ctx, postAction("p1"))
	require.NoError(t, err)
	q.HandleConnectivity(true)
	q.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p1", "p2"}, handled)
	assert.Zero(t, q.Len())
}

func TestBackoffDefersRetries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Minute

	var attempts int32
	q := New(storage.NewMemoryAdapter(), queueKey, cfg, nil, zap.NewNop(),
		WithClock(clock.Now),
		WithOnline(true),
		WithHandler(models.ActionMoodLog, func(ctx context.Context, a models.Action) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("503")
		}))

	_, err := q.Enqueue(ctx, moodAction("2025-01-01"))
	require.NoError(t, err)
	q.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Equal(t, clock.Now().Add(time.Minute), q.Items()[0].NextAttemptAt)

	res := q.Drain(ctx)
	assert.Equal(t, 1, res.Deferred)
	assert.Zero(t, res.Attempted)

	clock.Advance(time.Minute)
	q.Drain(ctx)
	require.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, clock.Now().Add(2*time.Minute), q.Items()[0].NextAttemptAt)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, q.Drain(ctx).Deferred)

	clock.Advance(time.Minute)
	res = q.Drain(ctx)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Zero(t, q.Len())
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := Config{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	q := New(storage.NewMemoryAdapter(), queueKey, cfg, nil, zap.NewNop())

	assert.Equal(t, time.Second, q.retryDelay(1))
	assert.Equal(t, 2*time.Second, q.retryDelay(2))
	assert.Equal(t, 4*time.Second, q.retryDelay(3))
	assert.Equal(t, 5*time.Second, q.retryDelay(4))
	assert.Equal(t, 5*time.Second, q.retryDelay(9))

	assert.Zero(t, New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, nil).retryDelay(2))
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()

	first := New(store, queueKey, DefaultConfig(), nil, zap.NewNop())
	for _, id := range []string{"p1", "p2"} {
		_, err := first.Enqueue(ctx, postAction(id))
		require.NoError(t, err)
	}

	second := New(store, queueKey, DefaultConfig(), nil, zap.NewNop())
	assert.Equal(t, 2, second.Load(ctx))

	item, err := second.Enqueue(ctx, moodAction("2025-01-03"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.ID, "ID sequence resumes after the highest persisted ID")

	items := second.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "p1", items[0].Action.PostCreate.LocalID)
	assert.Equal(t, "2025-01-03", items[2].Action.MoodLog.Entry.Date)
}

func TestCorruptOrUnreadableQueue(t *testing.T) {
	ctx := context.Background()

	corrupt := storage.NewMemoryAdapter()
	corrupt.Raw(queueKey, []byte(`{"not": "a list"}`))
	assert.Zero(t, New(corrupt, queueKey, DefaultConfig(), nil, zap.NewNop()).Load(ctx))

	malformed := storage.NewMemoryAdapter()
	malformed.Raw(queueKey, []byte(`[{"id": 4, "action": {"type": "mood_log"}}, {"id": 7, "action": {"type": "post_create", "postCreate": {"userId": "u", "localId": "l", "content": "x"}}}]`))
	q := New(malformed, queueKey, DefaultConfig(), nil, zap.NewNop())
	assert.Equal(t, 1, q.Load(ctx), "items without a matching payload are discarded")

	failing := storage.NewMemoryAdapter()
	require.NoError(t, failing.Set(ctx, queueKey, []models.QueueItem{{ID: 5, Action: postAction("stored")}}))
	failing.FailGets(queueKey, errors.New("unavailable"))
	q = New(failing, queueKey, DefaultConfig(), nil, zap.NewNop())
	assert.Zero(t, q.Load(ctx))

	queued, err := q.Enqueue(ctx, postAction("session"))
	assert.True(t, apperrors.IsStorageError(err), "the unreadable record is not overwritten")

	failing.FailGets(queueKey, nil)
	assert.Equal(t, 2, q.Load(ctx))
	items := q.Items()
	assert.Equal(t, int64(5), items[0].ID)
	assert.Equal(t, queued.ID, items[1].ID, "the ID handed out while unreadable still names the item")
	assert.Equal(t, "session", items[1].Action.PostCreate.LocalID)

	next, err := q.Enqueue(ctx, postAction("after"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), next.ID)
}

func TestUnreadableQueueRenumbersOnlyCollidingItems(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	require.NoError(t, store.Set(ctx, queueKey, []models.QueueItem{
		{ID: 1, Action: postAction("stored-1")},
		{ID: 3, Action: postAction("stored-3")},
	}))
	store.FailGets(queueKey, errors.New("unavailable"))

	q := New(store, queueKey, DefaultConfig(), nil, zap.NewNop())
	var ids []int64
	for _, id := range []string{"s1", "s2"} {
		item, err := q.Enqueue(ctx, postAction(id))
		assert.True(t, apperrors.IsStorageError(err))
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []int64{1, 2}, ids)

	store.FailGets(queueKey, nil)
	require.Equal(t, 4, q.Load(ctx))

	got := map[string]int64{}
	for _, item := range q.Items() {
		got[item.Action.PostCreate.LocalID] = item.ID
	}
	assert.Equal(t, map[string]int64{"stored-1": 1, "stored-3": 3, "s1": 4, "s2": 2}, got)
}

func TestNewerMoodLogSupersedesQueuedOne(t *testing.T) {
	ctx := context.Background()
	var mirrored []int
	q := New(storage.NewMemoryAdapter(), queueKey, DefaultConfig(), nil, zap.NewNop(),
		WithHandler(models.ActionMoodLog, func(ctx context.Context, a models.Action) error {
			mirrored = append(mirrored, a.MoodLog.Entry.MoodValue)
			return nil
		}),
		WithHandler(models.ActionPostCreate, func(ctx context.Context, a models.Action) error { return nil }))

	older := models.NewMoodLogAction("user-1", models.MoodEntry{Date: "2025-01-01", MoodValue: 2})
	newer := models.NewMoodLogAction("user-1", models.MoodEntry{Date: "2025-01-01", MoodValue: 5})
	other := models.NewMoodLogAction("user-1", models.MoodEntry{Date: "2025-01-02", MoodValue: 3})
	for _, a := range []models.Action{older, postAction("p1"), other, newer} {
		_, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
	}
	require.Equal(t, 3, q.Len())

	q.HandleConnectivity(true)
	q.Wait()
	assert.Equal(t, []int{3, 5}, mirrored)
	assert.Zero(t, q.Len())
}
