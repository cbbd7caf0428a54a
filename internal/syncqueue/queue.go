// Package syncqueue is the durable FIFO of actions waiting to reach the
// remote mirror. Items survive restarts, are retried with backoff and are
// dropped to a dead-letter list after MaxAttempts failures.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/events"
	"moodledger/internal/models"
	"moodledger/internal/storage"
	"moodledger/internal/validation"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"
)

// Handler applies one action to the remote mirror
type Handler func(ctx context.Context, action models.Action) error

// Config controls retry behaviour
type Config struct {
	MaxAttempts         int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultConfig retries on the next drain, up to three attempts
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 0,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2,
	}
}

// DrainResult summarizes one drain
type DrainResult struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Dropped   int  `json:"dropped"`
	Deferred  int  `json:"deferred"`
	Remaining int  `json:"remaining"`
	Offline   bool `json:"offline"`
}

// Queue is the single owner of the sync queue record
type Queue struct {
	mu       sync.Mutex
	store    storage.Adapter
	key      string
	config   Config
	bus      events.EventBus
	logger   *zap.Logger
	now      func() time.Time
	handlers map[models.ActionType]Handler

	items       []models.QueueItem
	nextID      int64
	loaded      bool
	deadLetters []models.DeadLetter

	// enqueued counts Enqueue calls; swept is its value when a drain last
	// found nothing left to dispatch
	enqueued uint64
	swept    uint64

	online   atomic.Bool
	inflight singleflight.Group
	wg       sync.WaitGroup
}

// Option configures a Queue
type Option func(*Queue)

// WithClock overrides the clock used for enqueue stamps and backoff
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithHandler registers the handler for an action type
func WithHandler(t models.ActionType, h Handler) Option {
	return func(q *Queue) { q.handlers[t] = h }
}

// WithOnline sets the initial connectivity state
func WithOnline(online bool) Option {
	return func(q *Queue) { q.online.Store(online) }
}

// New creates a queue persisted under key. It starts offline unless
// WithOnline says otherwise.
func New(store storage.Adapter, key string, config Config, bus events.EventBus, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewNoopBus()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.Multiplier < 1 {
		config.Multiplier = DefaultConfig().Multiplier
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultConfig().MaxBackoff
	}

	q := &Queue{
		store:    store,
		key:      key,
		config:   config,
		bus:      bus,
		logger:   logger.With(zap.String("component", "syncqueue")),
		now:      time.Now,
		handlers: make(map[models.ActionType]Handler),
		items:    []models.QueueItem{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterHandler sets or replaces the handler for an action type
func (q *Queue) RegisterHandler(t models.ActionType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

// Load restores the persisted queue and returns its length.
// Missing, unreadable or corrupt data yields an empty queue.
func (q *Queue) Load(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ensureLoaded(ctx)
	return len(q.items)
}

// Enqueue validates action, appends it and persists the queue. When online a
// drain starts in the background; Wait joins it. Sync failures never surface
// here. A persistence failure is returned but the item stays queued in memory.
func (q *Queue) Enqueue(ctx context.Context, action models.Action) (models.QueueItem, error) {
	payload, err := action.Payload()
	if err != nil {
		return models.QueueItem{}, apperrors.NewValidationError("invalid action", err)
	}
	if err := validation.ValidateStruct(payload); err != nil {
		return models.QueueItem{}, err
	}

	q.mu.Lock()
	q.ensureLoaded(ctx)
	superseded := q.supersede(action)
	q.enqueued++
	q.nextID++
	item := models.QueueItem{
		ID:         q.nextID,
		Action:     action,
		EnqueuedAt: q.now(),
	}
	q.items = append(q.items, item)
	err = q.persist(ctx)
	length := len(q.items)
	q.mu.Unlock()

	if superseded > 0 {
		q.logger.Debug("Superseded queued mood logs",
			zap.String("date", action.MoodLog.Entry.Date),
			zap.Int("removed", superseded))
	}

	q.logger.Debug("Action queued",
		zap.Int64("item_id", item.ID),
		zap.String("action", string(action.Type)),
		zap.Int("queue_length", length))

	if q.Online() {
		q.drainAsync(ctx)
	}
	return item, err
}

// supersede removes queued mood logs for the same user and date as action,
// which replaces them; callers hold mu
func (q *Queue) supersede(action models.Action) int {
	if action.Type != models.ActionMoodLog || action.MoodLog == nil {
		return 0
	}
	p := action.MoodLog
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(it models.QueueItem) bool {
		return it.Action.Type == models.ActionMoodLog && it.Action.MoodLog != nil &&
			it.Action.MoodLog.UserID == p.UserID && it.Action.MoodLog.Entry.Date == p.Entry.Date
	})
	return before - len(q.items)
}

// HandleConnectivity records a connectivity transition. Coming online is the
// automatic drain trigger.
func (q *Queue) HandleConnectivity(online bool) {
	was := q.online.Swap(online)
	if online && !was {
		q.logger.Info("Connectivity restored, draining sync queue")
	}
	if online {
		q.drainAsync(context.Background())
	}
}

// Online reports the last known connectivity state
func (q *Queue) Online() bool {
	return q.online.Load()
}

// Drain dispatches every due item once, in enqueue order. Concurrent callers
// share the in-flight drain instead of starting another.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	v, _, _ := q.inflight.Do("drain", func() (interface{}, error) {
		return q.drain(ctx), nil
	})
	return v.(DrainResult)
}

// Wait blocks until background drains started so far have finished
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Len returns the number of queued items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queue in enqueue order
func (q *Queue) Items() []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueueItem(nil), q.items...)
}

// DeadLetters returns the items dropped during this session
func (q *Queue) DeadLetters() []models.DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.DeadLetter(nil), q.deadLetters...)
}

// drainAsync drains in the background. A caller that joined a drain which
// had already made its final pass drains again, so an item enqueued in that
// window is not left behind.
func (q *Queue) drainAsync(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx := context.WithoutCancel(ctx)
		for {
			q.Drain(ctx)
			if !q.Online() || !q.unswept() {
				return
			}
		}
	}()
}

func (q *Queue) unswept() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.swept != q.enqueued
}

func (q *Queue) drain(ctx context.Context) DrainResult {
	var result DrainResult
	seen := make(map[int64]bool)

	q.mu.Lock()
	q.ensureLoaded(ctx)
	q.mu.Unlock()

	// Items enqueued during a pass are picked up by the next one
	for {
		batch, deferred := q.due(seen)
		result.Deferred = deferred
		if len(batch) == 0 {
			break
		}

		for _, item := range batch {
			if !q.Online() {
				result.Offline = true
				break
			}
			if ctx.Err() != nil {
				break
			}
			seen[item.ID] = true
			result.Attempted++
			q.settle(ctx, item, q.dispatch(ctx, item), &result)
		}
		if result.Offline || ctx.Err() != nil {
			break
		}
	}
	if !q.Online() {
		result.Offline = true
	}

	result.Remaining = q.Len()
	if result.Attempted > 0 {
		q.logger.Info("Sync queue drained",
			zap.Int("attempted", result.Attempted),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("dropped", result.Dropped),
			zap.Int("remaining", result.Remaining))
	}
	return result
}

// due snapshots the items ready for an attempt that this drain has not seen
func (q *Queue) due(seen map[int64]bool) ([]models.QueueItem, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var batch []models.QueueItem
	deferred := 0
	for _, item := range q.items {
		if seen[item.ID] {
			continue
		}
		if !item.NextAttemptAt.IsZero() && now.Before(item.NextAttemptAt) {
			deferred++
			continue
		}
		batch = append(batch, item)
	}
	if len(batch) == 0 {
		q.swept = q.enqueued
	}
	return batch, deferred
}

// dispatch runs the item's handler outside the queue lock
func (q *Queue) dispatch(ctx context.Context, item models.QueueItem) (err error) {
	q.mu.Lock()
	handler, ok := q.handlers[item.Action.Type]
	q.mu.Unlock()

	attempt := item.RetryCount + 1
	if !ok {
		return apperrors.NewSyncError(item.ID, string(item.Action.Type), attempt,
			fmt.Errorf("no handler registered for action type %q", item.Action.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewSyncError(item.ID, string(item.Action.Type), attempt, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	if err := handler(ctx, item.Action); err != nil {
		return apperrors.NewSyncError(item.ID, string(item.Action.Type), attempt, err)
	}
	return nil
}

// settle applies the outcome of one attempt and persists the queue
func (q *Queue) settle(ctx context.Context, item models.QueueItem, syncErr error, result *DrainResult) {
	q.mu.Lock()

	i := slices.IndexFunc(q.items, func(it models.QueueItem) bool { return it.ID == item.ID })
	if i < 0 {
		q.mu.Unlock()
		q.logger.Warn("Settled item is no longer queued", zap.Int64("item_id", item.ID))
		return
	}

	var dropped *models.DeadLetter
	if syncErr == nil {
		q.items = slices.Delete(q.items, i, i+1)
		result.Succeeded++
	} else {
		current := &q.items[i]
		current.RetryCount++
		current.LastError = syncErr.Error()
		result.Failed++

		if current.RetryCount >= q.config.MaxAttempts {
			exhausted := apperrors.NewQueueExhaustedError(current.ID, string(current.Action.Type), current.RetryCount, syncErr)
			dropped = &models.DeadLetter{Item: *current, DroppedAt: q.now(), Reason: exhausted.Error()}
			q.deadLetters = append(q.deadLetters, *dropped)
			q.items = slices.Delete(q.items, i, i+1)
			result.Dropped++
		} else {
			current.NextAttemptAt = q.now().Add(q.retryDelay(current.RetryCount))
			q.logger.Debug("Sync attempt failed, will retry",
				zap.Int64("item_id", current.ID),
				zap.Int("retry_count", current.RetryCount),
				zap.Time("next_attempt_at", current.NextAttemptAt),
				zap.Error(syncErr))
		}
	}

	// persist failures are logged by persist; the in-memory queue stays authoritative
	_ = q.persist(ctx)
	q.mu.Unlock()

	if dropped != nil {
		q.logger.Warn("Sync permanently failed, action dropped",
			zap.Int64("item_id", dropped.Item.ID),
			zap.String("action", string(dropped.Item.Action.Type)),
			zap.Int("attempts", dropped.Item.RetryCount),
			zap.String("last_error", dropped.Item.LastError))
		if err := q.bus.Publish(ctx, events.NewSyncFailedEvent(*dropped)); err != nil {
			q.logger.Warn("Event handler failed",
				zap.String("event_type", events.TypeSyncFailedPermanently),
				zap.Error(err))
		}
	}
}

// retryDelay is the wait before the attempt following the given failure count
func (q *Queue) retryDelay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(q.config.InitialBackoff),
		backoff.WithMultiplier(q.config.Multiplier),
		backoff.WithMaxInterval(q.config.MaxBackoff),
		backoff.WithRandomizationFactor(q.config.RandomizationFactor),
		backoff.WithMaxElapsedTime(0),
	)
	var d time.Duration
	for i := 0; i < failures; i++ {
		d = b.NextBackOff()
	}
	return d
}

// ensureLoaded reads the record until a read succeeds; callers hold mu.
// Items queued while the record was unreadable are appended after the stored
// ones. They keep their IDs unless a stored item already uses one, in which
// case they are renumbered past the highest ID in use.
func (q *Queue) ensureLoaded(ctx context.Context) {
	if q.loaded {
		return
	}

	var stored []models.QueueItem
	found, err := storage.Load(ctx, q.store, q.key, &stored, q.logger)
	if err != nil {
		return
	}

	maxID := q.nextID
	used := make(map[int64]bool, len(stored))
	items := make([]models.QueueItem, 0, len(stored)+len(q.items))
	if found {
		for _, item := range stored {
			if _, err := item.Action.Payload(); err != nil {
				q.logger.Warn("Discarding malformed queue item",
					zap.Int64("item_id", item.ID),
					zap.Error(err))
				continue
			}
			items = append(items, item)
			used[item.ID] = true
			if item.ID > maxID {
				maxID = item.ID
			}
		}
	}
	for _, item := range q.items {
		if used[item.ID] {
			maxID++
			q.logger.Warn("Renumbering queue item that collides with a stored one",
				zap.Int64("item_id", item.ID),
				zap.Int64("new_item_id", maxID))
			item.ID = maxID
		}
		used[item.ID] = true
		items = append(items, item)
	}

	q.items = items
	q.nextID = maxID
	q.loaded = true

	if len(items) > 0 {
		q.logger.Info("Sync queue restored", zap.Int("items", len(items)))
	}
}

// persist writes the whole queue back; callers hold mu
func (q *Queue) persist(ctx context.Context) error {
	if !q.loaded {
		err := apperrors.NewStorageError("set", q.key, errors.New("record unreadable, queue kept in memory"))
		q.logger.Warn("Deferring sync queue persist until the record can be read",
			zap.String("key", q.key),
			zap.Error(err))
		return err
	}
	if err := q.store.Set(ctx, q.key, q.items); err != nil {
		q.logger.Error("Failed to persist sync queue, keeping in-memory state",
			zap.String("key", q.key),
			zap.Int("items", len(q.items)),
			zap.Error(err))
		return err
	}
	return nil
}
