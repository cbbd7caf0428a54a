// Package progression derives badges, points and levels from domain events.
package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/events"
	"moodledger/internal/models"
	"moodledger/internal/storage"
	"moodledger/internal/streak"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// EventType names a domain event that can move badge progress
type EventType string

const (
	EventMoodLogged     EventType = "mood_logged"
	EventPostCreated    EventType = "post_created"
	EventCommentCreated EventType = "comment_created"
	EventCircleJoined   EventType = "circle_joined"
)

// Event is a message sent to the engine by the mutation that caused it
type Event struct {
	Type     EventType
	CircleID string
}

// MoodLogged is sent after a ledger write
func MoodLogged() Event { return Event{Type: EventMoodLogged} }

// PostCreated is sent after a post is created in circleID (may be empty)
func PostCreated(circleID string) Event {
	return Event{Type: EventPostCreated, CircleID: circleID}
}

// CommentCreated is sent after a comment is created
func CommentCreated() Event { return Event{Type: EventCommentCreated} }

// CircleJoined is sent after the user joins circleID
func CircleJoined(circleID string) Event {
	return Event{Type: EventCircleJoined, CircleID: circleID}
}

// MoodSource supplies the ledger contents mood badges are derived from
type MoodSource interface {
	Snapshot(ctx context.Context) map[string]models.MoodEntry
}

// Engine is the single owner of the progression record. HandleEvent and
// AddPoints both read-modify-write that record under mu.
type Engine struct {
	mu        sync.Mutex
	store     storage.Adapter
	key       string
	moods     MoodSource
	bus       events.EventBus
	logger    *zap.Logger
	now       func() time.Time
	catalogue []Badge

	state  models.UserProgression
	loaded bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the clock used for "today" and unlock stamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCatalogue replaces the built-in badge catalogue
func WithCatalogue(badges []Badge) Option {
	return func(e *Engine) { e.catalogue = append([]Badge(nil), badges...) }
}

// New creates an engine persisted under key
func New(store storage.Adapter, key string, moods MoodSource, bus events.EventBus, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewNoopBus()
	}
	e := &Engine{
		store:     store,
		key:       key,
		moods:     moods,
		bus:       bus,
		logger:    logger.With(zap.String("component", "progression")),
		now:       time.Now,
		catalogue: Catalogue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent re-derives the metrics touched by event and returns one change
// record per candidate badge. A persistence failure is returned alongside the
// changes; the in-memory state still reflects them.
func (e *Engine) HandleEvent(ctx context.Context, event Event) ([]models.BadgeChange, error) {
	if event.Type == EventCircleJoined && event.CircleID == "" {
		return nil, apperrors.NewDetailedValidationError("invalid event", []apperrors.FieldError{{
			Field: "circleId", Message: "is required", Code: "required",
		}})
	}

	e.mu.Lock()

	e.ensureLoaded(ctx)
	if !e.applyStats(event) {
		e.mu.Unlock()
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown event type %q", event.Type), nil)
	}

	var moods map[string]models.MoodEntry
	if event.Type == EventMoodLogged && e.moods != nil {
		moods = e.moods.Snapshot(ctx)
	}

	now := e.now()
	before := e.state.Level
	var changes []models.BadgeChange
	var out []events.Event

	for _, badge := range e.catalogue {
		if badge.Metric.moodDriven() != (event.Type == EventMoodLogged) {
			continue
		}
		change := e.evaluate(badge, e.metric(badge.Metric, moods, now), now)
		changes = append(changes, change)
		if change.NewlyUnlocked {
			out = append(out, events.NewBadgeEvent(change, now))
		}
	}

	if e.state.Level != before {
		out = append(out, events.NewLevelChangedEvent(before, e.state.Level, now))
	}
	err := e.persist(ctx)
	e.mu.Unlock()

	e.publish(ctx, out)
	return changes, err
}

// AddPoints adds n > 0 points outside of badge unlocks
func (e *Engine) AddPoints(ctx context.Context, n int, reason string) (models.UserProgression, error) {
	if n <= 0 {
		return models.UserProgression{}, apperrors.NewDetailedValidationError("invalid points", []apperrors.FieldError{{
			Field: "points", Value: n, Message: "must be greater than 0", Code: "gt",
		}})
	}

	e.mu.Lock()

	e.ensureLoaded(ctx)
	now := e.now()
	before := e.state.Level
	e.state.TotalPoints += n
	e.state.Level = ComputeLevel(e.state.TotalPoints)

	out := []events.Event{events.NewPointsAwardedEvent(n, reason, e.state.TotalPoints, now)}
	if e.state.Level != before {
		out = append(out, events.NewLevelChangedEvent(before, e.state.Level, now))
	}
	err := e.persist(ctx)
	snapshot := e.copyState()
	e.mu.Unlock()

	e.logger.Debug("Points awarded",
		zap.Int("points", n),
		zap.String("reason", reason),
		zap.Int("total_points", snapshot.TotalPoints))

	e.publish(ctx, out)
	return snapshot, err
}

// Progression returns a copy of the current record
func (e *Engine) Progression(ctx context.Context) models.UserProgression {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureLoaded(ctx)
	return e.copyState()
}

// Badges joins every catalogue entry with its progress, in catalogue order
func (e *Engine) Badges(ctx context.Context) []models.BadgeView {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureLoaded(ctx)
	views := make([]models.BadgeView, 0, len(e.catalogue))
	for _, badge := range e.catalogue {
		p := e.progress(badge.ID)
		views = append(views, models.BadgeView{
			Badge:      badge.BadgeDefinition,
			Unlocked:   p.Unlocked,
			Progress:   p.Progress,
			UnlockedAt: p.UnlockedAt,
		})
	}
	return views
}

// evaluate applies one metric reading to a badge; callers hold mu
func (e *Engine) evaluate(badge Badge, metric int, now time.Time) models.BadgeChange {
	p := e.progress(badge.ID)
	req := badge.Requirement

	if p.Unlocked {
		return models.BadgeChange{Badge: badge.BadgeDefinition, Unlocked: true, Progress: p.Progress}
	}

	previous := p.Progress
	p.Progress = metric
	if p.Progress > req {
		p.Progress = req
	}
	if p.Progress < 0 {
		p.Progress = 0
	}

	change := models.BadgeChange{Badge: badge.BadgeDefinition, Progress: p.Progress}
	if p.Progress >= req {
		at := now
		p.Unlocked = true
		p.UnlockedAt = &at
		e.state.TotalPoints += badge.PointValue
		e.state.Level = ComputeLevel(e.state.TotalPoints)

		change.Unlocked = true
		change.NewlyUnlocked = true
		e.logger.Info("Badge unlocked",
			zap.String("badge", badge.ID),
			zap.Int("points", badge.PointValue),
			zap.Int("total_points", e.state.TotalPoints))
		return change
	}

	change.WasClose = previous > 0 && previous == req-1
	return change
}

// metric reads the current value of m; callers hold mu
func (e *Engine) metric(m Metric, moods map[string]models.MoodEntry, now time.Time) int {
	stats := e.state.Stats
	switch m {
	case MetricMoodCount:
		return len(moods)
	case MetricCurrentStreak:
		return streak.Compute(moods, now)
	case MetricPositiveDays:
		n := 0
		for _, entry := range moods {
			if entry.IsPositive() {
				n++
			}
		}
		return n
	case MetricPostsCreated:
		return stats.PostsCreated
	case MetricCommentsCreated:
		return stats.CommentsCreated
	case MetricCirclesPostedIn:
		return len(stats.CirclesPostedIn)
	case MetricCirclesJoined:
		return len(stats.CirclesJoined)
	default:
		return 0
	}
}

// applyStats records a community event; callers hold mu
func (e *Engine) applyStats(event Event) bool {
	stats := &e.state.Stats
	switch event.Type {
	case EventMoodLogged:
	case EventPostCreated:
		stats.PostsCreated++
		if event.CircleID != "" && !slices.Contains(stats.CirclesPostedIn, event.CircleID) {
			stats.CirclesPostedIn = append(stats.CirclesPostedIn, event.CircleID)
		}
	case EventCommentCreated:
		stats.CommentsCreated++
	case EventCircleJoined:
		if !slices.Contains(stats.CirclesJoined, event.CircleID) {
			stats.CirclesJoined = append(stats.CirclesJoined, event.CircleID)
		}
	default:
		return false
	}
	return true
}

// progress returns the mutable progress entry for id; callers hold mu
func (e *Engine) progress(id string) *models.BadgeProgress {
	i := slices.IndexFunc(e.state.Badges, func(p models.BadgeProgress) bool { return p.ID == id })
	if i < 0 {
		e.state.Badges = append(e.state.Badges, models.BadgeProgress{ID: id})
		i = len(e.state.Badges) - 1
	}
	return &e.state.Badges[i]
}

// ensureLoaded reads the record until a read succeeds; callers hold mu.
// Progress made while the record was unreadable is merged over it.
func (e *Engine) ensureLoaded(ctx context.Context) {
	if e.loaded {
		return
	}

	var stored models.UserProgression
	found, err := storage.Load(ctx, e.store, e.key, &stored, e.logger)
	if err != nil {
		e.normalize()
		return
	}
	if found {
		e.state = merge(stored, e.state, e.catalogue)
	}
	e.normalize()
	e.loaded = true
}

// normalize gives every catalogue badge an entry, in catalogue order, and
// re-derives the level from the points total; callers hold mu
func (e *Engine) normalize() {
	badges := make([]models.BadgeProgress, 0, len(e.catalogue))
	for _, badge := range e.catalogue {
		p := *e.progress(badge.ID)
		if p.Progress > badge.Requirement {
			p.Progress = badge.Requirement
		}
		badges = append(badges, p)
	}
	e.state.Badges = badges
	if e.state.TotalPoints < 0 {
		e.state.TotalPoints = 0
	}
	e.state.Level = ComputeLevel(e.state.TotalPoints)
}

// merge folds session progress made before the first successful read into
// the stored record. Unlocks are never lost and points add up, except that a
// badge the stored record had already unlocked is not paid again.
func merge(stored, session models.UserProgression, catalogue []Badge) models.UserProgression {
	out := stored
	out.Badges = append([]models.BadgeProgress(nil), stored.Badges...)
	points := session.TotalPoints
	for _, sp := range session.Badges {
		i := slices.IndexFunc(out.Badges, func(p models.BadgeProgress) bool { return p.ID == sp.ID })
		switch {
		case i < 0:
			out.Badges = append(out.Badges, sp)
		case out.Badges[i].Unlocked:
			if sp.Unlocked {
				points -= pointValue(catalogue, sp.ID)
			}
		case sp.Unlocked || sp.Progress > out.Badges[i].Progress:
			out.Badges[i] = sp
		}
	}
	if points > 0 {
		out.TotalPoints += points
	}
	out.Stats.PostsCreated += session.Stats.PostsCreated
	out.Stats.CommentsCreated += session.Stats.CommentsCreated
	for _, id := range session.Stats.CirclesJoined {
		if !slices.Contains(out.Stats.CirclesJoined, id) {
			out.Stats.CirclesJoined = append(out.Stats.CirclesJoined, id)
		}
	}
	for _, id := range session.Stats.CirclesPostedIn {
		if !slices.Contains(out.Stats.CirclesPostedIn, id) {
			out.Stats.CirclesPostedIn = append(out.Stats.CirclesPostedIn, id)
		}
	}
	return out
}

func pointValue(catalogue []Badge, id string) int {
	i := slices.IndexFunc(catalogue, func(b Badge) bool { return b.ID == id })
	if i < 0 {
		return 0
	}
	return catalogue[i].PointValue
}

// persist writes the whole record back; callers hold mu
func (e *Engine) persist(ctx context.Context) error {
	if !e.loaded {
		err := apperrors.NewStorageError("set", e.key, errors.New("record unreadable, progress kept in memory"))
		e.logger.Warn("Deferring progression persist until the record can be read",
			zap.String("key", e.key),
			zap.Error(err))
		return err
	}
	if err := e.store.Set(ctx, e.key, e.state); err != nil {
		e.logger.Error("Failed to persist progression, keeping in-memory state",
			zap.String("key", e.key),
			zap.Int("total_points", e.state.TotalPoints),
			zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, out []events.Event) {
	for _, ev := range out {
		if err := e.bus.Publish(ctx, ev); err != nil {
			e.logger.Warn("Event handler failed",
				zap.String("event_type", ev.GetEventType()),
				zap.Error(err))
		}
	}
}

func (e *Engine) copyState() models.UserProgression {
	out := e.state
	out.Badges = append([]models.BadgeProgress(nil), e.state.Badges...)
	out.Stats.CirclesJoined = append([]string(nil), e.state.Stats.CirclesJoined...)
	out.Stats.CirclesPostedIn = append([]string(nil), e.state.Stats.CirclesPostedIn...)
	return out
}
