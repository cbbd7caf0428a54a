package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"moodledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishDeliversToTypeAndPatternHandlers(t *testing.T) {
	bus := NewEventBus(nil, zap.NewNop())
	ctx := context.Background()

	var direct, pattern, all []string
	require.NoError(t, bus.Subscribe(TypeBadgeUnlocked, EventHandlerFunc{ID: "direct", Func: func(ctx context.Context, e Event) error {
		direct = append(direct, e.GetEventType())
		return nil
	}}))
	require.NoError(t, bus.SubscribePattern("badge.*", EventHandlerFunc{ID: "pattern", Func: func(ctx context.Context, e Event) error {
		pattern = append(pattern, e.GetEventType())
		return nil
	}}))
	require.NoError(t, bus.SubscribePattern("*", EventHandlerFunc{ID: "all", Func: func(ctx context.Context, e Event) error {
		all = append(all, e.GetEventType())
		return nil
	}}))

	now := time.Now()
	require.NoError(t, bus.Publish(ctx, NewBadgeEvent(models.BadgeChange{NewlyUnlocked: true}, now)))
	require.NoError(t, bus.Publish(ctx, NewBadgeEvent(models.BadgeChange{}, now)))
	require.NoError(t, bus.Publish(ctx, NewLevelChangedEvent("beginner", "regular", now)))

	assert.Equal(t, []string{TypeBadgeUnlocked}, direct)
	assert.Equal(t, []string{TypeBadgeUnlocked, TypeBadgeProgress}, pattern)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), bus.Stats().EventsPublished)
}

func TestPublishRecoversFromFailingHandlers(t *testing.T) {
	bus := NewEventBus(nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(TypePointsAwarded, EventHandlerFunc{ID: "err", Func: func(ctx context.Context, e Event) error {
		return errors.New("nope")
	}}))
	require.NoError(t, bus.Subscribe(TypePointsAwarded, EventHandlerFunc{ID: "panic", Func: func(ctx context.Context, e Event) error {
		panic("boom")
	}}))
	delivered := false
	require.NoError(t, bus.Subscribe(TypePointsAwarded, EventHandlerFunc{ID: "ok", Func: func(ctx context.Context, e Event) error {
		delivered = true
		return nil
	}}))

	err := bus.Publish(ctx, NewPointsAwardedEvent(5, "test", 5, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 out of 3")
	assert.True(t, delivered)
	assert.Equal(t, int64(1), bus.Stats().EventsFailed)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(nil, zap.NewNop())
	calls := 0
	h := EventHandlerFunc{ID: "h", Func: func(ctx context.Context, e Event) error {
		calls++
		return nil
	}}

	require.NoError(t, bus.Subscribe(TypeLevelChanged, h))
	require.NoError(t, bus.Unsubscribe(TypeLevelChanged, h))
	assert.Error(t, bus.Unsubscribe(TypeLevelChanged, h))

	require.NoError(t, bus.Publish(context.Background(), NewLevelChangedEvent("a", "b", time.Now())))
	assert.Zero(t, calls)
	assert.Zero(t, bus.Stats().HandlersCount)
}

func TestSubscribeValidation(t *testing.T) {
	bus := NewEventBus(nil, nil)
	assert.Error(t, bus.Subscribe("", EventHandlerFunc{ID: "x"}))
	assert.Error(t, bus.Subscribe("x", nil))
	assert.Error(t, bus.SubscribePattern("", EventHandlerFunc{ID: "x"}))
	assert.Error(t, bus.Publish(context.Background(), nil))
}

func TestGenerateEventIDIsUnique(t *testing.T) {
	a, b := GenerateEventID(), GenerateEventID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "evt_"))
}

func TestSyncFailedEventUsesDropTime(t *testing.T) {
	dropped := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewSyncFailedEvent(models.DeadLetter{DroppedAt: dropped, Reason: "x"})
	assert.Equal(t, TypeSyncFailedPermanently, e.GetEventType())
	assert.Equal(t, dropped, e.GetTimestamp())
}
