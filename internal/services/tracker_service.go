// file: internal/services/tracker_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/cache"
	"moodledger/internal/ledger"
	"moodledger/internal/models"
	"moodledger/internal/progression"
	"moodledger/internal/streak"
	"moodledger/internal/syncqueue"
	"moodledger/internal/validation"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// View cache keys. Every mood mutation drops moodViewsPattern.
const (
	moodViewsPattern = "moods:*"
	summaryKeyFormat = "moods:summary:%s:%s"
	streakKeyFormat  = "moods:streaks:%s"
)

// trackerService implements TrackerService
type trackerService struct {
	userID string
	ledger *ledger.Ledger
	queue  *syncqueue.Queue
	engine *progression.Engine
	views  *cache.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewTrackerService creates the orchestration service for one local user
func NewTrackerService(
	userID string,
	moods *ledger.Ledger,
	queue *syncqueue.Queue,
	engine *progression.Engine,
	views *cache.Cache,
	logger *zap.Logger,
	now func() time.Time,
) TrackerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if views == nil {
		views = cache.New(nil, logger)
	}
	if now == nil {
		now = time.Now
	}
	return &trackerService{
		userID: userID,
		ledger: moods,
		queue:  queue,
		engine: engine,
		views:  views,
		logger: logger.With(zap.String("service", "tracker")),
		now:    now,
	}
}

// ===============================
// MOOD LEDGER
// ===============================

// LogMood writes the entry, queues its remote mirror and re-evaluates the
// mood badges
func (s *trackerService) LogMood(ctx context.Context, req *LogMoodRequest) (*LogMoodResponse, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request is required", nil)
	}

	date := req.Date
	if date == "" {
		date = models.FormatDate(s.now())
	} else if err := validation.ValidateDate(date); err != nil {
		return nil, err
	}

	resp := &LogMoodResponse{}
	written, err := s.ledger.Write(ctx, date, models.MoodEntry{
		Date:      date,
		MoodValue: req.MoodValue,
		Note:      req.Note,
		Tags:      req.Tags,
	})
	if err := s.absorb(&resp.Warnings, "ledger write", err); err != nil {
		return nil, err
	}
	resp.Entry = written
	s.views.DeletePattern(moodViewsPattern)

	item, err := s.queue.Enqueue(ctx, models.NewMoodLogAction(s.userID, written))
	if err := s.absorb(&resp.Warnings, "queue mood log", err); err != nil {
		return nil, err
	}
	resp.QueueItemID = item.ID

	changes, err := s.engine.HandleEvent(ctx, progression.MoodLogged())
	if err := s.absorb(&resp.Warnings, "progression update", err); err != nil {
		return nil, err
	}
	resp.Changes = changes
	resp.CurrentStreak = streak.Compute(s.ledger.Snapshot(ctx), s.now())

	s.logger.Info("Mood logged",
		zap.String("date", date),
		zap.Int("mood_value", written.MoodValue),
		zap.Int64("queue_item_id", item.ID),
		zap.Int("current_streak", resp.CurrentStreak),
		zap.Int("warnings", len(resp.Warnings)))
	return resp, nil
}

// DeleteMood removes the entry for date from the local ledger
func (s *trackerService) DeleteMood(ctx context.Context, date string) (bool, error) {
	if err := validation.ValidateDate(date); err != nil {
		return false, err
	}
	removed, err := s.ledger.Delete(ctx, date)
	if removed {
		s.views.DeletePattern(moodViewsPattern)
	}
	return removed, err
}

// GetMood returns the entry for date
func (s *trackerService) GetMood(ctx context.Context, date string) (models.MoodEntry, bool, error) {
	if err := validation.ValidateDate(date); err != nil {
		return models.MoodEntry{}, false, err
	}
	entry, ok := s.ledger.Get(ctx, date)
	return entry, ok, nil
}

// History returns the entries in the named range, oldest first
func (s *trackerService) History(ctx context.Context, rangeName string) ([]models.MoodEntry, error) {
	rng, err := ledger.ParseRange(rangeName)
	if err != nil {
		return nil, err
	}
	return s.ledger.Read(ctx, rng), nil
}

// Summary aggregates the named range
func (s *trackerService) Summary(ctx context.Context, rangeName string) (*models.MoodSummary, error) {
	rng, err := ledger.ParseRange(rangeName)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf(summaryKeyFormat, rng, models.FormatDate(s.now()))
	value, err := s.views.CacheResult(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		summary := s.ledger.Summary(ctx, rng)
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	summary := *value.(*models.MoodSummary)
	return &summary, nil
}

// Streaks returns the current and longest streaks
func (s *trackerService) Streaks(ctx context.Context) *StreakInfo {
	now := s.now()
	key := fmt.Sprintf(streakKeyFormat, models.FormatDate(now))
	value, _ := s.views.CacheResult(ctx, key, 0, func(ctx context.Context) (interface{}, error) {
		entries := s.ledger.Snapshot(ctx)
		return StreakInfo{
			Current: streak.Compute(entries, now),
			Longest: streak.Longest(entries),
		}, nil
	})
	info := value.(StreakInfo)
	return &info
}

// ===============================
// COMMUNITY ACTIONS
// ===============================

// CreatePost queues the post for the remote mirror and re-evaluates the
// community badges
func (s *trackerService) CreatePost(ctx context.Context, req *CreatePostRequest) (*CommunityResponse, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	resp := &CommunityResponse{LocalID: newLocalID(), CreatedAt: s.now()}
	item, err := s.queue.Enqueue(ctx, models.NewPostCreateAction(models.PostCreatePayload{
		UserID:    s.userID,
		LocalID:   resp.LocalID,
		CircleID:  req.CircleID,
		Content:   req.Content,
		CreatedAt: resp.CreatedAt,
	}))
	if err := s.absorb(&resp.Warnings, "queue post", err); err != nil {
		return nil, err
	}
	resp.QueueItemID = item.ID

	changes, err := s.engine.HandleEvent(ctx, progression.PostCreated(req.CircleID))
	if err := s.absorb(&resp.Warnings, "progression update", err); err != nil {
		return nil, err
	}
	resp.Changes = changes

	s.logger.Info("Post created",
		zap.String("local_id", resp.LocalID),
		zap.String("circle_id", req.CircleID),
		zap.Int64("queue_item_id", item.ID))
	return resp, nil
}

// CreateComment queues the comment for the remote mirror and re-evaluates the
// community badges
func (s *trackerService) CreateComment(ctx context.Context, req *CreateCommentRequest) (*CommunityResponse, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	resp := &CommunityResponse{LocalID: newLocalID(), CreatedAt: s.now()}
	item, err := s.queue.Enqueue(ctx, models.NewCommentCreateAction(models.CommentCreatePayload{
		UserID:    s.userID,
		LocalID:   resp.LocalID,
		PostID:    req.PostID,
		Content:   req.Content,
		CreatedAt: resp.CreatedAt,
	}))
	if err := s.absorb(&resp.Warnings, "queue comment", err); err != nil {
		return nil, err
	}
	resp.QueueItemID = item.ID

	changes, err := s.engine.HandleEvent(ctx, progression.CommentCreated())
	if err := s.absorb(&resp.Warnings, "progression update", err); err != nil {
		return nil, err
	}
	resp.Changes = changes

	s.logger.Info("Comment created",
		zap.String("local_id", resp.LocalID),
		zap.String("post_id", req.PostID),
		zap.Int64("queue_item_id", item.ID))
	return resp, nil
}

// JoinCircle records a circle membership for the circle badges
func (s *trackerService) JoinCircle(ctx context.Context, req *JoinCircleRequest) ([]models.BadgeChange, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	var warnings []string
	changes, err := s.engine.HandleEvent(ctx, progression.CircleJoined(req.CircleID))
	if err := s.absorb(&warnings, "progression update", err); err != nil {
		return nil, err
	}
	return changes, nil
}

// ===============================
// PROGRESSION
// ===============================

// AwardPoints grants points outside of badge unlocks
func (s *trackerService) AwardPoints(ctx context.Context, req *AwardPointsRequest) (*models.UserProgression, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request is required", nil)
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	var warnings []string
	state, err := s.engine.AddPoints(ctx, req.Points, req.Reason)
	if err := s.absorb(&warnings, "award points", err); err != nil {
		return nil, err
	}
	return &state, nil
}

// Progress returns points, level, badges and streaks
func (s *trackerService) Progress(ctx context.Context) *ProgressView {
	state := s.engine.Progression(ctx)
	return &ProgressView{
		Progression: state,
		Level:       progression.ProgressToNextLevel(state.TotalPoints),
		Badges:      s.engine.Badges(ctx),
		Streaks:     *s.Streaks(ctx),
	}
}

// ===============================
// SYNC
// ===============================

// SyncStatus describes the offline queue
func (s *trackerService) SyncStatus(ctx context.Context) *SyncStatus {
	s.queue.Load(ctx)
	return &SyncStatus{
		Online:      s.queue.Online(),
		Pending:     s.queue.Len(),
		Items:       s.queue.Items(),
		DeadLetters: s.queue.DeadLetters(),
	}
}

// SyncNow drains the queue if online
func (s *trackerService) SyncNow(ctx context.Context) syncqueue.DrainResult {
	return s.queue.Drain(ctx)
}

// ===============================
// HELPERS
// ===============================

// absorb keeps storage failures local: they are logged and reported as
// warnings. Any other error is returned to the caller.
func (s *trackerService) absorb(warnings *[]string, op string, err error) error {
	if err == nil {
		return nil
	}
	if !apperrors.IsStorageError(err) {
		return err
	}
	s.logger.Warn("Storage failure absorbed",
		zap.String("operation", op),
		zap.Error(err))
	*warnings = append(*warnings, fmt.Sprintf("%s: %v", op, err))
	return nil
}

func newLocalID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("local_%d", time.Now().UnixNano())
	}
	return id.String()
}
