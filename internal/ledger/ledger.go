// Package ledger owns the date-keyed mood record of the local user.
package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"moodledger/internal/apperrors"
	"moodledger/internal/models"
	"moodledger/internal/storage"
	"moodledger/internal/validation"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Ledger is the single owner of the moods record. Every mutation is a full
// read-modify-write of that record, serialized by mu.
type Ledger struct {
	mu      sync.Mutex
	store   storage.Adapter
	key     string
	logger  *zap.Logger
	now     func() time.Time
	entries map[string]models.MoodEntry
	loaded  bool
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the wall clock used for "today" and LoggedAt stamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger persisted under key
func New(store storage.Adapter, key string, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		key:    key,
		logger: logger.With(zap.String("component", "ledger")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns every entry keyed by date. Missing, unreadable or corrupt
// data yields an empty ledger; Load never fails.
func (l *Ledger) Load(ctx context.Context) map[string]models.MoodEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	return l.copyEntries()
}

// Snapshot is Load under the name the progression engine consumes
func (l *Ledger) Snapshot(ctx context.Context) map[string]models.MoodEntry {
	return l.Load(ctx)
}

// Write validates entry, stores it as the only entry for date and persists
// the whole ledger. A persistence failure is returned as a StorageError but
// the write still stands in memory for the rest of the session.
func (l *Ledger) Write(ctx context.Context, date string, entry models.MoodEntry) (models.MoodEntry, error) {
	if entry.Date == "" {
		entry.Date = date
	}
	if entry.Date != date {
		return models.MoodEntry{}, apperrors.NewDetailedValidationError("invalid mood entry", []apperrors.FieldError{{
			Field: "date", Value: entry.Date, Message: "must match the ledger key " + date, Code: "eqfield",
		}})
	}
	if err := validation.ValidateStruct(&entry); err != nil {
		return models.MoodEntry{}, err
	}

	entry.Decorate()
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = l.now()
	}
	entry.Tags = append([]string(nil), entry.Tags...)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	l.entries[date] = entry

	if err := l.persist(ctx); err != nil {
		return entry, err
	}

	l.logger.Debug("Mood entry written",
		zap.String("date", date),
		zap.Int("mood_value", entry.MoodValue))
	return entry, nil
}

// Delete removes the entry for date, if any
func (l *Ledger) Delete(ctx context.Context, date string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	if _, ok := l.entries[date]; !ok {
		return false, nil
	}
	delete(l.entries, date)
	return true, l.persist(ctx)
}

// Get returns the entry for date
func (l *Ledger) Get(ctx context.Context, date string) (models.MoodEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	e, ok := l.entries[date]
	return e, ok
}

// Count returns the number of logged days
func (l *Ledger) Count(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	return len(l.entries)
}

// Dates returns every logged date in ascending order
func (l *Ledger) Dates(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ensureLoaded(ctx)
	dates := make([]string, 0, len(l.entries))
	for d := range l.entries {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	return dates
}

// Read returns the entries whose date lies in rng, ascending by date.
// The window is re-derived from the clock on every call.
func (l *Ledger) Read(ctx context.Context, rng Range) []models.MoodEntry {
	entries := l.Load(ctx)
	out := FilterRange(entries, rng, l.now())
	slices.SortFunc(out, func(a, b models.MoodEntry) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

// Summary aggregates the entries in rng
func (l *Ledger) Summary(ctx context.Context, rng Range) models.MoodSummary {
	return Summarize(l.Read(ctx, rng))
}

// ensureLoaded reads the record until a read succeeds; callers hold mu.
// Entries written while the record was unreadable win over stored ones.
func (l *Ledger) ensureLoaded(ctx context.Context) {
	if l.loaded {
		return
	}
	if l.entries == nil {
		l.entries = make(map[string]models.MoodEntry)
	}

	stored := make(map[string]models.MoodEntry)
	found, err := storage.Load(ctx, l.store, l.key, &stored, l.logger)
	if err != nil {
		return
	}
	if !found || stored == nil {
		stored = make(map[string]models.MoodEntry)
	}
	for date, e := range l.entries {
		stored[date] = e
	}
	l.entries = stored
	l.loaded = true
}

// persist writes the whole map back; callers hold mu.
// Nothing is written while the stored record is unreadable, since the
// in-memory map would then be a partial view that clobbers it.
func (l *Ledger) persist(ctx context.Context) error {
	if !l.loaded {
		err := apperrors.NewStorageError("set", l.key, errors.New("record unreadable, write kept in memory"))
		l.logger.Warn("Deferring mood ledger persist until the record can be read",
			zap.String("key", l.key),
			zap.Error(err))
		return err
	}
	if err := l.store.Set(ctx, l.key, l.entries); err != nil {
		l.logger.Error("Failed to persist mood ledger, keeping in-memory state",
			zap.String("key", l.key),
			zap.Int("entries", len(l.entries)),
			zap.Error(err))
		return err
	}
	return nil
}

func (l *Ledger) copyEntries() map[string]models.MoodEntry {
	out := make(map[string]models.MoodEntry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}
