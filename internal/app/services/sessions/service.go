// Package sessions records breathing practice sessions and serves the
// statistics computed from them.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/session"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/metrics"
	"github.com/breathtrack/backend/internal/app/services/achievements"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/pkg/logger"
)

// UnlockChecker is the slice of the achievements service the session flow
// needs after recording a session.
type UnlockChecker interface {
	CheckAndUnlock(ctx context.Context, userID string) ([]achievements.Unlocked, error)
}

// CreateInput is the payload for recording a session.
type CreateInput struct {
	BreathsCount     int        `json:"breaths_count"`
	RetentionTime    int        `json:"retention_time"`
	RecoveryTime     int        `json:"recovery_time"`
	DurationSeconds  int        `json:"duration_seconds"`
	SessionDate      *time.Time `json:"session_date,omitempty"`
	TechniqueVariant string     `json:"technique_variant,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	MoodBefore       *int       `json:"mood_before,omitempty"`
	MoodAfter        *int       `json:"mood_after,omitempty"`
}

// UpdateInput carries the annotation fields that may change after recording.
// Nil fields are left untouched.
type UpdateInput struct {
	Notes      *string `json:"notes,omitempty"`
	MoodBefore *int    `json:"mood_before,omitempty"`
	MoodAfter  *int    `json:"mood_after,omitempty"`
}

// CreateResult is a recorded session together with the updated aggregate and
// any achievements the session unlocked.
type CreateResult struct {
	Session         session.Record          `json:"session"`
	Stats           user.Aggregate          `json:"stats"`
	NewAchievements []achievements.Unlocked `json:"new_achievements,omitempty"`
}

// Summary is the cached per-user statistics overview.
type Summary struct {
	TotalSessions        int                 `json:"total_sessions"`
	TotalRetentionTime   int                 `json:"total_retention_time"`
	AverageRetentionTime float64             `json:"average_retention_time"`
	BestRetentionTime    int                 `json:"best_retention_time"`
	TotalBreaths         int                 `json:"total_breaths"`
	CurrentStreak        int                 `json:"current_streak"`
	LongestStreak        int                 `json:"longest_streak"`
	Last7Days            session.PeriodStats `json:"last_7_days"`
	Last30Days           session.PeriodStats `json:"last_30_days"`
}

// Progress is a daily rollup over a trailing window with a simple trend.
type Progress struct {
	DataPoints []session.DailyBucket `json:"data_points"`
	PeriodDays int                   `json:"period_days"`
	Trend      string                `json:"trend"` // improving | stable | declining
}

// PersonalBests reports the all-time best session and the record-breaking
// sessions of a trailing window.
type PersonalBests struct {
	Best        *session.Record  `json:"best,omitempty"`
	RecentBests []session.Record `json:"recent_bests"`
}

// Service records sessions and answers statistics queries.
type Service struct {
	users    storage.UserStore
	sessions storage.SessionStore
	unlocks  UnlockChecker
	cache    cache.Client
	ttl      time.Duration
	log      *logger.Logger
}

// New constructs a sessions service. unlocks may be nil, in which case no
// achievement check runs after recording.
func New(users storage.UserStore, sessions storage.SessionStore, unlocks UnlockChecker, c cache.Client, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sessions")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{users: users, sessions: sessions, unlocks: unlocks, cache: c, ttl: ttl, log: log}
}

// Create records a session, folds it into the user's aggregate, invalidates
// the stats cache and checks for new achievements. An achievement check
// failure does not fail the recording.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (CreateResult, error) {
	if err := validateCreate(in); err != nil {
		return CreateResult{}, err
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return CreateResult{}, err
	}

	rec := session.Record{
		UserID:           userID,
		BreathsCount:     in.BreathsCount,
		RetentionTime:    in.RetentionTime,
		RecoveryTime:     in.RecoveryTime,
		DurationSeconds:  in.DurationSeconds,
		TechniqueVariant: in.TechniqueVariant,
		Notes:            in.Notes,
		MoodBefore:       in.MoodBefore,
		MoodAfter:        in.MoodAfter,
	}
	if in.SessionDate != nil {
		rec.SessionDate = in.SessionDate.UTC()
	}

	created, err := s.sessions.CreateSession(ctx, rec)
	if err != nil {
		return CreateResult{}, err
	}

	agg := user.ApplySession(u.Stats, created.RetentionTime, created.SessionDate)
	if err := s.users.UpdateUserAggregate(ctx, userID, agg); err != nil {
		return CreateResult{}, fmt.Errorf("update user stats: %w", err)
	}

	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(userID))

	result := CreateResult{Session: created, Stats: agg}
	if s.unlocks != nil {
		awarded, err := s.unlocks.CheckAndUnlock(ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("achievement check failed")
		} else {
			result.NewAchievements = awarded
		}
	}

	s.log.WithField("user_id", userID).
		WithField("session_id", created.ID).
		WithField("retention_time", created.RetentionTime).
		Info("session recorded")
	return result, nil
}

// Get returns one of the user's sessions.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (session.Record, error) {
	return s.sessions.GetUserSession(ctx, userID, sessionID)
}

// List returns a page of the user's sessions plus the total count.
func (s *Service) List(ctx context.Context, userID string, opts storage.ListOptions) ([]session.Record, int, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.OrderBy == "" {
		opts.OrderBy = "session_date"
		opts.Descending = true
	}

	recs, err := s.sessions.ListUserSessions(ctx, userID, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sessions.CountUserSessions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// UpdateAnnotations changes notes and moods on an existing session. The
// recorded metrics are immutable.
func (s *Service) UpdateAnnotations(ctx context.Context, userID, sessionID string, in UpdateInput) (session.Record, error) {
	rec, err := s.sessions.GetUserSession(ctx, userID, sessionID)
	if err != nil {
		return session.Record{}, err
	}

	if in.Notes != nil {
		rec.Notes = *in.Notes
	}
	if in.MoodBefore != nil {
		if err := validateMood(in.MoodBefore); err != nil {
			return session.Record{}, err
		}
		rec.MoodBefore = in.MoodBefore
	}
	if in.MoodAfter != nil {
		if err := validateMood(in.MoodAfter); err != nil {
			return session.Record{}, err
		}
		rec.MoodAfter = in.MoodAfter
	}

	updated, err := s.sessions.UpdateSession(ctx, rec)
	if err != nil {
		return session.Record{}, err
	}

	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(userID))
	return updated, nil
}

// Delete removes a session and rebuilds the user's aggregate from the
// remaining history, since totals, bests and streaks may all change.
func (s *Service) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.DeleteUserSession(ctx, userID, sessionID); err != nil {
		return err
	}

	if err := s.recomputeAggregate(ctx, userID); err != nil {
		return fmt.Errorf("recompute user stats: %w", err)
	}

	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(userID))
	s.log.WithField("user_id", userID).WithField("session_id", sessionID).Info("session deleted")
	return nil
}

// GetSummary returns the cached statistics overview, computing and caching
// it on a miss.
func (s *Service) GetSummary(ctx context.Context, userID string) (Summary, error) {
	key := cache.StatsKey(userID, "summary")

	var cached Summary
	if s.cache.GetJSON(ctx, key, &cached) {
		metrics.RecordCacheLookup("summary", true)
		return cached, nil
	}
	metrics.RecordCacheLookup("summary", false)

	totals, err := s.sessions.TotalStats(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	last7, err := s.sessions.PeriodStats(ctx, userID, 7)
	if err != nil {
		return Summary{}, err
	}
	last30, err := s.sessions.PeriodStats(ctx, userID, 30)
	if err != nil {
		return Summary{}, err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		TotalSessions:        totals.TotalSessions,
		TotalRetentionTime:   totals.TotalRetentionTime,
		AverageRetentionTime: totals.AverageRetentionTime,
		BestRetentionTime:    totals.BestRetentionTime,
		TotalBreaths:         totals.TotalBreaths,
		CurrentStreak:        u.Stats.CurrentStreak,
		LongestStreak:        u.Stats.LongestStreak,
		Last7Days:            last7,
		Last30Days:           last30,
	}

	_ = s.cache.SetJSON(ctx, key, summary, s.ttl)
	return summary, nil
}

// GetProgress returns daily rollups for a trailing window with a trend
// comparing the first and last day, stable within a 10% band.
func (s *Service) GetProgress(ctx context.Context, userID string, days int) (Progress, error) {
	if days <= 0 {
		days = 30
	}

	buckets, err := s.sessions.DailyProgress(ctx, userID, days)
	if err != nil {
		return Progress{}, err
	}
	if buckets == nil {
		buckets = []session.DailyBucket{}
	}

	trend := "stable"
	if len(buckets) >= 2 {
		first := buckets[0].AverageRetentionTime
		last := buckets[len(buckets)-1].AverageRetentionTime
		switch {
		case last > first*1.1:
			trend = "improving"
		case last < first*0.9:
			trend = "declining"
		}
	}

	return Progress{DataPoints: buckets, PeriodDays: days, Trend: trend}, nil
}

// GetWeeklyProgress returns per-week rollups for a trailing window.
func (s *Service) GetWeeklyProgress(ctx context.Context, userID string, weeks int) ([]session.WeeklyBucket, error) {
	if weeks <= 0 {
		weeks = 12
	}
	buckets, err := s.sessions.WeeklyProgress(ctx, userID, weeks)
	if err != nil {
		return nil, err
	}
	if buckets == nil {
		buckets = []session.WeeklyBucket{}
	}
	return buckets, nil
}

// GetPersonalBests returns the all-time best session and the sessions of the
// last 30 days that beat the record standing at the time.
func (s *Service) GetPersonalBests(ctx context.Context, userID string) (PersonalBests, error) {
	result := PersonalBests{RecentBests: []session.Record{}}

	best, err := s.sessions.PersonalBest(ctx, userID)
	switch {
	case err == nil:
		result.Best = &best
	case errors.Is(err, storage.ErrNotFound):
		// No sessions yet.
	default:
		return PersonalBests{}, err
	}

	recent, err := s.sessions.RecentPersonalBests(ctx, userID, 30)
	if err != nil {
		return PersonalBests{}, err
	}
	if recent != nil {
		result.RecentBests = recent
	}
	return result, nil
}

// GetMoodCorrelation summarises moods over the sessions where both values
// were recorded.
func (s *Service) GetMoodCorrelation(ctx context.Context, userID string) (session.MoodCorrelation, error) {
	return s.sessions.MoodCorrelation(ctx, userID)
}

// ByDateRange returns the user's sessions within [from, to].
func (s *Service) ByDateRange(ctx context.Context, userID string, from, to time.Time) ([]session.Record, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: end before start")
	}
	return s.sessions.SessionsByDateRange(ctx, userID, from, to)
}

// ByTechnique returns the user's sessions for one technique variant.
func (s *Service) ByTechnique(ctx context.Context, userID, technique string) ([]session.Record, error) {
	return s.sessions.SessionsByTechnique(ctx, userID, technique)
}

// recomputeAggregate rebuilds the user's aggregate by replaying the full
// remaining history in date order.
func (s *Service) recomputeAggregate(ctx context.Context, userID string) error {
	recs, err := s.sessions.ListUserSessions(ctx, userID, storage.ListOptions{Limit: 1 << 20})
	if err != nil {
		return err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].SessionDate.Before(recs[j].SessionDate) })

	var agg user.Aggregate
	for _, rec := range recs {
		agg = user.ApplySession(agg, rec.RetentionTime, rec.SessionDate)
	}
	return s.users.UpdateUserAggregate(ctx, userID, agg)
}

func validateCreate(in CreateInput) error {
	if in.BreathsCount <= 0 {
		return fmt.Errorf("breaths_count must be positive")
	}
	if in.RetentionTime < 0 {
		return fmt.Errorf("retention_time must not be negative")
	}
	if in.RecoveryTime < 0 {
		return fmt.Errorf("recovery_time must not be negative")
	}
	if in.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	if err := validateMood(in.MoodBefore); err != nil {
		return err
	}
	return validateMood(in.MoodAfter)
}

func validateMood(mood *int) error {
	if mood != nil && (*mood < 1 || *mood > 10) {
		return fmt.Errorf("mood must be between 1 and 10")
	}
	return nil
}
