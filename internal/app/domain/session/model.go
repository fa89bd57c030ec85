// Package session defines recorded breathing practice sessions.
package session

import "time"

// Record is one completed practice session. Metric fields are immutable once
// recorded; only the annotation fields (notes and moods) may change later.
type Record struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	BreathsCount     int       `json:"breaths_count"`
	RetentionTime    int       `json:"retention_time"` // seconds
	RecoveryTime     int       `json:"recovery_time"`  // seconds
	DurationSeconds  int       `json:"duration_seconds"`
	SessionDate      time.Time `json:"session_date"`
	TechniqueVariant string    `json:"technique_variant"`
	Notes            string    `json:"notes,omitempty"`
	MoodBefore       *int      `json:"mood_before,omitempty"` // 1-10
	MoodAfter        *int      `json:"mood_after,omitempty"`  // 1-10
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MoodImprovement returns mood_after - mood_before, or nil when either
// mood was not recorded.
func (r Record) MoodImprovement() *int {
	if r.MoodBefore == nil || r.MoodAfter == nil {
		return nil
	}
	diff := *r.MoodAfter - *r.MoodBefore
	return &diff
}

// TotalStats aggregates a user's full session history.
type TotalStats struct {
	TotalSessions        int     `json:"total_sessions"`
	TotalRetentionTime   int     `json:"total_retention_time"`
	AverageRetentionTime float64 `json:"average_retention_time"`
	BestRetentionTime    int     `json:"best_retention_time"`
	TotalBreaths         int     `json:"total_breaths"`
}

// PeriodStats aggregates sessions within a trailing window of days.
type PeriodStats struct {
	SessionsCount        int     `json:"sessions_count"`
	TotalRetentionTime   int     `json:"total_retention_time"`
	AverageRetentionTime float64 `json:"average_retention_time"`
	BestRetentionTime    int     `json:"best_retention_time"`
}

// DailyBucket is one calendar day's rollup.
type DailyBucket struct {
	Date                 string  `json:"date"` // YYYY-MM-DD
	SessionsCount        int     `json:"sessions_count"`
	TotalRetentionTime   int     `json:"total_retention_time"`
	AverageRetentionTime float64 `json:"average_retention_time"`
	BestRetentionTime    int     `json:"best_retention_time"`
}

// WeeklyBucket is one ISO week's rollup, keyed by the week's start date.
type WeeklyBucket struct {
	WeekStart            string  `json:"week_start"` // YYYY-MM-DD
	SessionsCount        int     `json:"sessions_count"`
	AverageRetentionTime float64 `json:"average_retention_time"`
	BestRetentionTime    int     `json:"best_retention_time"`
}

// MoodCorrelation summarises moods across sessions where both values exist.
type MoodCorrelation struct {
	AverageMoodBefore  float64 `json:"average_mood_before"`
	AverageMoodAfter   float64 `json:"average_mood_after"`
	AverageImprovement float64 `json:"average_improvement"`
	SessionsWithMood   int     `json:"sessions_with_mood"`
}
