// Package storage defines the persistence interfaces for the service.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/session"
	"github.com/breathtrack/backend/internal/app/domain/user"
)

// ErrNotFound is returned when a record does not exist or does not belong
// to the requesting user.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (email, username, achievement name, or a (user, achievement) pair).
var ErrDuplicate = errors.New("duplicate record")

// ListOptions controls pagination and ordering for session listings.
type ListOptions struct {
	Offset     int
	Limit      int
	OrderBy    string // "session_date" (default) or "retention_time"
	Descending bool
}

// DefinitionFilter narrows achievement catalog listings.
type DefinitionFilter struct {
	ActiveOnly    bool
	IncludeHidden bool
	Category      achievement.Category
	Rarity        achievement.Rarity
}

// PointsEntry is one leaderboard row derived from unlock records.
type PointsEntry struct {
	UserID            string `json:"user_id"`
	TotalPoints       int    `json:"total_points"`
	AchievementsCount int    `json:"achievements_count"`
}

// UserStore persists user accounts and their aggregates.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUserAggregate(ctx context.Context, userID string, agg user.Aggregate) error
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]user.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	SoftDeleteUser(ctx context.Context, id string) error

	TopUsersByRetention(ctx context.Context, limit int) ([]user.User, error)
	TopUsersByStreak(ctx context.Context, limit int) ([]user.User, error)
	MostActiveUsers(ctx context.Context, limit int) ([]user.User, error)
}

// SessionStore persists session records and answers aggregate queries over
// one user's history. Aggregate methods return zero values, not errors, for
// empty histories.
type SessionStore interface {
	CreateSession(ctx context.Context, rec session.Record) (session.Record, error)
	GetUserSession(ctx context.Context, userID, sessionID string) (session.Record, error)
	ListUserSessions(ctx context.Context, userID string, opts ListOptions) ([]session.Record, error)
	CountUserSessions(ctx context.Context, userID string) (int, error)
	UpdateSession(ctx context.Context, rec session.Record) (session.Record, error)
	DeleteUserSession(ctx context.Context, userID, sessionID string) error

	TotalStats(ctx context.Context, userID string) (session.TotalStats, error)
	PeriodStats(ctx context.Context, userID string, days int) (session.PeriodStats, error)
	DailyProgress(ctx context.Context, userID string, days int) ([]session.DailyBucket, error)
	WeeklyProgress(ctx context.Context, userID string, weeks int) ([]session.WeeklyBucket, error)
	PersonalBest(ctx context.Context, userID string) (session.Record, error)
	RecentPersonalBests(ctx context.Context, userID string, days int) ([]session.Record, error)
	MoodCorrelation(ctx context.Context, userID string) (session.MoodCorrelation, error)
	SessionsByDateRange(ctx context.Context, userID string, from, to time.Time) ([]session.Record, error)
	SessionsByTechnique(ctx context.Context, userID, technique string) ([]session.Record, error)
}

// AchievementStore persists the achievement catalog.
type AchievementStore interface {
	CreateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error)
	UpdateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error)
	GetDefinition(ctx context.Context, id string) (achievement.Definition, error)
	ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]achievement.Definition, error)
	SetDefinitionActive(ctx context.Context, id string, active bool) error
	CountDefinitions(ctx context.Context) (int, error)
	TotalPointsPossible(ctx context.Context) (int, error)
}

// UnlockStore persists achievement unlock records.
type UnlockStore interface {
	CreateUnlock(ctx context.Context, u achievement.Unlock) (achievement.Unlock, error)
	ListUserUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error)
	UserUnlockIDs(ctx context.Context, userID string) (map[string]bool, error)
	HasUnlock(ctx context.Context, userID, achievementID string) (bool, error)
	TotalPoints(ctx context.Context, userID string) (int, error)
	RevokeUnlock(ctx context.Context, userID, achievementID string) error
	TopUsersByPoints(ctx context.Context, limit int) ([]PointsEntry, error)
}
