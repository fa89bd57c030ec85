package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/session"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func userRow(u user.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "username", "password_hash", "full_name", "avatar_url",
		"is_active", "is_verified", "total_sessions", "total_retention_time",
		"best_retention_time", "current_streak", "longest_streak",
		"last_session_date", "created_at", "updated_at", "deleted_at",
	}).AddRow(
		u.ID, u.Email, u.Username, u.PasswordHash, u.FullName, u.AvatarURL,
		u.IsActive, u.IsVerified, u.Stats.TotalSessions, u.Stats.TotalRetentionTime,
		u.Stats.BestRetentionTime, u.Stats.CurrentStreak, u.Stats.LongestStreak,
		nil, u.CreatedAt, u.UpdatedAt, nil,
	)
}

func TestGetUser(t *testing.T) {
	store, mock := newStore(t)

	want := user.User{
		ID:        "u1",
		Email:     "a@example.com",
		Username:  "alice",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	want.Stats.TotalSessions = 3
	want.Stats.BestRetentionTime = 90

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRow(want))

	got, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, 3, got.Stats.TotalSessions)
	require.Equal(t, 90, got.Stats.BestRetentionTime)
	require.Nil(t, got.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUser_NotFound(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateUserAggregate_NotFound(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateUserAggregate(context.Background(), "missing", user.Aggregate{})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnlock_DuplicateMapsToSentinel(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(`INSERT INTO user_achievements`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateUnlock(context.Background(), achievement.Unlock{
		UserID:        "u1",
		AchievementID: "a1",
	})
	require.ErrorIs(t, err, storage.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalStats_EmptyHistoryIsZeros(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "total", "avg", "max", "breaths",
		}).AddRow(0, 0, 0.0, 0, 0))

	stats, err := store.TotalStats(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, session.TotalStats{}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyProgress(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`GROUP BY day`).
		WillReturnRows(sqlmock.NewRows([]string{
			"day", "count", "total", "avg", "max",
		}).
			AddRow("2026-08-27", 2, 150, 75.0, 90).
			AddRow("2026-08-28", 1, 120, 120.0, 120))

	buckets, err := store.DailyProgress(context.Background(), "u1", 7)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.Equal(t, "2026-08-27", buckets[0].Date)
	require.Equal(t, 90, buckets[0].BestRetentionTime)
	require.Equal(t, 120.0, buckets[1].AverageRetentionTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMoodCorrelation_CompletePairsOnly(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`mood_before IS NOT NULL AND mood_after IS NOT NULL`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"count", "before", "after", "delta",
		}).AddRow(2, 3.5, 4.5, 1.0))

	corr, err := store.MoodCorrelation(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, corr.SessionsWithMood)
	require.Equal(t, 1.0, corr.AverageImprovement)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserSession_ScopedToOwner(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec(`DELETE FROM breath_sessions WHERE id = \$1 AND user_id = \$2`).
		WithArgs("s1", "intruder").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteUserSession(context.Background(), "intruder", "s1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDefinitions_FilterBuildsPositionalArgs(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`AND is_active AND NOT is_hidden AND category = \$1 AND rarity = \$2`).
		WithArgs("milestone", "rare").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "category", "rarity", "icon", "points",
			"criteria_type", "criteria_value", "is_active", "is_hidden",
			"display_order", "created_at", "updated_at",
		}).AddRow("a1", "Fifty Sessions", "", "milestone", "rare", "", 50,
			"total_sessions", 50, true, false, 3, time.Now(), time.Now()))

	defs, err := store.ListDefinitions(context.Background(), storage.DefinitionFilter{
		ActiveOnly: true,
		Category:   achievement.CategoryMilestone,
		Rarity:     achievement.RarityRare,
	})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "Fifty Sessions", defs[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopUsersByPoints(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`FROM user_achievements ua`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "points", "count"}).
			AddRow("u2", 120, 5).
			AddRow("u1", 60, 3))

	entries, err := store.TopUsersByPoints(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "u2", entries[0].UserID)
	require.Equal(t, 120, entries[0].TotalPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}
