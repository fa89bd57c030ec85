// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/session"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)
var _ storage.UnlockStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

// mapError translates driver errors into the storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// --- UserStore --------------------------------------------------------------

const userColumns = `id, email, username, password_hash, full_name, avatar_url,
	is_active, is_verified, total_sessions, total_retention_time,
	best_retention_time, current_streak, longest_streak, last_session_date,
	created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (user.User, error) {
	var (
		u           user.User
		lastSession sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FullName, &u.AvatarURL,
		&u.IsActive, &u.IsVerified, &u.Stats.TotalSessions, &u.Stats.TotalRetentionTime,
		&u.Stats.BestRetentionTime, &u.Stats.CurrentStreak, &u.Stats.LongestStreak,
		&lastSession, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return user.User{}, mapError(err)
	}
	u.Stats.LastSessionDate = fromNullTime(lastSession)
	u.DeletedAt = fromNullTime(deletedAt)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, full_name, avatar_url,
			is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.FullName, u.AvatarURL,
		u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, username = $3, password_hash = $4, full_name = $5,
			avatar_url = $6, is_active = $7, is_verified = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.FullName,
		u.AvatarURL, u.IsActive, u.IsVerified, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) UpdateUserAggregate(ctx context.Context, userID string, agg user.Aggregate) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET total_sessions = $2, total_retention_time = $3, best_retention_time = $4,
			current_streak = $5, longest_streak = $6, last_session_date = $7,
			updated_at = $8
		WHERE id = $1
	`, userID, agg.TotalSessions, agg.TotalRetentionTime, agg.BestRetentionTime,
		agg.CurrentStreak, agg.LongestStreak, toNullTime(agg.LastSessionDate),
		time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`, email)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1) AND deleted_at IS NULL`, username)
	return scanUser(row)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username ILIKE '%' || $1 || '%' AND deleted_at IS NULL AND is_active
		ORDER BY username
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collectUsers(rows)
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TopUsersByRetention(ctx context.Context, limit int) ([]user.User, error) {
	return s.leaderboard(ctx, "best_retention_time", limit)
}

func (s *Store) TopUsersByStreak(ctx context.Context, limit int) ([]user.User, error) {
	return s.leaderboard(ctx, "current_streak", limit)
}

func (s *Store) MostActiveUsers(ctx context.Context, limit int) ([]user.User, error) {
	return s.leaderboard(ctx, "total_sessions", limit)
}

// leaderboard ranks active users by one aggregate column, excluding users
// whose ranked value is zero. The column name is one of three fixed strings,
// never caller input.
func (s *Store) leaderboard(ctx context.Context, column string, limit int) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+userColumns+`
		FROM users
		WHERE deleted_at IS NULL AND is_active AND %s > 0
		ORDER BY %s DESC
		LIMIT $1
	`, column, column), limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]user.User, error) {
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- SessionStore -----------------------------------------------------------

const sessionColumns = `id, user_id, breaths_count, retention_time, recovery_time,
	duration_seconds, session_date, technique_variant, notes, mood_before,
	mood_after, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (session.Record, error) {
	var (
		rec        session.Record
		moodBefore sql.NullInt64
		moodAfter  sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.BreathsCount, &rec.RetentionTime, &rec.RecoveryTime,
		&rec.DurationSeconds, &rec.SessionDate, &rec.TechniqueVariant, &rec.Notes,
		&moodBefore, &moodAfter, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return session.Record{}, mapError(err)
	}
	rec.MoodBefore = fromNullInt(moodBefore)
	rec.MoodAfter = fromNullInt(moodAfter)
	return rec, nil
}

func (s *Store) CreateSession(ctx context.Context, rec session.Record) (session.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.SessionDate.IsZero() {
		rec.SessionDate = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breath_sessions (id, user_id, breaths_count, retention_time,
			recovery_time, duration_seconds, session_date, technique_variant,
			notes, mood_before, mood_after, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, rec.ID, rec.UserID, rec.BreathsCount, rec.RetentionTime, rec.RecoveryTime,
		rec.DurationSeconds, rec.SessionDate, rec.TechniqueVariant, rec.Notes,
		toNullInt(rec.MoodBefore), toNullInt(rec.MoodAfter), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return session.Record{}, mapError(err)
	}
	return rec, nil
}

func (s *Store) GetUserSession(ctx context.Context, userID, sessionID string) (session.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM breath_sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID)
	return scanSession(row)
}

func (s *Store) ListUserSessions(ctx context.Context, userID string, opts storage.ListOptions) ([]session.Record, error) {
	orderBy := "session_date"
	if opts.OrderBy == "retention_time" {
		orderBy = "retention_time"
	}
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+sessionColumns+`
		FROM breath_sessions
		WHERE user_id = $1
		ORDER BY %s %s
		OFFSET $2 LIMIT $3
	`, orderBy, direction), userID, opts.Offset, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return collectSessions(rows)
}

func (s *Store) CountUserSessions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM breath_sessions WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, mapError(err)
}

func (s *Store) UpdateSession(ctx context.Context, rec session.Record) (session.Record, error) {
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE breath_sessions
		SET notes = $2, mood_before = $3, mood_after = $4, updated_at = $5
		WHERE id = $1
	`, rec.ID, rec.Notes, toNullInt(rec.MoodBefore), toNullInt(rec.MoodAfter), rec.UpdatedAt)
	if err != nil {
		return session.Record{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return session.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) DeleteUserSession(ctx context.Context, userID, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM breath_sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TotalStats(ctx context.Context, userID string) (session.TotalStats, error) {
	var stats session.TotalStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(retention_time), 0),
			COALESCE(AVG(retention_time), 0),
			COALESCE(MAX(retention_time), 0),
			COALESCE(SUM(breaths_count), 0)
		FROM breath_sessions
		WHERE user_id = $1
	`, userID).Scan(&stats.TotalSessions, &stats.TotalRetentionTime,
		&stats.AverageRetentionTime, &stats.BestRetentionTime, &stats.TotalBreaths)
	return stats, mapError(err)
}

func (s *Store) PeriodStats(ctx context.Context, userID string, days int) (session.PeriodStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var stats session.PeriodStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(retention_time), 0),
			COALESCE(AVG(retention_time), 0),
			COALESCE(MAX(retention_time), 0)
		FROM breath_sessions
		WHERE user_id = $1 AND session_date >= $2
	`, userID, cutoff).Scan(&stats.SessionsCount, &stats.TotalRetentionTime,
		&stats.AverageRetentionTime, &stats.BestRetentionTime)
	return stats, mapError(err)
}

func (s *Store) DailyProgress(ctx context.Context, userID string, days int) ([]session.DailyBucket, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(session_date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*),
			COALESCE(SUM(retention_time), 0),
			COALESCE(AVG(retention_time), 0),
			COALESCE(MAX(retention_time), 0)
		FROM breath_sessions
		WHERE user_id = $1 AND session_date >= $2
		GROUP BY day
		ORDER BY day
	`, userID, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []session.DailyBucket
	for rows.Next() {
		var bucket session.DailyBucket
		if err := rows.Scan(&bucket.Date, &bucket.SessionsCount, &bucket.TotalRetentionTime,
			&bucket.AverageRetentionTime, &bucket.BestRetentionTime); err != nil {
			return nil, mapError(err)
		}
		result = append(result, bucket)
	}
	return result, rows.Err()
}

func (s *Store) WeeklyProgress(ctx context.Context, userID string, weeks int) ([]session.WeeklyBucket, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -7*weeks)

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date_trunc('week', session_date AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS week,
			COUNT(*),
			COALESCE(AVG(retention_time), 0),
			COALESCE(MAX(retention_time), 0)
		FROM breath_sessions
		WHERE user_id = $1 AND session_date >= $2
		GROUP BY week
		ORDER BY week
	`, userID, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []session.WeeklyBucket
	for rows.Next() {
		var bucket session.WeeklyBucket
		if err := rows.Scan(&bucket.WeekStart, &bucket.SessionsCount,
			&bucket.AverageRetentionTime, &bucket.BestRetentionTime); err != nil {
			return nil, mapError(err)
		}
		result = append(result, bucket)
	}
	return result, rows.Err()
}

func (s *Store) PersonalBest(ctx context.Context, userID string) (session.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM breath_sessions
		WHERE user_id = $1
		ORDER BY retention_time DESC, session_date ASC
		LIMIT 1
	`, userID)
	return scanSession(row)
}

func (s *Store) RecentPersonalBests(ctx context.Context, userID string, days int) ([]session.Record, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	// A session is a personal best when its retention exceeds the running
	// maximum of every session recorded before it. The first session of a
	// history is excluded.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, breaths_count, retention_time, recovery_time,
			duration_seconds, session_date, technique_variant, notes, mood_before,
			mood_after, created_at, updated_at
		FROM (
			SELECT *,
				MAX(retention_time) OVER (
					ORDER BY session_date, created_at
					ROWS BETWEEN UNBOUNDED PRECEDING AND 1 PRECEDING
				) AS prior_best,
				ROW_NUMBER() OVER (ORDER BY session_date, created_at) AS seq
			FROM breath_sessions
			WHERE user_id = $1
		) ranked
		WHERE seq > 1 AND retention_time > COALESCE(prior_best, 0) AND session_date >= $2
		ORDER BY session_date DESC
	`, userID, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	return collectSessions(rows)
}

func (s *Store) MoodCorrelation(ctx context.Context, userID string) (session.MoodCorrelation, error) {
	var corr session.MoodCorrelation
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(AVG(mood_before), 0),
			COALESCE(AVG(mood_after), 0),
			COALESCE(AVG(mood_after - mood_before), 0)
		FROM breath_sessions
		WHERE user_id = $1 AND mood_before IS NOT NULL AND mood_after IS NOT NULL
	`, userID).Scan(&corr.SessionsWithMood, &corr.AverageMoodBefore,
		&corr.AverageMoodAfter, &corr.AverageImprovement)
	return corr, mapError(err)
}

func (s *Store) SessionsByDateRange(ctx context.Context, userID string, from, to time.Time) ([]session.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM breath_sessions
		WHERE user_id = $1 AND session_date >= $2 AND session_date <= $3
		ORDER BY session_date DESC
	`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	return collectSessions(rows)
}

func (s *Store) SessionsByTechnique(ctx context.Context, userID, technique string) ([]session.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM breath_sessions
		WHERE user_id = $1 AND technique_variant = $2
		ORDER BY session_date DESC
	`, userID, technique)
	if err != nil {
		return nil, mapError(err)
	}
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]session.Record, error) {
	defer rows.Close()

	var result []session.Record
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- AchievementStore -------------------------------------------------------

const definitionColumns = `id, name, description, category, rarity, icon, points,
	criteria_type, criteria_value, is_active, is_hidden, display_order,
	created_at, updated_at`

func scanDefinition(row interface{ Scan(...any) error }) (achievement.Definition, error) {
	var def achievement.Definition
	err := row.Scan(
		&def.ID, &def.Name, &def.Description, &def.Category, &def.Rarity, &def.Icon,
		&def.Points, &def.CriteriaType, &def.CriteriaValue, &def.IsActive,
		&def.IsHidden, &def.DisplayOrder, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return achievement.Definition{}, mapError(err)
	}
	return def, nil
}

func (s *Store) CreateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (id, name, description, category, rarity, icon,
			points, criteria_type, criteria_value, is_active, is_hidden,
			display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, def.ID, def.Name, def.Description, def.Category, def.Rarity, def.Icon,
		def.Points, def.CriteriaType, def.CriteriaValue, def.IsActive, def.IsHidden,
		def.DisplayOrder, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return achievement.Definition{}, mapError(err)
	}
	return def, nil
}

func (s *Store) UpdateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	def.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE achievements
		SET name = $2, description = $3, category = $4, rarity = $5, icon = $6,
			points = $7, criteria_type = $8, criteria_value = $9, is_active = $10,
			is_hidden = $11, display_order = $12, updated_at = $13
		WHERE id = $1
	`, def.ID, def.Name, def.Description, def.Category, def.Rarity, def.Icon,
		def.Points, def.CriteriaType, def.CriteriaValue, def.IsActive, def.IsHidden,
		def.DisplayOrder, def.UpdatedAt)
	if err != nil {
		return achievement.Definition{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return achievement.Definition{}, storage.ErrNotFound
	}
	return s.GetDefinition(ctx, def.ID)
}

func (s *Store) GetDefinition(ctx context.Context, id string) (achievement.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM achievements WHERE id = $1`, id)
	return scanDefinition(row)
}

func (s *Store) ListDefinitions(ctx context.Context, filter storage.DefinitionFilter) ([]achievement.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM achievements WHERE 1=1`
	var args []any

	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	if !filter.IncludeHidden {
		query += ` AND NOT is_hidden`
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.Rarity != "" {
		args = append(args, string(filter.Rarity))
		query += fmt.Sprintf(` AND rarity = $%d`, len(args))
	}
	query += ` ORDER BY display_order, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []achievement.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, def)
	}
	return result, rows.Err()
}

func (s *Store) SetDefinitionActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE achievements SET is_active = $2, updated_at = $3 WHERE id = $1
	`, id, active, time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) CountDefinitions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM achievements`).Scan(&count)
	return count, mapError(err)
}

func (s *Store) TotalPointsPossible(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM achievements WHERE is_active`,
	).Scan(&total)
	return total, mapError(err)
}

// --- UnlockStore ------------------------------------------------------------

func (s *Store) CreateUnlock(ctx context.Context, u achievement.Unlock) (achievement.Unlock, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.UnlockedAt.IsZero() {
		u.UnlockedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_achievements (id, user_id, achievement_id, progress_value, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.UserID, u.AchievementID, u.ProgressValue, u.UnlockedAt)
	if err != nil {
		return achievement.Unlock{}, mapError(err)
	}
	return u, nil
}

func (s *Store) ListUserUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, achievement_id, progress_value, unlocked_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []achievement.Unlock
	for rows.Next() {
		var u achievement.Unlock
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementID, &u.ProgressValue, &u.UnlockedAt); err != nil {
			return nil, mapError(err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) UserUnlockIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *Store) HasUnlock(ctx context.Context, userID, achievementID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_achievements WHERE user_id = $1 AND achievement_id = $2
		)
	`, userID, achievementID).Scan(&exists)
	return exists, mapError(err)
}

func (s *Store) TotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(a.points), 0)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = $1
	`, userID).Scan(&total)
	return total, mapError(err)
}

func (s *Store) RevokeUnlock(ctx context.Context, userID, achievementID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`,
		userID, achievementID)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TopUsersByPoints(ctx context.Context, limit int) ([]storage.PointsEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ua.user_id, COALESCE(SUM(a.points), 0), COUNT(*)
		FROM user_achievements ua
		JOIN achievements a ON a.id = ua.achievement_id
		GROUP BY ua.user_id
		ORDER BY COALESCE(SUM(a.points), 0) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []storage.PointsEntry
	for rows.Next() {
		var entry storage.PointsEntry
		if err := rows.Scan(&entry.UserID, &entry.TotalPoints, &entry.AchievementsCount); err != nil {
			return nil, mapError(err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
