// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/session"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage"
)

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu          sync.RWMutex
	users       map[string]user.User
	sessions    map[string]session.Record
	definitions map[string]achievement.Definition
	defOrder    []string
	unlocks     map[string]achievement.Unlock
	unlockByKey map[string]string // userID+"/"+achievementID -> unlock ID
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)
var _ storage.UnlockStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]user.User),
		sessions:    make(map[string]session.Record),
		definitions: make(map[string]achievement.Definition),
		unlocks:     make(map[string]achievement.Unlock),
		unlockByKey: make(map[string]string),
	}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Username, u.Username) {
			return user.User{}, storage.ErrDuplicate
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	for _, other := range s.users {
		if other.ID == u.ID || other.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) || strings.EqualFold(other.Username, u.Username) {
			return user.User{}, storage.ErrDuplicate
		}
	}
	u.CreatedAt = existing.CreatedAt
	u.Stats = existing.Stats
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUserAggregate(ctx context.Context, userID string, agg user.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.Stats = agg
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		if u.DeletedAt != nil || !u.IsActive {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	s.users[id] = u
	return nil
}

func (s *Store) TopUsersByRetention(ctx context.Context, limit int) ([]user.User, error) {
	return s.topUsers(limit,
		func(u user.User) bool { return u.Stats.BestRetentionTime > 0 },
		func(a, b user.User) bool { return a.Stats.BestRetentionTime > b.Stats.BestRetentionTime },
	), nil
}

func (s *Store) TopUsersByStreak(ctx context.Context, limit int) ([]user.User, error) {
	return s.topUsers(limit,
		func(u user.User) bool { return u.Stats.CurrentStreak > 0 },
		func(a, b user.User) bool { return a.Stats.CurrentStreak > b.Stats.CurrentStreak },
	), nil
}

func (s *Store) MostActiveUsers(ctx context.Context, limit int) ([]user.User, error) {
	return s.topUsers(limit,
		func(u user.User) bool { return u.Stats.TotalSessions > 0 },
		func(a, b user.User) bool { return a.Stats.TotalSessions > b.Stats.TotalSessions },
	), nil
}

func (s *Store) topUsers(limit int, keep func(user.User) bool, less func(a, b user.User) bool) []user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		if u.DeletedAt == nil && u.IsActive && keep(u) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return less(result[i], result[j]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// --- SessionStore -----------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, rec session.Record) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.SessionDate.IsZero() {
		rec.SessionDate = now
	}
	s.sessions[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetUserSession(ctx context.Context, userID, sessionID string) (session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok || rec.UserID != userID {
		return session.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListUserSessions(ctx context.Context, userID string, opts storage.ListOptions) ([]session.Record, error) {
	recs := s.userSessions(userID)

	less := func(a, b session.Record) bool { return a.SessionDate.Before(b.SessionDate) }
	if opts.OrderBy == "retention_time" {
		less = func(a, b session.Record) bool { return a.RetentionTime < b.RetentionTime }
	}
	sort.Slice(recs, func(i, j int) bool {
		if opts.Descending {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[opts.Offset:]
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func (s *Store) CountUserSessions(ctx context.Context, userID string) (int, error) {
	return len(s.userSessions(userID)), nil
}

func (s *Store) UpdateSession(ctx context.Context, rec session.Record) (session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[rec.ID]
	if !ok {
		return session.Record{}, storage.ErrNotFound
	}
	rec.UserID = existing.UserID
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.sessions[rec.ID] = rec
	return rec, nil
}

func (s *Store) DeleteUserSession(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok || rec.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) TotalStats(ctx context.Context, userID string) (session.TotalStats, error) {
	recs := s.userSessions(userID)

	var stats session.TotalStats
	for _, rec := range recs {
		stats.TotalSessions++
		stats.TotalRetentionTime += rec.RetentionTime
		stats.TotalBreaths += rec.BreathsCount
		if rec.RetentionTime > stats.BestRetentionTime {
			stats.BestRetentionTime = rec.RetentionTime
		}
	}
	if stats.TotalSessions > 0 {
		stats.AverageRetentionTime = float64(stats.TotalRetentionTime) / float64(stats.TotalSessions)
	}
	return stats, nil
}

func (s *Store) PeriodStats(ctx context.Context, userID string, days int) (session.PeriodStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var stats session.PeriodStats
	for _, rec := range s.userSessions(userID) {
		if rec.SessionDate.Before(cutoff) {
			continue
		}
		stats.SessionsCount++
		stats.TotalRetentionTime += rec.RetentionTime
		if rec.RetentionTime > stats.BestRetentionTime {
			stats.BestRetentionTime = rec.RetentionTime
		}
	}
	if stats.SessionsCount > 0 {
		stats.AverageRetentionTime = float64(stats.TotalRetentionTime) / float64(stats.SessionsCount)
	}
	return stats, nil
}

func (s *Store) DailyProgress(ctx context.Context, userID string, days int) ([]session.DailyBucket, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	buckets := make(map[string]*session.DailyBucket)
	for _, rec := range s.userSessions(userID) {
		if rec.SessionDate.Before(cutoff) {
			continue
		}
		key := rec.SessionDate.UTC().Format("2006-01-02")
		bucket, ok := buckets[key]
		if !ok {
			bucket = &session.DailyBucket{Date: key}
			buckets[key] = bucket
		}
		bucket.SessionsCount++
		bucket.TotalRetentionTime += rec.RetentionTime
		if rec.RetentionTime > bucket.BestRetentionTime {
			bucket.BestRetentionTime = rec.RetentionTime
		}
	}

	result := make([]session.DailyBucket, 0, len(buckets))
	for _, bucket := range buckets {
		bucket.AverageRetentionTime = float64(bucket.TotalRetentionTime) / float64(bucket.SessionsCount)
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (s *Store) WeeklyProgress(ctx context.Context, userID string, weeks int) ([]session.WeeklyBucket, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -7*weeks)

	type acc struct {
		count int
		total int
		best  int
	}
	buckets := make(map[string]*acc)
	for _, rec := range s.userSessions(userID) {
		if rec.SessionDate.Before(cutoff) {
			continue
		}
		key := weekStart(rec.SessionDate).Format("2006-01-02")
		bucket, ok := buckets[key]
		if !ok {
			bucket = &acc{}
			buckets[key] = bucket
		}
		bucket.count++
		bucket.total += rec.RetentionTime
		if rec.RetentionTime > bucket.best {
			bucket.best = rec.RetentionTime
		}
	}

	result := make([]session.WeeklyBucket, 0, len(buckets))
	for key, bucket := range buckets {
		result = append(result, session.WeeklyBucket{
			WeekStart:            key,
			SessionsCount:        bucket.count,
			AverageRetentionTime: float64(bucket.total) / float64(bucket.count),
			BestRetentionTime:    bucket.best,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].WeekStart < result[j].WeekStart })
	return result, nil
}

func (s *Store) PersonalBest(ctx context.Context, userID string) (session.Record, error) {
	recs := s.userSessions(userID)
	if len(recs) == 0 {
		return session.Record{}, storage.ErrNotFound
	}

	best := recs[0]
	for _, rec := range recs[1:] {
		if rec.RetentionTime > best.RetentionTime {
			best = rec
		}
	}
	return best, nil
}

func (s *Store) RecentPersonalBests(ctx context.Context, userID string, days int) ([]session.Record, error) {
	recs := s.userSessions(userID)
	sort.Slice(recs, func(i, j int) bool { return recs[i].SessionDate.Before(recs[j].SessionDate) })

	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var result []session.Record
	runningMax := 0
	for i, rec := range recs {
		if i > 0 && !rec.SessionDate.Before(cutoff) && rec.RetentionTime > runningMax {
			result = append(result, rec)
		}
		if rec.RetentionTime > runningMax {
			runningMax = rec.RetentionTime
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SessionDate.After(result[j].SessionDate) })
	return result, nil
}

func (s *Store) MoodCorrelation(ctx context.Context, userID string) (session.MoodCorrelation, error) {
	var corr session.MoodCorrelation
	var sumBefore, sumAfter int
	for _, rec := range s.userSessions(userID) {
		if rec.MoodBefore == nil || rec.MoodAfter == nil {
			continue
		}
		corr.SessionsWithMood++
		sumBefore += *rec.MoodBefore
		sumAfter += *rec.MoodAfter
	}
	if corr.SessionsWithMood > 0 {
		corr.AverageMoodBefore = float64(sumBefore) / float64(corr.SessionsWithMood)
		corr.AverageMoodAfter = float64(sumAfter) / float64(corr.SessionsWithMood)
		corr.AverageImprovement = corr.AverageMoodAfter - corr.AverageMoodBefore
	}
	return corr, nil
}

func (s *Store) SessionsByDateRange(ctx context.Context, userID string, from, to time.Time) ([]session.Record, error) {
	var result []session.Record
	for _, rec := range s.userSessions(userID) {
		if rec.SessionDate.Before(from) || rec.SessionDate.After(to) {
			continue
		}
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SessionDate.After(result[j].SessionDate) })
	return result, nil
}

func (s *Store) SessionsByTechnique(ctx context.Context, userID, technique string) ([]session.Record, error) {
	var result []session.Record
	for _, rec := range s.userSessions(userID) {
		if rec.TechniqueVariant == technique {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SessionDate.After(result[j].SessionDate) })
	return result, nil
}

func (s *Store) userSessions(userID string) []session.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []session.Record
	for _, rec := range s.sessions {
		if rec.UserID == userID {
			result = append(result, rec)
		}
	}
	return result
}

// weekStart returns the Monday of the timestamp's ISO week.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := t.AddDate(0, 0, 1-weekday)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// --- AchievementStore -------------------------------------------------------

func (s *Store) CreateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.definitions {
		if strings.EqualFold(existing.Name, def.Name) {
			return achievement.Definition{}, storage.ErrDuplicate
		}
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now
	s.definitions[def.ID] = def
	s.defOrder = append(s.defOrder, def.ID)
	return def, nil
}

func (s *Store) UpdateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.definitions[def.ID]
	if !ok {
		return achievement.Definition{}, storage.ErrNotFound
	}
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now().UTC()
	s.definitions[def.ID] = def
	return def, nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (achievement.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return achievement.Definition{}, storage.ErrNotFound
	}
	return def, nil
}

func (s *Store) ListDefinitions(ctx context.Context, filter storage.DefinitionFilter) ([]achievement.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []achievement.Definition
	for _, id := range s.defOrder {
		def := s.definitions[id]
		if filter.ActiveOnly && !def.IsActive {
			continue
		}
		if !filter.IncludeHidden && def.IsHidden {
			continue
		}
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.Rarity != "" && def.Rarity != filter.Rarity {
			continue
		}
		result = append(result, def)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].DisplayOrder != result[j].DisplayOrder {
			return result[i].DisplayOrder < result[j].DisplayOrder
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) SetDefinitionActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.definitions[id]
	if !ok {
		return storage.ErrNotFound
	}
	def.IsActive = active
	def.UpdatedAt = time.Now().UTC()
	s.definitions[id] = def
	return nil
}

func (s *Store) CountDefinitions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.definitions), nil
}

func (s *Store) TotalPointsPossible(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, def := range s.definitions {
		if def.IsActive {
			total += def.Points
		}
	}
	return total, nil
}

// --- UnlockStore ------------------------------------------------------------

func (s *Store) CreateUnlock(ctx context.Context, u achievement.Unlock) (achievement.Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := u.UserID + "/" + u.AchievementID
	if _, exists := s.unlockByKey[key]; exists {
		return achievement.Unlock{}, storage.ErrDuplicate
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.UnlockedAt.IsZero() {
		u.UnlockedAt = time.Now().UTC()
	}
	s.unlocks[u.ID] = u
	s.unlockByKey[key] = u.ID
	return u, nil
}

func (s *Store) ListUserUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []achievement.Unlock
	for _, u := range s.unlocks {
		if u.UserID == userID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UnlockedAt.After(result[j].UnlockedAt) })
	return result, nil
}

func (s *Store) UserUnlockIDs(ctx context.Context, userID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool)
	for _, u := range s.unlocks {
		if u.UserID == userID {
			ids[u.AchievementID] = true
		}
	}
	return ids, nil
}

func (s *Store) HasUnlock(ctx context.Context, userID, achievementID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.unlockByKey[userID+"/"+achievementID]
	return ok, nil
}

func (s *Store) TotalPoints(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, u := range s.unlocks {
		if u.UserID == userID {
			if def, ok := s.definitions[u.AchievementID]; ok {
				total += def.Points
			}
		}
	}
	return total, nil
}

func (s *Store) RevokeUnlock(ctx context.Context, userID, achievementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "/" + achievementID
	id, ok := s.unlockByKey[key]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.unlocks, id)
	delete(s.unlockByKey, key)
	return nil
}

func (s *Store) TopUsersByPoints(ctx context.Context, limit int) ([]storage.PointsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string]*storage.PointsEntry)
	for _, u := range s.unlocks {
		entry, ok := byUser[u.UserID]
		if !ok {
			entry = &storage.PointsEntry{UserID: u.UserID}
			byUser[u.UserID] = entry
		}
		entry.AchievementsCount++
		if def, ok := s.definitions[u.AchievementID]; ok {
			entry.TotalPoints += def.Points
		}
	}

	result := make([]storage.PointsEntry, 0, len(byUser))
	for _, entry := range byUser {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TotalPoints > result[j].TotalPoints })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
