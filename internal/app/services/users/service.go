// Package users manages profiles, account lifecycle and the leaderboards.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/metrics"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/pkg/logger"
)

// ErrWrongPassword is returned when a password change presents the wrong
// current password.
var ErrWrongPassword = errors.New("current password is incorrect")

// ProfileUpdate carries the mutable profile fields. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"full_name,omitempty"`
}

// LeaderboardEntry is one public leaderboard row.
type LeaderboardEntry struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	BestRetentionTime int    `json:"best_retention_time"`
	CurrentStreak     int    `json:"current_streak"`
	TotalSessions     int    `json:"total_sessions"`
}

// PointsLeaderboardEntry is one row of the achievement points leaderboard.
type PointsLeaderboardEntry struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	TotalPoints       int    `json:"total_points"`
	AchievementsCount int    `json:"achievements_count"`
}

// Service manages user accounts.
type Service struct {
	store   storage.UserStore
	unlocks storage.UnlockStore
	cache   cache.Client
	ttl     time.Duration
	log     *logger.Logger
}

// New constructs a users service. unlocks may be nil, which disables the
// points leaderboard.
func New(store storage.UserStore, unlocks storage.UnlockStore, c cache.Client, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, unlocks: unlocks, cache: c, ttl: ttl, log: log}
}

// Get returns a user by ID. Soft-deleted accounts read as not found.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if u.DeletedAt != nil {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

// GetProfile returns the user with their statistics, served from the cache
// when warm.
func (s *Service) GetProfile(ctx context.Context, id string) (user.User, error) {
	key := cache.StatsKey(id, "full")

	var cached user.User
	if s.cache.GetJSON(ctx, key, &cached) {
		metrics.RecordCacheLookup("full", true)
		return cached, nil
	}
	metrics.RecordCacheLookup("full", false)

	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	_ = s.cache.SetJSON(ctx, key, u, s.ttl)
	return u, nil
}

// UpdateProfile changes the mutable profile fields and invalidates the
// user's cached views.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if in.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*in.Username))
		if len(username) < 3 || len(username) > 30 {
			return user.User{}, fmt.Errorf("username must be 3-30 characters")
		}
		if username != u.Username {
			existing, err := s.store.GetUserByUsername(ctx, username)
			if err == nil && existing.ID != id {
				return user.User{}, fmt.Errorf("username already taken")
			}
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return user.User{}, err
			}
		}
		u.Username = username
	}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return user.User{}, fmt.Errorf("username already taken")
		}
		return user.User{}, err
	}

	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	s.log.WithField("user_id", id).Info("profile updated")
	return updated, nil
}

// UpdatePassword verifies the current password and stores a new hash.
func (s *Service) UpdatePassword(ctx context.Context, id, current, next string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	if len(next) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	s.log.WithField("user_id", id).Info("password changed")
	return nil
}

// UpdateAvatar stores a new avatar URL.
func (s *Service) UpdateAvatar(ctx context.Context, id, avatarURL string) (user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.AvatarURL = strings.TrimSpace(avatarURL)

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	return updated, nil
}

// VerifyEmail marks the account's email as verified.
func (s *Service) VerifyEmail(ctx context.Context, id string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	u.IsVerified = true
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	s.log.WithField("user_id", id).Info("email verified")
	return nil
}

// Deactivate disables an account without deleting its data.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.store.SetUserActive(ctx, id, false); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	s.log.WithField("user_id", id).Info("account deactivated")
	return nil
}

// Activate re-enables a deactivated account.
func (s *Service) Activate(ctx context.Context, id string) error {
	if err := s.store.SetUserActive(ctx, id, true); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	s.log.WithField("user_id", id).Info("account activated")
	return nil
}

// Delete soft-deletes an account. Session history is retained for potential
// restoration but the account disappears from all public surfaces.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.SoftDeleteUser(ctx, id); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(id))
	_ = s.cache.Delete(ctx, cache.RefreshTokenKey(id))
	s.log.WithField("user_id", id).Info("account deleted")
	return nil
}

// Search finds active users by username substring.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]user.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.store.SearchUsers(ctx, query, limit)
}

// TopByRetention returns the best-retention leaderboard.
func (s *Service) TopByRetention(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := s.store.TopUsersByRetention(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return toEntries(users), nil
}

// TopByStreak returns the current-streak leaderboard.
func (s *Service) TopByStreak(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := s.store.TopUsersByStreak(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return toEntries(users), nil
}

// MostActive returns the total-sessions leaderboard.
func (s *Service) MostActive(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	users, err := s.store.MostActiveUsers(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return toEntries(users), nil
}

// TopByPoints returns the achievement points leaderboard.
func (s *Service) TopByPoints(ctx context.Context, limit int) ([]PointsLeaderboardEntry, error) {
	if s.unlocks == nil {
		return []PointsLeaderboardEntry{}, nil
	}

	rows, err := s.unlocks.TopUsersByPoints(ctx, clampLimit(limit))
	if err != nil {
		return nil, err
	}

	entries := make([]PointsLeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entry := PointsLeaderboardEntry{
			UserID:            row.UserID,
			TotalPoints:       row.TotalPoints,
			AchievementsCount: row.AchievementsCount,
		}
		// Deleted or deactivated users drop off the board.
		u, err := s.store.GetUser(ctx, row.UserID)
		if err != nil || u.DeletedAt != nil || !u.IsActive {
			continue
		}
		entry.Username = u.Username
		entry.AvatarURL = u.AvatarURL
		entries = append(entries, entry)
	}
	return entries, nil
}

func toEntries(users []user.User) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{
			UserID:            u.ID,
			Username:          u.Username,
			AvatarURL:         u.AvatarURL,
			BestRetentionTime: u.Stats.BestRetentionTime,
			CurrentStreak:     u.Stats.CurrentStreak,
			TotalSessions:     u.Stats.TotalSessions,
		})
	}
	return entries
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}
