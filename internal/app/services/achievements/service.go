// Package achievements manages the achievement catalog and awards unlocks
// when user statistics satisfy their criteria.
package achievements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/metrics"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/pkg/logger"
)

// criteriaTypes is the vocabulary of stat fields criteria may reference.
var criteriaTypes = map[string]bool{
	"total_sessions":       true,
	"total_retention_time": true,
	"best_retention_time":  true,
	"current_streak":       true,
	"longest_streak":       true,
}

// Unlocked pairs a freshly awarded unlock with its catalog entry.
type Unlocked struct {
	Achievement achievement.Definition `json:"achievement"`
	Unlock      achievement.Unlock     `json:"unlock"`
}

// UserAchievement is one catalog entry annotated with the user's standing.
type UserAchievement struct {
	Achievement   achievement.Definition `json:"achievement"`
	Unlocked      bool                   `json:"unlocked"`
	UnlockedAt    *time.Time             `json:"unlocked_at,omitempty"`
	ProgressValue int                    `json:"progress_value,omitempty"`
	Progress      *achievement.Progress  `json:"progress,omitempty"`
}

// UserAchievements is the cached per-user achievements view.
type UserAchievements struct {
	Achievements   []UserAchievement `json:"achievements"`
	UnlockedCount  int               `json:"unlocked_count"`
	TotalCount     int               `json:"total_count"`
	PointsEarned   int               `json:"points_earned"`
	PointsPossible int               `json:"points_possible"`
}

// CatalogStats summarises the catalog for admin dashboards.
type CatalogStats struct {
	Definitions    int `json:"definitions"`
	PointsPossible int `json:"points_possible"`
}

// Service manages the catalog and the unlock flow.
type Service struct {
	defs    storage.AchievementStore
	unlocks storage.UnlockStore
	users   storage.UserStore
	cache   cache.Client
	ttl     time.Duration
	log     *logger.Logger
}

// New constructs an achievements service.
func New(defs storage.AchievementStore, unlocks storage.UnlockStore, users storage.UserStore, c cache.Client, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("achievements")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{defs: defs, unlocks: unlocks, users: users, cache: c, ttl: ttl, log: log}
}

// CreateDefinition adds a catalog entry after validation.
func (s *Service) CreateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	if err := validateDefinition(&def); err != nil {
		return achievement.Definition{}, err
	}

	created, err := s.defs.CreateDefinition(ctx, def)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return achievement.Definition{}, fmt.Errorf("achievement %q already exists", def.Name)
		}
		return achievement.Definition{}, err
	}

	s.log.WithField("achievement_id", created.ID).WithField("name", created.Name).Info("achievement created")
	return created, nil
}

// UpdateDefinition replaces a catalog entry.
func (s *Service) UpdateDefinition(ctx context.Context, def achievement.Definition) (achievement.Definition, error) {
	if err := validateDefinition(&def); err != nil {
		return achievement.Definition{}, err
	}
	updated, err := s.defs.UpdateDefinition(ctx, def)
	if err != nil {
		return achievement.Definition{}, err
	}
	s.log.WithField("achievement_id", updated.ID).Info("achievement updated")
	return updated, nil
}

// SetActive enables or disables a catalog entry. Disabled entries stop
// unlocking but existing unlocks are untouched.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.defs.SetDefinitionActive(ctx, id, active); err != nil {
		return err
	}
	s.log.WithField("achievement_id", id).WithField("active", active).Info("achievement state changed")
	return nil
}

// Get returns one catalog entry.
func (s *Service) Get(ctx context.Context, id string) (achievement.Definition, error) {
	return s.defs.GetDefinition(ctx, id)
}

// Catalog lists catalog entries.
func (s *Service) Catalog(ctx context.Context, filter storage.DefinitionFilter) ([]achievement.Definition, error) {
	return s.defs.ListDefinitions(ctx, filter)
}

// Stats summarises the catalog.
func (s *Service) Stats(ctx context.Context) (CatalogStats, error) {
	count, err := s.defs.CountDefinitions(ctx)
	if err != nil {
		return CatalogStats{}, err
	}
	points, err := s.defs.TotalPointsPossible(ctx)
	if err != nil {
		return CatalogStats{}, err
	}
	return CatalogStats{Definitions: count, PointsPossible: points}, nil
}

// CheckAndUnlock evaluates every active catalog entry against the user's
// current statistics and awards the ones newly satisfied. It is idempotent:
// the unique (user, achievement) constraint makes a concurrent duplicate a
// silent no-op. A missing user yields no unlocks rather than an error.
func (s *Service) CheckAndUnlock(ctx context.Context, userID string) ([]Unlocked, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	defs, err := s.defs.ListDefinitions(ctx, storage.DefinitionFilter{ActiveOnly: true, IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	unlockedIDs, err := s.unlocks.UserUnlockIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := u.Stats.Snapshot()

	var awarded []Unlocked
	for _, def := range achievement.Unlockable(defs, unlockedIDs, stats) {
		unlock, err := s.unlocks.CreateUnlock(ctx, achievement.Unlock{
			UserID:        userID,
			AchievementID: def.ID,
			ProgressValue: stats[def.CriteriaType],
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				continue
			}
			return awarded, err
		}
		awarded = append(awarded, Unlocked{Achievement: def, Unlock: unlock})
		s.log.WithField("user_id", userID).
			WithField("achievement_id", def.ID).
			WithField("name", def.Name).
			Info("achievement unlocked")
	}

	if len(awarded) > 0 {
		_ = s.cache.DeletePattern(ctx, cache.StatsPattern(userID))
	}
	return awarded, nil
}

// ForUser returns the user's achievements view: every visible catalog entry
// with unlock state, plus progress toward the locked ones. The view is cached.
func (s *Service) ForUser(ctx context.Context, userID string) (UserAchievements, error) {
	key := cache.StatsKey(userID, "achievements")

	var cached UserAchievements
	if s.cache.GetJSON(ctx, key, &cached) {
		metrics.RecordCacheLookup("achievements", true)
		return cached, nil
	}
	metrics.RecordCacheLookup("achievements", false)

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return UserAchievements{}, err
	}

	defs, err := s.defs.ListDefinitions(ctx, storage.DefinitionFilter{ActiveOnly: true, IncludeHidden: true})
	if err != nil {
		return UserAchievements{}, err
	}
	unlockList, err := s.unlocks.ListUserUnlocks(ctx, userID)
	if err != nil {
		return UserAchievements{}, err
	}
	earned, err := s.unlocks.TotalPoints(ctx, userID)
	if err != nil {
		return UserAchievements{}, err
	}

	unlockByID := make(map[string]achievement.Unlock, len(unlockList))
	for _, unlock := range unlockList {
		unlockByID[unlock.AchievementID] = unlock
	}

	stats := u.Stats.Snapshot()
	view := UserAchievements{Achievements: []UserAchievement{}, PointsEarned: earned}

	for _, def := range defs {
		view.PointsPossible += def.Points

		if unlock, ok := unlockByID[def.ID]; ok {
			at := unlock.UnlockedAt
			view.Achievements = append(view.Achievements, UserAchievement{
				Achievement:   def,
				Unlocked:      true,
				UnlockedAt:    &at,
				ProgressValue: unlock.ProgressValue,
			})
			view.UnlockedCount++
			continue
		}

		// Hidden entries stay out of the view until earned.
		if def.IsHidden {
			continue
		}
		progress := achievement.ProgressToward(def, stats)
		view.Achievements = append(view.Achievements, UserAchievement{
			Achievement: def,
			Progress:    &progress,
		})
	}
	view.TotalCount = len(view.Achievements)

	_ = s.cache.SetJSON(ctx, key, view, s.ttl)
	return view, nil
}

// Revoke removes a user's unlock, typically to correct an erroneous award.
func (s *Service) Revoke(ctx context.Context, userID, achievementID string) error {
	if err := s.unlocks.RevokeUnlock(ctx, userID, achievementID); err != nil {
		return err
	}
	_ = s.cache.DeletePattern(ctx, cache.StatsPattern(userID))
	s.log.WithField("user_id", userID).WithField("achievement_id", achievementID).Info("achievement revoked")
	return nil
}

// Seed populates an empty catalog with the default achievements. A non-empty
// catalog is left untouched.
func (s *Service) Seed(ctx context.Context) (int, error) {
	count, err := s.defs.CountDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.WithField("existing", count).Info("catalog already seeded")
		return 0, nil
	}

	created := 0
	for _, def := range DefaultCatalog() {
		if _, err := s.defs.CreateDefinition(ctx, def); err != nil {
			return created, fmt.Errorf("seed %q: %w", def.Name, err)
		}
		created++
	}
	s.log.WithField("count", created).Info("catalog seeded")
	return created, nil
}

func validateDefinition(def *achievement.Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)

	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if def.Points < 0 {
		return fmt.Errorf("points must not be negative")
	}
	if def.CriteriaValue <= 0 {
		return fmt.Errorf("criteria_value must be positive")
	}
	if !criteriaTypes[def.CriteriaType] {
		return fmt.Errorf("unknown criteria_type %q", def.CriteriaType)
	}

	switch def.Category {
	case achievement.CategorySessions, achievement.CategoryRetention,
		achievement.CategoryStreak, achievement.CategoryImprovement,
		achievement.CategoryMilestone:
	default:
		return fmt.Errorf("unknown category %q", def.Category)
	}
	switch def.Rarity {
	case achievement.RarityCommon, achievement.RarityRare,
		achievement.RarityEpic, achievement.RarityLegendary:
	default:
		return fmt.Errorf("unknown rarity %q", def.Rarity)
	}
	return nil
}
