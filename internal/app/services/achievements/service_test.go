package achievements

import (
	"context"
	"testing"
	"time"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *cache.Memory) {
	t.Helper()
	store := memory.New()
	c := cache.NewMemory()
	svc := New(store, store, store, c, time.Minute, nil)
	return svc, store, c
}

func seedUser(t *testing.T, store *memory.Store, agg user.Aggregate) user.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), user.User{
		Email: "tester@example.com", Username: "tester", IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.UpdateUserAggregate(context.Background(), u.ID, agg); err != nil {
		t.Fatalf("set aggregate: %v", err)
	}
	u.Stats = agg
	return u
}

func mustCreate(t *testing.T, svc *Service, def achievement.Definition) achievement.Definition {
	t.Helper()
	created, err := svc.CreateDefinition(context.Background(), def)
	if err != nil {
		t.Fatalf("create definition %q: %v", def.Name, err)
	}
	return created
}

func sessionsDef(name string, threshold int) achievement.Definition {
	return achievement.Definition{
		Name:          name,
		Category:      achievement.CategorySessions,
		Rarity:        achievement.RarityCommon,
		Points:        25,
		CriteriaType:  "total_sessions",
		CriteriaValue: threshold,
		IsActive:      true,
	}
}

func TestCheckAndUnlock_AwardsSatisfiedCriteria(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	mustCreate(t, svc, sessionsDef("First Breath", 1))
	ten := mustCreate(t, svc, sessionsDef("Ten Sessions", 10))
	mustCreate(t, svc, sessionsDef("Fifty Sessions", 50))

	u := seedUser(t, store, user.Aggregate{TotalSessions: 10})

	awarded, err := svc.CheckAndUnlock(ctx, u.ID)
	if err != nil {
		t.Fatalf("check and unlock: %v", err)
	}
	if len(awarded) != 2 {
		t.Fatalf("expected 2 unlocks, got %d", len(awarded))
	}
	for _, a := range awarded {
		if a.Unlock.UserID != u.ID {
			t.Fatalf("unlock recorded for wrong user: %s", a.Unlock.UserID)
		}
	}

	// The 10-session unlock must record the stat value that satisfied it.
	if awarded[1].Achievement.ID != ten.ID || awarded[1].Unlock.ProgressValue != 10 {
		t.Fatalf("unexpected second unlock: %#v", awarded[1])
	}
}

func TestCheckAndUnlock_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	mustCreate(t, svc, sessionsDef("First Breath", 1))
	u := seedUser(t, store, user.Aggregate{TotalSessions: 3})

	first, err := svc.CheckAndUnlock(ctx, u.ID)
	if err != nil || len(first) != 1 {
		t.Fatalf("first pass: %v (%d unlocks)", err, len(first))
	}

	second, err := svc.CheckAndUnlock(ctx, u.ID)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second pass must award nothing, got %d", len(second))
	}
}

func TestCheckAndUnlock_MissingUserIsNoop(t *testing.T) {
	svc, _, _ := newService(t)

	awarded, err := svc.CheckAndUnlock(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("missing user should not error: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("missing user should award nothing")
	}
}

func TestCheckAndUnlock_InvalidatesStatsCache(t *testing.T) {
	ctx := context.Background()
	svc, store, c := newService(t)

	mustCreate(t, svc, sessionsDef("First Breath", 1))
	u := seedUser(t, store, user.Aggregate{TotalSessions: 1})

	if err := c.SetString(ctx, cache.StatsKey(u.ID, "summary"), "stale", time.Minute); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if _, err := svc.CheckAndUnlock(ctx, u.ID); err != nil {
		t.Fatalf("check and unlock: %v", err)
	}
	if _, ok := c.GetString(ctx, cache.StatsKey(u.ID, "summary")); ok {
		t.Fatalf("stats cache should be invalidated after an unlock")
	}
}

func TestForUser_ProgressAndPoints(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	mustCreate(t, svc, sessionsDef("First Breath", 1))
	mustCreate(t, svc, sessionsDef("Ten Sessions", 10))
	hidden := sessionsDef("Secret Milestone", 100)
	hidden.IsHidden = true
	mustCreate(t, svc, hidden)

	u := seedUser(t, store, user.Aggregate{TotalSessions: 4})
	if _, err := svc.CheckAndUnlock(ctx, u.ID); err != nil {
		t.Fatalf("check and unlock: %v", err)
	}

	view, err := svc.ForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if view.UnlockedCount != 1 || view.PointsEarned != 25 {
		t.Fatalf("unexpected counts: %#v", view)
	}
	// Hidden and locked entries stay out of the view.
	if view.TotalCount != 2 {
		t.Fatalf("expected 2 visible entries, got %d", view.TotalCount)
	}

	var locked *UserAchievement
	for i := range view.Achievements {
		if !view.Achievements[i].Unlocked {
			locked = &view.Achievements[i]
		}
	}
	if locked == nil || locked.Progress == nil {
		t.Fatalf("locked entry should carry progress")
	}
	if locked.Progress.Current != 4 || locked.Progress.Percentage != 40 {
		t.Fatalf("unexpected progress: %#v", locked.Progress)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	def := mustCreate(t, svc, sessionsDef("First Breath", 1))
	u := seedUser(t, store, user.Aggregate{TotalSessions: 1})

	if _, err := svc.CheckAndUnlock(ctx, u.ID); err != nil {
		t.Fatalf("check and unlock: %v", err)
	}
	if err := svc.Revoke(ctx, u.ID, def.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	has, err := store.HasUnlock(ctx, u.ID, def.ID)
	if err != nil || has {
		t.Fatalf("unlock should be gone (has=%v err=%v)", has, err)
	}

	// Revoking makes the achievement earnable again.
	awarded, err := svc.CheckAndUnlock(ctx, u.ID)
	if err != nil || len(awarded) != 1 {
		t.Fatalf("re-unlock after revoke: %v (%d)", err, len(awarded))
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	created, err := svc.Seed(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != len(DefaultCatalog()) {
		t.Fatalf("expected %d seeded, got %d", len(DefaultCatalog()), created)
	}

	// A second seed run leaves the catalog untouched.
	again, err := svc.Seed(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second seed should be a no-op, got %d (%v)", again, err)
	}
}

func TestCreateDefinition_Validation(t *testing.T) {
	svc, _, _ := newService(t)

	bad := []achievement.Definition{
		{Name: "", Category: achievement.CategorySessions, Rarity: achievement.RarityCommon, CriteriaType: "total_sessions", CriteriaValue: 1},
		{Name: "X", Category: "weird", Rarity: achievement.RarityCommon, CriteriaType: "total_sessions", CriteriaValue: 1},
		{Name: "X", Category: achievement.CategorySessions, Rarity: "mythic", CriteriaType: "total_sessions", CriteriaValue: 1},
		{Name: "X", Category: achievement.CategorySessions, Rarity: achievement.RarityCommon, CriteriaType: "nonsense", CriteriaValue: 1},
		{Name: "X", Category: achievement.CategorySessions, Rarity: achievement.RarityCommon, CriteriaType: "total_sessions", CriteriaValue: 0},
	}
	for i, def := range bad {
		if _, err := svc.CreateDefinition(context.Background(), def); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
