package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/breathtrack/backend/internal/app/cache"
	"github.com/breathtrack/backend/internal/app/domain/achievement"
	"github.com/breathtrack/backend/internal/app/domain/user"
	"github.com/breathtrack/backend/internal/app/services/achievements"
	"github.com/breathtrack/backend/internal/app/storage"
	"github.com/breathtrack/backend/internal/app/storage/memory"
)

type fixture struct {
	svc   *Service
	achv  *achievements.Service
	store *memory.Store
	cache *cache.Memory
	user  user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	c := cache.NewMemory()
	achv := achievements.New(store, store, store, c, time.Minute, nil)
	svc := New(store, store, achv, c, time.Minute, nil)

	u, err := store.CreateUser(ctx, user.User{
		Email: "tester@example.com", Username: "tester", IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &fixture{svc: svc, achv: achv, store: store, cache: c, user: u}
}

func (f *fixture) record(t *testing.T, retention int, date time.Time) CreateResult {
	t.Helper()
	result, err := f.svc.Create(context.Background(), f.user.ID, CreateInput{
		BreathsCount:    30,
		RetentionTime:   retention,
		DurationSeconds: 600,
		SessionDate:     &date,
	})
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	return result
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC)
}

func TestCreate_UpdatesAggregate(t *testing.T) {
	f := newFixture(t)

	result := f.record(t, 60, day(1))
	if result.Stats.TotalSessions != 1 || result.Stats.CurrentStreak != 1 {
		t.Fatalf("unexpected aggregate: %#v", result.Stats)
	}

	result = f.record(t, 90, day(2))
	if result.Stats.TotalSessions != 2 || result.Stats.CurrentStreak != 2 {
		t.Fatalf("unexpected aggregate after day 2: %#v", result.Stats)
	}
	if result.Stats.BestRetentionTime != 90 {
		t.Fatalf("best retention should be 90, got %d", result.Stats.BestRetentionTime)
	}
}

func TestCreate_TenthSessionUnlocksAchievement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.achv.CreateDefinition(ctx, achievement.Definition{
		Name: "Ten Sessions", Category: achievement.CategorySessions,
		Rarity: achievement.RarityCommon, Points: 25,
		CriteriaType: "total_sessions", CriteriaValue: 10, IsActive: true,
	}); err != nil {
		t.Fatalf("create definition: %v", err)
	}

	for d := 1; d <= 9; d++ {
		if result := f.record(t, 60, day(d)); len(result.NewAchievements) != 0 {
			t.Fatalf("day %d: no achievement expected yet, got %d", d, len(result.NewAchievements))
		}
	}

	result := f.record(t, 60, day(10))
	if len(result.NewAchievements) != 1 {
		t.Fatalf("tenth session should unlock exactly one achievement, got %d", len(result.NewAchievements))
	}
	unlock := result.NewAchievements[0]
	if unlock.Achievement.Name != "Ten Sessions" || unlock.Unlock.ProgressValue != 10 {
		t.Fatalf("unexpected unlock: %#v", unlock)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := []CreateInput{
		{BreathsCount: 0, RetentionTime: 60, DurationSeconds: 600},
		{BreathsCount: 30, RetentionTime: -1, DurationSeconds: 600},
		{BreathsCount: 30, RetentionTime: 60, DurationSeconds: 0},
		{BreathsCount: 30, RetentionTime: 60, DurationSeconds: 600, MoodBefore: intp(0)},
		{BreathsCount: 30, RetentionTime: 60, DurationSeconds: 600, MoodAfter: intp(11)},
	}
	for i, in := range bad {
		if _, err := f.svc.Create(ctx, f.user.ID, in); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestCreate_InvalidatesSummaryCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 60, day(1))
	first, err := f.svc.GetSummary(ctx, f.user.ID)
	if err != nil || first.TotalSessions != 1 {
		t.Fatalf("summary: %v (%#v)", err, first)
	}

	f.record(t, 60, day(2))
	second, err := f.svc.GetSummary(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if second.TotalSessions != 2 {
		t.Fatalf("summary served stale data after write: %#v", second)
	}
}

func TestGetSummary_EmptyHistoryReturnsZeros(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.GetSummary(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("summary with no sessions must not error: %v", err)
	}
	if summary.TotalSessions != 0 || summary.AverageRetentionTime != 0 || summary.BestRetentionTime != 0 {
		t.Fatalf("empty history should be all zeros: %#v", summary)
	}
	if summary.Last7Days.SessionsCount != 0 || summary.Last30Days.SessionsCount != 0 {
		t.Fatalf("period stats should be zeros: %#v", summary)
	}
}

func TestUpdateAnnotations_OnlyAnnotationsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.record(t, 60, day(1)).Session

	notes := "felt calm"
	updated, err := f.svc.UpdateAnnotations(ctx, f.user.ID, created.ID, UpdateInput{
		Notes:      &notes,
		MoodBefore: intp(4),
		MoodAfter:  intp(8),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Notes != "felt calm" || *updated.MoodBefore != 4 || *updated.MoodAfter != 8 {
		t.Fatalf("annotations not applied: %#v", updated)
	}
	if updated.RetentionTime != 60 || updated.BreathsCount != 30 {
		t.Fatalf("metrics must be immutable: %#v", updated)
	}

	if _, err := f.svc.UpdateAnnotations(ctx, f.user.ID, created.ID, UpdateInput{MoodAfter: intp(42)}); err == nil {
		t.Fatalf("out-of-range mood must be rejected")
	}
}

func TestDelete_RecomputesAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 60, day(1))
	best := f.record(t, 120, day(2)).Session
	f.record(t, 80, day(3))

	if err := f.svc.Delete(ctx, f.user.ID, best.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	u, err := f.store.GetUser(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Stats.TotalSessions != 2 {
		t.Fatalf("expected 2 sessions after delete, got %d", u.Stats.TotalSessions)
	}
	if u.Stats.BestRetentionTime != 80 {
		t.Fatalf("best must be recomputed to 80, got %d", u.Stats.BestRetentionTime)
	}
	// Days 1 and 3 no longer join up.
	if u.Stats.CurrentStreak != 1 {
		t.Fatalf("streak must be recomputed, got %d", u.Stats.CurrentStreak)
	}
}

func TestDelete_OtherUsersSessionNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.store.CreateUser(ctx, user.User{
		Email: "other@example.com", Username: "other", IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	created := f.record(t, 60, day(1)).Session

	if err := f.svc.Delete(ctx, other.ID, created.ID); err != storage.ErrNotFound {
		t.Fatalf("cross-user delete should report not found, got %v", err)
	}
}

func TestGetProgress_Trend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	f.record(t, 60, now.AddDate(0, 0, -3))
	f.record(t, 100, now.AddDate(0, 0, -1))

	progress, err := f.svc.GetProgress(ctx, f.user.ID, 30)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress.DataPoints) != 2 {
		t.Fatalf("expected 2 data points, got %d", len(progress.DataPoints))
	}
	if progress.Trend != "improving" {
		t.Fatalf("expected improving trend, got %s", progress.Trend)
	}
}

func TestGetProgress_FewPointsIsStable(t *testing.T) {
	f := newFixture(t)

	progress, err := f.svc.GetProgress(context.Background(), f.user.ID, 30)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Trend != "stable" || len(progress.DataPoints) != 0 {
		t.Fatalf("empty history should be stable with no points: %#v", progress)
	}
}

func TestGetPersonalBests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	f.record(t, 60, now.AddDate(0, 0, -5))
	f.record(t, 50, now.AddDate(0, 0, -4))
	f.record(t, 90, now.AddDate(0, 0, -2)) // beats 60

	bests, err := f.svc.GetPersonalBests(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("personal bests: %v", err)
	}
	if bests.Best == nil || bests.Best.RetentionTime != 90 {
		t.Fatalf("unexpected best: %#v", bests.Best)
	}
	if len(bests.RecentBests) != 1 || bests.RecentBests[0].RetentionTime != 90 {
		t.Fatalf("unexpected recent bests: %#v", bests.RecentBests)
	}
}

func TestGetPersonalBests_EmptyHistory(t *testing.T) {
	f := newFixture(t)

	bests, err := f.svc.GetPersonalBests(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("personal bests with no sessions must not error: %v", err)
	}
	if bests.Best != nil || len(bests.RecentBests) != 0 {
		t.Fatalf("expected empty result: %#v", bests)
	}
}

func TestGetMoodCorrelation_CompletePairsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record := func(before, after *int, d int) {
		if _, err := f.svc.Create(ctx, f.user.ID, CreateInput{
			BreathsCount: 30, RetentionTime: 60, DurationSeconds: 600,
			SessionDate: timep(day(d)), MoodBefore: before, MoodAfter: after,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	record(intp(3), intp(5), 1)
	record(intp(4), intp(4), 2)
	record(nil, intp(8), 3)

	corr, err := f.svc.GetMoodCorrelation(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("mood correlation: %v", err)
	}
	if corr.SessionsWithMood != 2 {
		t.Fatalf("only complete pairs count, got %d", corr.SessionsWithMood)
	}
	if corr.AverageMoodBefore != 3.5 || corr.AverageMoodAfter != 4.5 || corr.AverageImprovement != 1.0 {
		t.Fatalf("unexpected averages: %#v", corr)
	}
}

func TestByDateRange_RejectsInvertedRange(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.ByDateRange(context.Background(), f.user.ID, day(10), day(1)); err == nil {
		t.Fatalf("inverted range must be rejected")
	}
}

func intp(v int) *int { return &v }

func timep(t time.Time) *time.Time { return &t }
