package achievement

import (
	"testing"
	"time"
)

func catalog() []Definition {
	return []Definition{
		{ID: "a1", Name: "First Breath", CriteriaType: "total_sessions", CriteriaValue: 1, IsActive: true},
		{ID: "a2", Name: "Ten Sessions", CriteriaType: "total_sessions", CriteriaValue: 10, IsActive: true},
		{ID: "a3", Name: "Two Minute Hold", CriteriaType: "best_retention_time", CriteriaValue: 120, IsActive: true},
		{ID: "a4", Name: "Week Streak", CriteriaType: "current_streak", CriteriaValue: 7, IsActive: true},
		{ID: "a5", Name: "Retired", CriteriaType: "total_sessions", CriteriaValue: 1, IsActive: false},
	}
}

func TestUnlockable_FiltersUnlockedAndUnsatisfied(t *testing.T) {
	stats := map[string]int{"total_sessions": 10, "best_retention_time": 90}
	unlocked := map[string]bool{"a1": true}

	got := Unlockable(catalog(), unlocked, stats)

	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("expected only a2 unlockable, got %#v", got)
	}
}

func TestUnlockable_InactiveNeverSatisfies(t *testing.T) {
	stats := map[string]int{"total_sessions": 100}
	got := Unlockable(catalog(), map[string]bool{"a1": true, "a2": true}, stats)

	for _, def := range got {
		if def.ID == "a5" {
			t.Fatalf("inactive definition returned as unlockable")
		}
	}
}

func TestUnlockable_UnknownCriteriaTypeReadsAsZero(t *testing.T) {
	defs := []Definition{
		{ID: "x", CriteriaType: "sessions_per_moon_phase", CriteriaValue: 1, IsActive: true},
	}
	if got := Unlockable(defs, nil, map[string]int{"total_sessions": 50}); len(got) != 0 {
		t.Fatalf("unknown criteria type must not satisfy, got %#v", got)
	}
}

func TestUnlockable_PreservesCatalogOrder(t *testing.T) {
	stats := map[string]int{"total_sessions": 10, "best_retention_time": 150, "current_streak": 8}
	got := Unlockable(catalog(), nil, stats)

	want := []string{"a1", "a2", "a3", "a4"}
	if len(got) != len(want) {
		t.Fatalf("expected %d unlockable, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestProgressToward(t *testing.T) {
	def := Definition{CriteriaType: "total_sessions", CriteriaValue: 10, IsActive: true}

	p := ProgressToward(def, map[string]int{"total_sessions": 4})
	if p.Current != 4 || p.Target != 10 || p.Percentage != 40 {
		t.Fatalf("unexpected progress: %#v", p)
	}

	p = ProgressToward(def, map[string]int{"total_sessions": 25})
	if p.Percentage != 100 {
		t.Fatalf("percentage should cap at 100, got %f", p.Percentage)
	}

	p = ProgressToward(def, map[string]int{})
	if p.Current != 0 || p.Percentage != 0 {
		t.Fatalf("missing stat should read as zero: %#v", p)
	}
}

func TestUnlock_Recent(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	fresh := Unlock{UnlockedAt: now.Add(-2 * time.Hour)}
	stale := Unlock{UnlockedAt: now.Add(-25 * time.Hour)}

	if !fresh.Recent(now) {
		t.Fatalf("unlock 2h ago should be recent")
	}
	if stale.Recent(now) {
		t.Fatalf("unlock 25h ago should not be recent")
	}
}
