package user

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestApplySession_FirstSession(t *testing.T) {
	agg := ApplySession(Aggregate{}, 45, date(2024, time.March, 1))

	if agg.TotalSessions != 1 || agg.TotalRetentionTime != 45 || agg.BestRetentionTime != 45 {
		t.Fatalf("unexpected totals: %#v", agg)
	}
	if agg.CurrentStreak != 1 || agg.LongestStreak != 1 {
		t.Fatalf("expected streak 1/1, got %d/%d", agg.CurrentStreak, agg.LongestStreak)
	}
	if agg.LastSessionDate == nil || !agg.LastSessionDate.Equal(date(2024, time.March, 1)) {
		t.Fatalf("last session date not recorded: %v", agg.LastSessionDate)
	}
}

func TestApplySession_ConsecutiveDaysExtendStreak(t *testing.T) {
	var agg Aggregate
	for day := 1; day <= 5; day++ {
		agg = ApplySession(agg, 30, date(2024, time.March, day))
		if agg.CurrentStreak != day {
			t.Fatalf("day %d: expected streak %d, got %d", day, day, agg.CurrentStreak)
		}
	}
	if agg.LongestStreak != 5 {
		t.Fatalf("expected longest streak 5, got %d", agg.LongestStreak)
	}
}

func TestApplySession_SameDayLeavesStreakUnchanged(t *testing.T) {
	agg := ApplySession(Aggregate{}, 30, date(2024, time.March, 1))
	agg = ApplySession(agg, 40, date(2024, time.March, 2))
	agg = ApplySession(agg, 50, time.Date(2024, time.March, 2, 22, 0, 0, 0, time.UTC))

	if agg.CurrentStreak != 2 {
		t.Fatalf("same-day session changed streak: %d", agg.CurrentStreak)
	}
	if agg.TotalSessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", agg.TotalSessions)
	}
}

func TestApplySession_GapResetsCurrentNotLongest(t *testing.T) {
	var agg Aggregate
	for day := 1; day <= 4; day++ {
		agg = ApplySession(agg, 30, date(2024, time.March, day))
	}
	agg = ApplySession(agg, 30, date(2024, time.March, 10))

	if agg.CurrentStreak != 1 {
		t.Fatalf("expected streak reset to 1, got %d", agg.CurrentStreak)
	}
	if agg.LongestStreak != 4 {
		t.Fatalf("expected longest streak preserved at 4, got %d", agg.LongestStreak)
	}
}

func TestApplySession_BackdatedSessionKeepsStreakAndClock(t *testing.T) {
	agg := ApplySession(Aggregate{}, 30, date(2024, time.March, 9))
	agg = ApplySession(agg, 30, date(2024, time.March, 10))
	agg = ApplySession(agg, 90, date(2024, time.March, 5))

	if agg.CurrentStreak != 2 {
		t.Fatalf("backdated session changed streak: %d", agg.CurrentStreak)
	}
	if !agg.LastSessionDate.Equal(date(2024, time.March, 10)) {
		t.Fatalf("backdated session moved the clock: %v", agg.LastSessionDate)
	}
	if agg.TotalSessions != 3 || agg.BestRetentionTime != 90 {
		t.Fatalf("backdated session must still count: %#v", agg)
	}
}

func TestApplySession_BestIsRunningMaximum(t *testing.T) {
	var agg Aggregate
	best := 0
	for i, retention := range []int{30, 75, 40, 75, 120, 10} {
		agg = ApplySession(agg, retention, date(2024, time.March, i+1))
		if retention > best {
			best = retention
		}
		if agg.BestRetentionTime != best {
			t.Fatalf("step %d: expected best %d, got %d", i, best, agg.BestRetentionTime)
		}
	}
}

func TestApplySession_CrossesMidnightByCalendarDate(t *testing.T) {
	agg := ApplySession(Aggregate{}, 30, time.Date(2024, time.March, 1, 23, 59, 0, 0, time.UTC))
	agg = ApplySession(agg, 30, time.Date(2024, time.March, 2, 0, 5, 0, 0, time.UTC))

	if agg.CurrentStreak != 2 {
		t.Fatalf("calendar-day diff of 1 should extend streak, got %d", agg.CurrentStreak)
	}
}

func TestAggregate_Snapshot(t *testing.T) {
	agg := Aggregate{
		TotalSessions:      10,
		TotalRetentionTime: 600,
		BestRetentionTime:  90,
		CurrentStreak:      3,
		LongestStreak:      7,
	}
	snap := agg.Snapshot()

	for key, want := range map[string]int{
		"total_sessions":       10,
		"total_retention_time": 600,
		"best_retention_time":  90,
		"current_streak":       3,
		"longest_streak":       7,
	} {
		if snap[key] != want {
			t.Fatalf("snapshot[%s] = %d, want %d", key, snap[key], want)
		}
	}
}

func TestAggregate_AverageRetention(t *testing.T) {
	if avg := (Aggregate{}).AverageRetention(); avg != 0 {
		t.Fatalf("empty aggregate average should be 0, got %f", avg)
	}
	agg := Aggregate{TotalSessions: 4, TotalRetentionTime: 180}
	if avg := agg.AverageRetention(); avg != 45 {
		t.Fatalf("expected average 45, got %f", avg)
	}
}
