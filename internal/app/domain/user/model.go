// Package user defines the user record and its running practice statistics.
package user

import "time"

// Aggregate holds the per-user running statistics derived from recorded
// sessions. It is plain data; ApplySession is the only producer of new
// values on the session-recording path.
type Aggregate struct {
	TotalSessions      int        `json:"total_sessions"`
	TotalRetentionTime int        `json:"total_retention_time"`
	BestRetentionTime  int        `json:"best_retention_time"`
	CurrentStreak      int        `json:"current_streak"`
	LongestStreak      int        `json:"longest_streak"`
	LastSessionDate    *time.Time `json:"last_session_date,omitempty"`
}

// User represents an account holder.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	Stats        Aggregate  `json:"stats"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// ApplySession folds one recorded session into the aggregate and returns the
// updated copy. Streaks advance on consecutive calendar days, are unchanged
// for a second session on the same day, and reset after a gap. A session
// dated before LastSessionDate still counts toward totals and bests but
// leaves the streak and LastSessionDate untouched, so backdated imports
// cannot move the streak clock backwards.
func ApplySession(agg Aggregate, retentionTime int, sessionDate time.Time) Aggregate {
	agg.TotalSessions++
	agg.TotalRetentionTime += retentionTime
	if retentionTime > agg.BestRetentionTime {
		agg.BestRetentionTime = retentionTime
	}

	if agg.LastSessionDate == nil {
		agg.CurrentStreak = 1
		agg.LongestStreak = 1
	} else {
		switch diff := calendarDays(*agg.LastSessionDate, sessionDate); {
		case diff == 1:
			agg.CurrentStreak++
			if agg.CurrentStreak > agg.LongestStreak {
				agg.LongestStreak = agg.CurrentStreak
			}
		case diff > 1:
			agg.CurrentStreak = 1
		case diff < 0:
			// Backdated session: keep the existing streak and clock.
			return agg
		}
	}

	date := sessionDate
	agg.LastSessionDate = &date
	return agg
}

// Snapshot returns the aggregate as the stat map achievement criteria are
// evaluated against. Keys form the shared criteria-type vocabulary.
func (a Aggregate) Snapshot() map[string]int {
	return map[string]int{
		"total_sessions":       a.TotalSessions,
		"total_retention_time": a.TotalRetentionTime,
		"best_retention_time":  a.BestRetentionTime,
		"current_streak":       a.CurrentStreak,
		"longest_streak":       a.LongestStreak,
	}
}

// AverageRetention returns mean retention time per session, 0 when empty.
func (a Aggregate) AverageRetention() float64 {
	if a.TotalSessions == 0 {
		return 0
	}
	return float64(a.TotalRetentionTime) / float64(a.TotalSessions)
}

// calendarDays returns the whole-day difference between two timestamps,
// ignoring time of day.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
