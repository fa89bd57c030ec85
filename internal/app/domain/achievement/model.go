// Package achievement defines the achievement catalog, unlock records and
// the criteria evaluation used to award them.
package achievement

import "time"

// Category groups achievements in the catalog.
type Category string

const (
	CategorySessions    Category = "sessions"
	CategoryRetention   Category = "retention"
	CategoryStreak      Category = "streak"
	CategoryImprovement Category = "improvement"
	CategoryMilestone   Category = "milestone"
)

// Rarity ranks how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Definition is a catalog entry. CriteriaType names the stat field the
// threshold CriteriaValue is compared against.
type Definition struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      Category  `json:"category"`
	Rarity        Rarity    `json:"rarity"`
	Icon          string    `json:"icon"`
	Points        int       `json:"points"`
	CriteriaType  string    `json:"criteria_type"`
	CriteriaValue int       `json:"criteria_value"`
	IsActive      bool      `json:"is_active"`
	IsHidden      bool      `json:"is_hidden"`
	DisplayOrder  int       `json:"display_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Satisfied reports whether the definition's criteria are met by the stat
// snapshot. Inactive definitions never satisfy; an unknown criteria type
// reads as 0.
func (d Definition) Satisfied(stats map[string]int) bool {
	if !d.IsActive {
		return false
	}
	return stats[d.CriteriaType] >= d.CriteriaValue
}

// Unlock records that a user earned an achievement. At most one exists per
// (user, achievement) pair. ProgressValue is the stat value that satisfied
// the criteria at unlock time.
type Unlock struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	ProgressValue int       `json:"progress_value"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// Recent reports whether the unlock happened within the past 24 hours.
func (u Unlock) Recent(now time.Time) bool {
	return now.Sub(u.UnlockedAt) < 24*time.Hour
}

// Unlockable returns, in catalog order, the definitions not yet unlocked
// whose criteria the stat snapshot satisfies.
func Unlockable(defs []Definition, unlocked map[string]bool, stats map[string]int) []Definition {
	var result []Definition
	for _, def := range defs {
		if unlocked[def.ID] {
			continue
		}
		if def.Satisfied(stats) {
			result = append(result, def)
		}
	}
	return result
}

// Progress describes how far a user is toward a locked achievement.
type Progress struct {
	Current    int     `json:"current"`
	Target     int     `json:"target"`
	Percentage float64 `json:"percentage"`
}

// ProgressToward computes progress for a definition from the stat snapshot,
// with the percentage capped at 100.
func ProgressToward(def Definition, stats map[string]int) Progress {
	current := stats[def.CriteriaType]
	p := Progress{Current: current, Target: def.CriteriaValue}
	if def.CriteriaValue > 0 {
		p.Percentage = float64(current) / float64(def.CriteriaValue) * 100
		if p.Percentage > 100 {
			p.Percentage = 100
		}
	}
	return p
}
