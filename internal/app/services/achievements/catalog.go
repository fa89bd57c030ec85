package achievements

import "github.com/breathtrack/backend/internal/app/domain/achievement"

// DefaultCatalog returns the stock achievement set used to seed an empty
// catalog. Retention thresholds are seconds.
func DefaultCatalog() []achievement.Definition {
	return []achievement.Definition{
		{
			Name: "First Breath", Description: "Complete your first breathing session",
			Category: achievement.CategorySessions, Rarity: achievement.RarityCommon,
			Icon: "🚀", Points: 10,
			CriteriaType: "total_sessions", CriteriaValue: 1,
			IsActive: true, DisplayOrder: 1,
		},
		{
			Name: "Ten Sessions", Description: "Complete 10 breathing sessions",
			Category: achievement.CategorySessions, Rarity: achievement.RarityCommon,
			Icon: "🔥", Points: 25,
			CriteriaType: "total_sessions", CriteriaValue: 10,
			IsActive: true, DisplayOrder: 2,
		},
		{
			Name: "Fifty Sessions", Description: "Complete 50 breathing sessions",
			Category: achievement.CategorySessions, Rarity: achievement.RarityRare,
			Icon: "⚡", Points: 50,
			CriteriaType: "total_sessions", CriteriaValue: 50,
			IsActive: true, DisplayOrder: 3,
		},
		{
			Name: "Century", Description: "Complete 100 breathing sessions",
			Category: achievement.CategorySessions, Rarity: achievement.RarityEpic,
			Icon: "💯", Points: 100,
			CriteriaType: "total_sessions", CriteriaValue: 100,
			IsActive: true, DisplayOrder: 4,
		},
		{
			Name: "Devoted Practitioner", Description: "Complete 500 breathing sessions",
			Category: achievement.CategorySessions, Rarity: achievement.RarityLegendary,
			Icon: "🏆", Points: 200,
			CriteriaType: "total_sessions", CriteriaValue: 500,
			IsActive: true, DisplayOrder: 5,
		},
		{
			Name: "First Seconds", Description: "Hold your breath for 30 seconds",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityCommon,
			Icon: "⏱️", Points: 15,
			CriteriaType: "best_retention_time", CriteriaValue: 30,
			IsActive: true, DisplayOrder: 10,
		},
		{
			Name: "One Minute", Description: "Hold your breath for 1 minute",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityCommon,
			Icon: "⏰", Points: 25,
			CriteriaType: "best_retention_time", CriteriaValue: 60,
			IsActive: true, DisplayOrder: 11,
		},
		{
			Name: "Two Minutes", Description: "Hold your breath for 2 minutes",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityRare,
			Icon: "🎯", Points: 50,
			CriteriaType: "best_retention_time", CriteriaValue: 120,
			IsActive: true, DisplayOrder: 12,
		},
		{
			Name: "Three Minutes", Description: "Hold your breath for 3 minutes",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityRare,
			Icon: "🧘", Points: 75,
			CriteriaType: "best_retention_time", CriteriaValue: 180,
			IsActive: true, DisplayOrder: 13,
		},
		{
			Name: "Five Minutes", Description: "Hold your breath for 5 minutes",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityEpic,
			Icon: "💪", Points: 100,
			CriteriaType: "best_retention_time", CriteriaValue: 300,
			IsActive: true, DisplayOrder: 14,
		},
		{
			Name: "Retention Royalty", Description: "Hold your breath for 10 minutes",
			Category: achievement.CategoryRetention, Rarity: achievement.RarityLegendary,
			Icon: "👑", Points: 200,
			CriteriaType: "best_retention_time", CriteriaValue: 600,
			IsActive: true, DisplayOrder: 15,
		},
		{
			Name: "Getting Started", Description: "Practice 3 days in a row",
			Category: achievement.CategoryStreak, Rarity: achievement.RarityCommon,
			Icon: "📅", Points: 20,
			CriteriaType: "current_streak", CriteriaValue: 3,
			IsActive: true, DisplayOrder: 20,
		},
		{
			Name: "One Week", Description: "Practice 7 days in a row",
			Category: achievement.CategoryStreak, Rarity: achievement.RarityRare,
			Icon: "🔗", Points: 50,
			CriteriaType: "current_streak", CriteriaValue: 7,
			IsActive: true, DisplayOrder: 21,
		},
		{
			Name: "Two Weeks", Description: "Practice 14 days in a row",
			Category: achievement.CategoryStreak, Rarity: achievement.RarityRare,
			Icon: "⛓️", Points: 75,
			CriteriaType: "current_streak", CriteriaValue: 14,
			IsActive: true, DisplayOrder: 22,
		},
		{
			Name: "One Month", Description: "Practice 30 days in a row",
			Category: achievement.CategoryStreak, Rarity: achievement.RarityEpic,
			Icon: "📈", Points: 100,
			CriteriaType: "current_streak", CriteriaValue: 30,
			IsActive: true, DisplayOrder: 23,
		},
		{
			Name: "Habit Machine", Description: "Reach a 100-day streak",
			Category: achievement.CategoryStreak, Rarity: achievement.RarityLegendary,
			Icon: "🔥", Points: 200,
			CriteriaType: "longest_streak", CriteriaValue: 100,
			IsActive: true, DisplayOrder: 24,
		},
		{
			Name: "Personal Progress", Description: "Improve your retention time to 45 seconds",
			Category: achievement.CategoryImprovement, Rarity: achievement.RarityCommon,
			Icon: "📊", Points: 15,
			CriteriaType: "best_retention_time", CriteriaValue: 45,
			IsActive: true, DisplayOrder: 30,
		},
		{
			Name: "First Week Done", Description: "Complete your first week of practice",
			Category: achievement.CategoryMilestone, Rarity: achievement.RarityCommon,
			Icon: "🌱", Points: 30,
			CriteriaType: "total_sessions", CriteriaValue: 7,
			IsActive: true, DisplayOrder: 40,
		},
		{
			Name: "Certified Practitioner", Description: "Complete 50 sessions of dedicated practice",
			Category: achievement.CategoryMilestone, Rarity: achievement.RarityEpic,
			Icon: "🎖️", Points: 150,
			CriteriaType: "total_sessions", CriteriaValue: 50,
			IsActive: true, IsHidden: true, DisplayOrder: 41,
		},
		{
			Name: "Master of Control", Description: "Reach a 50-day streak",
			Category: achievement.CategoryMilestone, Rarity: achievement.RarityLegendary,
			Icon: "🌟", Points: 250,
			CriteriaType: "longest_streak", CriteriaValue: 50,
			IsActive: true, IsHidden: true, DisplayOrder: 42,
		},
	}
}
