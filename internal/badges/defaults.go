package badges

import (
	"gorm.io/datatypes"

	"github.com/Andrey-Ft/Backend-Git-Masters/internal/domain"
)

// DefaultBadges returns the badge definitions this service evaluates. They
// are seeded idempotently at startup; operators may tune the criteria rows
// afterwards.
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		{
			Key:         BadgeCleanCommitter,
			Name:        "Clean Committer",
			Description: "Consistent conventional commits with a high atomicity ratio over the trailing week.",
			Criteria: datatypes.JSON([]byte(`{
				"durationDays": 7,
				"rules": [
					{"metric": "valid_commits", "ruleKey": "commit.conventional", "target": 10},
					{"metric": "atomicity_rate", "ruleKey": "commit.atomicity_bonus", "target": 0.8}
				]
			}`)),
		},
		{
			Key:         BadgeExpertReviewer,
			Name:        "Expert Reviewer",
			Description: "Sustained review activity whose comments lead to follow-up pushes.",
			Criteria: datatypes.JSON([]byte(`{
				"durationDays": 30,
				"rules": [
					{"metric": "total_reviews", "eventType": "pull_request_review", "target": 10},
					{"metric": "valid_corrections", "target": 5}
				]
			}`)),
		},
		{
			Key:         BadgeQualityGuardian,
			Name:        "Quality Guardian",
			Description: "Monthly competition: most valid corrections in the previous calendar month.",
			Criteria:    datatypes.JSON([]byte(`{"min_target": 8, "points_reward": 150}`)),
		},
	}
}
