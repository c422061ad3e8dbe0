// Package progression computes learner tier, portfolio strength and verified skills.
package progression

import (
	"strings"
	"time"

	"github.com/kwalimwa/craftlink/internal/models"
)

// Tier advancement thresholds. Averages are per-tier-bucket; bounds inclusive.
const (
	advancedMinProjects     = 2
	advancedMinAvg          = 4.0
	intermediateMinProjects = 2
	intermediateMinAvg      = 3.5
)

// CalculateTier derives a learner's tier from the verified-project history.
// Higher tiers are checked first; the first match wins.
func CalculateTier(projects []models.VerifiedProject) string {
	intCount, intAvg := bucketStats(projects, models.LearnerTierIntermediate)
	if intCount >= advancedMinProjects && intAvg >= advancedMinAvg {
		return models.LearnerTierAdvanced
	}

	begCount, begAvg := bucketStats(projects, models.LearnerTierBeginner)
	if begCount >= intermediateMinProjects && begAvg >= intermediateMinAvg {
		return models.LearnerTierIntermediate
	}

	return models.LearnerTierBeginner
}

// bucketStats returns the count and mean score of verified projects in one tier bucket.
func bucketStats(projects []models.VerifiedProject, tier string) (int, float64) {
	count := 0
	sum := 0.0
	for _, p := range projects {
		if p.Tier == tier {
			count++
			sum += p.Score
		}
	}
	if count == 0 {
		return 0, 0
	}
	return count, sum / float64(count)
}

// CalculateStrength derives the portfolio-strength label. First match wins;
// the overall average spans all verified projects regardless of tier.
func CalculateStrength(tier string, projects []models.VerifiedProject) string {
	verified := len(projects)
	overall := 0.0
	if verified > 0 {
		sum := 0.0
		for _, p := range projects {
			sum += p.Score
		}
		overall = sum / float64(verified)
	}

	switch {
	case tier == models.LearnerTierAdvanced && verified >= 2 && overall >= 4.5:
		return models.StrengthExceptional
	case tier == models.LearnerTierAdvanced,
		tier == models.LearnerTierIntermediate && verified >= 3:
		return models.StrengthStrong
	case tier == models.LearnerTierIntermediate, verified >= 2:
		return models.StrengthDeveloping
	default:
		return models.StrengthBuilding
	}
}

// skillCategories maps known technologies onto skill categories. Unlisted
// technologies fall through to "General".
var skillCategories = map[string]string{
	// Interface technologies
	"react":        "Frontend",
	"vue":          "Frontend",
	"angular":      "Frontend",
	"svelte":       "Frontend",
	"html":         "Frontend",
	"css":          "Frontend",
	"tailwind":     "Frontend",
	"flutter":      "Frontend",
	"react native": "Frontend",

	// Server technologies
	"node.js":     "Backend",
	"express":     "Backend",
	"django":      "Backend",
	"flask":       "Backend",
	"fastapi":     "Backend",
	"laravel":     "Backend",
	"rails":       "Backend",
	"spring boot": "Backend",
	"go":          "Backend",

	// Data-store technologies
	"postgresql": "Database",
	"mysql":      "Database",
	"mongodb":    "Database",
	"sqlite":     "Database",
	"redis":      "Database",
	"firestore":  "Database",

	// Payment rails
	"m-pesa":      "Payments & Integrations",
	"daraja":      "Payments & Integrations",
	"stripe":      "Payments & Integrations",
	"paypal":      "Payments & Integrations",
	"flutterwave": "Payments & Integrations",
	"paystack":    "Payments & Integrations",
}

// CategoryFor returns the skill category for a technology name.
func CategoryFor(tech string) string {
	if category, ok := skillCategories[strings.ToLower(tech)]; ok {
		return category
	}
	return "General"
}

// ExtractSkills emits one skill per technology declared in the project's
// planned stack. Declaration is required to count: a technology observed only
// by automated language detection is excluded. A declared technology also
// present in the detected set is tagged confirmed.
func ExtractSkills(declared []string, detected []string, engagementID uint, now time.Time) []models.Skill {
	detectedSet := make(map[string]bool, len(detected))
	for _, lang := range detected {
		detectedSet[strings.ToLower(lang)] = true
	}

	skills := make([]models.Skill, 0, len(declared))
	for _, tech := range declared {
		name := strings.TrimSpace(tech)
		if name == "" {
			continue
		}
		skills = append(skills, models.Skill{
			Name:         name,
			Category:     CategoryFor(name),
			Confirmed:    detectedSet[strings.ToLower(name)],
			EngagementID: engagementID,
			FirstSeenAt:  now,
		})
	}
	return skills
}
