package models

import (
	"encoding/json"
	"time"
)

// PortfolioProgression is a learner's progression record: one row per
// learner, mutated only through the verification cascade.
//
// Version is an optimistic concurrency token: every save checks and
// increments it so that two concurrent cascades for the same learner cannot
// silently overwrite each other.
type PortfolioProgression struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	LearnerID        uint            `gorm:"not null;uniqueIndex" json:"learner_id"`
	Tier             string          `gorm:"size:50;default:BEGINNER" json:"tier"`
	Strength         string          `gorm:"size:50;default:BUILDING" json:"strength"`
	VerifiedProjects json.RawMessage `gorm:"type:jsonb" json:"verified_projects"` // append-only []VerifiedProject
	Skills           json.RawMessage `gorm:"type:jsonb" json:"skills"`            // []Skill, deduplicated by name
	Milestones       json.RawMessage `gorm:"type:jsonb" json:"milestones"`        // append-only []TierMilestone
	VerifiedCount    int             `gorm:"default:0" json:"verified_count"`
	TotalCount       int             `gorm:"default:0" json:"total_count"` // attempts; never below VerifiedCount
	TechStack        json.RawMessage `gorm:"type:jsonb" json:"tech_stack"`    // deduplicated []string
	Institutions     json.RawMessage `gorm:"type:jsonb" json:"institutions"`  // deduplicated []string
	Version          int             `gorm:"default:0" json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for PortfolioProgression model.
func (PortfolioProgression) TableName() string {
	return "portfolio_progressions"
}

// Learner tier constants.
const (
	LearnerTierBeginner     = "BEGINNER"
	LearnerTierIntermediate = "INTERMEDIATE"
	LearnerTierAdvanced     = "ADVANCED"
)

// Portfolio strength constants.
const (
	StrengthBuilding    = "BUILDING"
	StrengthDeveloping  = "DEVELOPING"
	StrengthStrong      = "STRONG"
	StrengthExceptional = "EXCEPTIONAL"
)

// VerifiedProject is one entry in the append-only verified-project list.
type VerifiedProject struct {
	EngagementID uint      `json:"engagement_id"`
	Title        string    `json:"title"`
	Tier         string    `json:"tier"`
	Stack        []string  `json:"stack"`
	Score        float64   `json:"score"` // mean rubric score
	Institution  string    `json:"institution"`
	VerifiedAt   time.Time `json:"verified_at"`
}

// Skill is one verified skill, deduplicated by Name. An existing entry is
// never re-timestamped or re-categorized.
type Skill struct {
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Confirmed    bool      `json:"confirmed"` // also seen by automated language analysis
	EngagementID uint      `json:"engagement_id"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
}

// TierMilestone is one entry in the append-only tier-unlock timeline.
type TierMilestone struct {
	Tier       string    `json:"tier"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// Projects decodes the verified-project list.
func (p *PortfolioProgression) Projects() ([]VerifiedProject, error) {
	return decodeList[VerifiedProject](p.VerifiedProjects)
}

// SetProjects encodes the verified-project list.
func (p *PortfolioProgression) SetProjects(projects []VerifiedProject) error {
	return encodeList(&p.VerifiedProjects, projects)
}

// SkillSet decodes the skill list.
func (p *PortfolioProgression) SkillSet() ([]Skill, error) {
	return decodeList[Skill](p.Skills)
}

// SetSkillSet encodes the skill list.
func (p *PortfolioProgression) SetSkillSet(skills []Skill) error {
	return encodeList(&p.Skills, skills)
}

// MilestoneList decodes the tier-unlock timeline.
func (p *PortfolioProgression) MilestoneList() ([]TierMilestone, error) {
	return decodeList[TierMilestone](p.Milestones)
}

// SetMilestoneList encodes the tier-unlock timeline.
func (p *PortfolioProgression) SetMilestoneList(milestones []TierMilestone) error {
	return encodeList(&p.Milestones, milestones)
}

// TechStackSet decodes the deduplicated tech-stack set.
func (p *PortfolioProgression) TechStackSet() ([]string, error) {
	return decodeList[string](p.TechStack)
}

// SetTechStackSet encodes the deduplicated tech-stack set.
func (p *PortfolioProgression) SetTechStackSet(stack []string) error {
	return encodeList(&p.TechStack, stack)
}

// InstitutionSet decodes the deduplicated reviewer-institution set.
func (p *PortfolioProgression) InstitutionSet() ([]string, error) {
	return decodeList[string](p.Institutions)
}

// SetInstitutionSet encodes the deduplicated reviewer-institution set.
func (p *PortfolioProgression) SetInstitutionSet(institutions []string) error {
	return encodeList(&p.Institutions, institutions)
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func encodeList[T any](dst *json.RawMessage, list []T) error {
	if list == nil {
		list = []T{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	*dst = data
	return nil
}
