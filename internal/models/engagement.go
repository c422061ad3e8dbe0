package models

import (
	"encoding/json"
	"time"
)

// ProjectEngagement represents a learner's project submitted for human review.
type ProjectEngagement struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	LearnerID    uint            `gorm:"not null;index" json:"learner_id"`
	Learner      *User           `gorm:"foreignKey:LearnerID" json:"learner,omitempty"`
	ReviewerID   *uint           `gorm:"index" json:"reviewer_id"`
	Reviewer     *User           `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	Title        string          `gorm:"type:text;not null" json:"title"`
	Tier         string          `gorm:"size:50;not null" json:"tier"` // project difficulty: BEGINNER/INTERMEDIATE/ADVANCED
	PlannedStack json.RawMessage `gorm:"type:jsonb" json:"planned_stack"` // JSON array of technology names
	RepoID       string          `gorm:"size:255" json:"repo_id"` // external repository id, empty if none
	Status       string          `gorm:"size:50;index" json:"status"`
	SubmittedAt  *time.Time      `json:"submitted_at"`
	ReviewedAt   *time.Time      `json:"reviewed_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for ProjectEngagement model.
func (ProjectEngagement) TableName() string {
	return "project_engagements"
}

// DeclaredStack decodes the planned technology stack.
func (e *ProjectEngagement) DeclaredStack() ([]string, error) {
	if len(e.PlannedStack) == 0 {
		return nil, nil
	}
	var stack []string
	if err := json.Unmarshal(e.PlannedStack, &stack); err != nil {
		return nil, err
	}
	return stack, nil
}

// Engagement status constants.
const (
	EngagementInProgress       = "IN_PROGRESS"
	EngagementUnderReview      = "UNDER_REVIEW"
	EngagementVerified         = "VERIFIED"
	EngagementRevisionRequired = "REVISION_REQUIRED"
	EngagementDenied           = "DENIED"
)

// ReviewRecord is the append-only record of one review decision.
// Immutable once created.
type ReviewRecord struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	EngagementID       uint      `gorm:"not null;index" json:"engagement_id"`
	ReviewerID         uint      `gorm:"not null;index" json:"reviewer_id"`
	Decision           string    `gorm:"size:50;not null" json:"decision"`
	FunctionalityScore float64   `json:"functionality_score"`
	CodeQualityScore   float64   `json:"code_quality_score"`
	DocumentationScore float64   `json:"documentation_score"`
	TestingScore       float64   `json:"testing_score"`
	Comment            string    `gorm:"type:text" json:"comment"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName specifies the table name for ReviewRecord model.
func (ReviewRecord) TableName() string {
	return "review_records"
}

// MeanScore returns the mean of the four rubric dimensions.
func (r *ReviewRecord) MeanScore() float64 {
	return (r.FunctionalityScore + r.CodeQualityScore + r.DocumentationScore + r.TestingScore) / 4.0
}

// ReviewerStats holds per-reviewer effectiveness aggregates, updated
// incrementally on each decision rather than by re-scanning history.
type ReviewerStats struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	ReviewerID            uint      `gorm:"not null;uniqueIndex" json:"reviewer_id"`
	VerifiedCount         int       `gorm:"default:0" json:"verified_count"`
	RevisionRequiredCount int       `gorm:"default:0" json:"revision_required_count"`
	DeniedCount           int       `gorm:"default:0" json:"denied_count"`
	AvgFunctionality      float64   `json:"avg_functionality"`
	AvgCodeQuality        float64   `json:"avg_code_quality"`
	AvgDocumentation      float64   `json:"avg_documentation"`
	AvgTesting            float64   `json:"avg_testing"`
	AvgCommentLength      float64   `json:"avg_comment_length"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName specifies the table name for ReviewerStats model.
func (ReviewerStats) TableName() string {
	return "reviewer_stats"
}

// TotalDecisions returns the number of decisions folded into the averages.
func (s *ReviewerStats) TotalDecisions() int {
	return s.VerifiedCount + s.RevisionRequiredCount + s.DeniedCount
}

// AuditLogEntry records a terminal review decision with a content-integrity
// hash and a snapshot of the reviewed state. Never mutated or deleted.
type AuditLogEntry struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	EngagementID uint            `gorm:"not null;index" json:"engagement_id"`
	ReviewerID   uint            `gorm:"not null" json:"reviewer_id"`
	Decision     string          `gorm:"size:50;not null" json:"decision"`
	ContentHash  string          `gorm:"size:64;not null" json:"content_hash"` // SHA-256 hex of the review payload
	Snapshot     json.RawMessage `gorm:"type:jsonb" json:"snapshot"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TableName specifies the table name for AuditLogEntry model.
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
