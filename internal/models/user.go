// Package models defines domain models for the CraftLink marketplace and credentialing system.
package models

import (
	"time"
)

// User represents a platform account: a seller, a learner, or a reviewer.
type User struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Username             string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Email                string    `gorm:"size:255" json:"email"`
	Phone                string    `gorm:"size:20" json:"phone"`
	Role                 string    `gorm:"size:50;index" json:"role"` // 'seller', 'learner', 'reviewer'
	Institution          string    `gorm:"size:255" json:"institution"` // reviewers only
	VerificationApproved bool      `gorm:"default:false" json:"verification_approved"` // sellers: identity check passed
	SkillTier            string    `gorm:"size:50" json:"skill_tier"` // learners: denormalized copy of progression tier
	CompletedProjects    int       `gorm:"default:0" json:"completed_projects"` // learners: lifetime counter
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// UserRole constants.
const (
	RoleSeller   = "seller"
	RoleLearner  = "learner"
	RoleReviewer = "reviewer"
)
