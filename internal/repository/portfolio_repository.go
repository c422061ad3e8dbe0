package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kwalimwa/craftlink/internal/models"
)

// ErrProgressionNotFound is returned when the learner has no progression
// record. Provisioning creates the record at enrollment, so absence is a bug
// upstream, not a runtime condition to recover from.
var ErrProgressionNotFound = errors.New("progression record not found")

// ErrVersionConflict is returned when an optimistic save lost the race to a
// concurrent writer.
var ErrVersionConflict = errors.New("progression version conflict")

// PortfolioRepository handles learner progression records.
type PortfolioRepository struct {
	db *DB
}

// NewPortfolioRepository creates a new portfolio repository.
func NewPortfolioRepository(db *DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// GetByLearner retrieves a learner's progression record.
func (r *PortfolioRepository) GetByLearner(learnerID uint) (*models.PortfolioProgression, error) {
	var progression models.PortfolioProgression
	err := r.db.Where("learner_id = ?", learnerID).First(&progression).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProgressionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progression for learner %d: %w", learnerID, err)
	}
	return &progression, nil
}

// Create provisions an empty progression record for a learner.
func (r *PortfolioRepository) Create(progression *models.PortfolioProgression) error {
	if err := r.db.Create(progression).Error; err != nil {
		return fmt.Errorf("failed to create progression for learner %d: %w", progression.LearnerID, err)
	}
	return nil
}

// SaveVersioned persists the whole record under an optimistic version check.
// The UPDATE only matches the version the record was read at and bumps it by
// one; zero rows affected means a concurrent writer got there first.
func (r *PortfolioRepository) SaveVersioned(progression *models.PortfolioProgression) error {
	readVersion := progression.Version
	result := r.db.Model(&models.PortfolioProgression{}).
		Where("id = ? AND version = ?", progression.ID, readVersion).
		Updates(map[string]interface{}{
			"tier":              progression.Tier,
			"strength":          progression.Strength,
			"verified_projects": progression.VerifiedProjects,
			"skills":            progression.Skills,
			"milestones":        progression.Milestones,
			"verified_count":    progression.VerifiedCount,
			"total_count":       progression.TotalCount,
			"tech_stack":        progression.TechStack,
			"institutions":      progression.Institutions,
			"version":           readVersion + 1,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save progression for learner %d: %w", progression.LearnerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	progression.Version = readVersion + 1
	return nil
}

// SetLearnerTier propagates the progression tier onto the denormalized
// profile-level field. The two must agree after every successful cascade.
func (r *PortfolioRepository) SetLearnerTier(learnerID uint, tier string) error {
	err := r.db.Model(&models.User{}).Where("id = ?", learnerID).
		Update("skill_tier", tier).Error
	if err != nil {
		return fmt.Errorf("failed to set skill tier for learner %d: %w", learnerID, err)
	}
	return nil
}

// IncrementCompletedProjects bumps the learner's lifetime completed-project counter.
func (r *PortfolioRepository) IncrementCompletedProjects(learnerID uint) error {
	err := r.db.Model(&models.User{}).Where("id = ?", learnerID).
		Update("completed_projects", gorm.Expr("completed_projects + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment completed projects for learner %d: %w", learnerID, err)
	}
	return nil
}
