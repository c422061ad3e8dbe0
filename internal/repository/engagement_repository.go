package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kwalimwa/craftlink/internal/models"
)

// ErrEngagementNotFound is returned when no engagement matches the lookup.
var ErrEngagementNotFound = errors.New("engagement not found")

// EngagementRepository handles project engagements, review records, reviewer
// stats and the audit log.
type EngagementRepository struct {
	db *DB
}

// NewEngagementRepository creates a new engagement repository.
func NewEngagementRepository(db *DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// GetByID retrieves an engagement by ID.
func (r *EngagementRepository) GetByID(id uint) (*models.ProjectEngagement, error) {
	var engagement models.ProjectEngagement
	err := r.db.Preload("Learner").Preload("Reviewer").First(&engagement, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get engagement %d: %w", id, err)
	}
	return &engagement, nil
}

// UpdateStatus transitions the engagement to the given status and stamps the
// review time.
func (r *EngagementRepository) UpdateStatus(id uint, status string, reviewedAt time.Time) error {
	err := r.db.Model(&models.ProjectEngagement{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_at": reviewedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update engagement %d status: %w", id, err)
	}
	return nil
}

// CreateReviewRecord appends an immutable review record.
func (r *EngagementRepository) CreateReviewRecord(record *models.ReviewRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create review record for engagement %d: %w", record.EngagementID, err)
	}
	return nil
}

// CreateAuditEntry appends an audit log entry.
func (r *EngagementRepository) CreateAuditEntry(entry *models.AuditLogEntry) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create audit entry for engagement %d: %w", entry.EngagementID, err)
	}
	return nil
}

// GetReviewerStats retrieves the reviewer's effectiveness record, creating an
// empty one on first use.
func (r *EngagementRepository) GetReviewerStats(reviewerID uint) (*models.ReviewerStats, error) {
	var stats models.ReviewerStats
	err := r.db.Where("reviewer_id = ?", reviewerID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = models.ReviewerStats{ReviewerID: reviewerID}
		if err := r.db.Create(&stats).Error; err != nil {
			return nil, fmt.Errorf("failed to create reviewer stats for %d: %w", reviewerID, err)
		}
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reviewer stats for %d: %w", reviewerID, err)
	}
	return &stats, nil
}

// SaveReviewerStats persists the updated effectiveness record.
func (r *EngagementRepository) SaveReviewerStats(stats *models.ReviewerStats) error {
	if err := r.db.Save(stats).Error; err != nil {
		return fmt.Errorf("failed to save reviewer stats for %d: %w", stats.ReviewerID, err)
	}
	return nil
}

// GetReviewer retrieves a reviewer user record.
func (r *EngagementRepository) GetReviewer(reviewerID uint) (*models.User, error) {
	var reviewer models.User
	err := r.db.First(&reviewer, reviewerID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get reviewer %d: %w", reviewerID, err)
	}
	return &reviewer, nil
}

// ListReviewRecords retrieves the append-only review history for an engagement.
func (r *EngagementRepository) ListReviewRecords(engagementID uint) ([]models.ReviewRecord, error) {
	var records []models.ReviewRecord
	err := r.db.Where("engagement_id = ?", engagementID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list review records for engagement %d: %w", engagementID, err)
	}
	return records, nil
}
