package repository

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kwalimwa/craftlink/internal/models"
)

// setupEngagementTestDB creates an in-memory SQLite database for testing.
func setupEngagementTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.ProjectEngagement{},
		&models.ReviewRecord{},
		&models.ReviewerStats{},
		&models.AuditLogEntry{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &DB{db}
}

// createTestEngagement creates an engagement under review with its learner and reviewer.
func createTestEngagement(t *testing.T, db *DB) *models.ProjectEngagement {
	t.Helper()

	learner := &models.User{Username: "amina", Role: models.RoleLearner}
	reviewer := &models.User{Username: "prof_otieno", Role: models.RoleReviewer, Institution: "Strathmore University"}
	if err := db.Create(learner).Error; err != nil {
		t.Fatalf("Failed to create learner: %v", err)
	}
	if err := db.Create(reviewer).Error; err != nil {
		t.Fatalf("Failed to create reviewer: %v", err)
	}

	engagement := &models.ProjectEngagement{
		LearnerID:    learner.ID,
		ReviewerID:   &reviewer.ID,
		Title:        "M-Pesa savings tracker",
		Tier:         models.LearnerTierBeginner,
		PlannedStack: json.RawMessage(`["React","Node.js"]`),
		Status:       models.EngagementUnderReview,
	}
	if err := db.Create(engagement).Error; err != nil {
		t.Fatalf("Failed to create engagement: %v", err)
	}
	return engagement
}

func TestEngagementRepository_GetByID(t *testing.T) {
	db := setupEngagementTestDB(t)
	repo := NewEngagementRepository(db)
	created := createTestEngagement(t, db)

	engagement, err := repo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if engagement.Learner == nil || engagement.Learner.Username != "amina" {
		t.Error("Expected learner to be preloaded")
	}
	if engagement.Reviewer == nil || engagement.Reviewer.Institution != "Strathmore University" {
		t.Error("Expected reviewer to be preloaded")
	}

	stack, err := engagement.DeclaredStack()
	if err != nil {
		t.Fatalf("DeclaredStack failed: %v", err)
	}
	if len(stack) != 2 || stack[0] != "React" {
		t.Errorf("Expected declared stack [React Node.js], got %v", stack)
	}

	_, err = repo.GetByID(9999)
	if !errors.Is(err, ErrEngagementNotFound) {
		t.Errorf("Expected ErrEngagementNotFound, got %v", err)
	}
}

func TestEngagementRepository_UpdateStatus(t *testing.T) {
	db := setupEngagementTestDB(t)
	repo := NewEngagementRepository(db)
	created := createTestEngagement(t, db)

	reviewedAt := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if err := repo.UpdateStatus(created.ID, models.EngagementVerified, reviewedAt); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	engagement, _ := repo.GetByID(created.ID)
	if engagement.Status != models.EngagementVerified {
		t.Errorf("Expected status VERIFIED, got %s", engagement.Status)
	}
	if engagement.ReviewedAt == nil {
		t.Error("Expected reviewed_at to be stamped")
	}
}

func TestEngagementRepository_GetReviewerStats_CreatesOnFirstUse(t *testing.T) {
	db := setupEngagementTestDB(t)
	repo := NewEngagementRepository(db)

	stats, err := repo.GetReviewerStats(7)
	if err != nil {
		t.Fatalf("GetReviewerStats failed: %v", err)
	}
	if stats.TotalDecisions() != 0 {
		t.Errorf("Expected empty stats, got %d decisions", stats.TotalDecisions())
	}
	if stats.ID == 0 {
		t.Error("Expected stats row to be persisted on first use")
	}

	stats.VerifiedCount = 2
	stats.AvgFunctionality = 4.5
	if err := repo.SaveReviewerStats(stats); err != nil {
		t.Fatalf("SaveReviewerStats failed: %v", err)
	}

	reread, err := repo.GetReviewerStats(7)
	if err != nil {
		t.Fatalf("GetReviewerStats failed: %v", err)
	}
	if reread.ID != stats.ID {
		t.Errorf("Expected the same row, got id %d vs %d", reread.ID, stats.ID)
	}
	if reread.VerifiedCount != 2 || reread.AvgFunctionality != 4.5 {
		t.Errorf("Expected persisted stats, got %+v", reread)
	}
}

func TestEngagementRepository_ReviewHistory(t *testing.T) {
	db := setupEngagementTestDB(t)
	repo := NewEngagementRepository(db)
	created := createTestEngagement(t, db)

	// A revision round followed by verification.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &models.ReviewRecord{
		EngagementID:       created.ID,
		ReviewerID:         *created.ReviewerID,
		Decision:           models.EngagementRevisionRequired,
		FunctionalityScore: 3,
		CodeQualityScore:   2,
		DocumentationScore: 2,
		TestingScore:       2,
		CreatedAt:          base,
	}
	second := &models.ReviewRecord{
		EngagementID:       created.ID,
		ReviewerID:         *created.ReviewerID,
		Decision:           models.EngagementVerified,
		FunctionalityScore: 4,
		CodeQualityScore:   4,
		DocumentationScore: 4,
		TestingScore:       4,
		CreatedAt:          base.Add(72 * time.Hour),
	}
	if err := repo.CreateReviewRecord(first); err != nil {
		t.Fatalf("CreateReviewRecord failed: %v", err)
	}
	if err := repo.CreateReviewRecord(second); err != nil {
		t.Fatalf("CreateReviewRecord failed: %v", err)
	}

	records, err := repo.ListReviewRecords(created.ID)
	if err != nil {
		t.Fatalf("ListReviewRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Decision != models.EngagementRevisionRequired {
		t.Errorf("Expected chronological order, got %s first", records[0].Decision)
	}
	if records[1].MeanScore() != 4.0 {
		t.Errorf("Expected mean 4.0, got %f", records[1].MeanScore())
	}
}

func TestEngagementRepository_CreateAuditEntry(t *testing.T) {
	db := setupEngagementTestDB(t)
	repo := NewEngagementRepository(db)
	created := createTestEngagement(t, db)

	entry := &models.AuditLogEntry{
		EngagementID: created.ID,
		ReviewerID:   *created.ReviewerID,
		Decision:     models.EngagementVerified,
		ContentHash:  "1f2d3c4b5a69788796a5b4c3d2e1f0a1b2c3d4e5f60718293a4b5c6d7e8f9012",
		Snapshot:     json.RawMessage(`{"decision":"VERIFIED"}`),
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateAuditEntry(entry); err != nil {
		t.Fatalf("CreateAuditEntry failed: %v", err)
	}

	var count int64
	db.Model(&models.AuditLogEntry{}).Where("engagement_id = ?", created.ID).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 audit entry, got %d", count)
	}
}
