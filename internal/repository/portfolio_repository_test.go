package repository

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kwalimwa/craftlink/internal/models"
)

// setupPortfolioTestDB creates an in-memory SQLite database for testing.
func setupPortfolioTestDB(t *testing.T) *DB {
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
		&models.PortfolioProgression{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return &DB{db}
}

// createTestLearner creates a learner with a provisioned progression record.
func createTestLearner(t *testing.T, db *DB, repo *PortfolioRepository, username string) *models.User {
	t.Helper()

	learner := &models.User{
		Username:  username,
		Role:      models.RoleLearner,
		SkillTier: models.LearnerTierBeginner,
	}
	if err := db.Create(learner).Error; err != nil {
		t.Fatalf("Failed to create test learner: %v", err)
	}

	progression := &models.PortfolioProgression{
		LearnerID: learner.ID,
		Tier:      models.LearnerTierBeginner,
		Strength:  models.StrengthBuilding,
	}
	if err := repo.Create(progression); err != nil {
		t.Fatalf("Failed to provision progression: %v", err)
	}
	return learner
}

func TestPortfolioRepository_GetByLearner(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	progression, err := repo.GetByLearner(learner.ID)
	if err != nil {
		t.Fatalf("GetByLearner failed: %v", err)
	}
	if progression.Tier != models.LearnerTierBeginner {
		t.Errorf("Expected tier BEGINNER, got %s", progression.Tier)
	}

	_, err = repo.GetByLearner(9999)
	if !errors.Is(err, ErrProgressionNotFound) {
		t.Errorf("Expected ErrProgressionNotFound, got %v", err)
	}
}

func TestPortfolioRepository_SaveVersioned(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	progression, err := repo.GetByLearner(learner.ID)
	if err != nil {
		t.Fatalf("GetByLearner failed: %v", err)
	}

	progression.Tier = models.LearnerTierIntermediate
	progression.VerifiedCount = 2
	if err := repo.SaveVersioned(progression); err != nil {
		t.Fatalf("SaveVersioned failed: %v", err)
	}
	if progression.Version != 1 {
		t.Errorf("Expected in-memory version bump to 1, got %d", progression.Version)
	}

	reread, err := repo.GetByLearner(learner.ID)
	if err != nil {
		t.Fatalf("GetByLearner failed: %v", err)
	}
	if reread.Tier != models.LearnerTierIntermediate {
		t.Errorf("Expected tier INTERMEDIATE, got %s", reread.Tier)
	}
	if reread.Version != 1 {
		t.Errorf("Expected stored version 1, got %d", reread.Version)
	}
}

func TestPortfolioRepository_SaveVersioned_Conflict(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	// Two readers load the same version.
	first, err := repo.GetByLearner(learner.ID)
	if err != nil {
		t.Fatalf("GetByLearner failed: %v", err)
	}
	second, err := repo.GetByLearner(learner.ID)
	if err != nil {
		t.Fatalf("GetByLearner failed: %v", err)
	}

	first.VerifiedCount = 1
	if err := repo.SaveVersioned(first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	// The stale writer loses.
	second.VerifiedCount = 5
	err = repo.SaveVersioned(second)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict, got %v", err)
	}

	reread, _ := repo.GetByLearner(learner.ID)
	if reread.VerifiedCount != 1 {
		t.Errorf("Expected winning write preserved, got verified count %d", reread.VerifiedCount)
	}
}

func TestPortfolioRepository_SetLearnerTier(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	if err := repo.SetLearnerTier(learner.ID, models.LearnerTierAdvanced); err != nil {
		t.Fatalf("SetLearnerTier failed: %v", err)
	}

	var user models.User
	if err := db.First(&user, learner.ID).Error; err != nil {
		t.Fatalf("Failed to reload learner: %v", err)
	}
	if user.SkillTier != models.LearnerTierAdvanced {
		t.Errorf("Expected skill tier ADVANCED, got %s", user.SkillTier)
	}
}

func TestPortfolioRepository_IncrementCompletedProjects(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	for i := 0; i < 3; i++ {
		if err := repo.IncrementCompletedProjects(learner.ID); err != nil {
			t.Fatalf("IncrementCompletedProjects failed: %v", err)
		}
	}

	var user models.User
	if err := db.First(&user, learner.ID).Error; err != nil {
		t.Fatalf("Failed to reload learner: %v", err)
	}
	if user.CompletedProjects != 3 {
		t.Errorf("Expected 3 completed projects, got %d", user.CompletedProjects)
	}
}

func TestPortfolioRepository_Create_OnePerLearner(t *testing.T) {
	db := setupPortfolioTestDB(t)
	repo := NewPortfolioRepository(db)
	learner := createTestLearner(t, db, repo, "amina")

	dup := &models.PortfolioProgression{LearnerID: learner.ID}
	if err := repo.Create(dup); err == nil {
		t.Error("Expected duplicate progression record to be rejected")
	}
}
