package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/notify"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/internal/service/progression"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// MockEngagementRepository implements the repository interface for testing
type MockEngagementRepository struct {
	GetByIDFunc            func(id uint) (*models.ProjectEngagement, error)
	UpdateStatusFunc       func(id uint, status string, reviewedAt time.Time) error
	CreateReviewRecordFunc func(record *models.ReviewRecord) error
	CreateAuditEntryFunc   func(entry *models.AuditLogEntry) error
	GetReviewerStatsFunc   func(reviewerID uint) (*models.ReviewerStats, error)
	SaveReviewerStatsFunc  func(stats *models.ReviewerStats) error
	GetReviewerFunc        func(reviewerID uint) (*models.User, error)
}

func (m *MockEngagementRepository) GetByID(id uint) (*models.ProjectEngagement, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	return underReviewEngagement(id), nil
}

func (m *MockEngagementRepository) UpdateStatus(id uint, status string, reviewedAt time.Time) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(id, status, reviewedAt)
	}
	return nil
}

func (m *MockEngagementRepository) CreateReviewRecord(record *models.ReviewRecord) error {
	if m.CreateReviewRecordFunc != nil {
		return m.CreateReviewRecordFunc(record)
	}
	return nil
}

func (m *MockEngagementRepository) CreateAuditEntry(entry *models.AuditLogEntry) error {
	if m.CreateAuditEntryFunc != nil {
		return m.CreateAuditEntryFunc(entry)
	}
	return nil
}

func (m *MockEngagementRepository) GetReviewerStats(reviewerID uint) (*models.ReviewerStats, error) {
	if m.GetReviewerStatsFunc != nil {
		return m.GetReviewerStatsFunc(reviewerID)
	}
	return &models.ReviewerStats{ReviewerID: reviewerID}, nil
}

func (m *MockEngagementRepository) SaveReviewerStats(stats *models.ReviewerStats) error {
	if m.SaveReviewerStatsFunc != nil {
		return m.SaveReviewerStatsFunc(stats)
	}
	return nil
}

func (m *MockEngagementRepository) GetReviewer(reviewerID uint) (*models.User, error) {
	if m.GetReviewerFunc != nil {
		return m.GetReviewerFunc(reviewerID)
	}
	return &models.User{ID: reviewerID, Institution: "Moringa School"}, nil
}

// MockProgressionEngine implements the progression interface for testing
type MockProgressionEngine struct {
	ApplyFunc func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error)
}

func (m *MockProgressionEngine) Apply(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, learnerID, update)
	}
	return &progression.ApplyResult{Tier: models.LearnerTierBeginner, Strength: models.StrengthBuilding}, nil
}

// MockProfileRepository implements the profile counter interface for testing
type MockProfileRepository struct {
	IncrementCompletedProjectsFunc func(learnerID uint) error
}

func (m *MockProfileRepository) IncrementCompletedProjects(learnerID uint) error {
	if m.IncrementCompletedProjectsFunc != nil {
		return m.IncrementCompletedProjectsFunc(learnerID)
	}
	return nil
}

// MockDetector implements the language detector interface for testing
type MockDetector struct {
	LanguagesFunc func(ctx context.Context, repoID string) []string
}

func (m *MockDetector) Languages(ctx context.Context, repoID string) []string {
	if m.LanguagesFunc != nil {
		return m.LanguagesFunc(ctx, repoID)
	}
	return nil
}

// MockNotifier captures dispatched messages
type MockNotifier struct {
	Messages []*notify.Message
}

func (m *MockNotifier) Dispatch(msg *notify.Message) {
	m.Messages = append(m.Messages, msg)
}

// MockLocker tracks acquire/release pairing
type MockLocker struct {
	AcquireWaitFunc func(ctx context.Context, learnerID uint) error
	Acquired        int
	Released        int
}

func (m *MockLocker) AcquireWait(ctx context.Context, learnerID uint) error {
	m.Acquired++
	if m.AcquireWaitFunc != nil {
		return m.AcquireWaitFunc(ctx, learnerID)
	}
	return nil
}

func (m *MockLocker) Release(ctx context.Context, learnerID uint) error {
	m.Released++
	return nil
}

func underReviewEngagement(id uint) *models.ProjectEngagement {
	return &models.ProjectEngagement{
		ID:           id,
		LearnerID:    5,
		Title:        "M-Pesa savings tracker",
		Tier:         models.LearnerTierBeginner,
		PlannedStack: []byte(`["React","Node.js"]`),
		RepoID:       "kwalimwa/savings-tracker",
		Status:       models.EngagementUnderReview,
	}
}

func validDecision(outcome string) Decision {
	return Decision{
		EngagementID:       10,
		ReviewerID:         3,
		Outcome:            outcome,
		FunctionalityScore: 4,
		CodeQualityScore:   4,
		DocumentationScore: 3,
		TestingScore:       5,
		Comment:            "Solid work, tests cover the edge cases.",
	}
}

func newTestOrchestrator(
	engagements *MockEngagementRepository,
	engine *MockProgressionEngine,
	profiles *MockProfileRepository,
	detector *MockDetector,
	notifier *MockNotifier,
	locker *MockLocker,
) *Orchestrator {
	return NewOrchestratorWithInterfaces(engagements, engine, profiles, detector, notifier, locker, logger.Get())
}

func TestProcess_RejectsUnknownDecision(t *testing.T) {
	o := newTestOrchestrator(&MockEngagementRepository{}, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	d := validDecision("APPROVED")
	_, err := o.Process(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestProcess_RejectsOutOfRangeScores(t *testing.T) {
	o := newTestOrchestrator(&MockEngagementRepository{}, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	d := validDecision(models.EngagementVerified)
	d.TestingScore = 0
	_, err := o.Process(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidScore)

	d = validDecision(models.EngagementVerified)
	d.FunctionalityScore = 5.5
	_, err = o.Process(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestProcess_RejectsWrongState(t *testing.T) {
	engagements := &MockEngagementRepository{
		GetByIDFunc: func(id uint) (*models.ProjectEngagement, error) {
			e := underReviewEngagement(id)
			e.Status = models.EngagementInProgress
			return e, nil
		},
	}
	o := newTestOrchestrator(engagements, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	_, err := o.Process(context.Background(), validDecision(models.EngagementVerified))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProcess_EveryOutcomeWritesRecordStatsAndAudit(t *testing.T) {
	outcomes := []string{
		models.EngagementVerified,
		models.EngagementRevisionRequired,
		models.EngagementDenied,
	}
	for _, outcome := range outcomes {
		t.Run(outcome, func(t *testing.T) {
			var record *models.ReviewRecord
			var audit *models.AuditLogEntry
			var savedStats *models.ReviewerStats
			var newStatus string

			engagements := &MockEngagementRepository{
				CreateReviewRecordFunc: func(r *models.ReviewRecord) error {
					record = r
					return nil
				},
				CreateAuditEntryFunc: func(e *models.AuditLogEntry) error {
					audit = e
					return nil
				},
				SaveReviewerStatsFunc: func(s *models.ReviewerStats) error {
					savedStats = s
					return nil
				},
				UpdateStatusFunc: func(id uint, status string, reviewedAt time.Time) error {
					newStatus = status
					return nil
				},
			}
			o := newTestOrchestrator(engagements, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

			result, err := o.Process(context.Background(), validDecision(outcome))
			require.NoError(t, err)
			assert.Equal(t, outcome, result.Decision)
			assert.Equal(t, outcome, newStatus)

			require.NotNil(t, record)
			assert.Equal(t, outcome, record.Decision)
			assert.Equal(t, uint(3), record.ReviewerID)

			require.NotNil(t, savedStats)
			assert.Equal(t, 1, savedStats.TotalDecisions())

			require.NotNil(t, audit)
			assert.Equal(t, outcome, audit.Decision)
			assert.Len(t, audit.ContentHash, 64)
			assert.NotEmpty(t, audit.Snapshot)
		})
	}
}

func TestProcess_AuditHashMatchesContent(t *testing.T) {
	var audit *models.AuditLogEntry
	engagements := &MockEngagementRepository{
		CreateAuditEntryFunc: func(e *models.AuditLogEntry) error {
			audit = e
			return nil
		},
	}
	o := newTestOrchestrator(engagements, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	d := validDecision(models.EngagementDenied)
	_, err := o.Process(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, audit)

	content := fmt.Sprintf("%d|%d|%s|%.2f|%.2f|%.2f|%.2f|%s",
		d.EngagementID, d.ReviewerID, d.Outcome,
		d.FunctionalityScore, d.CodeQualityScore,
		d.DocumentationScore, d.TestingScore, d.Comment)
	want := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(want[:]), audit.ContentHash)
}

func TestProcess_RollingAverages(t *testing.T) {
	var savedStats *models.ReviewerStats
	engagements := &MockEngagementRepository{
		GetReviewerStatsFunc: func(reviewerID uint) (*models.ReviewerStats, error) {
			// Reviewer with 4 prior decisions averaging 3.0 on functionality.
			return &models.ReviewerStats{
				ReviewerID:            reviewerID,
				VerifiedCount:         3,
				RevisionRequiredCount: 1,
				AvgFunctionality:      3.0,
				AvgCommentLength:      100,
			}, nil
		},
		SaveReviewerStatsFunc: func(s *models.ReviewerStats) error {
			savedStats = s
			return nil
		},
	}
	o := newTestOrchestrator(engagements, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	d := validDecision(models.EngagementDenied)
	d.FunctionalityScore = 5
	d.Comment = "too short" // length 9
	_, err := o.Process(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, savedStats)

	// (3.0*4 + 5) / 5 = 3.4
	assert.InDelta(t, 3.4, savedStats.AvgFunctionality, 1e-9)
	// (100*4 + 9) / 5 = 81.8
	assert.InDelta(t, 81.8, savedStats.AvgCommentLength, 1e-9)
	assert.Equal(t, 1, savedStats.DeniedCount)
	assert.Equal(t, 5, savedStats.TotalDecisions())
}

func TestProcess_VerifiedRunsCascade(t *testing.T) {
	var appliedLearner uint
	var appliedUpdate progression.VerificationUpdate
	engine := &MockProgressionEngine{
		ApplyFunc: func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
			appliedLearner = learnerID
			appliedUpdate = update
			return &progression.ApplyResult{
				Tier:        models.LearnerTierIntermediate,
				TierChanged: true,
				Strength:    models.StrengthDeveloping,
				SkillsAdded: 2,
			}, nil
		},
	}
	detector := &MockDetector{
		LanguagesFunc: func(ctx context.Context, repoID string) []string {
			return []string{"JavaScript", "React"}
		},
	}
	incremented := false
	profiles := &MockProfileRepository{
		IncrementCompletedProjectsFunc: func(learnerID uint) error {
			incremented = true
			return nil
		},
	}
	notifier := &MockNotifier{}
	locker := &MockLocker{}
	o := newTestOrchestrator(&MockEngagementRepository{}, engine, profiles, detector, notifier, locker)

	result, err := o.Process(context.Background(), validDecision(models.EngagementVerified))
	require.NoError(t, err)
	require.NotNil(t, result.Progression)

	assert.Equal(t, uint(5), appliedLearner)
	assert.Equal(t, uint(10), appliedUpdate.Project.EngagementID)
	assert.Equal(t, 4.0, appliedUpdate.Project.Score) // mean of 4,4,3,5
	assert.Equal(t, "Moringa School", appliedUpdate.Project.Institution)
	assert.Equal(t, []string{"React", "Node.js"}, appliedUpdate.Project.Stack)

	// Declared React overlaps detection and is confirmed; Node.js is not.
	byName := map[string]models.Skill{}
	for _, s := range appliedUpdate.Skills {
		byName[s.Name] = s
	}
	assert.True(t, byName["React"].Confirmed)
	assert.False(t, byName["Node.js"].Confirmed)

	assert.True(t, incremented)
	assert.Equal(t, 1, locker.Acquired)
	assert.Equal(t, 1, locker.Released)

	require.Len(t, notifier.Messages, 1)
	assert.Equal(t, notify.KindProjectVerified, notifier.Messages[0].Kind)
	assert.Equal(t, uint(5), notifier.Messages[0].UserID)
}

func TestProcess_RevisionRequiredNotifiesWithoutCascade(t *testing.T) {
	cascaded := false
	engine := &MockProgressionEngine{
		ApplyFunc: func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
			cascaded = true
			return nil, nil
		},
	}
	notifier := &MockNotifier{}
	o := newTestOrchestrator(&MockEngagementRepository{}, engine, &MockProfileRepository{}, &MockDetector{}, notifier, &MockLocker{})

	result, err := o.Process(context.Background(), validDecision(models.EngagementRevisionRequired))
	require.NoError(t, err)
	assert.Nil(t, result.Progression)
	assert.False(t, cascaded)

	require.Len(t, notifier.Messages, 1)
	assert.Equal(t, notify.KindRevisionRequired, notifier.Messages[0].Kind)
}

func TestProcess_DeniedIsSilent(t *testing.T) {
	notifier := &MockNotifier{}
	o := newTestOrchestrator(&MockEngagementRepository{}, &MockProgressionEngine{}, &MockProfileRepository{}, &MockDetector{}, notifier, &MockLocker{})

	result, err := o.Process(context.Background(), validDecision(models.EngagementDenied))
	require.NoError(t, err)
	assert.Nil(t, result.Progression)
	assert.Empty(t, notifier.Messages)
}

func TestProcess_CascadeAbortsWhenProgressionMissing(t *testing.T) {
	engine := &MockProgressionEngine{
		ApplyFunc: func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
			return nil, repository.ErrProgressionNotFound
		},
	}
	incremented := false
	profiles := &MockProfileRepository{
		IncrementCompletedProjectsFunc: func(learnerID uint) error {
			incremented = true
			return nil
		},
	}
	notifier := &MockNotifier{}
	locker := &MockLocker{}
	o := newTestOrchestrator(&MockEngagementRepository{}, engine, profiles, &MockDetector{}, notifier, locker)

	// The verification itself still succeeds; only the cascade is absorbed.
	result, err := o.Process(context.Background(), validDecision(models.EngagementVerified))
	require.NoError(t, err)
	assert.Equal(t, models.EngagementVerified, result.Decision)
	assert.Nil(t, result.Progression)
	assert.False(t, incremented)
	assert.Empty(t, notifier.Messages)
	assert.Equal(t, 1, locker.Released)
}

func TestProcess_CascadeSurvivesDetectorAndReviewerFailures(t *testing.T) {
	var appliedUpdate progression.VerificationUpdate
	engine := &MockProgressionEngine{
		ApplyFunc: func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
			appliedUpdate = update
			return &progression.ApplyResult{Tier: models.LearnerTierBeginner, Strength: models.StrengthBuilding}, nil
		},
	}
	engagements := &MockEngagementRepository{
		GetReviewerFunc: func(reviewerID uint) (*models.User, error) {
			return nil, fmt.Errorf("reviewer lookup timed out")
		},
	}
	o := newTestOrchestrator(engagements, engine, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, &MockLocker{})

	result, err := o.Process(context.Background(), validDecision(models.EngagementVerified))
	require.NoError(t, err)
	require.NotNil(t, result.Progression)

	// Institution degrades to empty; declared skills survive with no confirmation.
	assert.Empty(t, appliedUpdate.Project.Institution)
	require.Len(t, appliedUpdate.Skills, 2)
	for _, s := range appliedUpdate.Skills {
		assert.False(t, s.Confirmed)
	}
}

func TestProcess_LockFailureAbortsCascade(t *testing.T) {
	cascaded := false
	engine := &MockProgressionEngine{
		ApplyFunc: func(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error) {
			cascaded = true
			return nil, nil
		},
	}
	locker := &MockLocker{
		AcquireWaitFunc: func(ctx context.Context, learnerID uint) error {
			return fmt.Errorf("lease held too long")
		},
	}
	o := newTestOrchestrator(&MockEngagementRepository{}, engine, &MockProfileRepository{}, &MockDetector{}, &MockNotifier{}, locker)

	result, err := o.Process(context.Background(), validDecision(models.EngagementVerified))
	require.NoError(t, err)
	assert.Nil(t, result.Progression)
	assert.False(t, cascaded)
	assert.Equal(t, 0, locker.Released)
}
