// Package verification handles review decisions on project engagements and
// the multi-record cascade a verification triggers.
package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/kwalimwa/craftlink/internal/metrics"
	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/notify"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/internal/service/progression"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// Caller-facing errors, mapped to HTTP status by the API layer.
var (
	ErrInvalidDecision = errors.New("invalid review decision")
	ErrInvalidScore    = errors.New("rubric scores must be between 1 and 5")
	ErrInvalidState    = errors.New("engagement is not under review")
)

// EngagementRepository interface for engagement operations.
type EngagementRepository interface {
	GetByID(id uint) (*models.ProjectEngagement, error)
	UpdateStatus(id uint, status string, reviewedAt time.Time) error
	CreateReviewRecord(record *models.ReviewRecord) error
	CreateAuditEntry(entry *models.AuditLogEntry) error
	GetReviewerStats(reviewerID uint) (*models.ReviewerStats, error)
	SaveReviewerStats(stats *models.ReviewerStats) error
	GetReviewer(reviewerID uint) (*models.User, error)
}

// ProgressionEngine interface for portfolio progression updates.
type ProgressionEngine interface {
	Apply(ctx context.Context, learnerID uint, update progression.VerificationUpdate) (*progression.ApplyResult, error)
}

// ProfileRepository interface for learner profile counters.
type ProfileRepository interface {
	IncrementCompletedProjects(learnerID uint) error
}

// LanguageDetector interface for repository language analysis.
type LanguageDetector interface {
	Languages(ctx context.Context, repoID string) []string
}

// Notifier interface for outbound notifications.
type Notifier interface {
	Dispatch(msg *notify.Message)
}

// LearnerLocker interface for per-learner cascade serialization.
type LearnerLocker interface {
	AcquireWait(ctx context.Context, learnerID uint) error
	Release(ctx context.Context, learnerID uint) error
}

// Decision is a reviewer's terminal verdict on an engagement under review.
type Decision struct {
	EngagementID       uint
	ReviewerID         uint
	Outcome            string
	FunctionalityScore float64
	CodeQualityScore   float64
	DocumentationScore float64
	TestingScore       float64
	Comment            string
}

// Result reports what the decision changed.
type Result struct {
	Decision    string                   `json:"decision"`
	Progression *progression.ApplyResult `json:"progression,omitempty"`
}

// Orchestrator sequences the state transition out of UNDER_REVIEW and, on
// verification, the dependent portfolio updates.
type Orchestrator struct {
	engagements EngagementRepository
	engine      ProgressionEngine
	profiles    ProfileRepository
	detector    LanguageDetector
	notifier    Notifier
	locker      LearnerLocker
	log         *logger.Logger
}

// NewOrchestrator creates a new verification orchestrator.
func NewOrchestrator(
	engagements *repository.EngagementRepository,
	engine *progression.Engine,
	profiles *repository.PortfolioRepository,
	detector LanguageDetector,
	notifier Notifier,
	locker LearnerLocker,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		engagements: engagements,
		engine:      engine,
		profiles:    profiles,
		detector:    detector,
		notifier:    notifier,
		locker:      locker,
		log:         log,
	}
}

// NewOrchestratorWithInterfaces creates a new orchestrator with interface dependencies (useful for testing).
func NewOrchestratorWithInterfaces(
	engagements EngagementRepository,
	engine ProgressionEngine,
	profiles ProfileRepository,
	detector LanguageDetector,
	notifier Notifier,
	locker LearnerLocker,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		engagements: engagements,
		engine:      engine,
		profiles:    profiles,
		detector:    detector,
		notifier:    notifier,
		locker:      locker,
		log:         log,
	}
}

// Process applies a review decision.
//
// Every outcome appends the immutable review record, folds the decision into
// the reviewer's rolling effectiveness averages, appends an audit entry and
// transitions the engagement. Only VERIFIED runs the portfolio cascade.
func (o *Orchestrator) Process(ctx context.Context, d Decision) (*Result, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	engagement, err := o.engagements.GetByID(d.EngagementID)
	if err != nil {
		return nil, err
	}
	if engagement.Status != models.EngagementUnderReview {
		return nil, fmt.Errorf("%w: engagement %d is %s", ErrInvalidState, engagement.ID, engagement.Status)
	}

	now := time.Now().UTC()

	record := &models.ReviewRecord{
		EngagementID:       d.EngagementID,
		ReviewerID:         d.ReviewerID,
		Decision:           d.Outcome,
		FunctionalityScore: d.FunctionalityScore,
		CodeQualityScore:   d.CodeQualityScore,
		DocumentationScore: d.DocumentationScore,
		TestingScore:       d.TestingScore,
		Comment:            d.Comment,
		CreatedAt:          now,
	}
	if err := o.engagements.CreateReviewRecord(record); err != nil {
		return nil, err
	}

	if err := o.updateReviewerStats(d); err != nil {
		return nil, err
	}

	if err := o.appendAuditEntry(engagement, record); err != nil {
		return nil, err
	}

	if err := o.engagements.UpdateStatus(d.EngagementID, d.Outcome, now); err != nil {
		return nil, err
	}

	prommetrics.RecordReviewDecision(d.Outcome)

	result := &Result{Decision: d.Outcome}

	switch d.Outcome {
	case models.EngagementVerified:
		result.Progression = o.runCascade(ctx, engagement, record)
	case models.EngagementRevisionRequired:
		o.notifier.Dispatch(&notify.Message{
			UserID: engagement.LearnerID,
			Kind:   notify.KindRevisionRequired,
			Title:  "Revision requested",
			Body:   fmt.Sprintf("Your project %q needs revisions before it can be verified.", engagement.Title),
		})
	}

	return result, nil
}

// validate checks the decision shape.
func (d Decision) validate() error {
	switch d.Outcome {
	case models.EngagementVerified, models.EngagementRevisionRequired, models.EngagementDenied:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, d.Outcome)
	}
	for _, score := range []float64{d.FunctionalityScore, d.CodeQualityScore, d.DocumentationScore, d.TestingScore} {
		if score < 1 || score > 5 {
			return ErrInvalidScore
		}
	}
	return nil
}

// updateReviewerStats folds the decision into the reviewer's rolling
// averages: newAvg = (oldAvg*n + newVal) / (n+1) per dimension and for
// comment length. Never re-scans decision history.
func (o *Orchestrator) updateReviewerStats(d Decision) error {
	stats, err := o.engagements.GetReviewerStats(d.ReviewerID)
	if err != nil {
		return err
	}

	n := float64(stats.TotalDecisions())
	roll := func(oldAvg, newVal float64) float64 {
		return (oldAvg*n + newVal) / (n + 1)
	}
	stats.AvgFunctionality = roll(stats.AvgFunctionality, d.FunctionalityScore)
	stats.AvgCodeQuality = roll(stats.AvgCodeQuality, d.CodeQualityScore)
	stats.AvgDocumentation = roll(stats.AvgDocumentation, d.DocumentationScore)
	stats.AvgTesting = roll(stats.AvgTesting, d.TestingScore)
	stats.AvgCommentLength = roll(stats.AvgCommentLength, float64(len(d.Comment)))

	switch d.Outcome {
	case models.EngagementVerified:
		stats.VerifiedCount++
	case models.EngagementRevisionRequired:
		stats.RevisionRequiredCount++
	case models.EngagementDenied:
		stats.DeniedCount++
	}
	stats.UpdatedAt = time.Now().UTC()

	return o.engagements.SaveReviewerStats(stats)
}

// appendAuditEntry writes the append-only audit record with a SHA-256 hash of
// the review content.
func (o *Orchestrator) appendAuditEntry(engagement *models.ProjectEngagement, record *models.ReviewRecord) error {
	snapshot := map[string]interface{}{
		"engagement_id":   engagement.ID,
		"learner_id":      engagement.LearnerID,
		"title":           engagement.Title,
		"tier":            engagement.Tier,
		"previous_status": engagement.Status,
		"decision":        record.Decision,
		"scores": map[string]float64{
			"functionality": record.FunctionalityScore,
			"code_quality":  record.CodeQualityScore,
			"documentation": record.DocumentationScore,
			"testing":       record.TestingScore,
		},
		"decided_at": record.CreatedAt,
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal audit snapshot: %w", err)
	}

	content := fmt.Sprintf("%d|%d|%s|%.2f|%.2f|%.2f|%.2f|%s",
		record.EngagementID, record.ReviewerID, record.Decision,
		record.FunctionalityScore, record.CodeQualityScore,
		record.DocumentationScore, record.TestingScore, record.Comment)
	hash := sha256.Sum256([]byte(content))

	return o.engagements.CreateAuditEntry(&models.AuditLogEntry{
		EngagementID: engagement.ID,
		ReviewerID:   record.ReviewerID,
		Decision:     record.Decision,
		ContentHash:  hex.EncodeToString(hash[:]),
		Snapshot:     snapshotJSON,
		CreatedAt:    record.CreatedAt,
	})
}

// runCascade performs the dependent portfolio updates for a VERIFIED
// decision. The verification itself has already committed; cascade failures
// are logged, counted and absorbed rather than rolled back.
func (o *Orchestrator) runCascade(ctx context.Context, engagement *models.ProjectEngagement, record *models.ReviewRecord) *progression.ApplyResult {
	start := time.Now()

	meanScore := record.MeanScore()

	// Reviewer institution, best-effort.
	institution := ""
	if reviewer, err := o.engagements.GetReviewer(record.ReviewerID); err != nil {
		o.log.Warn().Err(err).Uint("reviewer_id", record.ReviewerID).Msg("Failed to resolve reviewer institution")
	} else {
		institution = reviewer.Institution
	}

	// Observed languages, best-effort; failure yields an empty set.
	detected := o.detector.Languages(ctx, engagement.RepoID)

	declared, err := engagement.DeclaredStack()
	if err != nil {
		o.log.Error().Err(err).Uint("engagement_id", engagement.ID).Msg("Failed to decode planned stack")
		declared = nil
	}

	skills := progression.ExtractSkills(declared, detected, engagement.ID, record.CreatedAt)

	update := progression.VerificationUpdate{
		Project: models.VerifiedProject{
			EngagementID: engagement.ID,
			Title:        engagement.Title,
			Tier:         engagement.Tier,
			Stack:        declared,
			Score:        meanScore,
			Institution:  institution,
			VerifiedAt:   record.CreatedAt,
		},
		Skills: skills,
	}

	// Serialize per learner: two concurrent verifications for the same
	// learner must not interleave their read-modify-write.
	if err := o.locker.AcquireWait(ctx, engagement.LearnerID); err != nil {
		o.log.Error().Err(err).Uint("learner_id", engagement.LearnerID).Msg("Failed to acquire learner lock")
		prommetrics.RecordCascadeRun("lock_failed")
		return nil
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), engagement.LearnerID); err != nil {
			o.log.Warn().Err(err).Uint("learner_id", engagement.LearnerID).Msg("Failed to release learner lock")
		}
	}()

	result, err := o.engine.Apply(ctx, engagement.LearnerID, update)
	if err != nil {
		if errors.Is(err, repository.ErrProgressionNotFound) {
			// Provisioning creates the record at enrollment; absence is a bug
			// upstream, not a condition to recover from here.
			o.log.Error().
				Uint("learner_id", engagement.LearnerID).
				Uint("engagement_id", engagement.ID).
				Msg("Progression record missing, aborting cascade")
		} else {
			o.log.Error().Err(err).Uint("learner_id", engagement.LearnerID).Msg("Failed to apply progression update")
		}
		prommetrics.RecordCascadeRun("aborted")
		return nil
	}

	if err := o.profiles.IncrementCompletedProjects(engagement.LearnerID); err != nil {
		o.log.Error().Err(err).Uint("learner_id", engagement.LearnerID).Msg("Failed to increment completed projects")
	}

	if result.TierChanged {
		prommetrics.RecordTierUnlock(result.Tier)
	}
	prommetrics.RecordCascadeRun("ok")
	prommetrics.ObserveCascadeDuration(time.Since(start).Seconds())

	o.notifier.Dispatch(&notify.Message{
		UserID: engagement.LearnerID,
		Kind:   notify.KindProjectVerified,
		Title:  "Project verified",
		Body:   fmt.Sprintf("Your project %q has been verified with a score of %.1f.", engagement.Title, meanScore),
	})

	o.log.Info().
		Uint("learner_id", engagement.LearnerID).
		Uint("engagement_id", engagement.ID).
		Str("tier", result.Tier).
		Bool("tier_changed", result.TierChanged).
		Str("strength", result.Strength).
		Int("skills_added", result.SkillsAdded).
		Msg("Verification cascade complete")

	return result
}
