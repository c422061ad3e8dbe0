package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// maxConflictRetries bounds the optimistic retry loop. The per-learner lease
// held by the caller makes conflicts rare; the retries cover lease expiry.
const maxConflictRetries = 3

// PortfolioRepository interface for progression record operations.
type PortfolioRepository interface {
	GetByLearner(learnerID uint) (*models.PortfolioProgression, error)
	SaveVersioned(progression *models.PortfolioProgression) error
	SetLearnerTier(learnerID uint, tier string) error
	IncrementCompletedProjects(learnerID uint) error
}

// VerificationUpdate carries everything one verified project contributes to
// the progression record.
type VerificationUpdate struct {
	Project models.VerifiedProject
	Skills  []models.Skill
}

// ApplyResult reports what the update changed.
type ApplyResult struct {
	Tier        string
	TierChanged bool
	Strength    string
	SkillsAdded int
}

// Engine orchestrates the read-modify-write of a single learner's
// progression record behind the repository's optimistic version token.
type Engine struct {
	repo PortfolioRepository
	log  *logger.Logger
}

// NewEngine creates a new portfolio progression engine.
func NewEngine(repo *repository.PortfolioRepository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// NewEngineWithInterfaces creates a new engine with interface dependencies (useful for testing).
func NewEngineWithInterfaces(repo PortfolioRepository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// Apply folds one verified project into the learner's progression record and
// persists the whole record. Retries on version conflict by re-reading and
// re-applying against the fresh state.
//
//nolint:revive // ctx reserved for future context-aware repository operations
func (e *Engine) Apply(ctx context.Context, learnerID uint, update VerificationUpdate) (*ApplyResult, error) {
	var result *ApplyResult

	for attempt := 0; ; attempt++ {
		progression, err := e.repo.GetByLearner(learnerID)
		if err != nil {
			return nil, err
		}

		result, err = e.mutate(progression, update)
		if err != nil {
			return nil, err
		}

		err = e.repo.SaveVersioned(progression)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
		if attempt >= maxConflictRetries {
			return nil, fmt.Errorf("progression update for learner %d: %w", learnerID, err)
		}
		e.log.Warn().
			Uint("learner_id", learnerID).
			Int("attempt", attempt+1).
			Msg("Progression version conflict, retrying")
	}

	if result.TierChanged {
		if err := e.repo.SetLearnerTier(learnerID, result.Tier); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// mutate applies the update to the in-memory record.
func (e *Engine) mutate(progression *models.PortfolioProgression, update VerificationUpdate) (*ApplyResult, error) {
	projects, err := progression.Projects()
	if err != nil {
		return nil, fmt.Errorf("failed to decode verified projects: %w", err)
	}
	skills, err := progression.SkillSet()
	if err != nil {
		return nil, fmt.Errorf("failed to decode skills: %w", err)
	}
	milestones, err := progression.MilestoneList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode milestones: %w", err)
	}
	techStack, err := progression.TechStackSet()
	if err != nil {
		return nil, fmt.Errorf("failed to decode tech stack: %w", err)
	}
	institutions, err := progression.InstitutionSet()
	if err != nil {
		return nil, fmt.Errorf("failed to decode institutions: %w", err)
	}

	// Append the verified-project summary.
	projects = append(projects, update.Project)

	// Merge skills, deduplicated by name. Existing entries keep their
	// timestamp and category.
	known := make(map[string]bool, len(skills))
	for _, s := range skills {
		known[strings.ToLower(s.Name)] = true
	}
	added := 0
	for _, s := range update.Skills {
		key := strings.ToLower(s.Name)
		if known[key] {
			continue
		}
		skills = append(skills, s)
		known[key] = true
		added++
	}

	// Recompute tier; a change appends to the unlock timeline.
	previousTier := progression.Tier
	newTier := CalculateTier(projects)
	tierChanged := newTier != previousTier
	if tierChanged {
		milestones = append(milestones, models.TierMilestone{
			Tier:       newTier,
			UnlockedAt: update.Project.VerifiedAt,
		})
	}

	// Rolling stats. Total tracks attempts and never falls below verified.
	progression.VerifiedCount++
	if progression.TotalCount < progression.VerifiedCount {
		progression.TotalCount = progression.VerifiedCount
	}
	techStack = mergeSet(techStack, update.Project.Stack)
	if update.Project.Institution != "" {
		institutions = mergeSet(institutions, []string{update.Project.Institution})
	}

	progression.Tier = newTier
	progression.Strength = CalculateStrength(newTier, projects)
	progression.UpdatedAt = time.Now().UTC()

	if err := progression.SetProjects(projects); err != nil {
		return nil, err
	}
	if err := progression.SetSkillSet(skills); err != nil {
		return nil, err
	}
	if err := progression.SetMilestoneList(milestones); err != nil {
		return nil, err
	}
	if err := progression.SetTechStackSet(techStack); err != nil {
		return nil, err
	}
	if err := progression.SetInstitutionSet(institutions); err != nil {
		return nil, err
	}

	return &ApplyResult{
		Tier:        newTier,
		TierChanged: tierChanged,
		Strength:    progression.Strength,
		SkillsAdded: added,
	}, nil
}

// mergeSet appends unseen entries, preserving first-seen order.
func mergeSet(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		existing = append(existing, v)
		seen[strings.ToLower(v)] = true
	}
	return existing
}

// ReconcileTier re-copies the progression tier onto the denormalized
// profile-level field. Repair path for drift between the two.
//
//nolint:revive // ctx reserved for future context-aware repository operations
func (e *Engine) ReconcileTier(ctx context.Context, learnerID uint) (string, error) {
	progression, err := e.repo.GetByLearner(learnerID)
	if err != nil {
		return "", err
	}
	if err := e.repo.SetLearnerTier(learnerID, progression.Tier); err != nil {
		return "", err
	}
	return progression.Tier, nil
}
