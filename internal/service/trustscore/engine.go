package trustscore

import (
	"context"
	"errors"
	"time"

	prommetrics "github.com/kwalimwa/craftlink/internal/metrics"
	"github.com/kwalimwa/craftlink/internal/models"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

// ReputationRepository interface for reputation operations.
type ReputationRepository interface {
	GatherAggregates(sellerID uint) (*repository.SellerAggregates, error)
	Replace(rep *models.SellerReputation) error
}

// Engine recomputes a seller's reputation record from source aggregates.
//
// Recompute is triggered after terminal fulfillment and after rating
// submission, never on reads. Every invocation is a full recomputation, so
// retries and replays converge on the same record.
type Engine struct {
	repo ReputationRepository
	log  *logger.Logger
}

// NewEngine creates a new trust score engine.
func NewEngine(repo *repository.ReputationRepository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// NewEngineWithInterfaces creates a new engine with interface dependencies (useful for testing).
func NewEngineWithInterfaces(repo ReputationRepository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// Recompute gathers the seller's history, computes the scores and fully
// replaces the reputation record.
//
// Best-effort by contract: every failure is logged and swallowed so the
// triggering request (payment confirmation, rating submission) succeeds
// independent of derived-state success. A missing seller is a silent no-op.
//
//nolint:revive // ctx reserved for future context-aware repository operations
func (e *Engine) Recompute(ctx context.Context, sellerID uint) {
	agg, err := e.repo.GatherAggregates(sellerID)
	if err != nil {
		if errors.Is(err, repository.ErrSellerNotFound) {
			e.log.Debug().Uint("seller_id", sellerID).Msg("Seller not found, skipping reputation recompute")
			return
		}
		e.log.Error().Err(err).Uint("seller_id", sellerID).Msg("Failed to gather seller aggregates")
		prommetrics.RecordScoreRecompute("gather_failed")
		return
	}

	scores := Compute(Inputs{
		VerificationApproved: agg.VerificationApproved,
		CompletedOrders:      agg.CompletedOrders,
		CompletedVolume:      agg.CompletedVolume,
		RatingCount:          agg.RatingCount,
		RatingMean:           agg.RatingMean,
		OnTimeRate:           agg.OnTimeRate,
		DisputeCount:         agg.DisputeCount,
		DisputesRuledAgainst: agg.DisputesRuledAgainst,
	})

	rep := &models.SellerReputation{
		SellerID:             sellerID,
		VerificationScore:    scores.Verification,
		TransactionCount:     agg.CompletedOrders,
		TransactionVolume:    agg.CompletedVolume,
		TransactionScore:     scores.Transaction,
		RatingCount:          agg.RatingCount,
		RatingMean:           agg.RatingMean,
		RatingScore:          scores.Rating,
		OnTimeRate:           agg.OnTimeRate,
		DisputeCount:         agg.DisputeCount,
		DisputesRuledAgainst: agg.DisputesRuledAgainst,
		ReliabilityScore:     scores.Reliability,
		CompositeScore:       scores.Composite,
		Tier:                 scores.Tier,
		ComputedAt:           time.Now().UTC(),
	}

	if err := e.repo.Replace(rep); err != nil {
		e.log.Error().Err(err).Uint("seller_id", sellerID).Msg("Failed to persist seller reputation")
		prommetrics.RecordScoreRecompute("persist_failed")
		return
	}

	prommetrics.RecordScoreRecompute("ok")
	prommetrics.ObserveCompositeScore(float64(scores.Composite))

	e.log.Info().
		Uint("seller_id", sellerID).
		Int("composite", scores.Composite).
		Str("tier", scores.Tier).
		Msg("Seller reputation recomputed")
}
