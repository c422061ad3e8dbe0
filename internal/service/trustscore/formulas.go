// Package trustscore computes seller reputation scores and tiers.
package trustscore

import (
	"math"

	"github.com/kwalimwa/craftlink/internal/models"
)

// Inputs holds the source aggregates a score computation starts from.
type Inputs struct {
	VerificationApproved bool
	CompletedOrders      int
	CompletedVolume      float64
	RatingCount          int
	RatingMean           float64
	OnTimeRate           float64 // 1.0 when the seller has no paid orders
	DisputeCount         int
	DisputesRuledAgainst int
}

// Scores holds the four weighted sub-scores and the composite.
type Scores struct {
	Verification float64
	Transaction  float64
	Rating       float64
	Reliability  float64
	Composite    int // 0..100
	Tier         string
}

// VerificationScore is 40 for an approved seller, 0 otherwise. Never intermediate.
func VerificationScore(approved bool) float64 {
	if approved {
		return 40
	}
	return 0
}

// TransactionScore weights order count and volume as two independently-capped
// terms, summed and capped again at 25.
func TransactionScore(orders int, volume float64) float64 {
	countTerm := math.Min(float64(orders)*0.5, 12)
	volumeTerm := math.Min(volume/50000, 13)
	return math.Min(countTerm+volumeTerm, 25)
}

// RatingScore maps the mean rating linearly onto 0..20 (1 star -> 0,
// 5 stars -> 20). Fewer than three ratings scores zero regardless of mean,
// so a single five-star review cannot dominate a cold start.
func RatingScore(count int, mean float64) float64 {
	if count < 3 {
		return 0
	}
	return math.Round(((mean - 1) / 4) * 20)
}

// ReliabilityScore rewards on-time confirmation and penalizes disputes,
// clamped to 0..15.
func ReliabilityScore(onTimeRate float64, disputes, ruledAgainst int) float64 {
	score := onTimeRate*12 - float64(disputes)*2 - float64(ruledAgainst)*5
	if score < 0 {
		return 0
	}
	if score > 15 {
		return 15
	}
	return score
}

// TierForComposite maps a composite score onto a tier. Lower bounds inclusive.
func TierForComposite(composite int) string {
	switch {
	case composite >= 80:
		return models.SellerTierPremium
	case composite >= 60:
		return models.SellerTierTrusted
	case composite >= 40:
		return models.SellerTierEstablished
	default:
		return models.SellerTierNew
	}
}

// Compute derives the full score set from source aggregates.
func Compute(in Inputs) Scores {
	s := Scores{
		Verification: VerificationScore(in.VerificationApproved),
		Transaction:  TransactionScore(in.CompletedOrders, in.CompletedVolume),
		Rating:       RatingScore(in.RatingCount, in.RatingMean),
		Reliability:  ReliabilityScore(in.OnTimeRate, in.DisputeCount, in.DisputesRuledAgainst),
	}
	s.Composite = int(math.Round(s.Verification + s.Transaction + s.Rating + s.Reliability))
	s.Tier = TierForComposite(s.Composite)
	return s
}
