package models

import (
	"time"
)

// SellerReputation holds a seller's derived reputation record.
//
// The record is purely derived from order/rating/dispute history and is fully
// replaced on every recomputation, never patched.
type SellerReputation struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	SellerID             uint      `gorm:"not null;uniqueIndex" json:"seller_id"`
	VerificationScore    float64   `json:"verification_score"`
	TransactionCount     int       `json:"transaction_count"`
	TransactionVolume    float64   `json:"transaction_volume"`
	TransactionScore     float64   `json:"transaction_score"`
	RatingCount          int       `json:"rating_count"`
	RatingMean           float64   `json:"rating_mean"`
	RatingScore          float64   `json:"rating_score"`
	OnTimeRate           float64   `json:"on_time_rate"`
	DisputeCount         int       `json:"dispute_count"`
	DisputesRuledAgainst int       `json:"disputes_ruled_against"`
	ReliabilityScore     float64   `json:"reliability_score"`
	CompositeScore       int       `json:"composite_score"` // 0..100
	Tier                 string    `gorm:"size:50" json:"tier"`
	ComputedAt           time.Time `json:"computed_at"`
}

// TableName specifies the table name for SellerReputation model.
func (SellerReputation) TableName() string {
	return "seller_reputations"
}

// Seller reputation tier constants. Lower bounds are inclusive.
const (
	SellerTierNew         = "NEW"
	SellerTierEstablished = "ESTABLISHED"
	SellerTierTrusted     = "TRUSTED"
	SellerTierPremium     = "PREMIUM"
)
