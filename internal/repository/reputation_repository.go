package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kwalimwa/craftlink/internal/models"
)

// ErrSellerNotFound is returned when the seller does not exist.
var ErrSellerNotFound = errors.New("seller not found")

// ReputationRepository gathers a seller's aggregate history and persists the
// derived reputation record.
type ReputationRepository struct {
	db *DB
}

// NewReputationRepository creates a new reputation repository.
func NewReputationRepository(db *DB) *ReputationRepository {
	return &ReputationRepository{db: db}
}

// SellerAggregates holds the source aggregates a reputation computation
// starts from. All values are re-derived from order/rating/dispute history on
// every call, never incrementally maintained.
type SellerAggregates struct {
	VerificationApproved bool
	CompletedOrders      int
	CompletedVolume      float64
	RatingCount          int
	RatingMean           float64
	OnTimeRate           float64
	DisputeCount         int
	DisputesRuledAgainst int
}

// GetSeller retrieves a seller user record.
func (r *ReputationRepository) GetSeller(sellerID uint) (*models.User, error) {
	var seller models.User
	err := r.db.Where("id = ? AND role = ?", sellerID, models.RoleSeller).First(&seller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSellerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller %d: %w", sellerID, err)
	}
	return &seller, nil
}

// GatherAggregates re-scans the seller's order, rating and dispute history.
func (r *ReputationRepository) GatherAggregates(sellerID uint) (*SellerAggregates, error) {
	seller, err := r.GetSeller(sellerID)
	if err != nil {
		return nil, err
	}

	agg := &SellerAggregates{VerificationApproved: seller.VerificationApproved}

	// Completed orders: paid and confirmed by the buyer.
	var completed struct {
		Count  int64
		Volume float64
	}
	err = r.db.Model(&models.Order{}).
		Select("COUNT(*) as count, COALESCE(SUM(amount), 0) as volume").
		Where("seller_id = ? AND payment_status = ? AND fulfillment_status = ?",
			sellerID, models.PaymentPaid, models.FulfillmentConfirmed).
		Scan(&completed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate completed orders for seller %d: %w", sellerID, err)
	}
	agg.CompletedOrders = int(completed.Count)
	agg.CompletedVolume = completed.Volume

	// Ratings.
	var ratings struct {
		Count int64
		Mean  float64
	}
	err = r.db.Model(&models.Rating{}).
		Select("COUNT(*) as count, COALESCE(AVG(stars), 0) as mean").
		Where("seller_id = ?", sellerID).
		Scan(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings for seller %d: %w", sellerID, err)
	}
	agg.RatingCount = int(ratings.Count)
	agg.RatingMean = ratings.Mean

	// On-time rate: fraction of paid orders whose buyer confirmation landed
	// within 24 hours of the payment confirmation. Zero paid orders is
	// presumed fully on-time.
	var paidOrders []models.Order
	err = r.db.Select("paid_at", "confirmed_at").
		Where("seller_id = ? AND payment_status = ? AND paid_at IS NOT NULL", sellerID, models.PaymentPaid).
		Find(&paidOrders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load paid orders for seller %d: %w", sellerID, err)
	}
	if len(paidOrders) == 0 {
		agg.OnTimeRate = 1.0
	} else {
		onTime := 0
		for _, o := range paidOrders {
			if o.ConfirmedAt != nil && !o.ConfirmedAt.After(o.PaidAt.Add(24*time.Hour)) {
				onTime++
			}
		}
		agg.OnTimeRate = float64(onTime) / float64(len(paidOrders))
	}

	// Disputes.
	var disputeCount, ruledAgainstCount int64
	err = r.db.Model(&models.Dispute{}).Where("seller_id = ?", sellerID).Count(&disputeCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count disputes for seller %d: %w", sellerID, err)
	}
	err = r.db.Model(&models.Dispute{}).
		Where("seller_id = ? AND ruled_against = ?", sellerID, true).
		Count(&ruledAgainstCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count rulings for seller %d: %w", sellerID, err)
	}
	agg.DisputeCount = int(disputeCount)
	agg.DisputesRuledAgainst = int(ruledAgainstCount)

	return agg, nil
}

// Replace persists the reputation record, fully replacing any existing row
// for the seller.
func (r *ReputationRepository) Replace(rep *models.SellerReputation) error {
	var existing models.SellerReputation
	err := r.db.Where("seller_id = ?", rep.SellerID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.Create(rep).Error; err != nil {
			return fmt.Errorf("failed to create reputation for seller %d: %w", rep.SellerID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to load reputation for seller %d: %w", rep.SellerID, err)
	}

	rep.ID = existing.ID
	if err := r.db.Save(rep).Error; err != nil {
		return fmt.Errorf("failed to replace reputation for seller %d: %w", rep.SellerID, err)
	}
	return nil
}

// GetBySeller retrieves the current reputation record for a seller.
func (r *ReputationRepository) GetBySeller(sellerID uint) (*models.SellerReputation, error) {
	var rep models.SellerReputation
	err := r.db.Where("seller_id = ?", sellerID).First(&rep).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation for seller %d: %w", sellerID, err)
	}
	return &rep, nil
}
