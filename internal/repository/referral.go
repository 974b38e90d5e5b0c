package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"contest-bot/internal/models"
)

type ReferralRepository interface {
	Create(ctx context.Context, referral *models.Referral) error
	ListActiveByReferredUser(ctx context.Context, referredUserID, chatID int64) ([]models.Referral, error)
	MarkLeft(ctx context.Context, id uint, leftAt time.Time) (bool, error)
}

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) Create(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

func (r *referralRepository) ListActiveByReferredUser(ctx context.Context, referredUserID, chatID int64) ([]models.Referral, error) {
	var result []models.Referral
	err := r.db.WithContext(ctx).
		Where("referred_user_id = ? AND chat_id = ? AND status = ?",
			referredUserID, chatID, models.ReferralStatusActive).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkLeft transitions a referral ACTIVE -> LEFT. The status filter is the
// exactly-once guard: a referral already LEFT matches zero rows, so reversal
// cannot double-apply no matter how many times the departure is reported.
func (r *referralRepository) MarkLeft(ctx context.Context, id uint, leftAt time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, models.ReferralStatusActive).
		Updates(map[string]any{
			"status":  models.ReferralStatusLeft,
			"left_at": leftAt,
		})

	if tx.Error != nil {
		return false, tx.Error
	}

	return tx.RowsAffected == 1, nil
}
