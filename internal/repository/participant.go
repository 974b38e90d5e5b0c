package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"contest-bot/internal/models"
)

// ParticipantRepository is the storage collaborator for participant rows.
// Every point mutation is an atomic in-database increment and every state
// flip is a conditional update; read-modify-write on counters is not allowed
// here because concurrent events may touch the same row.
type ParticipantRepository interface {
	Get(ctx context.Context, userID, chatID int64) (*models.Participant, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Participant, error)
	Create(ctx context.Context, participant *models.Participant) error
	Reactivate(ctx context.Context, userID, chatID int64, firstName, lastName, username string) error
	Deactivate(ctx context.Context, userID, chatID int64) error
	AddReferralBonus(ctx context.Context, userID, chatID int64, points int, earnedAt time.Time) error
	ReverseReferralBonus(ctx context.Context, userID, chatID int64, points int) error
	CompleteTiktokTask(ctx context.Context, userID, chatID int64, points int) (bool, error)
	AppendTiktokLink(ctx context.Context, userID, chatID int64, oldLinks, newLinks []string, points int) (bool, error)
	ListActive(ctx context.Context, chatID int64) ([]models.Participant, error)
}

type participantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) Get(ctx context.Context, userID, chatID int64) (*models.Participant, error) {
	var result models.Participant
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Take(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *participantRepository) GetByReferralCode(ctx context.Context, code string) (*models.Participant, error) {
	var result models.Participant
	if err := r.db.WithContext(ctx).Take(&result, "referral_code = ?", code).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *participantRepository) Create(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *participantRepository) Reactivate(ctx context.Context, userID, chatID int64, firstName, lastName, username string) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Updates(map[string]any{
			"is_active":  true,
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		})

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *participantRepository) Deactivate(ctx context.Context, userID, chatID int64) error {
	// Deactivating an unknown participant is a no-op, not an error.
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Update("is_active", false).Error
}

func (r *participantRepository) AddReferralBonus(ctx context.Context, userID, chatID int64, points int, earnedAt time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Updates(map[string]any{
			"points":         gorm.Expr("points + ?", points),
			"referral_count": gorm.Expr("referral_count + 1"),
			// Set only the first time this participant earns a referral point.
			"first_referral_point_at": gorm.Expr("COALESCE(first_referral_point_at, ?)", earnedAt),
		})

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected > 1 {
		return errors.New("the number of affected rows is invalid")
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *participantRepository) ReverseReferralBonus(ctx context.Context, userID, chatID int64, points int) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Updates(map[string]any{
			"points":         gorm.Expr("points - ?", points),
			"referral_count": gorm.Expr("referral_count - 1"),
		})

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected > 1 {
		return errors.New("the number of affected rows is invalid")
	}

	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// CompleteTiktokTask flips the one-shot completion flag and awards points in a
// single conditional update. Of two concurrent attempts exactly one matches
// the WHERE clause; the loser affects zero rows and reports false.
func (r *participantRepository) CompleteTiktokTask(ctx context.Context, userID, chatID int64, points int) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ? AND tiktok_task_completed = ?", userID, chatID, false).
		Updates(map[string]any{
			"tiktok_task_completed": true,
			"points":                gorm.Expr("points + ?", points),
		})

	if tx.Error != nil {
		return false, tx.Error
	}

	return tx.RowsAffected == 1, nil
}

// AppendTiktokLink stores the new link list only while the column still holds
// the snapshot the caller read, so two concurrent submissions of different
// links cannot overwrite each other's entry. Zero affected rows means the
// snapshot went stale (or the row is gone); the caller reloads and retries.
func (r *participantRepository) AppendTiktokLink(ctx context.Context, userID, chatID int64, oldLinks, newLinks []string, points int) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ? AND chat_id = ? AND tiktok_links = ?", userID, chatID, models.StringList(oldLinks)).
		Updates(map[string]any{
			"tiktok_links": models.StringList(newLinks),
			"points":       gorm.Expr("points + ?", points),
		})

	if tx.Error != nil {
		return false, tx.Error
	}

	return tx.RowsAffected == 1, nil
}

func (r *participantRepository) ListActive(ctx context.Context, chatID int64) ([]models.Participant, error) {
	var result []models.Participant
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND is_active = ?", chatID, true).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}
