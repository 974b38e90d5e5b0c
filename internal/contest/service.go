package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"contest-bot/internal/cache"
	"contest-bot/internal/models"
	"contest-bot/internal/repository"
)

// Settings are the configurable contest values. They are authoritative; the
// service carries no award literals of its own.
type Settings struct {
	ReferralPoints int
	TaskPoints     int
	TaskURL        string
}

// Service composes the participant registry, referral ledger, task engine and
// ranking engine into the operations the bot handlers and the leaderboard
// publisher consume. All collaborators are injected; there is no shared
// default instance.
type Service struct {
	participants repository.ParticipantRepository
	referrals    repository.ReferralRepository
	cache        cache.Cache
	settings     Settings
	now          func() time.Time
}

func NewService(
	participants repository.ParticipantRepository,
	referrals repository.ReferralRepository,
	cache cache.Cache,
	settings Settings,
) *Service {
	return &Service{
		participants: participants,
		referrals:    referrals,
		cache:        cache,
		settings:     settings,
		now:          time.Now,
	}
}

// GetParticipantStats returns the participant's current contest state, or nil
// when the user never joined the contest in this chat.
func (s *Service) GetParticipantStats(ctx context.Context, userID, chatID int64) (*models.Participant, error) {
	participant, err := s.participants.Get(ctx, userID, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load participant %d in chat %d: %w", userID, chatID, err)
	}
	return participant, nil
}

// FindParticipantByReferralCode resolves a code by exact match only. The
// legacy numeric fallback lives in participant creation, not here.
func (s *Service) FindParticipantByReferralCode(ctx context.Context, code string) (*models.Participant, error) {
	participant, err := s.participants.GetByReferralCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve referral code %q: %w", code, err)
	}
	return participant, nil
}
