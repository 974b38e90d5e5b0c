package contest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"contest-bot/internal/models"
)

const (
	referralCodeLength = 15
	createAttempts     = 3
)

// GetOrCreateParticipant is the single entry point for participant lifecycle.
// An active participant is returned untouched, an inactive one is reactivated
// with refreshed display fields, and an unknown user gets a new row. Referral
// attribution happens only on that creation path; calling this again with the
// same arguments never re-awards.
func (s *Service) GetOrCreateParticipant(ctx context.Context, join JoinRequested) (*models.Participant, error) {
	existing, err := s.participants.Get(ctx, join.UserID, join.ChatID)
	if err == nil {
		if existing.IsActive {
			return existing, nil
		}
		return s.reactivate(ctx, join)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up participant %d in chat %d: %w", join.UserID, join.ChatID, err)
	}

	referrer, err := s.resolveReferrer(ctx, join)
	if err != nil {
		return nil, err
	}

	participant := &models.Participant{
		UserID:       join.UserID,
		ChatID:       join.ChatID,
		Username:     join.Username,
		FirstName:    join.FirstName,
		LastName:     join.LastName,
		ReferralCode: GenerateReferralCode(join.UserID),
		IsActive:     true,
		JoinedAt:     s.now(),
	}
	if referrer != nil {
		referrerID := referrer.UserID
		participant.ReferredBy = &referrerID
	}

	if created, err := s.createWithRetry(ctx, participant, join); err != nil {
		return nil, err
	} else if created != participant {
		// Lost a creation race; the winner already handled attribution.
		return created, nil
	}

	if referrer != nil {
		if err := s.attributeReferral(ctx, referrer, join); err != nil {
			return nil, err
		}
	}

	return participant, nil
}

func (s *Service) reactivate(ctx context.Context, join JoinRequested) (*models.Participant, error) {
	err := s.participants.Reactivate(ctx, join.UserID, join.ChatID, join.FirstName, join.LastName, join.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate participant %d in chat %d: %w", join.UserID, join.ChatID, err)
	}

	participant, err := s.participants.Get(ctx, join.UserID, join.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload participant %d in chat %d: %w", join.UserID, join.ChatID, err)
	}
	return participant, nil
}

// createWithRetry inserts the participant, retrying with a regenerated code
// when the referral-code unique constraint trips. A duplicate caused by a
// concurrent insert of the same (userId, chatId) instead resolves to the
// existing row.
func (s *Service) createWithRetry(ctx context.Context, participant *models.Participant, join JoinRequested) (*models.Participant, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		err := s.participants.Create(ctx, participant)
		if err == nil {
			return participant, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create participant %d in chat %d: %w", join.UserID, join.ChatID, err)
		}

		if existing, getErr := s.participants.Get(ctx, join.UserID, join.ChatID); getErr == nil {
			return existing, nil
		}

		participant.ReferralCode = collisionReferralCode(join.UserID)
	}

	return nil, fmt.Errorf("failed to create participant %d in chat %d: referral code kept colliding", join.UserID, join.ChatID)
}

func (s *Service) attributeReferral(ctx context.Context, referrer *models.Participant, join JoinRequested) error {
	referral := &models.Referral{
		ReferrerID:     referrer.UserID,
		ReferredUserID: join.UserID,
		ChatID:         join.ChatID,
		Status:         models.ReferralStatusActive,
		PointsAwarded:  s.settings.ReferralPoints,
		CreatedAt:      s.now(),
	}
	if err := s.referrals.Create(ctx, referral); err != nil {
		return fmt.Errorf("failed to record referral %d -> %d: %w", referrer.UserID, join.UserID, err)
	}

	err := s.participants.AddReferralBonus(ctx, referrer.UserID, join.ChatID, referral.PointsAwarded, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Referrer %d vanished before bonus in chat %d", referrer.UserID, join.ChatID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to award referral bonus to %d: %w", referrer.UserID, err)
	}
	return nil
}

// resolveReferrer maps a deep-link payload to a participant: exact referral
// code first, then the legacy fallback where old invite links carried a raw
// numeric user id. An unresolvable payload is logged and dropped; the join
// still goes through unattributed. Only storage failures are errors.
func (s *Service) resolveReferrer(ctx context.Context, join JoinRequested) (*models.Participant, error) {
	code := strings.TrimSpace(join.ReferralPayload)
	if code == "" {
		return nil, nil
	}

	referrer, err := s.participants.GetByReferralCode(ctx, code)
	if err == nil {
		return referrer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up referral code %q: %w", code, err)
	}

	legacyID, parseErr := strconv.ParseInt(code, 10, 64)
	if parseErr != nil {
		log.Printf("Referral code %q did not resolve for user %d", code, join.UserID)
		return nil, nil
	}

	referrer, err = s.participants.Get(ctx, legacyID, join.ChatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Legacy referral id %d did not resolve in chat %d", legacyID, join.ChatID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up legacy referral id %d: %w", legacyID, err)
	}
	return referrer, nil
}

// GenerateReferralCode derives a code from a base-36 timestamp and the hex
// user id, uppercased and truncated to 15 characters. Coarse timestamp
// granularity means it is not collision-free on its own; creation retries
// with collisionReferralCode when the unique constraint fires.
func GenerateReferralCode(userID int64) string {
	code := strconv.FormatInt(time.Now().UnixMilli(), 36) + strconv.FormatInt(userID, 16)
	code = strings.ToUpper(code)
	if len(code) > referralCodeLength {
		code = code[:referralCodeLength]
	}
	return code
}

func collisionReferralCode(userID int64) string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	code := entropy[:8] + strings.ToUpper(strconv.FormatInt(userID, 16))
	if len(code) > referralCodeLength {
		code = code[:referralCodeLength]
	}
	return code
}
