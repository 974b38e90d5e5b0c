package contest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// HandleUserLeft deactivates the departing participant and reverses every
// referral that credited their join. Each reversal is gated on the
// ACTIVE -> LEFT status flip, so calling this twice for the same departure
// subtracts the bonus exactly once: a referral's net contribution over its
// lifetime is +pointsAwarded or zero, never less.
func (s *Service) HandleUserLeft(ctx context.Context, userID, chatID int64) error {
	if err := s.participants.Deactivate(ctx, userID, chatID); err != nil {
		return fmt.Errorf("failed to deactivate participant %d in chat %d: %w", userID, chatID, err)
	}

	referrals, err := s.referrals.ListActiveByReferredUser(ctx, userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to list referrals for departed user %d: %w", userID, err)
	}

	for _, referral := range referrals {
		flipped, err := s.referrals.MarkLeft(ctx, referral.ID, s.now())
		if err != nil {
			return fmt.Errorf("failed to mark referral %d as left: %w", referral.ID, err)
		}
		if !flipped {
			// Another departure report already reversed this one.
			continue
		}

		err = s.participants.ReverseReferralBonus(ctx, referral.ReferrerID, chatID, referral.PointsAwarded)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Referrer %d missing during reversal in chat %d", referral.ReferrerID, chatID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to reverse referral bonus for %d: %w", referral.ReferrerID, err)
		}
	}

	return nil
}
