package contest

import (
	"context"
	"fmt"
	"sort"

	"contest-bot/internal/models"
)

// RanksBefore is the leaderboard total order, "better rank first":
// higher points, then the earlier first referral point (participants who
// never earned one rank after those who did), then higher referral count,
// then the earlier join. JoinedAt is effectively unique per row, so the order
// is deterministic.
func RanksBefore(a, b *models.Participant) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}

	switch {
	case a.FirstReferralPointAt != nil && b.FirstReferralPointAt != nil:
		if !a.FirstReferralPointAt.Equal(*b.FirstReferralPointAt) {
			return a.FirstReferralPointAt.Before(*b.FirstReferralPointAt)
		}
	case a.FirstReferralPointAt != nil:
		return true
	case b.FirstReferralPointAt != nil:
		return false
	}

	if a.ReferralCount != b.ReferralCount {
		return a.ReferralCount > b.ReferralCount
	}

	return a.JoinedAt.Before(b.JoinedAt)
}

// RankedParticipant tags a participant with their absolute 1-based rank.
type RankedParticipant struct {
	Rank int
	models.Participant
}

// PersonalLeaderboard is the windowed view around one participant.
type PersonalLeaderboard struct {
	UserRank   int
	UserPoints int
	Window     []RankedParticipant
}

func (s *Service) sortedActive(ctx context.Context, chatID int64) ([]models.Participant, error) {
	participants, err := s.participants.ListActive(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active participants in chat %d: %w", chatID, err)
	}

	sort.Slice(participants, func(i, j int) bool {
		return RanksBefore(&participants[i], &participants[j])
	})
	return participants, nil
}

// GetLeaderboard returns the top limit active participants in rank order.
func (s *Service) GetLeaderboard(ctx context.Context, chatID int64, limit int) ([]models.Participant, error) {
	participants, err := s.sortedActive(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if limit >= 0 && len(participants) > limit {
		participants = participants[:limit]
	}
	return participants, nil
}

// GetParticipantRank returns the 1-based position in the full sorted active
// set, or 0 when the user is unknown or inactive in this chat.
func (s *Service) GetParticipantRank(ctx context.Context, userID, chatID int64) (int, error) {
	participants, err := s.sortedActive(ctx, chatID)
	if err != nil {
		return 0, err
	}

	for i := range participants {
		if participants[i].UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// GetPersonalLeaderboard computes the full order once and returns the window
// [rank-rng, rank+rng] clamped to list bounds, each entry carrying its
// absolute rank. An unknown or inactive user yields rank 0 and no window.
func (s *Service) GetPersonalLeaderboard(ctx context.Context, userID, chatID int64, rng int) (*PersonalLeaderboard, error) {
	participants, err := s.sortedActive(ctx, chatID)
	if err != nil {
		return nil, err
	}

	index := -1
	for i := range participants {
		if participants[i].UserID == userID {
			index = i
			break
		}
	}
	if index < 0 {
		return &PersonalLeaderboard{}, nil
	}

	low := index - rng
	if low < 0 {
		low = 0
	}
	high := index + rng
	if high > len(participants)-1 {
		high = len(participants) - 1
	}

	window := make([]RankedParticipant, 0, high-low+1)
	for i := low; i <= high; i++ {
		window = append(window, RankedParticipant{Rank: i + 1, Participant: participants[i]})
	}

	return &PersonalLeaderboard{
		UserRank:   index + 1,
		UserPoints: participants[index].Points,
		Window:     window,
	}, nil
}
