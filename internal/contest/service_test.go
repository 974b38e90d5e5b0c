package contest

import (
	"testing"

	"contest-bot/internal/cache"
	"contest-bot/internal/repository"
	"contest-bot/internal/testutil"
)

const testChatID = int64(-100500)

type testEnv struct {
	service      *Service
	participants repository.ParticipantRepository
	referrals    repository.ReferralRepository
	cache        *cache.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	participants := repository.NewParticipantRepository(db)
	referrals := repository.NewReferralRepository(db)
	memory := cache.NewMemory()

	service := NewService(participants, referrals, memory, Settings{
		ReferralPoints: 2,
		TaskPoints:     3,
		TaskURL:        "https://www.tiktok.com/",
	})

	return &testEnv{
		service:      service,
		participants: participants,
		referrals:    referrals,
		cache:        memory,
	}
}

func join(userID int64, payload string) JoinRequested {
	return JoinRequested{
		UserID:          userID,
		ChatID:          testChatID,
		FirstName:       "User",
		ReferralPayload: payload,
	}
}
