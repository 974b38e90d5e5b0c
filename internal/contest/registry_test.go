package contest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contest-bot/internal/models"
)

func TestGetOrCreateNewParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	participant, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	require.Equal(t, int64(1), participant.UserID)
	require.Equal(t, testChatID, participant.ChatID)
	require.Equal(t, 0, participant.Points)
	require.Equal(t, 0, participant.ReferralCount)
	require.True(t, participant.IsActive)
	require.Nil(t, participant.ReferredBy)
	require.False(t, participant.JoinedAt.IsZero())

	require.NotEmpty(t, participant.ReferralCode)
	require.LessOrEqual(t, len(participant.ReferralCode), referralCodeLength)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	referrer, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	first, err := env.service.GetOrCreateParticipant(ctx, join(2, referrer.ReferralCode))
	require.NoError(t, err)

	// The second identical call returns the existing row and must not
	// re-apply referral attribution.
	second, err := env.service.GetOrCreateParticipant(ctx, join(2, referrer.ReferralCode))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.ReferralCode, second.ReferralCode)

	reloaded, err := env.participants.Get(ctx, 1, testChatID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Points)
	require.Equal(t, 1, reloaded.ReferralCount)
}

func TestReferralAttribution(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	referrer, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	referred, err := env.service.GetOrCreateParticipant(ctx, join(2, referrer.ReferralCode))
	require.NoError(t, err)
	require.NotNil(t, referred.ReferredBy)
	require.Equal(t, int64(1), *referred.ReferredBy)

	reloaded, err := env.participants.Get(ctx, 1, testChatID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Points)
	require.Equal(t, 1, reloaded.ReferralCount)
	require.NotNil(t, reloaded.FirstReferralPointAt)

	referrals, err := env.referrals.ListActiveByReferredUser(ctx, 2, testChatID)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	require.Equal(t, int64(1), referrals[0].ReferrerID)
	require.Equal(t, 2, referrals[0].PointsAwarded)
}

func TestNumericLegacyReferralFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	referrer, err := env.service.GetOrCreateParticipant(ctx, join(777, ""))
	require.NoError(t, err)
	require.NotEqual(t, "777", referrer.ReferralCode)

	// Old invite links carried the raw user id instead of a code.
	referred, err := env.service.GetOrCreateParticipant(ctx, join(2, "777"))
	require.NoError(t, err)
	require.NotNil(t, referred.ReferredBy)
	require.Equal(t, int64(777), *referred.ReferredBy)

	reloaded, err := env.participants.Get(ctx, 777, testChatID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Points)
}

func TestUnresolvableReferralCodeIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	participant, err := env.service.GetOrCreateParticipant(ctx, join(1, "NO-SUCH-CODE"))
	require.NoError(t, err)
	require.Nil(t, participant.ReferredBy)
	require.Equal(t, 0, participant.Points)
}

func TestReactivationRefreshesProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	require.NoError(t, env.service.HandleUserLeft(ctx, 1, testChatID))

	request := join(1, "")
	request.FirstName = "Renamed"
	request.Username = "renamed"

	reactivated, err := env.service.GetOrCreateParticipant(ctx, request)
	require.NoError(t, err)
	require.True(t, reactivated.IsActive)
	require.Equal(t, created.ID, reactivated.ID)
	require.Equal(t, created.ReferralCode, reactivated.ReferralCode)
	require.Equal(t, "Renamed", reactivated.FirstName)
	require.Equal(t, "renamed", reactivated.Username)
}

func TestReactivationDoesNotAttribute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	referrer, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	_, err = env.service.GetOrCreateParticipant(ctx, join(2, ""))
	require.NoError(t, err)
	require.NoError(t, env.service.HandleUserLeft(ctx, 2, testChatID))

	// Rejoining with a referral code must not create an attribution:
	// attribution happens only at creation time.
	_, err = env.service.GetOrCreateParticipant(ctx, join(2, referrer.ReferralCode))
	require.NoError(t, err)

	reloaded, err := env.participants.Get(ctx, 1, testChatID)
	require.NoError(t, err)
	require.Equal(t, 0, reloaded.Points)
	require.Equal(t, 0, reloaded.ReferralCount)
}

func TestGetParticipantStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	stats, err := env.service.GetParticipantStats(ctx, 1, testChatID)
	require.NoError(t, err)
	require.Nil(t, stats)

	_, err = env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	stats, err = env.service.GetParticipantStats(ctx, 1, testChatID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.Equal(t, int64(1), stats.UserID)
}

func TestFindParticipantByReferralCodeExactOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.service.GetOrCreateParticipant(ctx, join(777, ""))
	require.NoError(t, err)

	found, err := env.service.FindParticipantByReferralCode(ctx, created.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)

	// No numeric fallback on this path.
	found, err = env.service.FindParticipantByReferralCode(ctx, "777")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestCreateWithRetryRegeneratesCollidingCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	holder, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	// A second user whose generated code happens to match an existing one.
	request := join(2, "")
	colliding := &models.Participant{
		UserID:       request.UserID,
		ChatID:       request.ChatID,
		FirstName:    request.FirstName,
		ReferralCode: holder.ReferralCode,
		IsActive:     true,
		JoinedAt:     time.Now(),
	}

	created, err := env.service.createWithRetry(ctx, colliding, request)
	require.NoError(t, err)
	require.Same(t, colliding, created)
	require.NotEqual(t, holder.ReferralCode, created.ReferralCode)
	require.LessOrEqual(t, len(created.ReferralCode), referralCodeLength)

	reloaded, err := env.participants.Get(ctx, 2, testChatID)
	require.NoError(t, err)
	require.Equal(t, created.ReferralCode, reloaded.ReferralCode)
}

func TestCreateWithRetryResolvesSameUserChatRace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	existing, err := env.service.GetOrCreateParticipant(ctx, join(1, ""))
	require.NoError(t, err)

	// A concurrent insert of the same (userId, chatId) must resolve to the
	// winner's row, not keep regenerating codes.
	request := join(1, "")
	duplicate := &models.Participant{
		UserID:       request.UserID,
		ChatID:       request.ChatID,
		FirstName:    request.FirstName,
		ReferralCode: "RACECODE",
		IsActive:     true,
		JoinedAt:     time.Now(),
	}

	created, err := env.service.createWithRetry(ctx, duplicate, request)
	require.NoError(t, err)
	require.NotSame(t, duplicate, created)
	require.Equal(t, existing.ID, created.ID)
	require.Equal(t, existing.ReferralCode, created.ReferralCode)
}

func TestGenerateReferralCodeShape(t *testing.T) {
	code := GenerateReferralCode(123456789)
	require.LessOrEqual(t, len(code), referralCodeLength)

	for _, r := range code {
		isDigit := r >= '0' && r <= '9'
		isUpper := r >= 'A' && r <= 'Z'
		require.True(t, isDigit || isUpper, "unexpected character %q in code %q", r, code)
	}
}
