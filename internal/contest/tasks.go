package contest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// clickDedupTTL covers the per-user-per-link dedup gate. The durable guard is
// membership in tiktok_links; the cache only absorbs rapid repeats.
const clickDedupTTL = 24 * time.Hour

// appendAttempts bounds the reload-and-retry loop when a concurrent
// submission changes the stored link list between read and write.
const appendAttempts = 3

// ClickTaskButton handles a task button press. The press is itself a
// contest-qualifying event, so an unknown user is registered first (without
// referral attribution), then the one-shot completion is attempted.
func (s *Service) ClickTaskButton(ctx context.Context, click TaskButtonClicked) (bool, error) {
	_, err := s.GetOrCreateParticipant(ctx, JoinRequested{
		UserID:    click.UserID,
		ChatID:    click.ChatID,
		FirstName: click.FirstName,
		LastName:  click.LastName,
		Username:  click.Username,
	})
	if err != nil {
		return false, err
	}

	return s.CompleteTiktokTaskViaButton(ctx, click.UserID, click.ChatID)
}

// CompleteTiktokTaskViaButton awards the one-shot task bonus. The storage
// layer flips the completion flag with a conditional update, so of two
// concurrent taps exactly one returns true. Unknown participants and repeat
// taps return false without mutating anything.
func (s *Service) CompleteTiktokTaskViaButton(ctx context.Context, userID, chatID int64) (bool, error) {
	participant, err := s.participants.Get(ctx, userID, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load participant %d in chat %d: %w", userID, chatID, err)
	}

	// Fast path only; the conditional update below is the real guard.
	if participant.TiktokTaskCompleted {
		return false, nil
	}

	completed, err := s.participants.CompleteTiktokTask(ctx, userID, chatID, s.settings.TaskPoints)
	if err != nil {
		return false, fmt.Errorf("failed to complete task for %d in chat %d: %w", userID, chatID, err)
	}
	return completed, nil
}

// HandleTiktokSubmission is the multi-link task variant: each distinct
// normalized link earns the task bonus once. Unlike the button path, a
// participant can earn repeatedly here by submitting new links. Invalid and
// already-recorded links are rejected before any mutation.
func (s *Service) HandleTiktokSubmission(ctx context.Context, userID, chatID int64, link string) (bool, error) {
	normalized, ok := NormalizeTiktokLink(link)
	if !ok {
		return false, nil
	}

	dedupKey := fmt.Sprintf("tiktok_link_%d_%d_%s", userID, chatID, normalized)
	if seen, err := s.cache.Has(ctx, dedupKey); err != nil {
		log.Printf("Click dedup check failed for user %d: %v", userID, err)
	} else if seen {
		return false, nil
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		participant, err := s.participants.Get(ctx, userID, chatID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load participant %d in chat %d: %w", userID, chatID, err)
		}

		if slices.Contains(participant.TiktokLinks, normalized) {
			return false, nil
		}

		links := append(slices.Clone(participant.TiktokLinks), normalized)
		stored, err := s.participants.AppendTiktokLink(ctx, userID, chatID, participant.TiktokLinks, links, s.settings.TaskPoints)
		if err != nil {
			return false, fmt.Errorf("failed to record task link for %d in chat %d: %w", userID, chatID, err)
		}
		if !stored {
			// Lost a concurrent list update; reload and retry.
			continue
		}

		if err := s.cache.Set(ctx, dedupKey, "1", clickDedupTTL); err != nil {
			log.Printf("Click dedup set failed for user %d: %v", userID, err)
		}

		return true, nil
	}

	return false, fmt.Errorf("failed to record task link for %d in chat %d: link list kept changing", userID, chatID)
}

var tiktokHosts = []string{
	"tiktok.com",
	"m.tiktok.com",
	"vm.tiktok.com",
	"vt.tiktok.com",
}

// NormalizeTiktokLink validates raw against known TikTok URL shapes and
// returns the canonical form used for dedup: https scheme, lowercased host
// without the www prefix, no query, no fragment, no trailing slash.
func NormalizeTiktokLink(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if !slices.Contains(tiktokHosts, host) {
		return "", false
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if path == "" {
		// A bare domain is not a submission.
		return "", false
	}

	return "https://" + host + path, true
}
