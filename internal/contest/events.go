package contest

import (
	"context"
	"log"
)

// Event is the tagged union of contest-qualifying things that can happen at
// the messaging boundary. Handlers build exactly one of these per update; the
// core never inspects raw platform payloads.
type Event interface {
	isEvent()
}

// JoinRequested is a join approval, /start, or first button press by a user
// the contest may not know yet. ReferralPayload carries the deep-link argument
// verbatim (a referral code, a legacy numeric user id, or empty).
type JoinRequested struct {
	UserID          int64
	ChatID          int64
	FirstName       string
	LastName        string
	Username        string
	ReferralPayload string
}

// MemberLeft is reported when a participant's membership ends.
type MemberLeft struct {
	UserID int64
	ChatID int64
}

// TaskButtonClicked is the one-shot task completion button. A press may be
// the user's first contest interaction, so it carries the profile fields
// needed to register them.
type TaskButtonClicked struct {
	UserID    int64
	ChatID    int64
	FirstName string
	LastName  string
	Username  string
}

// TaskLinkSubmitted is the multi-link task variant: a message carrying a
// TikTok link.
type TaskLinkSubmitted struct {
	UserID int64
	ChatID int64
	Link   string
}

func (JoinRequested) isEvent()     {}
func (MemberLeft) isEvent()        {}
func (TaskButtonClicked) isEvent() {}
func (TaskLinkSubmitted) isEvent() {}

// HandleEvent dispatches an event to the matching operation. Expected
// conditions (duplicate clicks, invalid links) are already folded into bool
// returns by the operations and only logged here; returned errors are
// storage failures.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case JoinRequested:
		_, err := s.GetOrCreateParticipant(ctx, e)
		return err
	case MemberLeft:
		return s.HandleUserLeft(ctx, e.UserID, e.ChatID)
	case TaskButtonClicked:
		awarded, err := s.ClickTaskButton(ctx, e)
		if err == nil && !awarded {
			log.Printf("Task button from user %d in chat %d awarded nothing", e.UserID, e.ChatID)
		}
		return err
	case TaskLinkSubmitted:
		accepted, err := s.HandleTiktokSubmission(ctx, e.UserID, e.ChatID, e.Link)
		if err == nil && !accepted {
			log.Printf("Task link from user %d in chat %d rejected", e.UserID, e.ChatID)
		}
		return err
	default:
		return nil
	}
}
