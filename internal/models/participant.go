package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores an ordered set of strings as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

func (l *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported string list column type %T", value)
	}
}

// Participant is one user's contest state within one chat.
// (UserID, ChatID) is unique; ReferralCode is unique across all chats.
type Participant struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_participant_user_chat;index"`
	ChatID    int64 `gorm:"not null;uniqueIndex:idx_participant_user_chat"`
	Username  string
	FirstName string `gorm:"not null"`
	LastName  string

	Points              int        `gorm:"not null;default:0"`
	TiktokTaskCompleted bool       `gorm:"not null;default:false"`
	TiktokLinks         StringList `gorm:"type:text"`

	ReferralCode  string `gorm:"size:32;uniqueIndex;not null"`
	ReferredBy    *int64
	ReferralCount int  `gorm:"not null;default:0"`
	IsActive      bool `gorm:"not null;default:true"`

	// FirstReferralPointAt is set exactly once, the first time this
	// participant earns a referral point. Used only as a ranking tie-break.
	FirstReferralPointAt *time.Time

	JoinedAt  time.Time
	UpdatedAt time.Time
}
