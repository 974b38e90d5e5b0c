package models

import (
	"time"
)

const (
	ReferralStatusActive = "ACTIVE"
	ReferralStatusLeft   = "LEFT"
)

// Referral is one successful referral attribution. PointsAwarded is fixed at
// creation so a later reversal subtracts exactly what was added, even if the
// configured referral bonus changes in between.
type Referral struct {
	ID             uint   `gorm:"primaryKey"`
	ReferrerID     int64  `gorm:"not null;index"`
	ReferredUserID int64  `gorm:"not null;index"`
	ChatID         int64  `gorm:"not null"`
	Status         string `gorm:"size:16;not null;default:'ACTIVE'"`
	PointsAwarded  int    `gorm:"not null"`
	CreatedAt      time.Time
	LeftAt         *time.Time
}
