package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionRule is the system-wide anti-sniping rule.
type AuctionRule struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TimeThresholdMinutes int       `gorm:"column:time_threshold_minutes;not null"`
	ExtensionMinutes     int       `gorm:"column:extension_minutes;not null"`
	Active               bool      `gorm:"column:active;not null"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *AuctionRule) Threshold() time.Duration {
	return time.Duration(r.TimeThresholdMinutes) * time.Minute
}

func (r *AuctionRule) Extension() time.Duration {
	return time.Duration(r.ExtensionMinutes) * time.Minute
}
