// Package platform holds the persisted domain records this layer owns:
// the transcoding sub-state of lesson content, lesson durations, and the
// notification preference/event tables. Transcode state is mutated only
// through the reconcile package.
package platform

import (
	"time"

	"github.com/edupipe/edupipe/internal/provider/transcode"
)

// LessonContent is one uploaded media asset of a lesson.
type LessonContent struct {
	ID              string           `gorm:"primaryKey;size:36"`
	LessonID        string           `gorm:"index;size:36;not null"`
	Language        string           `gorm:"size:16"`
	SourceRef       string           `gorm:"size:1024"`
	TranscodeUID    string           `gorm:"index;size:255"` // provider-assigned uid
	TranscodeStatus transcode.Status `gorm:"size:20;default:'pending'"`
	PlaybackURL     string           `gorm:"size:1024"`
	DurationSeconds int              `gorm:"default:0"`
	TranscodeError  string           `gorm:"type:text"`
	CreatedAt       time.Time        `gorm:"autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime"`
}

// Lesson carries the derived duration updated when content becomes ready.
type Lesson struct {
	ID              string    `gorm:"primaryKey;size:36"`
	OwnerID         string    `gorm:"index;size:36"`
	Title           string    `gorm:"size:512"`
	DurationSeconds int       `gorm:"default:0"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// NotificationPreference is one user's delivery flags for one event type.
// Missing rows default to everything enabled.
type NotificationPreference struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       string    `gorm:"uniqueIndex:idx_pref_user_type;size:36;not null"`
	Type         string    `gorm:"uniqueIndex:idx_pref_user_type;size:255;not null"`
	EmailEnabled bool      `gorm:"default:true"`
	InAppEnabled bool      `gorm:"default:true"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Digest frequencies.
const (
	DigestDaily  = "daily"
	DigestWeekly = "weekly"
	DigestOff    = "off"
)

// DigestPreference is one user's digest cadence.
type DigestPreference struct {
	UserID    string    `gorm:"primaryKey;size:36"`
	Frequency string    `gorm:"size:16;default:'daily'"`
	Weekday   int       `gorm:"default:1"` // for weekly digests; time.Weekday
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// NotificationEvent is a recorded domain event for one user. EmailedAt
// and DigestedAt mark delivery; digest runs select on DigestedAt IS NULL
// so a crashed run re-reads rather than loses events.
type NotificationEvent struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"index;size:36;not null"`
	Type       string    `gorm:"index;size:255;not null"`
	Payload    []byte    `gorm:"type:bytes"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	EmailedAt  *time.Time
	DigestedAt *time.Time `gorm:"index"`
}

// License statuses.
const (
	LicenseActive  = "active"
	LicenseExpired = "expired"
)

// License is a tenant seat license with an expiry.
type License struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:36;not null"`
	ExpiresAt time.Time `gorm:"index"`
	Status    string    `gorm:"size:16;default:'active'"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Streak tracks a user's consecutive activity days.
type Streak struct {
	UserID         string    `gorm:"primaryKey;size:36"`
	CurrentDays    int       `gorm:"default:0"`
	LongestDays    int       `gorm:"default:0"`
	LastActivityAt time.Time `gorm:"index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
