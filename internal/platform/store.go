package platform

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edupipe/edupipe/internal/provider/transcode"
)

// Store is the GORM-backed access layer for the platform records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the platform tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&LessonContent{},
		&Lesson{},
		&NotificationPreference{},
		&DigestPreference{},
		&NotificationEvent{},
		&License{},
		&Streak{},
	)
}

// DB returns the underlying database handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- Lesson content / transcoding state ---

// GetContent returns a content record by id. Returns (nil, nil) if missing.
func (s *Store) GetContent(ctx context.Context, id string) (*LessonContent, error) {
	var c LessonContent
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContentByUID looks up the content record tracked under a
// provider-assigned uid. Returns (nil, nil) if no record is registered.
func (s *Store) GetContentByUID(ctx context.Context, providerUID string) (*LessonContent, error) {
	var c LessonContent
	err := s.db.WithContext(ctx).First(&c, "transcode_uid = ?", providerUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetTranscodeSubmitted stores the provider uid on the content record and
// resets its transcoding state for the fresh submission.
func (s *Store) SetTranscodeSubmitted(ctx context.Context, contentID, providerUID string) error {
	return s.db.WithContext(ctx).
		Model(&LessonContent{}).
		Where("id = ?", contentID).
		Updates(map[string]any{
			"transcode_uid":    providerUID,
			"transcode_status": transcode.StatusPending,
			"playback_url":     "",
			"duration_seconds": 0,
			"transcode_error":  "",
		}).Error
}

// MarkTranscodeProcessing advances pending → processing. The status guard
// is in the WHERE clause so a racing webhook can never regress a record
// that already moved further.
func (s *Store) MarkTranscodeProcessing(ctx context.Context, contentID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&LessonContent{}).
		Where("id = ?", contentID).
		Where("transcode_status = ?", transcode.StatusPending).
		Update("transcode_status", transcode.StatusProcessing)
	return result.RowsAffected > 0, result.Error
}

// MarkTranscodeReady finalizes a successful transcode. The guard skips
// records already terminal, making replayed deliveries no-ops.
func (s *Store) MarkTranscodeReady(ctx context.Context, contentID, playbackURL string, durationSeconds int) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&LessonContent{}).
		Where("id = ?", contentID).
		Where("transcode_status NOT IN ?", []transcode.Status{transcode.StatusReady, transcode.StatusError}).
		Updates(map[string]any{
			"transcode_status": transcode.StatusReady,
			"playback_url":     playbackURL,
			"duration_seconds": durationSeconds,
			"transcode_error":  "",
		})
	return result.RowsAffected > 0, result.Error
}

// MarkTranscodeError finalizes a failed transcode.
func (s *Store) MarkTranscodeError(ctx context.Context, contentID, message string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&LessonContent{}).
		Where("id = ?", contentID).
		Where("transcode_status NOT IN ?", []transcode.Status{transcode.StatusReady, transcode.StatusError}).
		Updates(map[string]any{
			"transcode_status": transcode.StatusError,
			"transcode_error":  message,
		})
	return result.RowsAffected > 0, result.Error
}

// GetLesson returns a lesson by id. Returns (nil, nil) if missing.
func (s *Store) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	var l Lesson
	err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLessonDuration sets a lesson's derived duration.
func (s *Store) UpdateLessonDuration(ctx context.Context, lessonID string, durationSeconds int) error {
	return s.db.WithContext(ctx).
		Model(&Lesson{}).
		Where("id = ?", lessonID).
		Update("duration_seconds", durationSeconds).Error
}

// --- Notification preferences and events ---

// GetPreference returns the user's preference for one event type. A
// missing row means everything is enabled.
func (s *Store) GetPreference(ctx context.Context, userID, eventType string) (NotificationPreference, error) {
	var p NotificationPreference
	err := s.db.WithContext(ctx).
		First(&p, "user_id = ? AND type = ?", userID, eventType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotificationPreference{
			UserID:       userID,
			Type:         eventType,
			EmailEnabled: true,
			InAppEnabled: true,
		}, nil
	}
	return p, err
}

// SetPreference upserts a user's preference for one event type.
func (s *Store) SetPreference(ctx context.Context, p NotificationPreference) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	existing := NotificationPreference{}
	err := s.db.WithContext(ctx).
		First(&existing, "user_id = ? AND type = ?", p.UserID, p.Type).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&p).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&existing).
		Updates(map[string]any{
			"email_enabled":  p.EmailEnabled,
			"in_app_enabled": p.InAppEnabled,
		}).Error
}

// SetDigestPreference upserts a user's digest cadence.
func (s *Store) SetDigestPreference(ctx context.Context, p DigestPreference) error {
	return s.db.WithContext(ctx).Save(&p).Error
}

// ListDigestUsers returns the digest preferences due at the given
// frequency; weekly digests are filtered to the given weekday.
func (s *Store) ListDigestUsers(ctx context.Context, frequency string, weekday time.Weekday) ([]DigestPreference, error) {
	q := s.db.WithContext(ctx).Where("frequency = ?", frequency)
	if frequency == DigestWeekly {
		q = q.Where("weekday = ?", int(weekday))
	}
	var prefs []DigestPreference
	err := q.Find(&prefs).Error
	return prefs, err
}

// RecordEvent persists a notification event.
func (s *Store) RecordEvent(ctx context.Context, ev *NotificationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

// UndigestedEvents returns the user's events not yet included in a digest.
func (s *Store) UndigestedEvents(ctx context.Context, userID string) ([]NotificationEvent, error) {
	var events []NotificationEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("digested_at IS NULL").
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// MarkDigested stamps events as handled by a digest run.
func (s *Store) MarkDigested(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&NotificationEvent{}).
		Where("id IN ?", eventIDs).
		Update("digested_at", now).Error
}

// MarkEmailed stamps an event as delivered by immediate email.
func (s *Store) MarkEmailed(ctx context.Context, eventID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&NotificationEvent{}).
		Where("id = ?", eventID).
		Update("emailed_at", now).Error
}

// --- Licenses and streaks ---

// ExpireLicenses flips active licenses past their expiry to expired and
// returns the affected rows.
func (s *Store) ExpireLicenses(ctx context.Context, now time.Time) ([]License, error) {
	var due []License
	err := s.db.WithContext(ctx).
		Where("status = ?", LicenseActive).
		Where("expires_at <= ?", now).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]string, len(due))
	for i, l := range due {
		ids[i] = l.ID
	}
	err = s.db.WithContext(ctx).
		Model(&License{}).
		Where("id IN ?", ids).
		Update("status", LicenseExpired).Error
	return due, err
}

// ResetStaleStreaks zeroes streaks with no activity since the cutoff and
// returns the affected rows.
func (s *Store) ResetStaleStreaks(ctx context.Context, cutoff time.Time) ([]Streak, error) {
	var stale []Streak
	err := s.db.WithContext(ctx).
		Where("current_days > 0").
		Where("last_activity_at < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]string, len(stale))
	for i, st := range stale {
		ids[i] = st.UserID
	}
	err = s.db.WithContext(ctx).
		Model(&Streak{}).
		Where("user_id IN ?", ids).
		Update("current_days", 0).Error
	return stale, err
}
