package handlers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/notify"
	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/provider/email"
	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/queue"
	"github.com/edupipe/edupipe/internal/reconcile"
	"github.com/edupipe/edupipe/internal/storage"
)

func setupDeps(t *testing.T) (*Deps, *storage.GormStorage) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	jobStore := storage.NewGormStorage(db)
	require.NoError(t, jobStore.Migrate(context.Background()))

	store := platform.NewStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	q := queue.New(jobStore)
	hub := notify.NewHub(store, q, nil)
	rec := reconcile.New(store, hub, nil)

	d := &Deps{
		Queue:      q,
		Store:      store,
		Reconciler: rec,
		Transcoder: transcode.NewLocalTranscoder(),
		Mailer:     email.NewConsoleMailer(nil),
		Hub:        hub,
		PollDelay:  time.Millisecond,
	}
	RegisterAll(d)
	return d, jobStore
}

func seedLessonContent(t *testing.T, d *Deps) {
	t.Helper()
	require.NoError(t, d.Store.DB().Create(&platform.Lesson{ID: "lesson-1", OwnerID: "user-1"}).Error)
	require.NoError(t, d.Store.DB().Create(&platform.LessonContent{ID: "content-1", LessonID: "lesson-1"}).Error)
}

func jobsOfType(t *testing.T, jobStore *storage.GormStorage, jobType string) []*core.Job {
	t.Helper()
	found, _, err := jobStore.SearchJobs(context.Background(), core.JobFilter{Type: jobType})
	require.NoError(t, err)
	return found
}

func TestTranscodeSubmit_TracksUIDAndSchedulesCheck(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()
	seedLessonContent(t, d)

	err := d.handleTranscodeSubmit(ctx, jobs.TranscodeSubmitArgs{
		ContentID: "content-1",
		LessonID:  "lesson-1",
		SourceRef: "s3://bucket/v.mp4",
	})
	require.NoError(t, err)

	content, err := d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)
	assert.NotEmpty(t, content.TranscodeUID)
	assert.Equal(t, transcode.StatusPending, content.TranscodeStatus)

	checks := jobsOfType(t, jobStore, jobs.TypeTranscodeCheck)
	require.Len(t, checks, 1, "first status poll scheduled")
}

func TestTranscodeCheck_FinalizesOnReady(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()
	seedLessonContent(t, d)

	require.NoError(t, d.handleTranscodeSubmit(ctx, jobs.TranscodeSubmitArgs{
		ContentID: "content-1",
		SourceRef: "s3://bucket/v.mp4",
	}))
	content, err := d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)

	// The local provider reports ready on the first poll.
	err = d.handleTranscodeCheck(ctx, jobs.TranscodeCheckArgs{
		ContentID:   "content-1",
		ProviderUID: content.TranscodeUID,
		Poll:        1,
	})
	require.NoError(t, err)

	content, err = d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, transcode.StatusReady, content.TranscodeStatus)
	assert.NotEmpty(t, content.PlaybackURL)

	checks := jobsOfType(t, jobStore, jobs.TypeTranscodeCheck)
	assert.Len(t, checks, 1, "terminal status stops the poll chain")
}

func TestTranscodeCheck_PollBoundEscalates(t *testing.T) {
	d, _ := setupDeps(t)
	ctx := context.Background()
	seedLessonContent(t, d)

	require.NoError(t, d.handleTranscodeSubmit(ctx, jobs.TranscodeSubmitArgs{
		ContentID: "content-1",
		SourceRef: "s3://bucket/v.mp4",
	}))
	content, err := d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)

	err = d.handleTranscodeCheck(ctx, jobs.TranscodeCheckArgs{
		ContentID:   "content-1",
		ProviderUID: content.TranscodeUID,
		Poll:        d.MaxPolls + 1,
	})
	require.NoError(t, err)

	content, err = d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, transcode.StatusError, content.TranscodeStatus)
	assert.Contains(t, content.TranscodeError, "did not finish")
}

func TestTranscodeCheck_StopsWhenWebhookWonRace(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()
	seedLessonContent(t, d)

	require.NoError(t, d.handleTranscodeSubmit(ctx, jobs.TranscodeSubmitArgs{
		ContentID: "content-1",
		SourceRef: "s3://bucket/v.mp4",
	}))
	content, err := d.Store.GetContent(ctx, "content-1")
	require.NoError(t, err)

	// A webhook already finalized the record.
	_, err = d.Reconciler.Apply(ctx, transcode.Report{
		ProviderUID: content.TranscodeUID,
		Status:      transcode.StatusError,
		ErrorMessage: "upstream failure",
	})
	require.NoError(t, err)

	err = d.handleTranscodeCheck(ctx, jobs.TranscodeCheckArgs{
		ContentID:   "content-1",
		ProviderUID: content.TranscodeUID,
		Poll:        1,
	})
	require.NoError(t, err)

	checks := jobsOfType(t, jobStore, jobs.TypeTranscodeCheck)
	assert.Len(t, checks, 1, "no further polls after terminal state")
}

func TestEmailSend_MarksEventEmailed(t *testing.T) {
	d, _ := setupDeps(t)
	ctx := context.Background()

	record := &platform.NotificationEvent{UserID: "user-1", Type: "transcoding.ready"}
	require.NoError(t, d.Store.RecordEvent(ctx, record))

	err := d.handleEmailSend(ctx, jobs.EmailSendArgs{
		UserID:  "user-1",
		EventID: record.ID,
		Type:    "transcoding.ready",
		To:      "student@example.com",
		Subject: "done",
		Body:    "<p>done</p>",
	})
	require.NoError(t, err)

	var stored platform.NotificationEvent
	require.NoError(t, d.Store.DB().First(&stored, "id = ?", record.ID).Error)
	assert.NotNil(t, stored.EmailedAt)
}

func TestDigestRun_EnqueuesDigestEmails(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()

	require.NoError(t, d.Store.SetDigestPreference(ctx, platform.DigestPreference{
		UserID:    "user-1",
		Frequency: platform.DigestDaily,
	}))
	require.NoError(t, d.Store.RecordEvent(ctx, &platform.NotificationEvent{
		UserID: "user-1", Type: "transcoding.ready",
	}))

	require.NoError(t, d.handleDigestRun(ctx, jobs.DigestRunArgs{Frequency: platform.DigestDaily}))

	emails := jobsOfType(t, jobStore, jobs.TypeEmailSend)
	assert.Len(t, emails, 1)
}

func TestLicenseExpire_FlipsAndNotifies(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()

	require.NoError(t, d.Store.DB().Create(&platform.License{
		ID:        "lic-1",
		UserID:    "user-1",
		Status:    platform.LicenseActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, d.Store.DB().Create(&platform.License{
		ID:        "lic-2",
		UserID:    "user-2",
		Status:    platform.LicenseActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}).Error)

	require.NoError(t, d.handleLicenseExpire(ctx, jobs.MaintenanceArgs{}))

	var expired platform.License
	require.NoError(t, d.Store.DB().First(&expired, "id = ?", "lic-1").Error)
	assert.Equal(t, platform.LicenseExpired, expired.Status)

	var current platform.License
	require.NoError(t, d.Store.DB().First(&current, "id = ?", "lic-2").Error)
	assert.Equal(t, platform.LicenseActive, current.Status)

	events, err := d.Store.UndigestedEvents(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "license.expired", events[0].Type)

	emails := jobsOfType(t, jobStore, jobs.TypeEmailSend)
	assert.Len(t, emails, 1, "default preference sends immediate email")
}

func TestStreakReset_ZeroesStaleStreaks(t *testing.T) {
	d, _ := setupDeps(t)
	ctx := context.Background()

	require.NoError(t, d.Store.DB().Create(&platform.Streak{
		UserID:         "user-1",
		CurrentDays:    12,
		LastActivityAt: time.Now().Add(-72 * time.Hour),
	}).Error)
	require.NoError(t, d.Store.DB().Create(&platform.Streak{
		UserID:         "user-2",
		CurrentDays:    5,
		LastActivityAt: time.Now().Add(-time.Hour),
	}).Error)

	require.NoError(t, d.handleStreakReset(ctx, jobs.MaintenanceArgs{}))

	var stale platform.Streak
	require.NoError(t, d.Store.DB().First(&stale, "user_id = ?", "user-1").Error)
	assert.Zero(t, stale.CurrentDays)

	var active platform.Streak
	require.NoError(t, d.Store.DB().First(&active, "user_id = ?", "user-2").Error)
	assert.Equal(t, 5, active.CurrentDays)

	events, err := d.Store.UndigestedEvents(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "streak.lost", events[0].Type)
}

func TestJobPrune_RemovesOldCompleted(t *testing.T) {
	d, jobStore := setupDeps(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, &core.Job{Type: "old.job", Queue: "default", MaxAttempts: 1}))
	old, err := jobStore.Dequeue(ctx, []string{"default"}, "w1")
	require.NoError(t, err)
	require.NoError(t, jobStore.Complete(ctx, old.ID, "w1"))

	ancient := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, jobStore.DB().Model(&core.Job{}).
		Where("id = ?", old.ID).
		Update("completed_at", ancient).Error)

	require.NoError(t, d.handleJobPrune(ctx, jobs.MaintenanceArgs{}))

	gone, err := jobStore.GetJob(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRegisterSchedules(t *testing.T) {
	d, _ := setupDeps(t)
	RegisterSchedules(d, 8, int(time.Monday))

	scheduled := d.Queue.GetScheduledJobs()
	assert.Len(t, scheduled, 5)
	assert.Equal(t, jobs.TypeDigestRun, scheduled["digest-daily"].Type)
	assert.Equal(t, jobs.TypeDigestRun, scheduled["digest-weekly"].Type)
	assert.Equal(t, jobs.TypeLicenseExpire, scheduled["license-expiry"].Type)
	assert.Equal(t, jobs.TypeStreakReset, scheduled["streak-reset"].Type)
	assert.Equal(t, jobs.TypeJobPrune, scheduled["job-prune"].Type)
}
