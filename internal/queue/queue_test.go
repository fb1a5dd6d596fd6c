package queue_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edupipe/edupipe/internal/core"
	"github.com/edupipe/edupipe/internal/queue"
	"github.com/edupipe/edupipe/internal/schedule"
	"github.com/edupipe/edupipe/internal/storage"
)

func setupQueue(t *testing.T) (*queue.Queue, *storage.GormStorage) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))
	return queue.New(store), store
}

type emailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegister(t *testing.T) {
	q, _ := setupQueue(t)

	q.Register("email.send", func(ctx context.Context, args emailArgs) error {
		return nil
	})

	assert.True(t, q.HasHandler("email.send"))
	assert.False(t, q.HasHandler("unknown"))
}

func TestRegister_InvalidSignaturePanics(t *testing.T) {
	q, _ := setupQueue(t)

	assert.Panics(t, func() {
		q.Register("bad.handler", func(args emailArgs) error { return nil })
	})
	assert.Panics(t, func() {
		q.Register("bad.handler", func(ctx context.Context, args emailArgs) {})
	})
	assert.Panics(t, func() {
		q.Register("bad name!", func(ctx context.Context, args emailArgs) error { return nil })
	})
}

func TestEnqueue_PersistsJob(t *testing.T) {
	q, store := setupQueue(t)
	ctx := context.Background()

	q.Register("email.send", func(ctx context.Context, args emailArgs) error {
		return nil
	})

	id, err := q.Enqueue(ctx, "email.send", emailArgs{To: "a@example.com", Subject: "hi"},
		queue.OnQueue("notifications"),
		queue.MaxAttempts(5),
		queue.Backoff(core.BackoffFixed, 2*time.Second),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "email.send", job.Type)
	assert.Equal(t, "notifications", job.Queue)
	assert.Equal(t, core.StatusPending, job.Status)
	assert.Equal(t, 5, job.MaxAttempts)
	assert.Equal(t, core.BackoffFixed, job.Backoff)

	var args emailArgs
	require.NoError(t, json.Unmarshal(job.Args, &args))
	assert.Equal(t, "a@example.com", args.To)
}

func TestEnqueue_UnregisteredTypeRejected(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.Enqueue(context.Background(), "never.registered", emailArgs{})
	assert.Error(t, err)
}

func TestEnqueue_Delay(t *testing.T) {
	q, store := setupQueue(t)
	ctx := context.Background()

	q.Register("email.send", func(ctx context.Context, args emailArgs) error {
		return nil
	})

	before := time.Now()
	id, err := q.Enqueue(ctx, "email.send", emailArgs{}, queue.Delay(time.Hour))
	require.NoError(t, err)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job.RunAt)
	assert.True(t, job.RunAt.After(before.Add(59*time.Minute)))
}

func TestEnqueue_UniqueKeyDeduplicates(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	q.Register("email.send", func(ctx context.Context, args emailArgs) error {
		return nil
	})

	_, err := q.Enqueue(ctx, "email.send", emailArgs{}, queue.Unique("once"))
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "email.send", emailArgs{}, queue.Unique("once"))
	assert.ErrorIs(t, err, core.ErrDuplicateJob)
}

func TestSchedule_RegistersAndReplaces(t *testing.T) {
	q, _ := setupQueue(t)

	q.Schedule("nightly", "maintenance.run", schedule.Daily(2, 0), nil)
	q.Schedule("nightly", "maintenance.run", schedule.Daily(3, 0), nil)

	scheduled := q.GetScheduledJobs()
	require.Len(t, scheduled, 1)
	assert.Equal(t, "maintenance.run", scheduled["nightly"].Type)
}

func TestSchedule_DistinctKeysSameType(t *testing.T) {
	q, _ := setupQueue(t)

	q.Schedule("digest-daily", "digest.run", schedule.Daily(8, 0), nil)
	q.Schedule("digest-weekly", "digest.run", schedule.Weekly(time.Monday, 8, 30), nil)

	scheduled := q.GetScheduledJobs()
	assert.Len(t, scheduled, 2)
}

func TestEvents_EmitAndUnsubscribe(t *testing.T) {
	q, _ := setupQueue(t)

	events := q.Events()
	q.Emit(&core.JobStarted{Job: &core.Job{ID: "j1"}, Timestamp: time.Now()})

	select {
	case ev := <-events:
		started, ok := ev.(*core.JobStarted)
		require.True(t, ok)
		assert.Equal(t, "j1", started.Job.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	q.Unsubscribe(events)
	q.Emit(&core.JobStarted{Job: &core.Job{ID: "j2"}, Timestamp: time.Now()})
	select {
	case <-events:
		t.Fatal("unsubscribed channel received event")
	default:
	}
}

func TestHandler_ExecuteUnmarshalsArgs(t *testing.T) {
	var got emailArgs
	h, err := queue.NewHandler(func(ctx context.Context, args emailArgs) error {
		got = args
		return nil
	})
	require.NoError(t, err)

	raw, _ := json.Marshal(emailArgs{To: "b@example.com", Subject: "weekly"})
	require.NoError(t, h.Execute(context.Background(), raw))
	assert.Equal(t, "b@example.com", got.To)
	assert.Equal(t, "weekly", got.Subject)
}
