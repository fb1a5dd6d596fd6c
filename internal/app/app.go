// Package app wires the shared object graph of the worker and HTTP
// processes: database, job queue, providers behind their breakers, hub,
// reconciler, and handler registration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edupipe/edupipe/internal/breaker"
	"github.com/edupipe/edupipe/internal/config"
	"github.com/edupipe/edupipe/internal/handlers"
	"github.com/edupipe/edupipe/internal/notify"
	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/provider/email"
	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/queue"
	"github.com/edupipe/edupipe/internal/reconcile"
	"github.com/edupipe/edupipe/internal/storage"
)

// App is the assembled object graph.
type App struct {
	Config     config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Queue      *queue.Queue
	Store      *platform.Store
	Hub        *notify.Hub
	Reconciler *reconcile.Reconciler
	Transcoder transcode.Transcoder
	Mailer     email.Mailer
	Deps       *handlers.Deps
}

// New builds the application graph, runs migrations, and registers the
// job handlers. Both processes share this; only what they start on top
// differs.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	jobStore := storage.NewGormStorage(db)
	if err := jobStore.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate job tables: %w", err)
	}

	store := platform.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate platform tables: %w", err)
	}

	q := queue.New(jobStore)

	breakerSettings := breaker.Settings{
		Timeout:                  cfg.BreakerTimeout,
		ErrorThresholdPercentage: cfg.BreakerErrorThreshold,
		VolumeThreshold:          cfg.BreakerVolume,
		ResetTimeout:             cfg.BreakerResetTimeout,
		OnStateChange: func(name string, from, to breaker.State) {
			log.Warn("circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	transcoder, err := transcode.New(transcode.Config{
		Provider:           cfg.TranscodeProvider,
		BunnyLibraryID:     cfg.BunnyLibraryID,
		BunnyAPIKey:        cfg.BunnyAPIKey,
		BunnyWebhookSecret: cfg.BunnyWebhookSecret,
		MuxTokenID:         cfg.MuxTokenID,
		MuxTokenSecret:     cfg.MuxTokenSecret,
		MuxWebhookSecret:   cfg.MuxWebhookSecret,
	})
	if err != nil {
		return nil, err
	}
	if transcode.Protected(transcoder) {
		cb := breaker.New("transcode."+transcoder.Name(), breakerSettings)
		transcoder = transcode.Wrap(transcoder, cb)
	}

	mailer, err := email.New(email.Config{
		Provider:       cfg.EmailProvider,
		From:           cfg.EmailFrom,
		MailgunDomain:  cfg.MailgunDomain,
		MailgunAPIKey:  cfg.MailgunAPIKey,
		SendgridAPIKey: cfg.SendgridAPIKey,
	}, log)
	if err != nil {
		return nil, err
	}
	if email.Protected(mailer) {
		cb := breaker.New("email."+mailer.Name(), breakerSettings)
		mailer = email.Wrap(mailer, cb)
	}

	hub := notify.NewHub(store, q, log)
	rec := reconcile.New(store, hub, log)

	deps := &handlers.Deps{
		Queue:      q,
		Store:      store,
		Reconciler: rec,
		Transcoder: transcoder,
		Mailer:     mailer,
		Hub:        hub,
		Log:        log,
		MaxPolls:   cfg.MaxPolls,
		PollDelay:  cfg.PollDelay,
		Retention:  cfg.JobRetention,
	}
	handlers.RegisterAll(deps)

	return &App{
		Config:     cfg,
		Log:        log,
		DB:         db,
		Queue:      q,
		Store:      store,
		Hub:        hub,
		Reconciler: rec,
		Transcoder: transcoder,
		Mailer:     mailer,
		Deps:       deps,
	}, nil
}

// NewLogger builds the process logger for the configured environment.
func NewLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
