// Command tubevaultd runs the media-sync core as a long-lived background
// service: it wires the Store, Extractor Gateway, Scheduler, Indexer,
// Downloader, and Retention & Notifier together, then blocks until asked to
// shut down. Grounded on the teacher's cmd/cinevault/main.go: a banner log
// line, sequential construction with early exit on error, a background
// worker loop per subsystem, and signal-driven graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/config"
	"github.com/tubevault/tubevault/internal/downloader"
	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/indexer"
	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/matcher"
	"github.com/tubevault/tubevault/internal/mediaserver"
	"github.com/tubevault/tubevault/internal/renamer"
	"github.com/tubevault/tubevault/internal/retention"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/telemetry"
	"github.com/tubevault/tubevault/internal/version"
	"github.com/tubevault/tubevault/internal/watcher"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	info := version.Load()
	logger.Info().Str("version", info.Version).Msg("tubevaultd starting")

	cfg := config.Load()

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	if err := store.Migrate(db, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	cfg.MergeFromDB(db, logger)
	matcher.MinHeight = cfg.MinFallbackHeight
	matcher.HDCutoff = cfg.HDCutoffHeight
	matcher.EnglishLanguageCodes = cfg.EnglishLanguageCodes

	sources := store.NewSourceRepository(db)
	media := store.NewMediaRepository(db)
	metadata := store.NewMetadataRepository(db)
	mediaServers := store.NewMediaServerRepository(db)
	taskHistory := store.NewTaskHistoryRepository(db)
	locks := store.NewLocks(db)

	gateway := extractor.NewResilientGateway(extractor.NewExecGateway(cfg.ExtractorPath), 2, 4)
	notifier := mediaserver.NewNotifier(mediaServers)

	queue := jobs.NewQueue(jobs.Config{
		RedisAddr:  cfg.RedisAddr,
		Concurrency: cfg.WorkersDB + cfg.WorkersFS + cfg.WorkersNet + cfg.WorkersLimit,
		QueuePriority: map[string]int{
			jobs.QueueNet:   cfg.WorkersNet,
			jobs.QueueDB:    cfg.WorkersDB,
			jobs.QueueFS:    cfg.WorkersFS,
			jobs.QueueLimit: cfg.MaxInFlightDownloads,
		},
	}, logger)

	retentionHandler := &retention.Handler{
		Sources:      sources,
		Media:        media,
		Queue:        queue,
		Notifier:     notifier,
		DownloadRoot: cfg.DownloadRoot,
		Logger:       logger,
	}

	indexHandler := &indexer.Handler{
		Sources:      sources,
		Media:        media,
		Metadata:     metadata,
		Locks:        locks,
		Queue:        queue,
		Gateway:      gateway,
		Retention:    retentionHandler,
		DownloadRoot: cfg.DownloadRoot,
		Logger:       logger,
	}

	downloadHandler := &downloader.Handler{
		Sources:                   sources,
		Media:                     media,
		Metadata:                  metadata,
		MediaServers:              mediaServers,
		Locks:                     locks,
		Queue:                     queue,
		Gateway:                   gateway,
		Notifier:                  notifier,
		DownloadRoot:              cfg.DownloadRoot,
		UpgradeOnHigherResolution: cfg.UpgradeOnHigherResolution,
		Logger:                    logger,
	}

	renameHandler := &renamer.Handler{
		Sources:                  sources,
		Media:                    media,
		Metadata:                 metadata,
		Locks:                    locks,
		Queue:                    queue,
		DownloadRoot:             cfg.DownloadRoot,
		RenameAllSources:         cfg.RenameAllSources,
		RenameDirectoryAllowlist: cfg.RenameDirectoryAllowlist,
		Logger:                   logger,
	}

	queue.RegisterHandler(jobs.TaskIndexSource, indexHandler)
	queue.RegisterHandler(jobs.TaskIndexMedia, indexHandler)
	queue.RegisterHandler(jobs.TaskIndexMedia+":refresh_formats", indexHandler)
	queue.RegisterHandler(jobs.TaskIndexMedia+":thumbnail", indexHandler)
	queue.RegisterHandler(jobs.TaskDownloadMedia, downloadHandler)
	queue.RegisterHandler(jobs.TaskRenameMedia, renameHandler)
	queue.RegisterHandler(jobs.TaskSaveAllMediaForSource, renameHandler)
	queue.RegisterHandler(jobs.TaskCleanupOldMedia, retentionHandler)
	queue.RegisterHandler(jobs.TaskPurgeDetachedSource, retentionHandler)
	queue.RegisterHandler(jobs.TaskNotifyMediaServers, retentionHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("job queue worker stopped")
		}
	}()
	defer queue.Stop()

	periodic := &jobs.PeriodicJobs{
		Queue:                queue,
		Locks:                locks,
		Sources:              sources,
		Media:                media,
		History:              taskHistory,
		TaskHistoryRetention: cfg.TaskHistoryRetention,
		Logger:               logger,
	}
	cronRunner := cron.New()
	if err := periodic.Register(cronRunner); err != nil {
		logger.Fatal().Err(err).Msg("register periodic jobs")
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	fsWatcher, err := watcher.New(media, cfg.DownloadRoot)
	if err != nil {
		logger.Fatal().Err(err).Msg("start download-root watcher")
	}
	fsWatcher.Start()
	defer fsWatcher.Stop()

	metricsServer := telemetry.NewServer(cfg.MetricsAddr, logger)
	metricsServer.Start(ctx)

	logger.Info().
		Str("download_root", cfg.DownloadRoot).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("tubevaultd ready")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining")
	time.Sleep(500 * time.Millisecond)

	os.Exit(0)
}
