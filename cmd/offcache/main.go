// Command offcache runs the offline cache sync daemon: it opens the local
// cache database, watches connectivity, drains the mutation queue against
// the remote backend and enforces draft storage limits.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/talentflow/offlinecache/internal/config"
	"github.com/talentflow/offlinecache/internal/conflicts"
	"github.com/talentflow/offlinecache/internal/drafts"
	"github.com/talentflow/offlinecache/internal/events"
	"github.com/talentflow/offlinecache/internal/logging"
	"github.com/talentflow/offlinecache/internal/models"
	"github.com/talentflow/offlinecache/internal/netx"
	"github.com/talentflow/offlinecache/internal/queue"
	"github.com/talentflow/offlinecache/internal/quota"
	"github.com/talentflow/offlinecache/internal/remote"
	"github.com/talentflow/offlinecache/internal/storage"
	"github.com/talentflow/offlinecache/internal/store"
	"github.com/talentflow/offlinecache/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("offcache exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()
	log := logging.NewTextLogger(os.Stderr, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := events.NewBus()
	bus.Subscribe(events.TopicSyncError, func(payload any) {
		if se, ok := payload.(models.SyncError); ok {
			log.Warn(ctx, "sync error",
				"id", se.ItemID, "entityType", se.EntityType,
				"entityId", se.EntityID, "error", se.Error)
		}
	})

	checker := netx.NewChecker(cfg.RemoteBaseURL, cfg.OnlineCheckInterval, log)

	localStore := store.NewSQLite(db, checker, cfg.TTL, log)
	queueRepo := queue.NewSQLite(db, log)
	conflictRepo := conflicts.NewSQLite(db)
	backend := remote.NewHTTPBackend(cfg.RemoteBaseURL, 30*time.Second)

	fallback, err := drafts.NewFileRepository(cfg.DraftFallbackDir)
	if err != nil {
		return err
	}
	draftStore := drafts.NewStore(drafts.NewSQLiteRepository(db), fallback, drafts.NewKeyring(db), log)

	if err := unlockDrafts(ctx, draftStore, log); err != nil {
		return err
	}

	engine := syncer.NewEngine(syncer.Params{
		DB:           db,
		Store:        localStore,
		Queue:        queueRepo,
		Conflicts:    conflictRepo,
		Remote:       backend,
		Monitor:      checker,
		Bus:          bus,
		Log:          log,
		BatchSize:    cfg.SyncBatchSize,
		SyncInterval: cfg.SyncInterval,
	})

	go checker.Run(ctx)
	go enforceDraftLimits(ctx, quota.NewManager(db, cfg.StorageQuotaBytes, log), cfg, log)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	log.Info(ctx, "offcache started",
		"db", cfg.DatabasePath, "remote", cfg.RemoteBaseURL,
		"syncInterval", cfg.SyncInterval)

	err = engine.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func enforceDraftLimits(ctx context.Context, m *quota.Manager, cfg *config.Config, log logging.Logger) {
	limits := quota.Limits{MaxEntries: cfg.DraftMaxEntries, MaxTotalBytes: cfg.DraftMaxBytes}

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		if _, err := m.EnforceDraftLimits(ctx, limits); err != nil {
			log.Warn(ctx, "draft limit enforcement failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, addr string, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn(ctx, "metrics server stopped", "error", err)
	}
}
