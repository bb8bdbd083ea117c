package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rdmartin/VaultSync/internal/api"
	"github.com/rdmartin/VaultSync/internal/auth"
	"github.com/rdmartin/VaultSync/internal/config"
	"github.com/rdmartin/VaultSync/internal/db"
	"github.com/rdmartin/VaultSync/internal/identity"
	"github.com/rdmartin/VaultSync/internal/jobs"
	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/scheduler"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/syncer"
	"github.com/rdmartin/VaultSync/internal/upstream"
	"github.com/rdmartin/VaultSync/internal/version"
)

func main() {
	ver := version.Load()
	log.Printf("VaultSync %s starting...", ver.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database, "migrations"); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	cfg.MergeFromDB(database.DB)

	settingsRepo := settings.NewRepository(database.DB)
	ids := identity.NewStore(database.DB)
	lib := library.NewClient(cfg.LibraryURL, cfg.LibraryToken)
	resolver := library.NewResolver(lib)
	up := upstream.NewClient(cfg.UpstreamURL)
	ring := report.NewRing(200)
	wsHub := api.NewWSHub()

	keyHash := func() string {
		key, _ := settingsRepo.Get(settings.KeyAPIKey)
		return auth.HashKey(key)
	}

	poster := syncer.NewPosterPolicy(lib, ids, config.WebSiteURL, cfg.PosterSettle, keyHash, upstream.CollectionImageURL)
	dateAdded := syncer.NewDateAdded(lib, ids)
	reconciler := syncer.NewReconciler(lib, resolver, ids, poster, dateAdded, cfg.SortNameSettle)
	inventory := syncer.NewInventory(lib, up, settingsRepo, config.WebSiteURL, keyHash)
	engine := syncer.NewEngine(up, settingsRepo, ids, reconciler, inventory, ring, wsHub, ver.Version)

	queue := jobs.NewQueue(cfg.RedisAddr)
	defer queue.Stop()
	lock := jobs.NewRunLock(cfg.RedisAddr)
	defer lock.Close()
	queue.RegisterHandler(jobs.TaskSyncCollections, jobs.NewSyncHandler(engine, lock, wsHub))
	if err := queue.Start(context.Background()); err != nil {
		log.Fatalf("job queue failed to start: %v", err)
	}

	sched := scheduler.New(queue)
	if apiKey, _ := settingsRepo.Get(settings.KeyAPIKey); apiKey != "" {
		if err := sched.Start(cfg.SyncIntervalMinutes); err != nil {
			log.Fatalf("scheduler failed to start: %v", err)
		}
	} else {
		sched.Run()
		log.Println("no upstream account linked yet, sync is not scheduled")
	}
	defer sched.Stop()

	srv, err := api.NewServer(cfg, settingsRepo, ids, up, engine, dateAdded, queue, sched, ring, wsHub, ver)
	if err != nil {
		log.Fatalf("server setup failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}
