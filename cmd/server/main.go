package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/sync-engine/internal/config"
	"github.com/maukemana/sync-engine/internal/consistency"
	"github.com/maukemana/sync-engine/internal/database"
	"github.com/maukemana/sync-engine/internal/imagesync"
	"github.com/maukemana/sync-engine/internal/logger"
	"github.com/maukemana/sync-engine/internal/mapping"
	"github.com/maukemana/sync-engine/internal/objectstore"
	"github.com/maukemana/sync-engine/internal/observability"
	"github.com/maukemana/sync-engine/internal/orchestrator"
	"github.com/maukemana/sync-engine/internal/repositories"
	"github.com/maukemana/sync-engine/internal/router"
	"github.com/maukemana/sync-engine/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	log := logger.Init("maukemana-sync", cfg.Env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "maukemana-sync")
	if err != nil {
		log.Warn("failed to initialize OpenTelemetry", "error", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log.Error("error shutting down OpenTelemetry", "error", err)
			}
		}()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.New(cfg.DocumentStoreDSN)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to document store")

	store, err := objectstore.New(context.Background(), objectstore.Config{
		AccountID: cfg.ObjectStoreAccountID,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Bucket:    cfg.ObjectStoreBucketName,
		PublicURL: cfg.ObjectStorePublicURL,
	})
	if err != nil {
		log.Error("failed to configure object store", "error", err)
		os.Exit(1)
	}

	upstreamClient := upstream.New(upstream.Config{
		AppID:    cfg.UpstreamAppID,
		Secret:   cfg.UpstreamAppSecret,
		AppToken: cfg.UpstreamAppToken,
		TableID:  cfg.UpstreamTableID,
		BaseURL:  cfg.UpstreamBaseURL,
	}, 30*time.Second, log)

	imagesync.Startup()
	defer imagesync.Shutdown()

	productRepo := repositories.NewProductRepository(db)
	imageRepo := repositories.NewImageRepository(db)
	syncLogRepo := repositories.NewSyncLogRepository(db)

	imageSvc := imagesync.NewService(imageRepo, store, upstreamClient, log)

	orch := orchestrator.New(
		upstreamClient,
		mapping.ProductTable,
		productRepo,
		syncLogRepo,
		imageSvc,
		cfg.UpstreamAppToken,
		cfg.UpstreamTableID,
		log,
	)

	checker := consistency.New(productRepo, imageRepo, store, imageSvc)

	r := router.Setup(router.Deps{
		DB:             db,
		Orchestrator:   orch,
		Checker:        checker,
		SyncLogs:       syncLogRepo,
		Store:          store,
		Upstream:       upstreamClient,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("sync engine starting", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}
