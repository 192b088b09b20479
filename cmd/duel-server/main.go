package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/kapu/duel-arena-go/internal/config"
	"github.com/kapu/duel-arena-go/internal/archive"
	"github.com/kapu/duel-arena-go/internal/challenge"
	"github.com/kapu/duel-arena-go/internal/msgcat"
	"github.com/kapu/duel-arena-go/internal/obslog"
	"github.com/kapu/duel-arena-go/internal/registry"
	"github.com/kapu/duel-arena-go/internal/server"
	"github.com/kapu/duel-arena-go/internal/session"
	"github.com/kapu/duel-arena-go/internal/status"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cat, err := msgcat.New(os.Getenv("MESSAGES_DIR"))
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	reg := registry.New()
	sessions := session.NewManager(reg)
	coord := challenge.New(reg, sessions, cat, cfg.ChallengeTTL)

	// Result archive (Redis) and results database are both optional.
	var store *archive.Store
	if cfg.RedisURL != "" {
		store, err = archive.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("archive store init error: %v", err)
		}
		sessions.AttachArchive(store)
	}
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("results repo init error: %v", err)
		}
		sessions.AttachRepository(repo)
	}

	srv := server.New(cfg, reg, coord, sessions, cat)
	if err := srv.Start(); err != nil {
		log.Fatalf("server start error: %v", err)
	}

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.New(reg, coord, sessions, store)
		if err := statusSrv.Start(cfg.StatusAddr); err != nil {
			log.Fatalf("status server start error: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	obslog.L().Info("signal_received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obslog.L().Warn("shutdown_incomplete", zap.Error(err))
	}
	if statusSrv != nil {
		_ = statusSrv.Shutdown(ctx)
	}
	if store != nil {
		_ = store.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
}
