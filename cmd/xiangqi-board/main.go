package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/park285/xiangqi-board/internal/config"
	"github.com/park285/xiangqi-board/internal/obslog"
	"github.com/park285/xiangqi-board/internal/xqbuilder"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.InitFromEnv()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := xqbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init_failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close_failed", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", deps.Hub)
	wsSrv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		return deps.Server.ListenAndServe(cfg.HTTPAddr)
	})
	if cfg.WSAddr != "" {
		g.Go(func() error {
			logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
			if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.Hub.Close()
		return errors.Join(deps.Server.Shutdown(sctx), wsSrv.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_stopped", zap.Error(err))
	}
}
