package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"villagesync/server"
	"villagesync/store"
)

// villagesync 入口：启动 HTTP + WebSocket 服务，初始化房间注册表、Hub 与资料存储
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	// 命令行参数优先于环境变量
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :8080")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite profile database path")
	flag.Parse()

	log, err := server.NewLogger(cfg.LogConfig())
	if err != nil {
		return err
	}
	defer server.SyncLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiles, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	registry := server.NewRegistry()
	if cfg.DefaultRoom != "" {
		// 先预创建一个默认房间，便于快速试跑
		registry.EnsureRoom(cfg.DefaultRoom)
	}
	hub := server.NewHub(registry, server.HubOptions{
		Logger:          log.Named("hub"),
		Metrics:         &server.Metrics{},
		BroadcastHz:     cfg.BroadcastHz,
		PruneEmptyRooms: cfg.PruneEmptyRooms,
		EventQueue:      cfg.EventQueue,
	})
	verifier := server.NewTokenVerifier(cfg.JWTSecret)
	if verifier == nil {
		log.Warn("join token verification disabled: client-supplied uid is trusted")
	}
	ws := server.NewHandler(hub, server.HandlerOptions{
		Logger:   log.Named("ws"),
		Conn:     cfg.ConnConfig(),
		Verifier: verifier,
	})
	mux := server.NewMux(server.Routes{
		Hub:       hub,
		WS:        ws,
		Profiles:  profiles,
		Logger:    log.Named("http"),
		StaticDir: cfg.StaticDir,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Infof("villagesync listening on %s; open http://localhost%v/", cfg.Addr, cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// 优雅退出（Ctrl+C）
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	return multierr.Append(err, profiles.Close())
}
