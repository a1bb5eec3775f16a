package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/notevault/vaultbridge/src/bridge"
)

// ServeCmd runs the HTTP bridge server.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides config)"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db := openStore(cfg, logger)
	if db != nil {
		defer db.Close()
		db.StartPurgeLoop(ctx, cfg.Store.PurgeInterval())
	}

	sessions := buildSessions(cfg, store, logger)
	server := bridge.NewServer(store, sessions, cfg.Server.SharedSecret, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge server listening", "addr", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
