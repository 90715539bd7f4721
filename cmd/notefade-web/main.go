package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notefade/internal/api"
	"notefade/internal/autosave"
	"notefade/internal/config"
	"notefade/internal/logging"
	"notefade/internal/session"
	"notefade/internal/web"
)

func main() {
	cfg, err := config.Load()
	closeLog, logErr := logging.Setup(os.Stdout, logging.Options{
		Level:      cfg.LogLevel,
		Pretty:     cfg.LogPretty,
		DevLogFile: devLogFile(cfg),
	})
	defer closeLog()
	if logErr != nil {
		slog.Error("open log file", "err", logErr)
	}
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	client, err := api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		slog.Error("create api client", "err", err)
		os.Exit(1)
	}
	registry := session.NewRegistry(client, cfg.SessionIdle,
		session.WithAutosave(autosave.WithDebounce(cfg.AutosaveDebounce)))

	srv, err := web.NewServer(cfg, client, registry)
	if err != nil {
		slog.Error("create server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go registry.Run(ctx, sweepInterval(cfg.SessionIdle))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	httpServer.RegisterOnShutdown(srv.CloseStreams)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr, "api_url", cfg.APIURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	// Open views still hold debounced checkbox changes.
	if err := registry.CloseAll(shutdownCtx); err != nil {
		slog.Error("flush views on shutdown", "err", err)
		os.Exit(1)
	}
}

func devLogFile(cfg config.Config) string {
	if path := strings.TrimSpace(cfg.DevLogFile); path != "" {
		return path
	}
	if strings.TrimSpace(os.Getenv("DEV")) != "" {
		return "dev.log"
	}
	return ""
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return interval
}
