package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/api"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail/config"
)

func main() {
	usage := flag.Bool("usage", false, "print the environment variables and exit")
	flag.Parse()

	if *usage {
		text, err := config.Usage()
		if err != nil {
			slog.Error("Failed to describe configuration", "err", err)
			os.Exit(1)
		}
		fmt.Println(text)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "err", err)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	rt, err := cfg.BuildService(ctx)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Mount("/thumbnails", api.NewThumbnailHandler(rt.Service, rt.Credentials).Routes())
	})
	server.R.Handle("/metrics", rt.Metrics.Handler())
	if rt.FileServer != nil {
		server.R.Handle("/files/*", rt.FileServer)
	}
	if rt.Placeholder != nil {
		server.R.Handle(rt.PlaceholderPath, rt.Placeholder)
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Thumbnail server starting",
			"addr", httpServer.Addr,
			"env", cfg.Environment,
			"storage", cfg.StorageType,
			"ledger", cfg.DatabaseType,
			"identity", cfg.IdentityType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
}
