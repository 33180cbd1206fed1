package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/simple-thumbnail/pkg/thumbclient"
	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

type Config struct {
	ServerURL     string        `env:"SERVER_URL" env-default:"http://localhost:8080" env-description:"Thumbnail server base URL"`
	Token         string        `env:"TOKEN" env-description:"Bearer credential"`
	CacheDir      string        `env:"CACHE_DIR" env-description:"Directory persisting folder URL records; empty keeps them in memory"`
	OutputDir     string        `env:"OUTPUT_DIR" env-default:"."`
	Concurrency   int           `env:"CONCURRENCY" env-default:"4"`
	EffectiveType string        `env:"NETWORK_TYPE" env-default:"4g" env-description:"slow-2g, 2g, 3g or 4g"`
	DownlinkMbps  float64       `env:"NETWORK_DOWNLINK"`
	RTT           time.Duration `env:"NETWORK_RTT"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s videos/folder/a.mp4 [more keys...]\n\n", os.Args[0])
		var cfg Config
		text, _ := cleanenv.GetDescription(&cfg, nil)
		fmt.Fprintln(flag.CommandLine.Output(), text)
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "err", err)
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := newLoader(cfg, flag.Args())
	if err != nil {
		slog.Error("Failed to set up loader", "err", err)
		os.Exit(1)
	}

	failed := 0
	for _, res := range loader.LoadAll(ctx, flag.Args()) {
		if res.Err != nil {
			failed++
			slog.Error("Thumbnail failed", "key", res.Key, "terminal", errors.Is(res.Err, thumbclient.ErrTerminallyFailed), "err", res.Err)
			continue
		}
		out := filepath.Join(cfg.OutputDir, filepath.FromSlash(thumbnail.ResolveThumbnailKey(res.Key)))
		if err := writeFile(out, res.Data); err != nil {
			failed++
			slog.Error("Failed to write thumbnail", "key", res.Key, "path", out, "err", err)
			continue
		}
		slog.Info("Thumbnail written", "key", res.Key, "path", out, "bytes", len(res.Data))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// newLoader wires the client components. Folder listings come from the keys
// on the command line.
func newLoader(cfg Config, keys []string) (*thumbclient.Loader, error) {
	client, err := thumbclient.NewClient(cfg.ServerURL, thumbclient.WithToken(cfg.Token))
	if err != nil {
		return nil, err
	}

	lister := thumbclient.StaticLister{}
	for _, key := range keys {
		folder := thumbclient.FolderOf(key)
		lister[folder] = append(lister[folder], key)
	}

	var store thumbclient.FolderStore = thumbclient.NewMemoryStore()
	if cfg.CacheDir != "" {
		fileStore, err := thumbclient.NewFileStore(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		store = fileStore
	}

	cache := thumbclient.NewCache(thumbclient.NewAPIFetcher(client, lister), thumbclient.WithFolderStore(store))
	retrier := thumbclient.NewRetrier(thumbclient.WithSignals(thumbclient.Signals{
		Online:        true,
		EffectiveType: cfg.EffectiveType,
		DownlinkMbps:  cfg.DownlinkMbps,
		RTT:           cfg.RTT,
	}))
	slog.Info("Network classified", "quality", retrier.Quality().String())

	return thumbclient.NewLoader(cache, thumbclient.NewQueue(cfg.Concurrency), retrier, client), nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
