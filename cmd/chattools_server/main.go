// cmd/chattools_server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ahtavarasmus/TextAndDrive/internal/chatdata"
	"github.com/ahtavarasmus/TextAndDrive/internal/config"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools/stdio"
)

// Serves the chat tools over stdin/stdout as NDJSON, one request per line.
// Logs go to stderr so they never mix with responses.
func main() {
	configPath := flag.String("config", "", "path to config.yaml (default config/config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}))

	store, err := openStore(ctx, cfg.ChatData)
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := cfg.ChatData.Location()
	if err != nil {
		return fmt.Errorf("chat timezone: %w", err)
	}
	accessor := chatdata.NewAccessor(store,
		chatdata.WithLogger(logger),
		chatdata.WithLocation(loc),
		chatdata.WithIdentity(chatdata.Identity{SenderID: cfg.ChatData.SelfID, DisplayName: cfg.ChatData.SelfName}))

	reg := tools.NewChatCatalog(accessor)
	logger.Info("chat tool server ready", "tools", len(reg.ListAll()))
	return stdio.NewServer(reg, logger).Serve(ctx, os.Stdin, os.Stdout)
}

func openStore(ctx context.Context, cfg config.ChatDataConfig) (*chatdata.Store, error) {
	if cfg.DBPath != "" && cfg.DBPath != ":memory:" {
		return chatdata.Open(cfg.DBPath)
	}
	store, err := chatdata.OpenInMemory()
	if err != nil {
		return nil, err
	}
	if cfg.Fixture == "" {
		return store, nil
	}
	fixture, err := chatdata.LoadFixture(cfg.Fixture)
	if err == nil {
		err = store.Seed(ctx, fixture)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("seed chat store: %w", err)
	}
	return store, nil
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
