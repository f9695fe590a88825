package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"welcomebot/internal/config"
	"welcomebot/internal/domain"
	"welcomebot/internal/irc"
	"welcomebot/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "welcomebot.yaml", "path to this bot's config file")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open seen store: %w", err)
	}
	defer store.Close()
	logger.Info("opened seen store", "path", cfg.Database)

	opts := irc.Options{
		Server:   cfg.Server,
		TLS:      cfg.TLS,
		Nickname: cfg.Nickname,
		Username: cfg.Username,
		Realname: cfg.Realname,
		Channels: cfg.ChannelNames(),
		Logger:   logger,
	}
	if cfg.SASL != nil {
		opts.SASLUsername = cfg.SASL.Username
		opts.SASLPassword = cfg.SASL.Password
	}
	client := irc.NewClient(opts)

	greeter, err := domain.NewGreeter(domain.GreeterOptions{
		Channels: cfg.Channels,
		Fold:     client.Fold,
		IsSelf:   client.IsSelf,
		Store:    store,
		Sender:   client,
		Roster:   client,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create greeter: %w", err)
	}
	client.SetHandler(greeter)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("irc client exited with error", "error", err)
		}
	}()

	logger.Info("bot started", "server", cfg.Server, "nickname", cfg.Nickname)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	return nil
}
