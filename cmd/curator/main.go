package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"bdemetris/devicehub/internal/app"
	"bdemetris/devicehub/internal/config"
	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/pkg/apiclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.ValidateSlack(); err != nil {
		logger.Error("missing Slack tokens", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Slack clients ---
	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionDebug(false),
		slack.OptionLog(config.StdLogger(logger, "api")),
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	client := socketmode.New(
		api,
		socketmode.OptionDebug(false),
		socketmode.OptionLog(config.StdLogger(logger, "socketmode")),
	)

	// --- Inventory ---
	remote := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.APITimeout))
	inv := inventory.New(remote,
		inventory.WithFallbackMode(cfg.FallbackMode),
		inventory.WithLogger(logger),
	)
	if err := inv.Load(ctx); err != nil {
		logger.Warn("inventory API unreachable, serving the seed inventory", "api", cfg.APIBaseURL, "error", err)
	}

	slackApp := &app.App{
		API:          api,
		Client:       client,
		Inventory:    inv,
		Logger:       logger,
		OverdueAfter: cfg.OverdueAfter,
		CheckEvery:   cfg.OverdueCheckEvery,
	}

	logger.Info("starting Socket Mode listener")

	go slackApp.HandleEvents(ctx)
	go slackApp.StartOverdueChecker(ctx)

	if err := client.RunContext(ctx); err != nil && ctx.Err() == nil {
		logger.Error("socket mode client failed", "error", err)
		os.Exit(1)
	}
}
