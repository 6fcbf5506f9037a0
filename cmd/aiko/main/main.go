package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/net/context"

	"github.com/aikolib/aiko/commands"
	"github.com/aikolib/aiko/config"
	"github.com/aikolib/aiko/logger/dlog"
)

func main() {
	configPath := flag.String("c", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		dlog.Error("could not load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if cfg.Logs.Dir != "" {
		if err := dlog.Setup(cfg.Logs.Dir, cfg.Logs.ArchiveCron); err != nil {
			dlog.Error("could not set up logging", "err", err)
			os.Exit(1)
		}
	}

	bot := commands.NewBot(cfg.Prefix)
	if cfg.API != "" {
		bot.Rest.BaseURL = cfg.API
	}
	if cfg.Gateway != "" {
		bot.GatewayURL = cfg.Gateway
	}

	bot.On("READY", func(event any) {
		dlog.Info("session ready", "user", bot.User().Tag())
	})
	bot.Command("ping", func(ctx *commands.Context) error {
		_, err := ctx.Reply("pong")
		return err
	})
	bot.Command("echo", func(ctx *commands.Context) error {
		_, err := ctx.Send(strings.Join(ctx.Args, " "))
		return err
	})

	if err := bot.Start(context.Background(), cfg.Token); err != nil {
		dlog.Error("could not start bot", "err", err)
		os.Exit(1)
	}
	defer bot.Close()
	dlog.Info("bot is up")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		dlog.Info("shutting down")
	case <-bot.Session().Done():
		dlog.Info("gateway connection ended")
	}
}
