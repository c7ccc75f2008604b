package main

import (
	"context"
	"os"

	"focusbot/internal/app"
	"focusbot/internal/config"
	"focusbot/internal/logger"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	var configPath string
	cmd := &cli.Command{
		Name:  "focusbot",
		Usage: "Discord bot for tasks, events, reminders and pomodoro sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML config file",
				Value:       "config.yaml",
				Sources:     cli.EnvVars("FOCUSBOT_CONFIG"),
				Destination: &configPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, configPath)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = os.Stderr.WriteString("focusbot: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return goerr.Wrap(err, "logger init error")
	}
	defer func() { _ = log.Sync() }()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("app init failed", logger.ErrFields(err)...)
		return err
	}

	if err := application.Run(ctx); err != nil {
		log.Error("app run failed", logger.ErrFields(err)...)
		return err
	}
	log.Info("application shutdown complete", zap.String("config", configPath))
	return nil
}
