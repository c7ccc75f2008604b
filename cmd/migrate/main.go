package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"focusbot/internal/config"
	"focusbot/internal/db"
	"focusbot/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath string
		down       bool
	)
	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back the focusbot database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML config file",
				Value:       "config.yaml",
				Sources:     cli.EnvVars("FOCUSBOT_CONFIG"),
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:        "down",
				Usage:       "roll back every migration instead of applying them",
				Destination: &down,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, configPath, down)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = os.Stderr.WriteString("migrate: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, down bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return goerr.Wrap(err, "logger init error")
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Backend != config.BackendPostgres {
		log.Info("nothing to migrate", zap.String("backend", cfg.Database.Backend))
		return nil
	}

	url := cfg.Database.URL()
	if err := ping(ctx, url); err != nil {
		return goerr.Wrap(err, "unable to connect to database", goerr.V("host", cfg.Database.Host))
	}

	if !down {
		if err := db.RunMigrations(url); err != nil {
			return err
		}
		log.Info("migration completed successfully")
		return nil
	}

	m, err := db.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return goerr.Wrap(err, "rollback failed")
	}
	log.Info("rollback completed successfully")
	return nil
}

// ping fails fast on bad credentials before migrate retries its own connection.
func ping(ctx context.Context, url string) error {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.PingContext(ctx)
}
