package db

import (
	"context"
	"time"

	"focusbot/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned when a row addressed by id does not exist or is not
// owned by the calling user.
var ErrNotFound = goerr.New("not found")

type DB struct {
	*pgxpool.Pool
	defaultTZ string
}

// New opens the connection pool. defaultTZ is stored into synthesized settings
// for users who never changed theirs.
func New(ctx context.Context, config config.Database, defaultTZ string) (*DB, error) {
	db, err := Open(ctx, config.URL(), defaultTZ)
	if err != nil {
		return nil, goerr.Wrap(err, "error opening database",
			goerr.V("host", config.Host), goerr.V("dbname", config.DBName))
	}
	return db, nil
}

// Open is New for a ready-made connection URL.
func Open(ctx context.Context, databaseURL, defaultTZ string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "error parsing config")
	}

	// Configure connection pool and statement cache
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "error creating connection pool")
	}

	return &DB{Pool: pool, defaultTZ: defaultTZ}, nil
}

// userIDQuery resolves a platform id to the internal user id inside a statement.
const userIDQuery = `(SELECT id FROM users WHERE platform_id = $1)`

func affected(tag interface{ RowsAffected() int64 }, msg string, vals ...goerr.Option) error {
	if tag.RowsAffected() == 0 {
		return goerr.Wrap(ErrNotFound, msg, vals...)
	}
	return nil
}
