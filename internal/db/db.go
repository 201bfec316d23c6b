package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"friendchat-service/internal/logging"
)

// PostgresOptions configures the Postgres connection pool.
type PostgresOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect initializes the Postgres connection.
func Connect(opts PostgresOptions) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// Migrations creates the documents table backing every collection.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            body JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(collection, id)
        );`,
	`CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body);`,
}

// RunMigrations applies Migrations in order.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range Migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	l := logging.Ctx(ctx)
	l.Info().Int("count", len(Migrations)).Msg("database migrations applied")
	return nil
}

// RedisOptions configures the Redis client.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// ConnectRedis creates a Redis client and verifies it with a PING.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
