package pg

import (
	"context"
	"errors"
	"time"

	"cms-service/internal/application"
	infraconfig "cms-service/internal/infrastructure/config"
	"cms-service/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DB struct{ Pool *pgxpool.Pool }

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns, cfg.MinConns = infraconfig.DefaultPGMaxConns, infraconfig.DefaultPGMinConns
	cfg.MaxConnIdleTime = 2 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close()                         { d.Pool.Close() }
func (d *DB) Ping(ctx context.Context) error { return d.Pool.Ping(ctx) }

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the transaction bound to ctx by UnitOfWork, or the pool.
func (d *DB) q(ctx context.Context) querier {
	if tx := txFromCtx(ctx); tx != nil {
		return tx
	}
	return d.Pool
}

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgInvalidText         = "22P02"
)

// mapErr translates driver errors into application sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return application.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgInvalidText:
			return errors.Join(application.ErrNotFound, err)
		case pgUniqueViolation:
			return errors.Join(application.ErrConflict, err)
		}
	}
	return err
}

func sqlLog(repo, op, sql string, fields ...zap.Field) *zap.Logger {
	return logx.L().With(append([]zap.Field{
		zap.String("repo", repo),
		zap.String("operation", op),
		zap.String("sql", sql),
	}, fields...)...)
}
