package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"careerquest/internal/metrics"
)

// ErrUnavailable is returned when no pooled connection could be acquired in time.
var ErrUnavailable = errors.New("database unavailable")

// Querier is the subset of pgx shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig bounds the shared connection pool.
type PoolConfig struct {
	MaxConns         int32
	MinConns         int32
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

// DB wraps a pgx pool shared by every ledger operation.
type DB struct {
	Pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewDB creates a Postgres pool and verifies connectivity.
func NewDB(ctx context.Context, connString string, pc PoolConfig) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 && pc.MinConns <= cfg.MaxConns {
		cfg.MinConns = pc.MinConns
	}
	cfg.MaxConnLifetime = time.Hour
	if pc.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(pc.StatementTimeout.Milliseconds(), 10)
	}
	if pc.AcquireTimeout <= 0 {
		pc.AcquireTimeout = 30 * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	db := &DB{Pool: pool, acquireTimeout: pc.AcquireTimeout}
	return db, db.Ping(ctx)
}

// Ping checks that a connection can be acquired and used.
func (d *DB) Ping(ctx context.Context) error {
	return d.WithConn(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, "SELECT 1")
		return err
	})
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Pool == nil {
		return false
	}
	return d.Ping(ctx) == nil
}

// WithConn runs fn on a pooled connection outside of an explicit transaction.
func (d *DB) WithConn(ctx context.Context, fn func(Querier) error) error {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// InTx runs fn inside a read-committed transaction. The transaction commits
// only if fn returns nil; any error rolls it back.
func (d *DB) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (d *DB) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if d == nil || d.Pool == nil {
		return nil, ErrUnavailable
	}
	actx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	defer cancel()
	conn, err := d.Pool.Acquire(actx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			metrics.DBAcquireTimeouts.Inc()
			return nil, fmt.Errorf("%w: acquire timed out after %s", ErrUnavailable, d.acquireTimeout)
		}
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	return conn, nil
}

// Close releases every pooled connection.
func (d *DB) Close() {
	if d == nil || d.Pool == nil {
		return
	}
	d.Pool.Close()
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign_key_violation (23503).
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
