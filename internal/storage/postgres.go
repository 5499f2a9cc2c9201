package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvin/sshtrust/internal/metrics"
	"github.com/edvin/sshtrust/internal/sshkey"
)

// DB is the subset of pgxpool.Pool the postgres backend uses, split out
// so tests can mock it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage keeps key material in the database, for deployments
// where several nodes share one identity and trust store.
type PostgresStorage struct {
	db        DB
	namespace string
}

func NewPostgresStorage(db DB, namespace string) *PostgresStorage {
	return &PostgresStorage{db: db, namespace: namespace}
}

// NewPostgresPool connects a pgx pool and returns a PostgresStorage on
// top of it.
func NewPostgresPool(ctx context.Context, databaseURL, namespace string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	poolMetricsOnce.Do(func() {
		metrics.RegisterPgxPoolMetrics(pool)
	})

	return NewPostgresStorage(pool, namespace), nil
}

var poolMetricsOnce sync.Once

func (s *PostgresStorage) ReadUserKey() (*sshkey.KeyPair, error) {
	var pemBytes []byte
	err := s.db.QueryRow(context.Background(),
		`SELECT private_key FROM ssh_user_keys WHERE namespace = $1`,
		s.namespace,
	).Scan(&pemBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, &Error{Op: "read user key", Err: err}
	}
	return sshkey.Parse(pemBytes)
}

func (s *PostgresStorage) WriteUserKey(key *sshkey.KeyPair) error {
	_, err := s.db.Exec(context.Background(),
		`INSERT INTO ssh_user_keys (namespace, private_key, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (namespace)
		 DO UPDATE SET private_key = EXCLUDED.private_key, updated_at = now()`,
		s.namespace, key.MarshalPEM())
	if err != nil {
		return &Error{Op: "write user key", Err: err}
	}
	return nil
}

func (s *PostgresStorage) DeleteUserKey() error {
	_, err := s.db.Exec(context.Background(),
		`DELETE FROM ssh_user_keys WHERE namespace = $1`, s.namespace)
	if err != nil {
		return &Error{Op: "delete user key", Err: err}
	}
	return nil
}

func (s *PostgresStorage) ReadHostKeyLines() ([]string, error) {
	return s.readLines("ssh_host_keys")
}

func (s *PostgresStorage) AddHostKeyLine(line string) error {
	_, err := s.db.Exec(context.Background(),
		`INSERT INTO ssh_host_keys (namespace, line) VALUES ($1, $2)`,
		s.namespace, line)
	if err != nil {
		return &Error{Op: "add host key", Err: err}
	}
	return nil
}

func (s *PostgresStorage) WriteHostKeyLines(lines []string) error {
	ctx := context.Background()

	_, err := s.db.Exec(ctx,
		`DELETE FROM ssh_host_keys WHERE namespace = $1`, s.namespace)
	if err != nil {
		return &Error{Op: "clear host keys", Err: err}
	}

	for _, line := range lines {
		_, err := s.db.Exec(ctx,
			`INSERT INTO ssh_host_keys (namespace, line) VALUES ($1, $2)`,
			s.namespace, line)
		if err != nil {
			return &Error{Op: "write host keys", Err: err}
		}
	}
	return nil
}

func (s *PostgresStorage) ReadAuthorizedKeyLines() ([]string, error) {
	return s.readLines("ssh_authorized_keys")
}

func (s *PostgresStorage) readLines(table string) ([]string, error) {
	rows, err := s.db.Query(context.Background(),
		`SELECT line FROM `+table+` WHERE namespace = $1 ORDER BY id`, s.namespace)
	if err != nil {
		return nil, &Error{Op: "read " + table, Err: err}
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, &Error{Op: "scan " + table, Err: err}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "iterate " + table, Err: err}
	}
	return lines, nil
}
