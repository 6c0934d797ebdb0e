package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens and pings a lib/pq connection pool.
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// PostgresStore stores snapshots in the cart_snapshots table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT key, aggregate_type, version, state, updated_at
		 FROM cart_snapshots
		 WHERE key = $1`,
		key,
	).Scan(&snap.Key, &snap.AggregateType, &snap.Version, &snap.State, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, snap *Snapshot) error {
	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO cart_snapshots (key, aggregate_type, version, state, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (key) DO NOTHING`,
			key, snap.AggregateType, snap.Version, string(snap.State), snap.UpdatedAt,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE cart_snapshots
			 SET aggregate_type = $2, version = $3, state = $4, updated_at = $5
			 WHERE key = $1 AND version = $6`,
			key, snap.AggregateType, snap.Version, string(snap.State), snap.UpdatedAt, expectedVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
