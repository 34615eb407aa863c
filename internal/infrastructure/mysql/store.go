package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/blake2b"
)

// Store is a querycache.Store in a shared MySQL database, so several report
// runs can reuse each other's lookups.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS query_cache (
		key_hash BINARY(32) NOT NULL,
		cache_key TEXT NOT NULL,
		value MEDIUMBLOB NOT NULL,
		expires_at BIGINT NOT NULL,
		PRIMARY KEY (key_hash),
		KEY query_cache_expiry_idx (expires_at)
	)`)
	return err
}

// keyHash is the fixed-width primary key for a cache key of any length. The
// full key is stored next to it and compared on read.
func keyHash(key string) []byte {
	sum := blake2b.Sum256([]byte(key))
	return sum[:]
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM query_cache WHERE key_hash = ? AND cache_key = ? AND expires_at > ?`,
		keyHash(key), key, time.Now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `INSERT INTO query_cache (key_hash, cache_key, value, expires_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE cache_key = VALUES(cache_key), value = VALUES(value), expires_at = VALUES(expires_at)`,
		keyHash(key), key, value, time.Now().Add(ttl).UnixMilli())
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
