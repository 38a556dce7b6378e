// Package db is the SQLite (optionally SQLCipher-encrypted) store behind the
// stand-in PillBridge app.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DBFileName is used when Options.Path names a directory or is empty.
	DBFileName = "pillbridge.db"

	// MaxOpenConns bounds the pool; SQLite is single-writer.
	MaxOpenConns = 10

	// MaxIdleConns is the idle pool size.
	MaxIdleConns = 2
)

// Options configures Open.
type Options struct {
	// Path is the database file. Empty creates a private temp directory that
	// Close removes.
	Path string
	// Key is an optional 64-hex-character SQLCipher key.
	Key string
}

// Store wraps the sql.DB and its queries.
type Store struct {
	db      *sql.DB
	queries *Queries
	path    string
	tempDir string
}

// Open opens (creating if needed) the database and applies the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	path := opts.Path
	var tempDir string
	if path == "" {
		dir, err := os.MkdirTemp("", "pillbridge-db-*")
		if err != nil {
			return nil, fmt.Errorf("create temp data directory: %w", err)
		}
		tempDir = dir
		path = filepath.Join(dir, DBFileName)
	} else if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn, err := buildDSN(path, opts.Key)
	if err != nil {
		cleanupTemp(tempDir)
		return nil, err
	}

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		cleanupTemp(tempDir)
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		cleanupTemp(tempDir)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, Schema); err != nil {
		sqlDB.Close()
		cleanupTemp(tempDir)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: sqlDB, queries: New(sqlDB), path: path, tempDir: tempDir}, nil
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Queries returns the query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and removes any temp directory Open created.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	cleanupTemp(s.tempDir)
	return err
}

func buildDSN(path, key string) (string, error) {
	dsn := path
	if key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != 32 {
			return "", fmt.Errorf("database key must be 32 bytes of hex")
		}
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, strings.ToLower(key))
	}
	return appendSQLiteParams(dsn, sqliteCommonParams()), nil
}

func sqliteCommonParams() string {
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func cleanupTemp(dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}
