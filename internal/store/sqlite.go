package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/masterkusok/mpprefs/internal/value"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	kind  TEXT NOT NULL,
	value TEXT NOT NULL
)`

const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// sqlitePathEscaper escapes the characters that end or alter the path part
// of an SQLite file: URI.
var sqlitePathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// sqliteDSN builds a file: URI so the path is never mistaken for the
// pragma query.
func sqliteDSN(path string) string {
	return "file:" + sqlitePathEscaper.Replace(filepath.Clean(path)) + "?" + sqlitePragmas
}

// SQLiteStorage keeps preferences in a single SQLite settings file.
type SQLiteStorage struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serialises commits anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) Get(key string) (value.Value, error) {
	var kind, text string
	err := s.db.QueryRow(`SELECT kind, value FROM preferences WHERE key = ?`, key).Scan(&kind, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return value.Value{}, ErrKeyNotFound
	}
	if err != nil {
		return value.Value{}, fmt.Errorf("select %q: %w", key, err)
	}
	val, err := value.DecodeText(kind, text)
	if err != nil {
		return value.Value{}, fmt.Errorf("decode %q: %w", key, err)
	}
	return val, nil
}

func (s *SQLiteStorage) Set(key string, val value.Value) error {
	kind, text, err := value.EncodeText(val)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO preferences (key, kind, value) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		key, kind, text,
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM preferences WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %q: rows affected: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Clear() (int, error) {
	res, err := s.db.Exec(`DELETE FROM preferences`)
	if err != nil {
		return 0, fmt.Errorf("clear preferences: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear preferences: rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStorage) GetSnapshot() (map[string]value.Value, error) {
	rows, err := s.db.Query(`SELECT key, kind, value FROM preferences`)
	if err != nil {
		return nil, fmt.Errorf("select preferences: %w", err)
	}
	defer rows.Close()

	data := make(map[string]value.Value)
	for rows.Next() {
		var key, kind, text string
		if err := rows.Scan(&key, &kind, &text); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		val, err := value.DecodeText(kind, text)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		data[key] = val
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return data, nil
}

// ApplySnapshot replaces the whole table in one transaction.
func (s *SQLiteStorage) ApplySnapshot(data map[string]value.Value) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM preferences`); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	for key, val := range data {
		kind, text, encErr := value.EncodeText(val)
		if encErr != nil {
			err = fmt.Errorf("encode %q: %w", key, encErr)
			return err
		}
		if _, err = tx.Exec(`INSERT INTO preferences (key, kind, value) VALUES (?, ?, ?)`, key, kind, text); err != nil {
			return fmt.Errorf("insert %q: %w", key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
