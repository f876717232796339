// Package sqlite provides a SQLite-backed registry store. Records are listed
// in rowid order, which is insertion order.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
	"xdao.co/authledger/storage/backends"
)

//go:embed schema.sql
var schema string

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "sqlite",
		Description: "SQLite database file",
		Usage:       backends.UsageCLI | backends.UsageDaemon,
		Keys:        []string{"path"},
		Open: func(s backends.Settings) (storage.Store, error) {
			return Open(s.String("path", "ledger.db"))
		},
	})
}

// Store persists identity records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens a SQLite registry and creates its table if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; readers share the same connection.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, rec model.IdentityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := storage.ValidateRecord(rec)
	if err != nil {
		return err
	}
	var extra sql.NullString
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return fmt.Errorf("%w: extra: %v", storage.ErrInvalidRecord, err)
		}
		extra = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO identities (
		   public_key,
		   scheme,
		   owner,
		   status,
		   registered_at,
		   extra
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PublicKey,
		rec.Scheme,
		rec.Owner,
		string(rec.Status),
		rec.RegisteredAt.UTC().Format(time.RFC3339Nano),
		extra,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, rec.PublicKey)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

const selectColumns = `SELECT public_key, scheme, owner, status, registered_at, extra FROM identities`

func (s *Store) Get(ctx context.Context, publicKey string) (model.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.IdentityRecord{}, err
	}
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return model.IdentityRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, selectColumns+` WHERE public_key = ?`, k)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IdentityRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return model.IdentityRecord{}, err
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]model.IdentityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, selectColumns+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []model.IdentityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, publicKey string, status model.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := storage.CanonicalKey(publicKey)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", storage.ErrInvalidRecord, string(status))
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE identities SET status = ? WHERE public_key = ?`, string(status), k)
	if err != nil {
		return fmt.Errorf("set identity status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set identity status: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.IdentityRecord, error) {
	var (
		rec          model.IdentityRecord
		status       string
		registeredAt string
		extra        sql.NullString
	)
	if err := row.Scan(&rec.PublicKey, &rec.Scheme, &rec.Owner, &status, &registeredAt, &extra); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan identity: %w", err)
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return rec, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, rec.PublicKey, err)
	}
	rec.Status = st
	t, err := time.Parse(time.RFC3339Nano, registeredAt)
	if err != nil {
		return rec, fmt.Errorf("%w: %s: registered_at: %v", storage.ErrCorrupt, rec.PublicKey, err)
	}
	rec.RegisteredAt = t.UTC()
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &rec.Extra); err != nil {
			return rec, fmt.Errorf("%w: %s: extra: %v", storage.ErrCorrupt, rec.PublicKey, err)
		}
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "identities.public_key")
}
