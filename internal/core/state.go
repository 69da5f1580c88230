// Local shell state kept in a SQLCipher-encrypted SQLite database.
//
// INVARIANTS:
// - The cached session token never leaves the encrypted database
// - Key comes from the caller (never hardcoded); a wrong key fails at open
// - An empty passphrase opens the database unencrypted
package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/cloudfs/cloudsh/internal/model"
)

const stateSchemaVersion = "1"

const stateSchema = `
CREATE TABLE IF NOT EXISTS state_meta (
    key             TEXT PRIMARY KEY,
    value           TEXT NOT NULL
);

-- At most one cached session
CREATE TABLE IF NOT EXISTS session_cache (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    email           TEXT NOT NULL,
    token           TEXT NOT NULL,
    cwd             TEXT NOT NULL DEFAULT '',
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Multi-step mutations issued by the shell
CREATE TABLE IF NOT EXISTS journal (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_id    TEXT NOT NULL UNIQUE,
    operation_type  TEXT NOT NULL,
    payload         TEXT NOT NULL,
    state           TEXT NOT NULL DEFAULT 'pending'
                    CHECK(state IN ('pending', 'committed', 'rolled_back')),
    error           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    completed_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_journal_state ON journal(state);
`

// sqliteTime is the layout of SQLite's datetime('now').
const sqliteTime = "2006-01-02 15:04:05"

// StateDB holds the cached session and the mutation journal.
type StateDB struct {
	db        *sql.DB
	dbPath    string
	encrypted bool
	journal   *JournalManager
}

// OpenStateDB opens (creating if needed) the state database at dbPath.
// If passphrase is empty, opens without encryption.
// If the database exists and passphrase is wrong, returns an error.
func OpenStateDB(ctx context.Context, dbPath string, passphrase string) (*StateDB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var dsn string
	encrypted := passphrase != ""
	if encrypted {
		dsn = fmt.Sprintf("file:%s?_pragma_key=%s&_journal_mode=WAL&_synchronous=NORMAL", dbPath, url.QueryEscape(passphrase))
	} else {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// A wrong key only shows up once a page is read.
	if _, err := db.ExecContext(ctx, stateSchema); err != nil {
		db.Close()
		if encrypted {
			return nil, fmt.Errorf("invalid passphrase or corrupted state database: %w", err)
		}
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO state_meta (key, value) VALUES ('schema_version', ?)`, stateSchemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to write schema version: %w", err)
	}

	return &StateDB{
		db:        db,
		dbPath:    dbPath,
		encrypted: encrypted,
		journal:   NewJournalManager(db),
	}, nil
}

// Close closes the database connection.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// IsEncrypted returns whether the database is encrypted.
func (s *StateDB) IsEncrypted() bool {
	return s.encrypted
}

// Path returns the database file path.
func (s *StateDB) Path() string {
	return s.dbPath
}

// Journal returns the mutation journal.
func (s *StateDB) Journal() *JournalManager {
	return s.journal
}

// EncryptionStatus describes the encryption state of the database.
type EncryptionStatus struct {
	IsEncrypted   bool
	CipherVersion string
}

// GetEncryptionStatus reports whether and how the database is encrypted.
func (s *StateDB) GetEncryptionStatus(ctx context.Context) (*EncryptionStatus, error) {
	status := &EncryptionStatus{IsEncrypted: s.encrypted}
	if s.encrypted {
		var cipherVersion string
		if err := s.db.QueryRowContext(ctx, "PRAGMA cipher_version").Scan(&cipherVersion); err == nil {
			status.CipherVersion = cipherVersion
		}
	}
	return status, nil
}

// CachedSession is the resumable session persisted between runs.
type CachedSession struct {
	Email     string
	Token     string
	Cwd       model.Handle
	UpdatedAt time.Time
}

// SaveSession replaces the cached session.
func (s *StateDB) SaveSession(ctx context.Context, cs CachedSession) error {
	query := `
		INSERT INTO session_cache (id, email, token, cwd, updated_at)
		VALUES (1, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email, token = excluded.token,
			cwd = excluded.cwd, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, cs.Email, cs.Token, encodeHandle(cs.Cwd)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession returns the cached session, or nil when there is none.
func (s *StateDB) LoadSession(ctx context.Context) (*CachedSession, error) {
	var cs CachedSession
	var cwd, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT email, token, cwd, updated_at FROM session_cache WHERE id = 1`).Scan(&cs.Email, &cs.Token, &cwd, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	cs.Cwd = decodeHandle(cwd)
	cs.UpdatedAt, _ = time.Parse(sqliteTime, updated)
	return &cs, nil
}

// UpdateCwd records the working directory of the cached session.
func (s *StateDB) UpdateCwd(ctx context.Context, cwd model.Handle) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_cache SET cwd = ?, updated_at = datetime('now') WHERE id = 1`, encodeHandle(cwd))
	if err != nil {
		return fmt.Errorf("failed to update cwd: %w", err)
	}
	return nil
}

// ClearSession forgets the cached session.
func (s *StateDB) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_cache`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func encodeHandle(h model.Handle) string {
	if h == model.UNDEF {
		return ""
	}
	return strconv.FormatUint(uint64(h), 16)
}

func decodeHandle(s string) model.Handle {
	if s == "" {
		return model.UNDEF
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return model.UNDEF
	}
	return model.Handle(v)
}
