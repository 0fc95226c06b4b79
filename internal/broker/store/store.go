// Package store is the broker's SQLite-backed persistence layer for users,
// workspaces, workspace settings, and git credentials. Grounded on the
// teacher's internal/statedb/statedb.go: same Open/Migrate/Close shape,
// same WAL + busy_timeout + foreign_keys pragma set, same idempotent
// CREATE TABLE IF NOT EXISTS migration inside a single transaction.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding the broker's control-plane state.
// Thread-safe for concurrent use from multiple goroutines within one
// process; WAL mode lets concurrent readers proceed alongside a writer.
type Store struct {
	db *sql.DB
}

// User is a row of the users table.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Workspace is a row of the workspaces table.
type Workspace struct {
	ID        string
	UserID    string
	Name      string
	Template  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings is a row of the workspace_settings table. Environment,
// Commands, and LSPEnabled are stored as JSON text and decoded by callers.
type Settings struct {
	WorkspaceID string
	Environment string
	Commands    string
	PreviewPort int
	LSPEnabled  string
	AllowEgress bool
	UpdatedAt   time.Time
}

// GitCredential is a row of the git_credentials table. Secret holds the
// box-encrypted token, never the plaintext.
type GitCredential struct {
	WorkspaceID string
	Host        string
	Username    string
	Secret      string
}

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = fmt.Errorf("store: not found")

// Open creates or opens the SQLite database at dbPath and applies pragmas.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced callers and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *Store) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			name       TEXT NOT NULL,
			template   TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workspace_settings (
			workspace_id TEXT PRIMARY KEY REFERENCES workspaces(id),
			environment  TEXT NOT NULL DEFAULT '{}',
			commands     TEXT NOT NULL DEFAULT '{}',
			preview_port INTEGER NOT NULL DEFAULT 0,
			lsp_enabled  TEXT NOT NULL DEFAULT '{}',
			allow_egress INTEGER NOT NULL DEFAULT 1,
			updated_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS git_credentials (
			workspace_id TEXT NOT NULL,
			host         TEXT NOT NULL,
			username     TEXT NOT NULL,
			ciphertext   TEXT NOT NULL,
			PRIMARY KEY (workspace_id, host)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workspaces_user_id ON workspaces(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}

	return tx.Commit()
}

func normalizeIdent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateUser inserts a new user row. Email and username are lowercased
// before storage so lookups are case-insensitive.
func (s *Store) CreateUser(u User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, username, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, normalizeIdent(u.Email), normalizeIdent(u.Username), u.PasswordHash, u.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up a user by lowercased email.
func (s *Store) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, email, username, password_hash, created_at FROM users WHERE email = ?`,
		normalizeIdent(email),
	)
	return scanUser(row)
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(id string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, email, username, password_hash, created_at FROM users WHERE id = ?`, id,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// CreateWorkspace inserts a new workspace row and its settings row in a
// single transaction: a workspace existing without a settings row is a
// programmer error elsewhere in this package (GetSettings assumes the
// row exists), so the two inserts must commit or fail together.
func (s *Store) CreateWorkspace(w Workspace, set Settings) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin create workspace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO workspaces (id, user_id, name, template, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Name, w.Template, w.CreatedAt.Unix(), w.UpdatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("store: create workspace: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO workspace_settings (workspace_id, environment, commands, preview_port, lsp_enabled, allow_egress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, set.WorkspaceID, set.Environment, set.Commands, set.PreviewPort, set.LSPEnabled, boolToInt(set.AllowEgress), set.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("store: create workspace settings: %w", err)
	}

	return tx.Commit()
}

// GetWorkspace returns the workspace identified by id, scoped to ownerID.
// A workspace owned by a different user looks identical to a nonexistent
// one: callers must not be able to distinguish "not yours" from "does not
// exist" from the response.
func (s *Store) GetWorkspace(id, ownerID string) (*Workspace, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, name, template, created_at, updated_at FROM workspaces WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	var w Workspace
	var createdAt, updatedAt int64
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Template, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan workspace: %w", err)
	}
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	w.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &w, nil
}

// RenameWorkspace updates a workspace's display name, scoped to ownerID.
// Returns ErrNotFound if no matching row existed.
func (s *Store) RenameWorkspace(id, ownerID, name string, updatedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE workspaces SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		name, updatedAt.Unix(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("store: rename workspace: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkspaces returns every workspace owned by ownerID, newest first.
func (s *Store) ListWorkspaces(ownerID string) ([]Workspace, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, name, template, created_at, updated_at FROM workspaces WHERE user_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var w Workspace
		var createdAt, updatedAt int64
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Template, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan workspace row: %w", err)
		}
		w.CreatedAt = time.Unix(createdAt, 0).UTC()
		w.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes the workspace row and its settings/credentials,
// scoped to ownerID. Returns ErrNotFound if no matching row existed.
func (s *Store) DeleteWorkspace(id, ownerID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM workspaces WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("store: delete workspace: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM workspace_settings WHERE workspace_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete settings: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM git_credentials WHERE workspace_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete credentials: %w", err)
	}
	return tx.Commit()
}

// UpsertSettings writes or replaces the settings row for a workspace.
func (s *Store) UpsertSettings(set Settings) error {
	_, err := s.db.Exec(`
		INSERT INTO workspace_settings (workspace_id, environment, commands, preview_port, lsp_enabled, allow_egress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			environment = excluded.environment,
			commands = excluded.commands,
			preview_port = excluded.preview_port,
			lsp_enabled = excluded.lsp_enabled,
			allow_egress = excluded.allow_egress,
			updated_at = excluded.updated_at
	`, set.WorkspaceID, set.Environment, set.Commands, set.PreviewPort, set.LSPEnabled, boolToInt(set.AllowEgress), set.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: upsert settings: %w", err)
	}
	return nil
}

// GetSettings returns a workspace's settings, or defaults if none were
// ever written (allow_egress defaults true, matching the column default).
func (s *Store) GetSettings(workspaceID string) (*Settings, error) {
	row := s.db.QueryRow(
		`SELECT workspace_id, environment, commands, preview_port, lsp_enabled, allow_egress, updated_at
		 FROM workspace_settings WHERE workspace_id = ?`, workspaceID,
	)
	var set Settings
	var allowEgress int
	var updatedAt int64
	err := row.Scan(&set.WorkspaceID, &set.Environment, &set.Commands, &set.PreviewPort, &set.LSPEnabled, &allowEgress, &updatedAt)
	if err == sql.ErrNoRows {
		return &Settings{
			WorkspaceID: workspaceID,
			Environment: "{}",
			Commands:    "{}",
			LSPEnabled:  "{}",
			AllowEgress: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan settings: %w", err)
	}
	set.AllowEgress = allowEgress != 0
	set.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &set, nil
}

// UpsertGitCredential writes or replaces the encrypted credential for
// (workspaceID, host). Secret must already be encrypted by the caller.
func (s *Store) UpsertGitCredential(c GitCredential) error {
	_, err := s.db.Exec(`
		INSERT INTO git_credentials (workspace_id, host, username, ciphertext)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, host) DO UPDATE SET
			username = excluded.username,
			ciphertext = excluded.ciphertext
	`, c.WorkspaceID, c.Host, c.Username, c.Secret)
	if err != nil {
		return fmt.Errorf("store: upsert git credential: %w", err)
	}
	return nil
}

// GetGitCredential returns the stored credential for (workspaceID, host).
func (s *Store) GetGitCredential(workspaceID, host string) (*GitCredential, error) {
	row := s.db.QueryRow(
		`SELECT workspace_id, host, username, ciphertext FROM git_credentials WHERE workspace_id = ? AND host = ?`,
		workspaceID, host,
	)
	var c GitCredential
	if err := row.Scan(&c.WorkspaceID, &c.Host, &c.Username, &c.Secret); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan git credential: %w", err)
	}
	return &c, nil
}

// DeleteGitCredential removes the stored credential for (workspaceID, host).
func (s *Store) DeleteGitCredential(workspaceID, host string) error {
	_, err := s.db.Exec(`DELETE FROM git_credentials WHERE workspace_id = ? AND host = ?`, workspaceID, host)
	if err != nil {
		return fmt.Errorf("store: delete git credential: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
