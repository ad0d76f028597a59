package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for analyzed modules.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  module          TEXT NOT NULL,
  is_package      BOOLEAN DEFAULT FALSE,
  hash            TEXT,
  docstring       TEXT,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scopes (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  parent_scope_id INTEGER REFERENCES scopes(id),
  kind            TEXT NOT NULL,
  name            TEXT,
  qualified_name  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS definitions (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  body_scope_id   INTEGER REFERENCES scopes(id),
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  docstring       TEXT,
  returns         TEXT,
  type_params     TEXT,
  modifiers       TEXT,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS parameters (
  id              INTEGER PRIMARY KEY,
  definition_id   INTEGER NOT NULL REFERENCES definitions(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  annotation      TEXT,
  default_expr    TEXT
);

CREATE TABLE IF NOT EXISTS decorators (
  id              INTEGER PRIMARY KEY,
  definition_id   INTEGER NOT NULL REFERENCES definitions(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  text            TEXT NOT NULL,
  args            TEXT,
  is_call         BOOLEAN DEFAULT FALSE,
  line            INTEGER
);

CREATE TABLE IF NOT EXISTS bases (
  id              INTEGER PRIMARY KEY,
  definition_id   INTEGER NOT NULL REFERENCES definitions(id),
  ordinal         INTEGER NOT NULL,
  keyword         TEXT,
  text            TEXT NOT NULL,
  resolved        TEXT
);

CREATE TABLE IF NOT EXISTS imports (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope           TEXT,
  module          TEXT,
  symbol          TEXT,
  alias           TEXT,
  level           INTEGER DEFAULT 0,
  wildcard        BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS call_sites (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  scope           TEXT,
  callee          TEXT NOT NULL,
  args            TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS assignments (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  scope_id        INTEGER NOT NULL REFERENCES scopes(id),
  scope           TEXT,
  targets         TEXT,
  op              TEXT,
  annotation      TEXT,
  value           TEXT,
  literal         BOOLEAN DEFAULT FALSE,
  is_constant     BOOLEAN DEFAULT FALSE,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  message         TEXT,
  line            INTEGER,
  col             INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_files_module ON files(module);
CREATE INDEX IF NOT EXISTS idx_scopes_file ON scopes(file_id);
CREATE INDEX IF NOT EXISTS idx_definitions_file ON definitions(file_id);
CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name);
CREATE INDEX IF NOT EXISTS idx_definitions_qname ON definitions(qualified_name);
CREATE INDEX IF NOT EXISTS idx_definitions_kind ON definitions(kind);
CREATE INDEX IF NOT EXISTS idx_parameters_definition ON parameters(definition_id);
CREATE INDEX IF NOT EXISTS idx_decorators_definition ON decorators(definition_id);
CREATE INDEX IF NOT EXISTS idx_decorators_name ON decorators(name);
CREATE INDEX IF NOT EXISTS idx_bases_definition ON bases(definition_id);
CREATE INDEX IF NOT EXISTS idx_bases_text ON bases(text);
CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
CREATE INDEX IF NOT EXISTS idx_imports_module ON imports(module);
CREATE INDEX IF NOT EXISTS idx_call_sites_file ON call_sites(file_id);
CREATE INDEX IF NOT EXISTS idx_call_sites_callee ON call_sites(callee);
CREATE INDEX IF NOT EXISTS idx_assignments_file ON assignments(file_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_file ON diagnostics(file_id);
`

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, nil
}

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// DeleteFileData transactionally removes a file and everything extracted
// from it.
func (s *Store) DeleteFileData(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileDataTx(tx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteFileDataTx deletes in reverse-dependency order to respect FK
// constraints.
func deleteFileDataTx(tx *sql.Tx, fileID int64) error {
	const defs = "SELECT id FROM definitions WHERE file_id = ?"
	for _, q := range []string{
		"DELETE FROM parameters WHERE definition_id IN (" + defs + ")",
		"DELETE FROM decorators WHERE definition_id IN (" + defs + ")",
		"DELETE FROM bases WHERE definition_id IN (" + defs + ")",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete definition child data: %w", err)
		}
	}
	for _, q := range []string{
		"DELETE FROM diagnostics WHERE file_id = ?",
		"DELETE FROM assignments WHERE file_id = ?",
		"DELETE FROM call_sites WHERE file_id = ?",
		"DELETE FROM imports WHERE file_id = ?",
		"DELETE FROM definitions WHERE file_id = ?",
		// Children before parents; scopes reference each other.
		"UPDATE scopes SET parent_scope_id = NULL WHERE file_id = ?",
		"DELETE FROM scopes WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("delete file data: %w", err)
		}
	}
	return nil
}
