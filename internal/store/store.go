// Package store provides generic, schema-agnostic access to named tables
// in an embedded SQLite database. Every data operation validates its
// preconditions (table present, columns present) before touching storage
// and fails fast with a typed error instead of surfacing a raw engine error.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/balakv/memchat/internal/logger"
)

// Column declares one column of a table. Type is a verbatim SQLite type
// declaration and may carry constraint clauses such as "INTEGER PRIMARY KEY"
// or "TEXT NOT NULL".
type Column struct {
	Name string
	Type string
}

// Store wraps a single SQLite connection. Writes run inside one long-lived
// transaction so that uncommitted rows stay visible to reads on the same
// handle but are not durable until a commit is requested.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open opens (or creates) the database at path, creating the parent
// directory if it is missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: database path is empty", ErrArgument)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	// One connection, one writer. Keeps the open transaction and all reads
	// on the same underlying handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) beginWrite() error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit makes all pending writes durable. No-op when nothing is pending.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback discards all pending writes. No-op when nothing is pending.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: malformed %s name %q", ErrArgument, kind, name)
	}
	return nil
}

func quote(name string) string {
	return `"` + name + `"`
}

// TableNames lists all tables in the database.
func (s *Store) TableNames() ([]string, error) {
	rows, err := s.q().Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableExists reports whether the named table exists.
func (s *Store) TableExists(table string) (bool, error) {
	if err := checkIdent("table", table); err != nil {
		return false, err
	}
	var n int
	err := s.q().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) requireTable(table string) error {
	exists, err := s.TableExists(table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

// Columns returns the ordered column names of the table.
func (s *Store) Columns(table string) ([]string, error) {
	if err := s.requireTable(table); err != nil {
		return nil, err
	}
	rows, err := s.q().Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ColumnExists reports whether the column exists on the table. The table
// itself must exist.
func (s *Store) ColumnExists(table, column string) (bool, error) {
	columns, err := s.Columns(table)
	if err != nil {
		return false, err
	}
	for _, c := range columns {
		if c == column {
			return true, nil
		}
	}
	return false, nil
}

// CreateTable creates a new table from ordered column declarations plus
// optional table-level constraint clauses (FOREIGN KEY, UNIQUE, ...).
// Creating a table that already exists is an error.
func (s *Store) CreateTable(table string, columns []Column, constraints []string) error {
	if err := checkIdent("table", table); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("%w: table %s needs at least one column", ErrArgument, table)
	}
	exists, err := s.TableExists(table)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("table %s already exists", table)
	}

	defs := make([]string, 0, len(columns)+len(constraints))
	for _, c := range columns {
		if err := checkIdent("column", c.Name); err != nil {
			return err
		}
		defs = append(defs, quote(c.Name)+" "+c.Type)
	}
	defs = append(defs, constraints...)

	if err := s.beginWrite(); err != nil {
		return err
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(defs, ", "))
	if _, err := s.q().Exec(ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// AddColumn appends a column to an existing table.
func (s *Store) AddColumn(table, column, typeDecl string) error {
	if err := s.requireTable(table); err != nil {
		return err
	}
	if err := checkIdent("column", column); err != nil {
		return err
	}
	if err := s.beginWrite(); err != nil {
		return err
	}
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(column), typeDecl)
	if _, err := s.q().Exec(ddl); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Insert inserts one row. Every key of values must name an existing column.
// The row becomes durable only when commit is true; otherwise it stays
// visible on this handle until a later commit.
func (s *Store) Insert(table string, values map[string]any, commit bool) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: insert into %s with no values", ErrArgument, table)
	}
	columns, err := s.Columns(table)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		quoted[i] = quote(name)
		placeholders[i] = "?"
		args[i] = values[name]
	}

	if err := s.beginWrite(); err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := s.q().Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	if commit {
		return s.Commit()
	}
	return nil
}

// AllRows returns every row of the table as column-name → value maps,
// in storage order.
func (s *Store) AllRows(table string) ([]map[string]any, error) {
	if err := s.requireTable(table); err != nil {
		return nil, err
	}
	rows, err := s.q().Query(fmt.Sprintf("SELECT * FROM %s", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// LatestRow returns the most recently inserted row, or nil when the table
// is empty.
func (s *Store) LatestRow(table string) (map[string]any, error) {
	if err := s.requireTable(table); err != nil {
		return nil, err
	}
	rows, err := s.q().Query(fmt.Sprintf("SELECT * FROM %s ORDER BY rowid DESC LIMIT 1", quote(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest row of %s: %w", table, err)
	}
	defer rows.Close()
	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result[0], nil
}

// LatestData returns the value of column in the row holding that column's
// maximum value. An empty table is an error.
func (s *Store) LatestData(table, column string) (any, error) {
	exists, err := s.ColumnExists(table, column)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, column)
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT 1", quote(column), quote(table), quote(column))
	var value any
	if err := s.q().QueryRow(query).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrEmptyTable, table)
		}
		return nil, fmt.Errorf("failed to read latest %s.%s: %w", table, column, err)
	}
	return value, nil
}

// ChangeLatestData updates column in the most recently inserted row.
// An empty table is a logged no-op.
func (s *Store) ChangeLatestData(table, column string, value any) error {
	exists, err := s.ColumnExists(table, column)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, column)
	}

	var rowID int64
	err = s.q().QueryRow(fmt.Sprintf("SELECT rowid FROM %s ORDER BY rowid DESC LIMIT 1", quote(table))).Scan(&rowID)
	if err == sql.ErrNoRows {
		logger.Warnf("table %s is empty, nothing to update", table)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find latest row of %s: %w", table, err)
	}

	if err := s.beginWrite(); err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", quote(table), quote(column))
	if _, err := s.q().Exec(query, value, rowID); err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", table, column, err)
	}
	return nil
}

// ClearAll deletes every row of the table.
func (s *Store) ClearAll(table string) error {
	if err := s.requireTable(table); err != nil {
		return err
	}
	if err := s.beginWrite(); err != nil {
		return err
	}
	if _, err := s.q().Exec(fmt.Sprintf("DELETE FROM %s", quote(table))); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

// Query runs an arbitrary read against the store, observing pending writes.
// It exists for callers that need joins across tables the generic
// operations cannot express.
func (s *Store) Query(query string, args ...any) (*sql.Rows, error) {
	return s.q().Query(query, args...)
}

// Disconnect commits pending writes when requested, discards them
// otherwise, and releases the connection.
func (s *Store) Disconnect(commit bool) error {
	if s.tx != nil {
		var err error
		if commit {
			err = s.tx.Commit()
		} else {
			err = s.tx.Rollback()
		}
		s.tx = nil
		if err != nil {
			s.db.Close()
			return fmt.Errorf("failed to finish transaction: %w", err)
		}
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
