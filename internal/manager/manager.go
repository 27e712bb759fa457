// Package manager owns the named SQLite databases the pipeline server
// executes against. One file per database under a data directory.
package manager

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/louhi-db/louhi/internal/hrana"
)

// ErrUnknownDatabase is returned when a request names a database that was
// never created.
var ErrUnknownDatabase = errors.New("unknown database")

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manager tracks named databases. It is read-mostly after startup and only
// ever touched from the simulation's single thread of control.
type Manager struct {
	dataDir string
	dbs     map[string]*DB
}

// DB is one named database.
type DB struct {
	name string
	db   *sql.DB
}

// New creates a manager rooted at dataDir, creating the directory if needed.
func New(dataDir string) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Manager{dataDir: dataDir, dbs: make(map[string]*DB)}, nil
}

// CreateDatabase creates (or opens) the named database. Called once per
// database at startup; errors here are fatal to the run.
func (m *Manager) CreateDatabase(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid database name %q", name)
	}
	if _, ok := m.dbs[name]; ok {
		return nil
	}
	path := filepath.Join(m.dataDir, name+".db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open database %q: %w", name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("connect database %q: %w", name, err)
	}

	// SQLite supports one writer at a time; keep the pool to a single
	// connection so statements never contend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return fmt.Errorf("configure database %q: %w", name, err)
	}

	m.dbs[name] = &DB{name: name, db: db}
	return nil
}

// Database looks up a database by name.
func (m *Manager) Database(name string) (*DB, error) {
	db, ok := m.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
	}
	return db, nil
}

// Close closes every open database.
func (m *Manager) Close() error {
	var firstErr error
	for _, db := range m.dbs {
		if err := db.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.dbs = make(map[string]*DB)
	return firstErr
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Execute runs one statement and shapes the outcome as a stream result.
// Statement failures are per-step results, not transport errors.
func (d *DB) Execute(stmt hrana.Stmt) hrana.StreamResult {
	if stmt.WantRows {
		return d.query(stmt.SQL)
	}
	res, err := d.db.Exec(stmt.SQL)
	if err != nil {
		return hrana.ErrResult(err.Error())
	}
	affected, _ := res.RowsAffected()
	return hrana.OkResult(&hrana.StmtResult{
		Cols:             []hrana.Col{},
		Rows:             [][]hrana.Value{},
		AffectedRowCount: affected,
	})
}

func (d *DB) query(query string) hrana.StreamResult {
	rows, err := d.db.Query(query)
	if err != nil {
		return hrana.ErrResult(err.Error())
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return hrana.ErrResult(err.Error())
	}
	cols := make([]hrana.Col, len(names))
	for i, n := range names {
		cols[i] = hrana.Col{Name: n}
	}

	out := [][]hrana.Value{}
	for rows.Next() {
		cells := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return hrana.ErrResult(err.Error())
		}
		row := make([]hrana.Value, len(names))
		for i, c := range cells {
			row[i] = cellValue(c)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return hrana.ErrResult(err.Error())
	}
	return hrana.OkResult(&hrana.StmtResult{Cols: cols, Rows: out})
}

func cellValue(c any) hrana.Value {
	switch v := c.(type) {
	case nil:
		return hrana.Value{Type: "null"}
	case int64:
		return hrana.Value{Type: "integer", Value: fmt.Sprintf("%d", v)}
	case float64:
		return hrana.Value{Type: "float", Value: fmt.Sprintf("%g", v)}
	case []byte:
		return hrana.Value{Type: "blob", Value: string(v)}
	case string:
		return hrana.Value{Type: "text", Value: v}
	default:
		return hrana.Value{Type: "text", Value: fmt.Sprintf("%v", v)}
	}
}
