package vfs

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Backend stored in one table keyed by path and indexed by
// parent, so listing a directory is an index scan.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

var _ Backend = (*SQLite)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		path     TEXT PRIMARY KEY,
		parent   TEXT NOT NULL,
		is_dir   INTEGER NOT NULL,
		data     BLOB,
		mod_time INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent)`,
}

// OpenSQLite opens or creates the database at file. ":memory:" keeps it
// in memory.
func OpenSQLite(file string) (*SQLite, error) {
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection, so ":memory:" is one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

type sqlNode struct {
	dir     bool
	size    int64
	modTime int64
}

func (n sqlNode) info(name string) FileInfo {
	t := time.Unix(0, n.modTime)
	if n.dir {
		return dirInfo(name, t)
	}
	return fileInfo(name, n.size, t)
}

// node loads the metadata of name. The root is implicit. Callers hold s.mu.
func (s *SQLite) node(op, name string) (sqlNode, error) {
	if name == "/" {
		return sqlNode{dir: true}, nil
	}
	var n sqlNode
	err := s.db.QueryRow(
		`SELECT is_dir, length(data), mod_time FROM nodes WHERE path = ?`, name,
	).Scan(&n.dir, &sqlSize{&n.size}, &n.modTime)
	if errors.Is(err, sql.ErrNoRows) {
		return n, pathError(op, name, errNotExist)
	}
	return n, err
}

// sqlSize scans a nullable length.
type sqlSize struct{ n *int64 }

func (s *sqlSize) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*s.n = 0
	case int64:
		*s.n = x
	default:
		return fmt.Errorf("unexpected size %T", v)
	}
	return nil
}

// checkParent reports whether the parent of name is a directory. Callers
// hold s.mu.
func (s *SQLite) checkParent(op, name string) error {
	parent, err := s.node(op, path.Dir(name))
	if err != nil {
		return pathError(op, name, errNotExist)
	}
	if !parent.dir {
		return pathError(op, name, errNotDir)
	}
	return nil
}

// Stat implements Backend.
func (s *SQLite) Stat(name string) (FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.node("stat", name)
	if err != nil {
		return FileInfo{}, err
	}
	return n.info(name), nil
}

// ReadDir implements Backend.
func (s *SQLite) ReadDir(name string) ([]FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.node("readdir", name)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, pathError("readdir", name, errNotDir)
	}

	rows, err := s.db.Query(
		`SELECT path, is_dir, length(data), mod_time FROM nodes WHERE parent = ? ORDER BY path`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FileInfo
	for rows.Next() {
		var (
			p     string
			child sqlNode
		)
		if err := rows.Scan(&p, &child.dir, &sqlSize{&child.size}, &child.modTime); err != nil {
			return nil, err
		}
		entries = append(entries, child.info(p))
	}
	return entries, rows.Err()
}

// ReadFile implements Backend.
func (s *SQLite) ReadFile(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		dir  bool
		data []byte
	)
	err := s.db.QueryRow(`SELECT is_dir, data FROM nodes WHERE path = ?`, name).Scan(&dir, &data)
	switch {
	case name == "/":
		return nil, pathError("read", name, errIsDir)
	case errors.Is(err, sql.ErrNoRows):
		return nil, pathError("read", name, errNotExist)
	case err != nil:
		return nil, err
	case dir:
		return nil, pathError("read", name, errIsDir)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// WriteFile implements Backend.
func (s *SQLite) WriteFile(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, err := s.node("write", name); err == nil && n.dir {
		return pathError("write", name, errIsDir)
	}
	if err := s.checkParent("write", name); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.Exec(`
		INSERT INTO nodes (path, parent, is_dir, data, mod_time) VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, mod_time = excluded.mod_time`,
		name, path.Dir(name), data, time.Now().UnixNano())
	return err
}

// Mkdir implements Backend.
func (s *SQLite) Mkdir(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.node("mkdir", name); err == nil {
		return pathError("mkdir", name, errExist)
	}
	if err := s.checkParent("mkdir", name); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO nodes (path, parent, is_dir, data, mod_time) VALUES (?, ?, 1, NULL, ?)`,
		name, path.Dir(name), time.Now().UnixNano())
	return err
}

// Remove implements Backend.
func (s *SQLite) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.node("remove", name)
	if err != nil {
		return err
	}
	if n.dir {
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM nodes WHERE parent = ? LIMIT 1`, name).Scan(&one)
		switch {
		case err == nil:
			return pathError("remove", name, errNotEmpty)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}
	if name == "/" {
		return nil
	}
	_, err = s.db.Exec(`DELETE FROM nodes WHERE path = ?`, name)
	return err
}

// Close implements Backend.
func (s *SQLite) Close() error {
	return s.db.Close()
}
