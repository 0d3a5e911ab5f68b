package vfs

import "fmt"

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindBunt   = "buntdb"
	KindSQLite = "sqlite"
	KindDir    = "dir"
)

// Open opens a backend by kind. location is the database file for buntdb
// and sqlite, where empty means an in-memory database, the root directory
// for dir, and is ignored for memory.
func Open(kind, location string) (Backend, error) {
	if location == "" && (kind == KindBunt || kind == KindSQLite) {
		location = ":memory:"
	}
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindBunt:
		b, err := OpenBunt(location)
		if err != nil {
			return nil, fmt.Errorf("opening buntdb %s: %w", location, err)
		}
		return b, nil
	case KindSQLite:
		s, err := OpenSQLite(location)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", location, err)
		}
		return s, nil
	case KindDir:
		d, err := NewDir(location)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}
