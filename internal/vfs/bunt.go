package vfs

import (
	"encoding/json"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/tidwall/buntdb"
)

// keyPrefix namespaces filesystem nodes in the database.
const keyPrefix = "fs:"

// Bunt is a Backend stored in a buntdb key-value file, one key per node.
// It is the persisted default.
type Bunt struct {
	db *buntdb.DB
}

// buntNode is the stored value of one node.
type buntNode struct {
	Dir     bool   `json:"dir,omitempty"`
	Data    []byte `json:"data,omitempty"`
	ModTime int64  `json:"mtime"`
}

var _ Backend = (*Bunt)(nil)

// OpenBunt opens or creates the database at file. ":memory:" keeps it in
// memory.
func OpenBunt(file string) (*Bunt, error) {
	db, err := buntdb.Open(file)
	if err != nil {
		return nil, err
	}
	return &Bunt{db: db}, nil
}

func nodeKey(name string) string {
	return keyPrefix + name
}

// get loads a node. The root is implicit.
func (b *Bunt) get(tx *buntdb.Tx, op, name string) (*buntNode, error) {
	if name == "/" {
		return &buntNode{Dir: true}, nil
	}
	value, err := tx.Get(nodeKey(name))
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, pathError(op, name, errNotExist)
		}
		return nil, err
	}
	n := &buntNode{}
	if err := json.Unmarshal([]byte(value), n); err != nil {
		return nil, pathError(op, name, err)
	}
	return n, nil
}

func (b *Bunt) put(tx *buntdb.Tx, name string, n *buntNode) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(nodeKey(name), string(payload), nil)
	return err
}

// checkParent reports whether the parent of name is a directory.
func (b *Bunt) checkParent(tx *buntdb.Tx, op, name string) error {
	parent, err := b.get(tx, op, path.Dir(name))
	if err != nil {
		return pathError(op, name, errNotExist)
	}
	if !parent.Dir {
		return pathError(op, name, errNotDir)
	}
	return nil
}

func (n *buntNode) info(name string) FileInfo {
	t := time.Unix(0, n.ModTime)
	if n.Dir {
		return dirInfo(name, t)
	}
	return fileInfo(name, int64(len(n.Data)), t)
}

// Stat implements Backend.
func (b *Bunt) Stat(name string) (FileInfo, error) {
	var info FileInfo
	err := b.db.View(func(tx *buntdb.Tx) error {
		n, err := b.get(tx, "stat", name)
		if err != nil {
			return err
		}
		info = n.info(name)
		return nil
	})
	return info, err
}

// ReadDir implements Backend.
func (b *Bunt) ReadDir(name string) ([]FileInfo, error) {
	var entries []FileInfo
	err := b.db.View(func(tx *buntdb.Tx) error {
		n, err := b.get(tx, "readdir", name)
		if err != nil {
			return err
		}
		if !n.Dir {
			return pathError("readdir", name, errNotDir)
		}

		prefix := dirPrefix(name)
		var decodeErr error
		err = tx.AscendGreaterOrEqual("", nodeKey(prefix), func(key, value string) bool {
			p, ok := strings.CutPrefix(key, keyPrefix)
			if !ok || !strings.HasPrefix(p, prefix) {
				return false
			}
			if !isChild(prefix, p) {
				return true
			}
			child := &buntNode{}
			if decodeErr = json.Unmarshal([]byte(value), child); decodeErr != nil {
				return false
			}
			entries = append(entries, child.info(p))
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return entries, err
}

// ReadFile implements Backend.
func (b *Bunt) ReadFile(name string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *buntdb.Tx) error {
		n, err := b.get(tx, "read", name)
		if err != nil {
			return err
		}
		if n.Dir {
			return pathError("read", name, errIsDir)
		}
		data = n.Data
		return nil
	})
	return data, err
}

// WriteFile implements Backend.
func (b *Bunt) WriteFile(name string, data []byte) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if n, err := b.get(tx, "write", name); err == nil && n.Dir {
			return pathError("write", name, errIsDir)
		}
		if err := b.checkParent(tx, "write", name); err != nil {
			return err
		}
		return b.put(tx, name, &buntNode{Data: data, ModTime: time.Now().UnixNano()})
	})
}

// Mkdir implements Backend.
func (b *Bunt) Mkdir(name string) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, err := b.get(tx, "mkdir", name); err == nil {
			return pathError("mkdir", name, errExist)
		}
		if err := b.checkParent(tx, "mkdir", name); err != nil {
			return err
		}
		return b.put(tx, name, &buntNode{Dir: true, ModTime: time.Now().UnixNano()})
	})
}

// Remove implements Backend.
func (b *Bunt) Remove(name string) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		n, err := b.get(tx, "remove", name)
		if err != nil {
			return err
		}
		if n.Dir {
			empty := true
			prefix := nodeKey(dirPrefix(name))
			err := tx.AscendGreaterOrEqual("", prefix, func(key, _ string) bool {
				empty = !strings.HasPrefix(key, prefix)
				return false
			})
			if err != nil {
				return err
			}
			if !empty {
				return pathError("remove", name, errNotEmpty)
			}
		}
		if name == "/" {
			return nil
		}
		_, err = tx.Delete(nodeKey(name))
		return err
	})
}

// Close implements Backend.
func (b *Bunt) Close() error {
	return b.db.Close()
}
