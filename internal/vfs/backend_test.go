package vfs

import (
	"io/fs"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh instance of every backend.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()

	bunt, err := OpenBunt(filepath.Join(dir, "fs.db"))
	require.NoError(t, err)
	sqlite, err := OpenSQLite(filepath.Join(dir, "fs.sqlite"))
	require.NoError(t, err)
	osDir, err := NewDir(filepath.Join(dir, "root"))
	require.NoError(t, err)

	all := map[string]Backend{
		KindMemory: NewMemory(),
		KindBunt:   bunt,
		KindSQLite: sqlite,
		KindDir:    osDir,
	}
	t.Cleanup(func() {
		for _, b := range all {
			b.Close()
		}
	})
	return all
}

func eachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for kind, b := range backends(t) {
		t.Run(kind, func(t *testing.T) {
			fn(t, b)
		})
	}
}

func names(infos []FileInfo) []string {
	return lo.Map(infos, func(info FileInfo, _ int) string { return info.Name() })
}

func TestBackendRoot(t *testing.T) {
	eachBackend(t, func(t *testing.T, b Backend) {
		info, err := b.Stat("/")
		require.NoError(t, err)
		assert.True(t, info.IsDir())

		entries, err := b.ReadDir("/")
		require.NoError(t, err)
		assert.Empty(t, entries)

		// An empty root can be "removed" but stays.
		require.NoError(t, b.Remove("/"))
		_, err = b.Stat("/")
		require.NoError(t, err)
	})
}

func TestBackendFiles(t *testing.T) {
	eachBackend(t, func(t *testing.T, b Backend) {
		require.NoError(t, b.Mkdir("/a"))
		require.NoError(t, b.WriteFile("/a/b.txt", []byte("hi")))

		data, err := b.ReadFile("/a/b.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("hi"), data)

		info, err := b.Stat("/a/b.txt")
		require.NoError(t, err)
		assert.False(t, info.IsDir())
		assert.Equal(t, int64(2), info.Size())
		assert.Equal(t, "b.txt", info.Name())
		assert.Equal(t, "/a/b.txt", info.Path())

		require.NoError(t, b.WriteFile("/a/b.txt", []byte("replaced")))
		data, err = b.ReadFile("/a/b.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("replaced"), data)

		require.NoError(t, b.Remove("/a/b.txt"))
		_, err = b.Stat("/a/b.txt")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestBackendEmptyFile(t *testing.T) {
	eachBackend(t, func(t *testing.T, b Backend) {
		require.NoError(t, b.WriteFile("/empty", nil))
		data, err := b.ReadFile("/empty")
		require.NoError(t, err)
		assert.Empty(t, data)

		info, err := b.Stat("/empty")
		require.NoError(t, err)
		assert.False(t, info.IsDir())
		assert.Zero(t, info.Size())
	})
}

func TestBackendReadDirSorted(t *testing.T) {
	eachBackend(t, func(t *testing.T, b Backend) {
		require.NoError(t, b.Mkdir("/p"))
		require.NoError(t, b.Mkdir("/p/m"))
		require.NoError(t, b.WriteFile("/p/z.js", []byte("z")))
		require.NoError(t, b.WriteFile("/p/a.js", []byte("a")))
		require.NoError(t, b.WriteFile("/p/m/deep.js", []byte("d")))
		require.NoError(t, b.WriteFile("/pz", []byte("sibling")))

		entries, err := b.ReadDir("/p")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.js", "m", "z.js"}, names(entries))
		assert.True(t, entries[1].IsDir())
		assert.Equal(t, "/p/m", entries[1].Path())

		entries, err = b.ReadDir("/")
		require.NoError(t, err)
		assert.Equal(t, []string{"p", "pz"}, names(entries))
	})
}

func TestBackendErrors(t *testing.T) {
	eachBackend(t, func(t *testing.T, b Backend) {
		require.NoError(t, b.Mkdir("/dir"))
		require.NoError(t, b.WriteFile("/dir/file", []byte("x")))

		_, err := b.Stat("/missing")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		_, err = b.ReadFile("/missing")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		_, err = b.ReadFile("/dir")
		assert.ErrorIs(t, err, syscall.EISDIR)

		_, err = b.ReadDir("/missing")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		_, err = b.ReadDir("/dir/file")
		assert.ErrorIs(t, err, syscall.ENOTDIR)

		err = b.WriteFile("/nope/file", []byte("x"))
		assert.ErrorIs(t, err, fs.ErrNotExist)

		err = b.WriteFile("/dir", []byte("x"))
		assert.ErrorIs(t, err, syscall.EISDIR)

		err = b.Mkdir("/dir")
		assert.ErrorIs(t, err, fs.ErrExist)

		err = b.Mkdir("/dir/file")
		assert.ErrorIs(t, err, fs.ErrExist)

		err = b.Mkdir("/nope/sub")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		err = b.Remove("/missing")
		assert.ErrorIs(t, err, fs.ErrNotExist)

		// A directory with children stays.
		require.Error(t, b.Remove("/dir"))
		_, err = b.Stat("/dir/file")
		require.NoError(t, err)

		var pe *fs.PathError
		_, err = b.ReadFile("/missing")
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "/missing", pe.Path)
	})
}

func TestBackendReopen(t *testing.T) {
	dir := t.TempDir()
	open := map[string]func() (Backend, error){
		KindBunt:   func() (Backend, error) { return Open(KindBunt, filepath.Join(dir, "fs.db")) },
		KindSQLite: func() (Backend, error) { return Open(KindSQLite, filepath.Join(dir, "fs.sqlite")) },
		KindDir:    func() (Backend, error) { return Open(KindDir, filepath.Join(dir, "root")) },
	}
	for kind, openFn := range open {
		t.Run(kind, func(t *testing.T) {
			b, err := openFn()
			require.NoError(t, err)
			require.NoError(t, b.Mkdir("/BD"))
			require.NoError(t, b.WriteFile("/BD/x.plugin.js", []byte("kept")))
			require.NoError(t, b.Close())

			b, err = openFn()
			require.NoError(t, err)
			defer b.Close()
			data, err := b.ReadFile("/BD/x.plugin.js")
			require.NoError(t, err)
			assert.Equal(t, []byte("kept"), data)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("floppy", "")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	b, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	for _, kind := range []string{KindBunt, KindSQLite} {
		b, err := Open(kind, "")
		require.NoError(t, err, kind)
		require.NoError(t, b.WriteFile("/f", []byte("x")), kind)
		require.NoError(t, b.Close(), kind)
	}
}

func TestBuntInMemory(t *testing.T) {
	b, err := OpenBunt(":memory:")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.WriteFile("/f", []byte("v")))
	data, err := b.ReadFile("/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Mkdir("/d"))
	require.NoError(t, s.WriteFile("/d/f", []byte("v")))
	entries, err := s.ReadDir("/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names(entries))
}

func TestDirStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(filepath.Join(root, "inner"))
	require.NoError(t, err)

	require.NoError(t, d.WriteFile("/../escape.txt", []byte("x")))
	_, err = d.ReadFile("/escape.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "inner"), d.Root())
}
