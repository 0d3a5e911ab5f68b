package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPicker returns fixed files and records the request.
type stubPicker struct {
	files    []PickedFile
	err      error
	filter   string
	multiple bool
	deadline time.Time
}

func (p *stubPicker) Pick(ctx context.Context, filter string, multiple bool) ([]PickedFile, error) {
	p.filter = filter
	p.multiple = multiple
	p.deadline, _ = ctx.Deadline()
	return p.files, p.err
}

// blockingPicker waits for its context.
type blockingPicker struct{}

func (blockingPicker) Pick(ctx context.Context, _ string, _ bool) ([]PickedFile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type memDownloader struct {
	files map[string][]byte
}

func (d *memDownloader) Download(name string, data []byte) error {
	if d.files == nil {
		d.files = make(map[string][]byte)
	}
	d.files[name] = data
	return nil
}

func TestImportFileGuessName(t *testing.T) {
	f := newTestFS(t, nil)
	require.NoError(t, f.MkdirRecursive("/BD/plugins"))
	picker := &stubPicker{files: []PickedFile{
		{Name: "One.plugin.js", Data: []byte("1")},
		{Name: `C:\fakepath\Two.plugin.js`, Data: []byte("2")},
	}}

	written, err := f.ImportFile(context.Background(), picker, "/BD/plugins", true, true, ".js")
	require.NoError(t, err)
	assert.Equal(t, []string{"/BD/plugins/One.plugin.js", "/BD/plugins/Two.plugin.js"}, written)
	assert.Equal(t, ".js", picker.filter)
	assert.True(t, picker.multiple)
	assert.WithinDuration(t, time.Now().Add(SelectTimeout), picker.deadline, time.Minute)

	data, err := f.ReadFile("/BD/plugins/Two.plugin.js")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestImportFileFixedTarget(t *testing.T) {
	f := newTestFS(t, nil)
	picker := &stubPicker{files: []PickedFile{
		{Name: "a.txt", Data: []byte("first")},
		{Name: "b.txt", Data: []byte("second")},
	}}

	written, err := f.ImportFile(context.Background(), picker, "/target.txt", false, false, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/target.txt"}, written)
	assert.False(t, picker.multiple)

	data, err := f.ReadFile("/target.txt")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestImportFileBulkLastWins(t *testing.T) {
	f := newTestFS(t, nil)
	picker := &stubPicker{files: []PickedFile{
		{Name: "a.txt", Data: []byte("first")},
		{Name: "b.txt", Data: []byte("second")},
	}}

	written, err := f.ImportFile(context.Background(), picker, "/target.txt", false, true, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/target.txt", "/target.txt"}, written)

	data, err := f.ReadFile("/target.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestImportFileErrors(t *testing.T) {
	f := newTestFS(t, nil)

	_, err := f.ImportFile(context.Background(), &stubPicker{}, "/", true, false, "")
	assert.ErrorIs(t, err, ErrNoSelection)

	_, err = f.ImportFile(context.Background(), &stubPicker{err: context.DeadlineExceeded}, "/", true, false, "")
	assert.ErrorIs(t, err, ErrSelectTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.ImportFile(ctx, blockingPicker{}, "/", true, false, "")
	assert.ErrorIs(t, err, context.Canceled)

	picker := &stubPicker{files: []PickedFile{{Name: "x", Data: []byte("x")}}}
	_, err = f.ImportFile(context.Background(), picker, "/missing/dir", true, false, "")
	assert.Error(t, err)
}

func TestExportFile(t *testing.T) {
	f := newTestFS(t, map[string]string{"/BD/plugins/A.plugin.js": "source"})
	d := &memDownloader{}

	require.NoError(t, f.ExportFile("BD/plugins/A.plugin.js", d))
	assert.Equal(t, map[string][]byte{"A.plugin.js": []byte("source")}, d.files)

	assert.Error(t, f.ExportFile("/missing", d))
}

func TestPathPicker(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.plugin.js":  "a",
		"b.plugin.lua": "b",
		"readme.md":    "r",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	picker := PathPicker{Paths: []string{
		filepath.Join(dir, "readme.md"),
		filepath.Join(dir, "a.plugin.js"),
		filepath.Join(dir, "b.plugin.lua"),
	}}

	files, err := picker.Pick(context.Background(), ".js, .LUA", true)
	require.NoError(t, err)
	assert.Equal(t, []PickedFile{
		{Name: "a.plugin.js", Data: []byte("a")},
		{Name: "b.plugin.lua", Data: []byte("b")},
	}, files)

	files, err = picker.Pick(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, []PickedFile{{Name: "readme.md", Data: []byte("r")}}, files)

	files, err = picker.Pick(context.Background(), ".css", true)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDirDownloader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := DirDownloader{Dir: dir}

	require.NoError(t, d.Download("../sneaky.txt", []byte("x")))
	data, err := os.ReadFile(filepath.Join(dir, "sneaky.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestImportThenExportThroughDirectories(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "X.plugin.js"), []byte("x"), 0o644))

	f := newTestFS(t, nil)
	require.NoError(t, f.MkdirRecursive("/BD/plugins"))
	_, err := f.ImportFile(context.Background(), PathPicker{Paths: []string{filepath.Join(src, "X.plugin.js")}},
		"/BD/plugins", true, false, ".js")
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, f.ExportFile("/BD/plugins/X.plugin.js", DirDownloader{Dir: out}))
	data, err := os.ReadFile(filepath.Join(out, "X.plugin.js"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
