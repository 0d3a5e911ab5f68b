package js

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/bdcompat/internal/plugin"
)

// memFiles is an in-memory plugin.Files.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles(files map[string]string) *memFiles {
	m := &memFiles{files: make(map[string][]byte)}
	for k, v := range files {
		m.files[k] = []byte(v)
	}
	return m
}

func (m *memFiles) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapFS := fstest.MapFS{}
	for k, v := range m.files {
		mapFS[strings.TrimPrefix(k, "/")] = &fstest.MapFile{Data: v}
	}
	return fs.ReadDir(mapFS, strings.TrimPrefix(name, "/"))
}

func (m *memFiles) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (m *memFiles) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	return nil
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(append([]Option{WithEvalTimeout(2 * time.Second)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newRuntime(e *Engine) *plugin.Runtime {
	rt := plugin.NewRuntime(plugin.Config{Patcher: e}, e)
	e.SetPlugins(rt)
	return rt
}

func eval(t *testing.T, e *Engine, code string) any {
	t.Helper()
	v, err := e.RunString(context.Background(), code)
	require.NoError(t, err)
	return v
}

const helloPlugin = `/**
 * @name Hello
 * @version 1.0.0
 * @description Says hello
 * @author Foo
 */
module.exports = class Hello {
	constructor(meta) { this.meta = meta; }
	start() { globalThis.helloStarted = this.meta.name + "@" + this.meta.version; }
	stop() { globalThis.helloStarted = false; }
};
`

func TestConvertClassPlugin(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rt := newRuntime(e)

	d, err := rt.Convert(ctx, helloPlugin, "Hello.plugin.js", false, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello", d.Name())
	assert.Equal(t, "1.0.0", d.Version())
	assert.Equal(t, "js", d.Engine())

	require.NoError(t, rt.RegisterDescriptor(ctx, d))
	require.NoError(t, rt.Enable(ctx, "Hello"))
	assert.Equal(t, "Hello@1.0.0", eval(t, e, "globalThis.helloStarted"))
	assert.Equal(t, true, eval(t, e, `BdApi.Plugins.isEnabled("Hello")`))
	assert.Equal(t, true, eval(t, e, `BdApi.Plugins.get("Hello").instance.meta.name === "Hello"`))
	assert.Equal(t, int64(1), eval(t, e, "BdApi.Plugins.getAll().length"))

	require.NoError(t, rt.Disable(ctx, "Hello"))
	assert.Equal(t, false, eval(t, e, "globalThis.helloStarted"))
}

func TestConvertFactoryAndNamedExports(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rt := newRuntime(e)

	factory := "/**\n * @name Made\n * @version 2.0.0\n * @description d\n */\n" +
		`module.exports = (meta) => ({ start() {}, stop() {}, getVersion() { return "2.1.0"; } });`
	d, err := rt.Convert(ctx, factory, "Made.plugin.js", false, "")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", d.Version())

	named := "/**\n * @name Named\n * @version 1\n * @description d\n */\n" +
		`module.exports = { Named: class { start() {} stop() {} } };`
	d, err = rt.Convert(ctx, named, "Named.plugin.js", false, "")
	require.NoError(t, err)
	assert.True(t, d.Instance().Has("start"))
	assert.False(t, d.Instance().Has("missing"))
}

func TestEvaluateScope(t *testing.T) {
	e := newEngine(t)
	_, err := e.Evaluate(context.Background(), plugin.Source{
		Filename: "Scope.plugin.js",
		Folder:   "/BD/plugins/",
		Code: `globalThis.scope = [
			typeof module.exports,
			global === globalThis,
			__filename,
			__dirname,
			typeof DiscordNative.clipboard.copy,
		];`,
	})
	require.NoError(t, err)
	assert.Equal(t,
		[]any{"object", true, "/BD/plugins/Scope.plugin.js", "/BD/plugins", "function"},
		eval(t, e, "globalThis.scope"))
}

func TestEvaluateThrowingBodyIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := newEngine(t, WithLogger(zap.New(core).Sugar()))

	_, err := e.Evaluate(context.Background(), plugin.Source{
		Filename: "Throw.plugin.js",
		Code:     `module.exports = class {}; throw new Error("boom");`,
	})
	require.NoError(t, err)

	entries := logs.FilterLoggerName("plugin.Throw.plugin.js").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "boom")
}

func TestEvaluateSyntaxError(t *testing.T) {
	e := newEngine(t)
	_, err := e.Evaluate(context.Background(), plugin.Source{Filename: "Bad.plugin.js", Code: "module.exports = ;"})
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestInstantiateErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	rt := newRuntime(e)
	header := "/**\n * @name P\n * @version 1\n * @description d\n */\n"

	_, err := rt.Convert(ctx, header+`module.exports = { Other: class {} };`, "P.plugin.js", false, "")
	assert.ErrorIs(t, err, ErrNoExport)

	_, err = rt.Convert(ctx, header+`module.exports = () => 5;`, "P.plugin.js", false, "")
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = rt.Convert(ctx, header+`module.exports = 5;`, "P.plugin.js", false, "")
	assert.ErrorIs(t, err, ErrNotCallable)
}

func TestEvalTimeoutInterrupts(t *testing.T) {
	e := newEngine(t, WithEvalTimeout(100*time.Millisecond))

	_, err := e.RunString(context.Background(), "while (true) {}")
	require.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	assert.Equal(t, int64(2), eval(t, e, "1 + 1"))
}

func TestClosedEngine(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.RunString(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRequireFromPluginsFolder(t *testing.T) {
	files := newMemFiles(map[string]string{
		"/BD/plugins/lib.js": "module.exports = { twice: x => x * 2 };",
	})
	e := newEngine(t, WithFiles(files, "/BD/plugins"))
	assert.Equal(t, true, eval(t, e, `require("./lib.js").twice(4) === 8`))
}

func TestDiscordNativeClipboard(t *testing.T) {
	clip := &MemClipboard{}
	e := newEngine(t, WithClipboard(clip))
	_, err := e.Evaluate(context.Background(), plugin.Source{
		Filename: "Clip.plugin.js",
		Code:     `DiscordNative.clipboard.copy("copied");`,
	})
	require.NoError(t, err)

	text, err := clip.Read()
	require.NoError(t, err)
	assert.Equal(t, "copied", text)
}
