package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/bdcompat/internal/config"
	"github.com/dshills/bdcompat/internal/plugin"
	"github.com/dshills/bdcompat/internal/vfs"
)

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

const greeterPlugin = `--[[
@name Greeter
@version 2.0.0
@description Greets
@author Foo
]]
local Greeter = {}
Greeter.__index = Greeter
function Greeter.new(meta)
  return setmetatable({ meta = meta }, Greeter)
end
function Greeter:start() started = self.meta.name end
function Greeter:stop() started = false end
return Greeter
`

// memoryWith returns a memory backend holding files.
func memoryWith(t *testing.T, files map[string]string) vfs.Backend {
	t.Helper()
	b := vfs.NewMemory()
	f := vfs.New(b)
	require.NoError(t, f.MkdirRecursive(plugin.DefaultFolder))
	for name, src := range files {
		require.NoError(t, f.WriteFile(name, []byte(src)))
	}
	return b
}

func newLayer(t *testing.T, opts Options) *Layer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t).Sugar()
	}
	if opts.EvalTimeout == 0 {
		opts.EvalTimeout = 2 * time.Second
	}
	l, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestStartLoadsBothEngines(t *testing.T) {
	l := newLayer(t, Options{Backend: memoryWith(t, map[string]string{
		"/BD/plugins/Hello.plugin.js":    helloPlugin,
		"/BD/plugins/Greeter.plugin.lua": greeterPlugin,
		"/BD/plugins/readme.txt":         "not a plugin",
		"/BD/plugins/Hello.config.json":  `{"greeting":"hi"}`,
	})})

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, 2, l.Runtime().Count())

	hello, ok := l.Runtime().Get("Hello")
	require.True(t, ok)
	assert.Equal(t, "js", hello.Engine())
	assert.False(t, hello.Started())

	greeter, ok := l.Runtime().Get("Greeter")
	require.True(t, ok)
	assert.Equal(t, "lua", greeter.Engine())
	assert.Equal(t, "2.0.0", greeter.Version())
}

func TestStartCreatesPluginsFolder(t *testing.T) {
	l := newLayer(t, Options{Backend: vfs.NewMemory()})

	require.NoError(t, l.Start(context.Background()))
	assert.True(t, l.FS().IsDir(plugin.DefaultFolder))
	assert.Zero(t, l.Runtime().Count())
}

func TestStartSafeMode(t *testing.T) {
	l := newLayer(t, Options{
		Backend:  memoryWith(t, map[string]string{"/BD/plugins/Hello.plugin.js": helloPlugin}),
		SafeMode: true,
	})

	assert.ErrorIs(t, l.Start(context.Background()), ErrSafeMode)
	assert.ErrorIs(t, l.Reload(context.Background()), ErrSafeMode)
	assert.Zero(t, l.Runtime().Count())
	assert.True(t, l.SafeMode())
}

func TestStartReportsBrokenPlugin(t *testing.T) {
	l := newLayer(t, Options{Backend: memoryWith(t, map[string]string{
		"/BD/plugins/Broken.plugin.js": "/**\n * @name Broken\n */\nmodule.exports = class {",
		"/BD/plugins/Hello.plugin.js":  helloPlugin,
	})})

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken.plugin.js")

	var ce *ComponentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "plugins", ce.Component)

	_, ok := l.Runtime().Get("Hello")
	assert.True(t, ok)
}

func TestEnabledStatusSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{
		ConfigPath:  filepath.Join(dir, "settings.toml"),
		Storage:     vfs.KindSQLite,
		StoragePath: filepath.Join(dir, "fs.db"),
		Logger:      zaptest.NewLogger(t).Sugar(),
		EvalTimeout: 2 * time.Second,
	}

	first, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, first.FS().MkdirRecursive(plugin.DefaultFolder))
	require.NoError(t, first.FS().WriteFile("/BD/plugins/Hello.plugin.js", []byte(helloPlugin)))
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.Runtime().Enable(ctx, "Hello"))
	require.NoError(t, first.Close())

	second := newLayer(t, opts)
	require.NoError(t, second.Start(ctx))

	hello, ok := second.Runtime().Get("Hello")
	require.True(t, ok)
	assert.True(t, hello.Started())

	v, err := second.JS().RunString(ctx, "globalThis.helloStarted")
	require.NoError(t, err)
	assert.Equal(t, "Hello@1.0.0", v)
}

func TestSettingsEditTogglesPlugin(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	l := newLayer(t, Options{
		ConfigPath: path,
		Backend:    memoryWith(t, map[string]string{"/BD/plugins/Greeter.plugin.lua": greeterPlugin}),
	})
	require.NoError(t, l.Start(ctx))

	greeter, ok := l.Runtime().Get("Greeter")
	require.True(t, ok)
	require.False(t, greeter.Started())

	edit := func(enabled bool) {
		s := l.Settings().Settings()
		s.PluginsStatus["Greeter"] = enabled
		require.NoError(t, config.Save(path, s))
		require.NoError(t, l.Settings().Reload())
	}

	edit(true)
	assert.True(t, greeter.Started())
	v, err := l.Lua().DoString(ctx, "return started")
	require.NoError(t, err)
	assert.Equal(t, "Greeter", v)

	edit(false)
	assert.False(t, greeter.Started())
	assert.False(t, l.Runtime().IsEnabled("Greeter"))
}

func TestStartInstallsRemotePlugins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Hello.plugin.js" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(helloPlugin))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := config.Default()
	s.PluginURLs = []string{srv.URL + "/Hello.plugin.js"}
	s.CorsProxyURL = ""
	require.NoError(t, config.Save(path, s))

	l := newLayer(t, Options{
		ConfigPath: path,
		Backend:    vfs.NewMemory(),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, l.Start(context.Background()))

	data, err := l.FS().ReadFile("/BD/plugins/Hello.plugin.js")
	require.NoError(t, err)
	assert.Equal(t, helloPlugin, string(data))
	_, ok := l.Runtime().Get("Hello")
	assert.True(t, ok)
}

func TestStartKeepsLoadingWhenRemoteFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "settings.toml")
	s := config.Default()
	s.PluginURLs = []string{srv.URL + "/Missing.plugin.js"}
	s.CorsProxyURL = ""
	require.NoError(t, config.Save(path, s))

	l := newLayer(t, Options{
		ConfigPath: path,
		Backend:    memoryWith(t, map[string]string{"/BD/plugins/Hello.plugin.js": helloPlugin}),
		HTTPClient: srv.Client(),
	})

	err := l.Start(context.Background())
	var ce *ComponentError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fetch", ce.Component)
	assert.Equal(t, 1, l.Runtime().Count())
}

func TestCloseRemovesPlugins(t *testing.T) {
	ctx := context.Background()
	l, err := New(Options{
		Backend:     memoryWith(t, map[string]string{"/BD/plugins/Hello.plugin.js": helloPlugin}),
		Logger:      zaptest.NewLogger(t).Sugar(),
		EvalTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Runtime().Enable(ctx, "Hello"))
	hello, _ := l.Runtime().Get("Hello")

	require.NoError(t, l.Close())
	assert.Equal(t, plugin.StateRemoved, hello.State())
	assert.Zero(t, l.Runtime().Count())

	enabled, known := l.Settings().Status("Hello")
	assert.True(t, known)
	assert.True(t, enabled)

	assert.NoError(t, l.Close())
	assert.ErrorIs(t, l.Start(ctx), ErrClosed)
	assert.ErrorIs(t, l.Reload(ctx), ErrClosed)
}

func TestNewRejectsUnknownStorage(t *testing.T) {
	_, err := New(Options{Storage: "floppy"})
	require.Error(t, err)

	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "vfs", ie.Component)
	assert.ErrorIs(t, err, vfs.ErrUnknownBackend)
}

func TestNewRejectsInvalidSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("storage = [oops"), 0o644))

	_, err := New(Options{ConfigPath: path})
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "settings", ie.Component)
}

type countingUnpatcher int

func (c countingUnpatcher) UnpatchAll(string) int { return int(c) }

func TestUnpatchersSum(t *testing.T) {
	u := unpatchers{countingUnpatcher(2), countingUnpatcher(0), countingUnpatcher(1)}
	assert.Equal(t, 3, u.UnpatchAll("Hello"))
	assert.Zero(t, unpatchers(nil).UnpatchAll("Hello"))
}

func TestDatabaseNextToSettings(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{ConfigPath: filepath.Join(dir, "settings.toml")})
	require.NoError(t, err)
	require.NoError(t, l.FS().WriteFile("/kept", []byte("x")))
	require.NoError(t, l.Close())

	assert.FileExists(t, filepath.Join(dir, "filesystem.buntdb"))

	l = newLayer(t, Options{ConfigPath: filepath.Join(dir, "settings.toml")})
	data, err := l.FS().ReadFile("/kept")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	l := newLayer(t, Options{
		ConfigPath: path,
		Backend:    memoryWith(t, map[string]string{"/BD/plugins/Hello.plugin.js": helloPlugin}),
		Env:        []string{"BDCOMPAT_SAFE_MODE=true"},
	})

	assert.ErrorIs(t, l.Start(context.Background()), ErrSafeMode)
	assert.True(t, l.Effective().SafeMode)
	assert.False(t, l.Settings().Settings().SafeMode)

	_, err := New(Options{Env: []string{"BDCOMPAT_STORAGE=floppy"}})
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "settings", ie.Component)
}
