package app

import (
	"os"
	"path/filepath"

	"github.com/dshills/bdcompat/internal/config"
	"github.com/dshills/bdcompat/internal/fetch"
	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
	"github.com/dshills/bdcompat/internal/plugin/js"
	"github.com/dshills/bdcompat/internal/plugin/lua"
	"github.com/dshills/bdcompat/internal/vfs"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	l         *Layer
	opts      Options
	initOrder []string
}

func newBootstrapper(l *Layer, opts Options) *bootstrapper {
	return &bootstrapper{
		l:         l,
		opts:      opts,
		initOrder: make([]string, 0, 8),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initSettings,
		b.initFS,
		b.initPatcher,
		b.initFetchers,
		b.initEngines,
		b.initRuntime,
		b.initWatcher,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

func (b *bootstrapper) initSettings() error {
	if b.opts.ConfigPath != "" {
		if err := os.MkdirAll(filepath.Dir(b.opts.ConfigPath), 0o755); err != nil {
			return &InitError{Component: "settings", Err: err}
		}
	}
	store, err := config.Open(b.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "settings", Err: err}
	}
	if _, err := config.ApplyEnv(store.Settings(), b.opts.Env); err != nil {
		return &InitError{Component: "settings", Err: err}
	}
	b.l.settings = store
	b.initOrder = append(b.initOrder, "settings")
	return nil
}

func (b *bootstrapper) initFS() error {
	backend := b.opts.Backend
	if backend == nil {
		s := b.l.Effective()
		kind, location := s.Storage, s.StoragePath
		if b.opts.Storage != "" {
			kind, location = b.opts.Storage, b.opts.StoragePath
		}
		// A database without a path lives next to the settings file.
		if location == "" && b.opts.ConfigPath != "" && (kind == vfs.KindBunt || kind == vfs.KindSQLite) {
			location = filepath.Join(filepath.Dir(b.opts.ConfigPath), "filesystem."+kind)
		}
		var err error
		backend, err = vfs.Open(kind, location)
		if err != nil {
			return &InitError{Component: "vfs", Err: err}
		}
		b.l.log.Debugw("Opened filesystem", "storage", kind, "path", location)
	}
	b.l.fs = vfs.New(backend, vfs.WithLogger(b.l.log.Named("vfs")))
	b.initOrder = append(b.initOrder, "fs")
	return nil
}

func (b *bootstrapper) initPatcher() error {
	b.l.modules = b.opts.Modules
	if b.l.modules == nil {
		b.l.modules = module.NewRegistry(module.WithLogger(b.l.log.Named("modules")))
	}
	b.l.patcher = patcher.New(
		patcher.WithResolver(b.l.modules),
		patcher.WithLogger(b.l.log.Named("patcher")),
	)
	b.l.notifier = plugin.NewLogNotifier(b.l.log.Named("notice"))
	return nil
}

// initFetchers creates the remote plugin fetcher, which always falls back
// to the CORS proxy, and the script fetcher, which only does so when the
// request polyfills are enabled.
func (b *bootstrapper) initFetchers() error {
	s := b.l.Effective()
	opts := []fetch.Option{fetch.WithLogger(b.l.log.Named("fetch"))}
	if b.opts.HTTPClient != nil {
		opts = append(opts, fetch.WithClient(b.opts.HTTPClient))
	}

	b.l.remote = fetch.New(append(opts, fetch.WithProxy(s.CorsProxyURL))...)
	if s.EnableExperimentalRequestPolyfills {
		b.l.scriptFetch = b.l.remote
	} else {
		b.l.scriptFetch = fetch.New(append(opts, fetch.WithProxy(""))...)
	}
	return nil
}

func (b *bootstrapper) initEngines() error {
	folder := plugin.DefaultFolder
	data := plugin.NewDataStore(b.l.fs, folder)

	jsOpts := []js.Option{
		js.WithPatcher(b.l.patcher),
		js.WithModules(b.l.modules),
		js.WithDataStore(data),
		js.WithNotifier(b.l.notifier),
		js.WithFetcher(b.l.scriptFetch),
		js.WithFiles(b.l.fs, folder),
		js.WithFileSystem(b.l.fs),
		js.WithRequestPolyfills(b.l.Effective().EnableExperimentalRequestPolyfills),
		js.WithLogger(b.l.log.Named("js")),
	}
	luaOpts := []lua.Option{
		lua.WithPatcher(b.l.patcher),
		lua.WithModules(b.l.modules),
		lua.WithDataStore(data),
		lua.WithNotifier(b.l.notifier),
		lua.WithLogger(b.l.log.Named("lua")),
	}
	if b.opts.EvalTimeout > 0 {
		jsOpts = append(jsOpts, js.WithEvalTimeout(b.opts.EvalTimeout))
		luaOpts = append(luaOpts, lua.WithExecutionTimeout(b.opts.EvalTimeout))
	}

	var err error
	if b.l.js, err = js.New(jsOpts...); err != nil {
		return &InitError{Component: "js engine", Err: err}
	}
	b.initOrder = append(b.initOrder, "js")

	if b.l.lua, err = lua.New(luaOpts...); err != nil {
		return &InitError{Component: "lua engine", Err: err}
	}
	b.initOrder = append(b.initOrder, "lua")
	return nil
}

func (b *bootstrapper) initRuntime() error {
	b.l.runtime = plugin.NewRuntime(plugin.Config{
		Folder:   plugin.DefaultFolder,
		Files:    b.l.fs,
		Registry: b.opts.Registry,
		Status:   b.l.settings,
		Notifier: b.l.notifier,
		Patcher:  unpatchers{b.l.js, b.l.lua},
		Logger:   b.l.log.Named("plugins"),
	}, b.l.js, b.l.lua)
	b.l.js.SetPlugins(b.l.runtime)
	b.l.unsubscribe = b.l.settings.Subscribe(b.l.applyStatus)
	b.initOrder = append(b.initOrder, "runtime")
	return nil
}

func (b *bootstrapper) initWatcher() error {
	if !b.opts.Watch || b.opts.ConfigPath == "" {
		return nil
	}
	w, err := config.Watch(b.l.settings, config.WithWatcherLogger(b.l.log.Named("config")))
	if err != nil {
		return &InitError{Component: "settings watcher", Err: err}
	}
	b.l.watcher = w
	b.initOrder = append(b.initOrder, "watcher")
	return nil
}

// cleanup releases initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "watcher":
		_ = b.l.watcher.Close()
		b.l.watcher = nil
	case "runtime":
		if b.l.unsubscribe != nil {
			b.l.unsubscribe()
		}
		b.l.runtime = nil
	case "lua":
		_ = b.l.lua.Close()
		b.l.lua = nil
	case "js":
		_ = b.l.js.Close()
		b.l.js = nil
	case "fs":
		_ = b.l.fs.Close()
		b.l.fs = nil
	case "settings":
		b.l.settings = nil
	}
}
