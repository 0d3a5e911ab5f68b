// Package app assembles the compatibility layer: settings, the virtual
// filesystem, the script engines, the patcher and the plugin runtime.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/config"
	"github.com/dshills/bdcompat/internal/fetch"
	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
	"github.com/dshills/bdcompat/internal/plugin/js"
	"github.com/dshills/bdcompat/internal/plugin/lua"
	"github.com/dshills/bdcompat/internal/vfs"
)

// Options configures a Layer.
type Options struct {
	// ConfigPath is the settings file. Empty keeps settings in memory.
	ConfigPath string

	// Storage and StoragePath override the settings' filesystem backend
	// for this run without persisting the override.
	Storage     string
	StoragePath string

	// Backend, when set, is used instead of opening one from the settings.
	// The layer closes it.
	Backend vfs.Backend

	// Env holds "KEY=value" pairs, as from os.Environ, whose BDCOMPAT_
	// variables override the settings for this run without persisting.
	Env []string

	// SafeMode skips plugin loading even when the settings do not ask for it.
	SafeMode bool

	// Watch reloads the settings file when it changes on disk.
	Watch bool

	// Modules is the host module registry. A new one is created when nil.
	Modules *module.Registry

	// Registry is the host plugin registry. An in-memory one is used when nil.
	Registry plugin.Registry

	// HTTPClient is used for remote plugins and BdApi.Net.fetch.
	HTTPClient *http.Client

	// EvalTimeout bounds each call into a script engine. Zero keeps the
	// engine defaults.
	EvalTimeout time.Duration

	Logger *zap.SugaredLogger
}

// Layer is the running compatibility layer.
type Layer struct {
	mu     sync.Mutex
	opts   Options
	closed bool
	log    *zap.SugaredLogger

	settings    *config.Store
	watcher     *config.Watcher
	fs          *vfs.FS
	modules     *module.Registry
	patcher     *patcher.Patcher
	notifier    *plugin.LogNotifier
	remote      *fetch.Fetcher
	scriptFetch *fetch.Fetcher
	js          *js.Engine
	lua         *lua.Engine
	runtime     *plugin.Runtime

	unsubscribe func()
}

// New creates the layer. Plugins are not loaded until Start.
func New(opts Options) (*Layer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	l := &Layer{
		opts: opts,
		log:  opts.Logger,
	}
	if err := newBootstrapper(l, opts).bootstrap(); err != nil {
		return nil, err
	}
	return l, nil
}

// Settings returns the settings store.
func (l *Layer) Settings() *config.Store { return l.settings }

// FS returns the virtual filesystem.
func (l *Layer) FS() *vfs.FS { return l.fs }

// Runtime returns the plugin runtime.
func (l *Layer) Runtime() *plugin.Runtime { return l.runtime }

// Patcher returns the patcher shared by both engines.
func (l *Layer) Patcher() *patcher.Patcher { return l.patcher }

// Modules returns the host module registry.
func (l *Layer) Modules() *module.Registry { return l.modules }

// Notifier returns the notifier shared by the runtime and the engines.
func (l *Layer) Notifier() *plugin.LogNotifier { return l.notifier }

// Remote returns the fetcher used for remote plugin URLs.
func (l *Layer) Remote() *fetch.Fetcher { return l.remote }

// JS returns the JavaScript engine.
func (l *Layer) JS() *js.Engine { return l.js }

// Lua returns the Lua engine.
func (l *Layer) Lua() *lua.Engine { return l.lua }

// Effective returns the settings with the environment overrides applied.
func (l *Layer) Effective() config.Settings {
	s, err := config.ApplyEnv(l.settings.Settings(), l.opts.Env)
	if err != nil {
		// A later edit of the file can clash with the overrides.
		l.log.Warnw("Ignoring environment overrides", "error", err)
		return l.settings.Settings()
	}
	return s
}

// SafeMode reports whether plugin loading is skipped.
func (l *Layer) SafeMode() bool {
	return l.opts.SafeMode || l.Effective().SafeMode
}

// Start prepares the plugins folder, installs the configured remote
// plugins and loads every plugin. In safe mode only the folder is
// prepared and ErrSafeMode is returned. Failures of single plugins are
// logged and joined; the others still load.
func (l *Layer) Start(ctx context.Context) error {
	if err := l.check(); err != nil {
		return err
	}
	folder := l.runtime.Folder()
	if err := l.fs.MkdirRecursive(folder); err != nil {
		return &ComponentError{Component: "vfs", Op: "mkdir " + folder, Err: err}
	}
	if l.SafeMode() {
		l.log.Warnw("Safe mode enabled, plugins are not loaded")
		return ErrSafeMode
	}

	var errs []error
	if urls := l.Effective().PluginURLs; len(urls) > 0 {
		if _, err := l.remote.Install(ctx, l.fs, folder, urls); err != nil {
			errs = append(errs, &ComponentError{Component: "fetch", Op: "install", Err: err})
		}
	}
	if err := l.runtime.LoadAll(ctx); err != nil {
		errs = append(errs, &ComponentError{Component: "plugins", Op: "load", Err: err})
	}
	l.log.Infow("Plugins loaded", "count", l.runtime.Count(), "failed", len(errs) > 0)
	return errors.Join(errs...)
}

// Reload removes every plugin and loads the folder again.
func (l *Layer) Reload(ctx context.Context) error {
	if err := l.check(); err != nil {
		return err
	}
	if l.SafeMode() {
		return ErrSafeMode
	}
	return l.runtime.Reload(ctx)
}

// Close removes every plugin and releases the engines, the settings
// watcher and the filesystem.
func (l *Layer) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	if err := l.runtime.RemoveAll(ctx); err != nil {
		errs = append(errs, &ComponentError{Component: "plugins", Op: "remove", Err: err})
	}
	if l.watcher != nil {
		if err := l.watcher.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "config", Op: "watch", Err: err})
		}
	}
	if err := l.js.Close(); err != nil {
		errs = append(errs, &ComponentError{Component: "js", Err: err})
	}
	if err := l.lua.Close(); err != nil {
		errs = append(errs, &ComponentError{Component: "lua", Err: err})
	}
	if err := l.fs.Close(); err != nil {
		errs = append(errs, &ComponentError{Component: "vfs", Err: err})
	}
	return errors.Join(errs...)
}

func (l *Layer) check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// applyStatus enables or disables loaded plugins whose status was edited
// in the settings file.
func (l *Layer) applyStatus(change config.Change) {
	if change.Source != "reload" || l.check() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for name, enabled := range change.New.PluginsStatus {
		if old, ok := change.Old.PluginsStatus[name]; ok && old == enabled {
			continue
		}
		if _, ok := l.runtime.Get(name); !ok {
			continue
		}
		if enabled == l.runtime.IsEnabled(name) {
			continue
		}
		var err error
		if enabled {
			err = l.runtime.Enable(ctx, name)
		} else {
			err = l.runtime.Disable(ctx, name)
		}
		if err != nil {
			l.log.Warnw("Could not apply plugin status", "plugin", name, "enabled", enabled, "error", err)
		}
	}
}
