package js

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
)

// DefaultEvalTimeout bounds every call into the engine.
const DefaultEvalTimeout = 10 * time.Second

// Fetcher retrieves the bytes behind a URL. It backs BdApi.Net.fetch.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Plugins is the view of the plugin runtime offered to scripts.
// *plugin.Runtime implements it.
type Plugins interface {
	Folder() string
	Get(name string) (*plugin.Descriptor, bool)
	List() []*plugin.Descriptor
	IsEnabled(name string) bool
}

// Engine evaluates *.plugin.js files with goja.
//
// One goja runtime is shared by every plugin the engine loads, the way all
// plugins share one page in the browser. The runtime lives on a goja_nodejs
// event loop; every entry point marshals onto it. Host methods patched by
// script callbacks must be called inside Do.
type Engine struct {
	loop    *eventloop.EventLoop
	vm      *goja.Runtime
	stopped chan struct{}
	closed  atomic.Bool

	patcher   *patcher.Patcher
	modules   *module.Registry
	data      *plugin.DataStore
	notifier  plugin.Notifier
	fetcher   Fetcher
	clipboard Clipboard
	files     plugin.Files
	folder    string
	storage   FileSystem
	polyfills bool
	timeout   time.Duration
	log       *zap.SugaredLogger

	pmu     sync.RWMutex
	plugins Plugins

	// Owned by the loop.
	bridge *bridge
	labels map[string]*goja.Object
	styles map[string]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatcher sets the patcher behind BdApi.Patcher.
func WithPatcher(p *patcher.Patcher) Option {
	return func(e *Engine) { e.patcher = p }
}

// WithModules sets the module registry behind BdApi.Webpack.
func WithModules(r *module.Registry) Option {
	return func(e *Engine) { e.modules = r }
}

// WithDataStore sets the store behind BdApi.Data.
func WithDataStore(s *plugin.DataStore) Option {
	return func(e *Engine) { e.data = s }
}

// WithNotifier sets the notifier behind BdApi.UI.
func WithNotifier(n plugin.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithFetcher sets the fetcher behind BdApi.Net.fetch.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithClipboard sets the clipboard behind DiscordNative.clipboard.
func WithClipboard(c Clipboard) Option {
	return func(e *Engine) { e.clipboard = c }
}

// WithFiles lets require() load relative modules from the plugins folder.
func WithFiles(files plugin.Files, folder string) Option {
	return func(e *Engine) {
		e.files = files
		e.folder = folder
	}
}

// WithFileSystem sets the storage behind require("fs").
func WithFileSystem(fsys FileSystem) Option {
	return func(e *Engine) { e.storage = fsys }
}

// WithRequestPolyfills enables https.get and the request package.
func WithRequestPolyfills(enabled bool) Option {
	return func(e *Engine) { e.polyfills = enabled }
}

// WithEvalTimeout bounds each call into the engine. Zero disables the bound.
func WithEvalTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an engine and starts its event loop.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		stopped: make(chan struct{}),
		folder:  plugin.DefaultFolder,
		timeout: DefaultEvalTimeout,
		log:     zap.NewNop().Sugar(),
		labels:  make(map[string]*goja.Object),
		styles:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.modules == nil {
		e.modules = module.NewRegistry(module.WithLogger(e.log))
	}
	if e.patcher == nil {
		e.patcher = patcher.New(patcher.WithResolver(e.modules), patcher.WithLogger(e.log))
	}
	if e.notifier == nil {
		e.notifier = plugin.NewLogNotifier(e.log)
	}
	if e.clipboard == nil {
		e.clipboard = &MemClipboard{}
	}

	registry := require.NewRegistry(require.WithLoader(e.loadSource))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{log: e.log.Named("plugin")}))
	e.registerNodeModules(registry)

	e.loop = eventloop.NewEventLoop(eventloop.WithRegistry(registry))
	e.loop.Start()

	err := e.do(context.Background(), func(vm *goja.Runtime) error {
		e.vm = vm
		e.bridge = newBridge(e, vm)
		return e.installGlobals(vm)
	})
	if err != nil {
		e.loop.Stop()
		return nil, err
	}
	return e, nil
}

// loadSource serves require() of files below the plugins folder.
func (e *Engine) loadSource(name string) ([]byte, error) {
	if e.files == nil {
		return nil, require.ModuleFileDoesNotExistError
	}
	// Relative requires inside a plugin body resolve against its source URL.
	p := strings.TrimPrefix(name, "betterDiscord:/plugins/")
	if !path.IsAbs(p) {
		p = path.Join(e.folder, p)
	}
	data, err := e.files.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, require.ModuleFileDoesNotExistError
	}
	return data, err
}

// SetPlugins connects BdApi.Plugins to the plugin runtime.
func (e *Engine) SetPlugins(p Plugins) {
	e.pmu.Lock()
	e.plugins = p
	e.pmu.Unlock()
}

func (e *Engine) pluginsView() Plugins {
	e.pmu.RLock()
	defer e.pmu.RUnlock()
	return e.plugins
}

// Name implements plugin.Engine.
func (e *Engine) Name() string { return "js" }

// Extension implements plugin.Engine.
func (e *Engine) Extension() string { return ".plugin.js" }

// MetaSyntax implements plugin.Engine.
func (e *Engine) MetaSyntax() plugin.MetaSyntax { return plugin.JSMeta }

// Patcher returns the patcher scripts use.
func (e *Engine) Patcher() *patcher.Patcher { return e.patcher }

// Do runs fn on the engine's loop. Host code that calls methods patched by
// scripts does so inside Do.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	return e.do(ctx, func(*goja.Runtime) error { return fn() })
}

// UnpatchAll removes every patch of caller on the loop, so script objects
// are restored where their owner runs. It implements plugin.Unpatcher.
func (e *Engine) UnpatchAll(caller string) int {
	n := 0
	err := e.do(context.Background(), func(*goja.Runtime) error {
		n = e.patcher.UnpatchAll(caller)
		return nil
	})
	if err != nil {
		// The loop is gone; nothing can call the patched methods anymore.
		n = e.patcher.UnpatchAll(caller)
	}
	return n
}

// RunString evaluates code in the shared global scope and exports the result.
func (e *Engine) RunString(ctx context.Context, code string) (any, error) {
	var out any
	err := e.do(ctx, func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return err
		}
		out = e.bridge.fromJS(v, true)
		return nil
	})
	return out, err
}

// do runs fn on the loop and waits for it. When ctx or the evaluation
// timeout ends first, the running script is interrupted.
func (e *Engine) do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var (
		mu   sync.Mutex
		done bool
	)
	result := make(chan error, 1)

	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		mu.Lock()
		if err := ctx.Err(); err != nil {
			done = true
			mu.Unlock()
			result <- err
			return
		}
		mu.Unlock()

		err := guard(fn, vm)

		mu.Lock()
		done = true
		vm.ClearInterrupt()
		mu.Unlock()
		result <- err
	})

	select {
	case err := <-result:
		return err
	case <-e.stopped:
		return ErrClosed
	case <-ctx.Done():
	}

	mu.Lock()
	if !done && e.vm != nil {
		e.vm.Interrupt(ctx.Err())
	}
	mu.Unlock()

	select {
	case err := <-result:
		var ie *goja.InterruptedError
		if errors.As(err, &ie) || errors.Is(err, ctx.Err()) {
			return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return err
	case <-e.stopped:
		return ErrClosed
	}
}

// guard runs fn, turning panics into errors.
func guard(fn func(*goja.Runtime) error, vm *goja.Runtime) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch v := rec.(type) {
			case *goja.Object:
				err = fmt.Errorf("uncaught: %s", v.String())
			case error:
				err = v
			default:
				err = fmt.Errorf("panic: %v", v)
			}
		}
	}()
	return fn(vm)
}

// Close stops the event loop. Pending calls fail with ErrClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.loop.Stop()
	close(e.stopped)
	return nil
}

// Evaluate implements plugin.Engine. The body runs in a function scope that
// provides module, exports, global, __filename, __dirname, DiscordNative
// and a console named after the file. A throwing body is logged.
func (e *Engine) Evaluate(ctx context.Context, src plugin.Source) (plugin.Exports, error) {
	sourceURL := "betterDiscord://plugins/" + src.Filename
	code := "(function (module, exports, global, __filename, __dirname, DiscordNative, console) {\ntry {\n" +
		src.Code +
		"\n} catch (e) { console.error(e && e.stack ? e.stack : String(e)); }\nreturn module;\n})\n//# sourceURL=" + sourceURL
	prog, err := goja.Compile(sourceURL, code, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSyntax, src.Filename, err)
	}

	folder := strings.TrimSuffix(src.Folder, "/")
	var mod *goja.Object
	err = e.do(ctx, func(vm *goja.Runtime) error {
		wrapped, err := vm.RunProgram(prog)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(wrapped)
		if !ok {
			return fmt.Errorf("%w: wrapper", ErrNotCallable)
		}

		mod = vm.NewObject()
		exports := vm.NewObject()
		if err := mod.Set("exports", exports); err != nil {
			return err
		}
		_, err = fn(goja.Undefined(),
			mod,
			exports,
			vm.GlobalObject(),
			vm.ToValue(folder+"/"+src.Filename),
			vm.ToValue(folder),
			e.discordNative(vm),
			e.consoleFor(vm, src.Filename),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &exportsValue{engine: e, module: mod, filename: src.Filename}, nil
}

// consoleFor builds a console whose output is logged under the file name.
func (e *Engine) consoleFor(vm *goja.Runtime, filename string) goja.Value {
	mod := vm.NewObject()
	_ = mod.Set("exports", vm.NewObject())
	console.RequireWithPrinter(printer{log: e.log.Named("plugin." + filename)})(vm, mod)
	return mod.Get("exports")
}

func (e *Engine) discordNative(vm *goja.Runtime) goja.Value {
	clip := vm.NewObject()
	_ = clip.Set("copy", e.clipboard.Copy)
	_ = clip.Set("read", e.clipboard.Read)
	native := vm.NewObject()
	_ = native.Set("clipboard", clip)
	return native
}

// exportsValue is the module object a plugin body produced.
type exportsValue struct {
	engine   *Engine
	module   *goja.Object
	filename string
}

// Instantiate implements plugin.Exports. An object export is indexed by
// name. A function with a prototype is constructed; anything else callable
// is called as a factory.
func (x *exportsValue) Instantiate(ctx context.Context, name string, self *plugin.Descriptor) (plugin.Instance, error) {
	var inst *instance
	err := x.engine.do(ctx, func(vm *goja.Runtime) error {
		exp := x.module.Get("exports")
		if obj, ok := exp.(*goja.Object); ok {
			if _, callable := goja.AssertFunction(obj); !callable {
				exp = obj.Get(name)
			}
		}
		if exp == nil || goja.IsUndefined(exp) || goja.IsNull(exp) {
			return fmt.Errorf("%w: %s in %s", ErrNoExport, name, x.filename)
		}
		fn, ok := goja.AssertFunction(exp)
		if !ok {
			return fmt.Errorf("%w: export of %s", ErrNotCallable, x.filename)
		}

		meta := x.engine.metaObject(vm, self)
		var (
			result goja.Value
			err    error
		)
		if proto := exp.(*goja.Object).Get("prototype"); proto != nil && !goja.IsUndefined(proto) {
			result, err = vm.New(exp, meta)
		} else {
			result, err = fn(goja.Undefined(), meta)
		}
		if err != nil {
			return err
		}
		obj, ok := result.(*goja.Object)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotObject, x.filename)
		}
		inst = &instance{engine: x.engine, obj: obj}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// metaObject is the in-progress descriptor as handed to the plugin.
func (e *Engine) metaObject(vm *goja.Runtime, d *plugin.Descriptor) *goja.Object {
	meta := vm.NewObject()
	for k, v := range d.Fields() {
		_ = meta.Set(k, v)
	}
	_ = meta.Set("id", d.ID())
	_ = meta.Set("name", d.Name())
	_ = meta.Set("version", d.Version())
	_ = meta.Set("description", d.Description())
	_ = meta.Set("filename", d.Filename())
	if authors := d.Authors(); len(authors) > 0 {
		_ = meta.Set("author", authors[0].Name)
		if authors[0].ID != 0 {
			_ = meta.Set("authorId", fmt.Sprint(authors[0].ID))
		}
	}
	return meta
}

// instance is a plugin object living in the engine.
type instance struct {
	engine *Engine
	obj    *goja.Object
}

// Object returns the script object. It may only be used on the loop.
func (i *instance) Object() *goja.Object { return i.obj }

// Has implements plugin.Instance.
func (i *instance) Has(method string) bool {
	has := false
	_ = i.engine.do(context.Background(), func(*goja.Runtime) error {
		_, has = goja.AssertFunction(i.obj.Get(method))
		return nil
	})
	return has
}

// Call implements plugin.Instance.
func (i *instance) Call(ctx context.Context, method string, args ...any) (any, error) {
	var out any
	err := i.engine.do(ctx, func(vm *goja.Runtime) error {
		fn, ok := goja.AssertFunction(i.obj.Get(method))
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotCallable, method)
		}
		v, err := fn(i.obj, i.engine.bridge.toJSAll(args)...)
		if err != nil {
			return err
		}
		out = i.engine.bridge.fromJS(v, true)
		return nil
	})
	return out, err
}
