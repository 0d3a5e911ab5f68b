package lua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
	"github.com/dshills/bdcompat/internal/plugin/loop"
)

// DefaultExecutionTimeout bounds every call into the engine.
const DefaultExecutionTimeout = 5 * time.Second

// Engine evaluates *.plugin.lua files.
//
// One Lua state is shared by every plugin the engine loads. gopher-lua is
// not goroutine-safe, so the state lives on a loop and every entry point
// marshals onto it.
type Engine struct {
	loop   *loop.Loop
	closed atomic.Bool

	patcher  *patcher.Patcher
	modules  *module.Registry
	data     *plugin.DataStore
	notifier plugin.Notifier
	timeout  time.Duration
	log      *zap.SugaredLogger

	// Owned by the loop.
	L      *lua.LState
	bridge *bridge
}

// Option configures an Engine.
type Option func(*Engine)

// WithPatcher sets the patcher behind bd.patch_*.
func WithPatcher(p *patcher.Patcher) Option {
	return func(e *Engine) { e.patcher = p }
}

// WithModules sets the module registry behind bd.find_module_by_props.
func WithModules(r *module.Registry) Option {
	return func(e *Engine) { e.modules = r }
}

// WithDataStore sets the store behind bd.data_load and bd.data_save.
func WithDataStore(s *plugin.DataStore) Option {
	return func(e *Engine) { e.data = s }
}

// WithNotifier sets the notifier behind bd.notice.
func WithNotifier(n plugin.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithExecutionTimeout bounds each call into the engine. Zero disables the
// bound.
func WithExecutionTimeout(d time.Duration) Option {
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

// New creates an engine and starts its loop.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		timeout: DefaultExecutionTimeout,
		log:     zap.NewNop().Sugar(),
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

	e.loop = loop.New(0).Start()
	err := e.do(context.Background(), func(*lua.LState) error {
		e.L = newState(e.log.Named("plugin"))
		e.bridge = newBridge(e.L)
		e.installAPI(e.L)
		return nil
	})
	if err != nil {
		e.loop.Close()
		return nil, err
	}
	return e, nil
}

// Name implements plugin.Engine.
func (e *Engine) Name() string { return "lua" }

// Extension implements plugin.Engine.
func (e *Engine) Extension() string { return ".plugin.lua" }

// MetaSyntax implements plugin.Engine.
func (e *Engine) MetaSyntax() plugin.MetaSyntax { return plugin.LuaMeta }

// Patcher returns the patcher plugins use.
func (e *Engine) Patcher() *patcher.Patcher { return e.patcher }

// Do runs fn on the engine's loop. Host code that calls methods patched by
// Lua plugins does so inside Do.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	return e.do(ctx, func(*lua.LState) error { return fn() })
}

// UnpatchAll removes every patch of caller on the loop. It implements
// plugin.Unpatcher.
func (e *Engine) UnpatchAll(caller string) int {
	n := 0
	err := e.do(context.Background(), func(*lua.LState) error {
		n = e.patcher.UnpatchAll(caller)
		return nil
	})
	if err != nil {
		n = e.patcher.UnpatchAll(caller)
	}
	return n
}

// DoString runs code in the global scope and returns its first result.
func (e *Engine) DoString(ctx context.Context, code string) (any, error) {
	var out any
	err := e.do(ctx, func(L *lua.LState) error {
		fn, err := L.LoadString(code)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		v, err := call1(L, fn)
		if err != nil {
			return err
		}
		out = e.bridge.ToGo(v)
		return nil
	})
	return out, err
}

// do runs fn on the loop. The state watches ctx, so a script running past
// the deadline is stopped.
func (e *Engine) do(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.loop.Execute(ctx, func() error {
		if e.L != nil {
			e.L.SetContext(ctx)
			defer e.L.RemoveContext()
		}
		return fn(e.L)
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	if errors.Is(err, loop.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Close closes the state and stops the loop.
func (e *Engine) Close() error {
	if e.closed.Load() {
		return nil
	}
	_ = e.loop.Execute(context.Background(), func() error {
		if e.L != nil {
			e.L.Close()
		}
		return nil
	})
	e.closed.Store(true)
	e.loop.Close()
	return nil
}

// Evaluate implements plugin.Engine. The chunk receives the file name and
// the plugins folder as varargs. A chunk that raises an error is logged and
// exports nothing.
func (e *Engine) Evaluate(ctx context.Context, src plugin.Source) (plugin.Exports, error) {
	var value lua.LValue = lua.LNil
	err := e.do(ctx, func(L *lua.LState) error {
		fn, err := L.Load(strings.NewReader(src.Code), "@"+src.Filename)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSyntax, src.Filename, err)
		}
		folder := strings.TrimSuffix(src.Folder, "/")
		v, err := call1(L, fn, lua.LString(src.Filename), lua.LString(folder))
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			e.log.Named("plugin."+src.Filename).Error(err.Error())
			return nil
		}
		value = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exports{engine: e, value: value, filename: src.Filename}, nil
}

// exports is what a chunk returned.
type exports struct {
	engine   *Engine
	value    lua.LValue
	filename string
}

// Instantiate implements plugin.Exports. A table with a new function is a
// class, a function is a factory, a table holding the plugin's name is
// indexed by it and any other table is the instance itself.
func (x *exports) Instantiate(ctx context.Context, name string, self *plugin.Descriptor) (plugin.Instance, error) {
	var inst *instance
	err := x.engine.do(ctx, func(L *lua.LState) error {
		exp := x.value
		if t, ok := exp.(*lua.LTable); ok {
			if named := L.GetField(t, name); named != lua.LNil {
				exp = named
			}
		}

		var (
			result lua.LValue
			err    error
		)
		switch v := exp.(type) {
		case *lua.LFunction:
			result, err = call1(L, v, x.engine.metaTable(L, self))
		case *lua.LTable:
			meta := x.engine.metaTable(L, self)
			if ctor, ok := L.GetField(v, "new").(*lua.LFunction); ok {
				result, err = call1(L, ctor, meta)
			} else {
				L.SetField(v, "meta", meta)
				result = v
			}
		case *lua.LNilType:
			return fmt.Errorf("%w: %s in %s", ErrNoExport, name, x.filename)
		default:
			return fmt.Errorf("%w: export of %s", ErrNotCallable, x.filename)
		}
		if err != nil {
			return err
		}
		t, ok := result.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotTable, x.filename)
		}
		inst = &instance{engine: x.engine, table: t}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// metaTable is the in-progress descriptor as handed to the plugin.
func (e *Engine) metaTable(L *lua.LState, d *plugin.Descriptor) *lua.LTable {
	t := L.NewTable()
	for k, v := range d.Fields() {
		t.RawSetString(k, lua.LString(v))
	}
	t.RawSetString("id", lua.LString(d.ID()))
	t.RawSetString("name", lua.LString(d.Name()))
	t.RawSetString("version", lua.LString(d.Version()))
	t.RawSetString("description", lua.LString(d.Description()))
	t.RawSetString("filename", lua.LString(d.Filename()))
	if authors := d.Authors(); len(authors) > 0 {
		t.RawSetString("author", lua.LString(authors[0].Name))
	}
	return t
}

// instance is a plugin table living in the engine.
type instance struct {
	engine *Engine
	table  *lua.LTable
}

// Has implements plugin.Instance. Methods reached through a metatable
// count.
func (i *instance) Has(method string) bool {
	has := false
	_ = i.engine.do(context.Background(), func(L *lua.LState) error {
		_, has = L.GetField(i.table, method).(*lua.LFunction)
		return nil
	})
	return has
}

// Call implements plugin.Instance. The method is called with the instance
// as self.
func (i *instance) Call(ctx context.Context, method string, args ...any) (any, error) {
	var out any
	err := i.engine.do(ctx, func(L *lua.LState) error {
		fn, ok := L.GetField(i.table, method).(*lua.LFunction)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotCallable, method)
		}
		b := i.engine.bridge
		v, err := call1(L, fn, append([]lua.LValue{i.table}, b.toLuaAll(args)...)...)
		if err != nil {
			return err
		}
		out = b.ToGo(v)
		return nil
	})
	return out, err
}
