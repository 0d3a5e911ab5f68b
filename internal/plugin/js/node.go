package js

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/require"
	"github.com/samber/lo"

	"github.com/dshills/bdcompat/internal/plugin"
)

// FakeHome is what plugins see as process.env.HOME.
const FakeHome = "/home/fake"

// FileSystem is the storage behind require("fs"). *vfs.FS implements it.
type FileSystem interface {
	plugin.Files
	Exists(name string) bool
	IsDir(name string) bool
	Mkdir(name string) error
	MkdirRecursive(name string) error
	Remove(name string) error
	RemoveRecursive(name string) error
}

// registerNodeModules installs the node modules plugins expect to require.
// They shadow the goja_nodejs core modules of the same name.
func (e *Engine) registerNodeModules(r *require.Registry) {
	r.RegisterNativeModule("fs", e.requireFS)
	r.RegisterNativeModule("path", requirePath)
	r.RegisterNativeModule("events", requireEvents)
	r.RegisterNativeModule("process", e.requireProcess)
	r.RegisterNativeModule("https", e.requireHTTPS)
	r.RegisterNativeModule("request", e.requireRequest)
}

func exportModule(vm *goja.Runtime, module *goja.Object, build func(exports *goja.Object)) {
	exports := vm.NewObject()
	build(exports)
	_ = module.Set("exports", exports)
}

// absPath resolves a script path against the root, which is the cwd.
func absPath(p string) string {
	return path.Clean("/" + p)
}

func (e *Engine) fsys(vm *goja.Runtime) FileSystem {
	if e.storage == nil {
		panic(vm.NewGoError(ErrNoFileSystem))
	}
	return e.storage
}

// fsError is a Go error dressed as a node system error.
func fsError(vm *goja.Runtime, syscall, name string, err error) *goja.Object {
	ex := vm.NewGoError(fmt.Errorf("%s '%s': %w", syscall, name, err))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		_ = ex.Set("code", "ENOENT")
	case errors.Is(err, fs.ErrExist):
		_ = ex.Set("code", "EEXIST")
	case errors.Is(err, fs.ErrInvalid):
		_ = ex.Set("code", "EINVAL")
	}
	_ = ex.Set("syscall", syscall)
	_ = ex.Set("path", name)
	return ex
}

// option reads a named option that may also be passed bare, as in
// readFileSync(p, "utf8") versus readFileSync(p, { encoding: "utf8" }).
func option(v goja.Value, name string) goja.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return goja.Undefined()
	}
	if obj, ok := v.(*goja.Object); ok {
		if got := obj.Get(name); got != nil {
			return got
		}
		return goja.Undefined()
	}
	return v
}

func encoding(v goja.Value) goja.Value {
	enc := option(v, "encoding")
	if goja.IsNull(enc) || enc.String() == "" {
		return goja.Undefined()
	}
	return enc
}

func (e *Engine) requireFS(vm *goja.Runtime, module *goja.Object) {
	exportModule(vm, module, func(o *goja.Object) {
		_ = o.Set("readFileSync", func(call goja.FunctionCall) goja.Value {
			name := absPath(str(call.Argument(0)))
			data, err := e.fsys(vm).ReadFile(name)
			if err != nil {
				panic(fsError(vm, "open", name, err))
			}
			return buffer.EncodeBytes(vm, data, encoding(call.Argument(1)))
		})
		_ = o.Set("writeFileSync", func(call goja.FunctionCall) {
			name := absPath(str(call.Argument(0)))
			data := buffer.DecodeBytes(vm, call.Argument(1), encoding(call.Argument(2)))
			if err := e.fsys(vm).WriteFile(name, data); err != nil {
				panic(fsError(vm, "open", name, err))
			}
		})
		_ = o.Set("mkdirSync", func(call goja.FunctionCall) {
			name := absPath(str(call.Argument(0)))
			mkdir := e.fsys(vm).Mkdir
			if option(call.Argument(1), "recursive").ToBoolean() {
				mkdir = e.fsys(vm).MkdirRecursive
			}
			if err := mkdir(name); err != nil {
				panic(fsError(vm, "mkdir", name, err))
			}
		})
		_ = o.Set("existsSync", func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(e.fsys(vm).Exists(absPath(str(call.Argument(0)))))
		})
		_ = o.Set("readdirSync", func(call goja.FunctionCall) goja.Value {
			name := absPath(str(call.Argument(0)))
			entries, err := e.fsys(vm).ReadDir(name)
			if err != nil {
				panic(fsError(vm, "scandir", name, err))
			}
			names := make([]any, len(entries))
			for i, entry := range entries {
				names[i] = entry.Name()
			}
			return vm.NewArray(names...)
		})
		_ = o.Set("unlinkSync", func(call goja.FunctionCall) {
			name := absPath(str(call.Argument(0)))
			if e.fsys(vm).IsDir(name) {
				panic(fsError(vm, "unlink", name, fs.ErrInvalid))
			}
			if err := e.fsys(vm).Remove(name); err != nil {
				panic(fsError(vm, "unlink", name, err))
			}
		})
		_ = o.Set("rmdirSync", func(call goja.FunctionCall) {
			name := absPath(str(call.Argument(0)))
			remove := e.fsys(vm).Remove
			if option(call.Argument(1), "recursive").ToBoolean() {
				remove = e.fsys(vm).RemoveRecursive
			}
			if err := remove(name); err != nil {
				panic(fsError(vm, "rmdir", name, err))
			}
		})
		_ = o.Set("statSync", func(call goja.FunctionCall) goja.Value {
			name := absPath(str(call.Argument(0)))
			if !e.fsys(vm).Exists(name) {
				panic(fsError(vm, "stat", name, fs.ErrNotExist))
			}
			dir := e.fsys(vm).IsDir(name)
			stat := vm.NewObject()
			_ = stat.Set("isDirectory", func() bool { return dir })
			_ = stat.Set("isFile", func() bool { return !dir })
			return stat
		})
	})
}

func requirePath(vm *goja.Runtime, module *goja.Object) {
	exportModule(vm, module, func(o *goja.Object) {
		_ = o.Set("sep", "/")
		_ = o.Set("delimiter", ":")
		_ = o.Set("join", func(call goja.FunctionCall) goja.Value {
			joined := path.Join(strs(call.Arguments)...)
			if joined == "" {
				joined = "."
			}
			return vm.ToValue(joined)
		})
		_ = o.Set("resolve", func(call goja.FunctionCall) goja.Value {
			resolved := "/"
			for _, p := range strs(call.Arguments) {
				if path.IsAbs(p) {
					resolved = p
				} else {
					resolved = path.Join(resolved, p)
				}
			}
			return vm.ToValue(path.Clean(resolved))
		})
		_ = o.Set("normalize", func(p string) string {
			if p == "" {
				return "."
			}
			return path.Clean(p)
		})
		_ = o.Set("isAbsolute", path.IsAbs)
		_ = o.Set("dirname", path.Dir)
		_ = o.Set("basename", func(call goja.FunctionCall) goja.Value {
			base := path.Base(str(call.Argument(0)))
			if ext := str(call.Argument(1)); ext != "" && ext != base {
				base = strings.TrimSuffix(base, ext)
			}
			return vm.ToValue(base)
		})
		_ = o.Set("extname", func(p string) string {
			base := path.Base(p)
			// Dot files have no extension.
			if strings.LastIndexByte(base, '.') <= 0 {
				return ""
			}
			return path.Ext(base)
		})
		_ = o.Set("posix", o)
	})
}

// listener is one subscription of an emitter.
type listener struct {
	fn   goja.Value
	call goja.Callable
	once bool
}

// emitter backs an EventEmitter instance.
type emitter struct {
	this      *goja.Object
	listeners map[string][]listener
}

// bindEmitter makes obj an event emitter.
func bindEmitter(vm *goja.Runtime, obj *goja.Object) *emitter {
	em := &emitter{this: obj, listeners: make(map[string][]listener)}
	add := func(once bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				panic(vm.NewTypeError("listener must be a function"))
			}
			event := str(call.Argument(0))
			em.listeners[event] = append(em.listeners[event], listener{fn: call.Argument(1), call: fn, once: once})
			return obj
		}
	}
	off := func(call goja.FunctionCall) goja.Value {
		em.off(str(call.Argument(0)), call.Argument(1))
		return obj
	}
	_ = obj.Set("on", add(false))
	_ = obj.Set("addListener", add(false))
	_ = obj.Set("once", add(true))
	_ = obj.Set("off", off)
	_ = obj.Set("removeListener", off)
	_ = obj.Set("removeAllListeners", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) {
			clear(em.listeners)
		} else {
			delete(em.listeners, str(call.Argument(0)))
		}
		return obj
	})
	_ = obj.Set("listenerCount", func(event string) int { return len(em.listeners[event]) })
	_ = obj.Set("emit", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(em.emit(str(call.Argument(0)), call.Arguments[min(1, len(call.Arguments)):]...))
	})
	return em
}

func (em *emitter) off(event string, fn goja.Value) {
	em.listeners[event] = lo.Reject(em.listeners[event], func(l listener, _ int) bool {
		return l.fn.SameAs(fn)
	})
	if len(em.listeners[event]) == 0 {
		delete(em.listeners, event)
	}
}

// emit calls the listeners of event in order and reports whether there
// were any. A throwing listener stops the emit.
func (em *emitter) emit(event string, args ...goja.Value) bool {
	ls := em.listeners[event]
	if len(ls) == 0 {
		return false
	}
	kept := lo.Reject(ls, func(l listener, _ int) bool { return l.once })
	if len(kept) == 0 {
		delete(em.listeners, event)
	} else {
		em.listeners[event] = kept
	}
	for _, l := range ls {
		if _, err := l.call(em.this, args...); err != nil {
			panic(err)
		}
	}
	return true
}

func (em *emitter) has(event string) bool {
	return len(em.listeners[event]) > 0
}

func requireEvents(vm *goja.Runtime, module *goja.Object) {
	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		bindEmitter(vm, call.This)
		return call.This
	})
	_ = module.Set("exports", ctor)
	_ = ctor.(*goja.Object).Set("EventEmitter", ctor)
}

// newEmitter creates a plain emitter object.
func newEmitter(vm *goja.Runtime) *emitter {
	return bindEmitter(vm, vm.NewObject())
}

func (e *Engine) requireProcess(vm *goja.Runtime, module *goja.Object) {
	exportModule(vm, module, func(o *goja.Object) {
		env := vm.NewObject()
		// HOME must exist before a plugin writes below it.
		_ = env.DefineAccessorProperty("HOME", vm.ToValue(func() string {
			if e.storage != nil {
				if err := e.storage.MkdirRecursive(FakeHome); err != nil {
					e.log.Warnw("Creating home folder failed", "error", err)
				}
			}
			return FakeHome
		}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
		_ = o.Set("env", env)
		_ = o.Set("platform", "linux")
		_ = o.Set("cwd", func() string { return "/" })
	})
}

// fetchAsync fetches url off the loop and hands the result back on it.
func (e *Engine) fetchAsync(url string, done func(vm *goja.Runtime, body []byte, err error)) {
	if e.fetcher == nil {
		e.loop.RunOnLoop(func(vm *goja.Runtime) { done(vm, nil, ErrNoFetcher) })
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		body, err := e.fetcher.Get(ctx, url)
		e.loop.RunOnLoop(func(vm *goja.Runtime) { done(vm, body, err) })
	}()
}

// callback runs script code the loop calls back later. Nothing is waiting
// on it, so a throw is logged.
func (e *Engine) callback(fn func()) {
	err := guard(func(*goja.Runtime) error {
		fn()
		return nil
	}, e.vm)
	if err != nil {
		e.log.Errorw("Plugin callback failed", "error", err)
	}
}

func responseInfo(vm *goja.Runtime) *goja.Object {
	res := vm.NewObject()
	_ = res.Set("statusCode", 200)
	_ = res.Set("headers", vm.NewObject())
	return res
}

// requireHTTPS offers https.get when the request polyfills are enabled.
// The callback gets the response emitter at once; it emits data and end
// when the fetch completes. The returned request emits response, and
// error only when someone listens for it.
func (e *Engine) requireHTTPS(vm *goja.Runtime, module *goja.Object) {
	exportModule(vm, module, func(o *goja.Object) {
		if !e.polyfills {
			return
		}
		_ = o.Set("get", func(call goja.FunctionCall) goja.Value {
			url := str(call.Argument(0))
			cb, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				cb, _ = goja.AssertFunction(call.Argument(2))
			}
			res, req := newEmitter(vm), newEmitter(vm)

			e.fetchAsync(url, func(vm *goja.Runtime, body []byte, err error) {
				e.callback(func() {
					if err != nil {
						if req.has("error") {
							req.emit("error", vm.NewGoError(err))
						}
						return
					}
					req.emit("response", res.this)
					res.emit("data", buffer.WrapBytes(vm, body))
					res.emit("end", responseInfo(vm))
				})
			})
			if cb != nil {
				if _, err := cb(goja.Undefined(), res.this); err != nil {
					panic(err)
				}
			}
			_ = req.this.Set("end", func() {})
			return req.this
		})
	})
}

// requireRequest offers the request package when the request polyfills
// are enabled, and undefined otherwise. The callback is called with
// (error, response, body).
func (e *Engine) requireRequest(vm *goja.Runtime, module *goja.Object) {
	if !e.polyfills {
		_ = module.Set("exports", goja.Undefined())
		return
	}
	request := func(call goja.FunctionCall) goja.Value {
		url := str(call.Argument(0))
		cb, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			// request(url, options, callback)
			cb, _ = goja.AssertFunction(call.Argument(2))
		}
		e.fetchAsync(url, func(vm *goja.Runtime, body []byte, err error) {
			if cb == nil {
				return
			}
			e.callback(func() {
				var cbErr error
				if err != nil {
					_, cbErr = cb(goja.Undefined(), vm.NewGoError(err), goja.Undefined(), goja.Undefined())
				} else {
					_, cbErr = cb(goja.Undefined(), goja.Undefined(), responseInfo(vm), vm.ToValue(string(body)))
				}
				if cbErr != nil {
					panic(cbErr)
				}
			})
		})
		return goja.Undefined()
	}
	fn := vm.ToValue(request).(*goja.Object)
	_ = fn.Set("get", request)
	_ = module.Set("exports", fn)
}
