package js

import (
	"github.com/dop251/goja"

	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
)

// bridge converts values between Go and the goja runtime. It keeps the
// identity maps that make a host object appear as the same script object
// every time, and a method appear as the same function.
//
// All of its state belongs to the loop.
type bridge struct {
	engine *Engine
	vm     *goja.Runtime

	hosts   map[*module.Object]*goja.Object
	proxies map[*goja.Object]*module.Object

	// fns maps a method to the script function that stands for it, and
	// methods maps it back.
	fns     map[*module.Method]*goja.Object
	methods map[*goja.Object]*module.Method
}

func newBridge(e *Engine, vm *goja.Runtime) *bridge {
	return &bridge{
		engine:  e,
		vm:      vm,
		hosts:   make(map[*module.Object]*goja.Object),
		proxies: make(map[*goja.Object]*module.Object),
		fns:     make(map[*module.Method]*goja.Object),
		methods: make(map[*goja.Object]*module.Method),
	}
}

// toJS converts a Go value for the script side. Script values pass
// through unchanged and host objects become their live proxies.
func (b *bridge) toJS(v any) goja.Value {
	if patcher.IsNull(v) {
		return goja.Null()
	}
	switch x := v.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return x
	case *module.Object:
		if x == nil {
			return goja.Undefined()
		}
		return b.host(x)
	case *module.Method:
		if x == nil {
			return goja.Undefined()
		}
		return b.function(x, true)
	case []any:
		return b.vm.NewArray(b.toJSAny(x)...)
	default:
		return b.vm.ToValue(v)
	}
}

func (b *bridge) toJSAll(args []any) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = b.toJS(a)
	}
	return out
}

func (b *bridge) toJSAny(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = b.toJS(a)
	}
	return out
}

// fromJS converts a script value for the Go side. undefined becomes nil.
// Host proxies become their objects. With export set every other value is
// exported to plain Go and null becomes nil; otherwise it stays a
// goja.Value so script objects keep their identity on the way through the
// patcher.
func (b *bridge) fromJS(v goja.Value, export bool) any {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	if goja.IsNull(v) {
		if export {
			return nil
		}
		return v
	}
	if obj, ok := v.(*goja.Object); ok {
		if o, ok := b.proxies[obj]; ok {
			return o
		}
	}
	if !export {
		return v
	}
	return v.Export()
}

// result converts a value a script returns in place of a method result.
// null is kept as patcher.Null so that it overrides; only undefined means
// no result.
func (b *bridge) result(v goja.Value, export bool) any {
	if export && v != nil && goja.IsNull(v) {
		return patcher.Null
	}
	return b.fromJS(v, export)
}

func (b *bridge) fromJSAll(args []goja.Value, export bool) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = b.fromJS(a, export)
	}
	return out
}

// host returns the proxy of a host object.
func (b *bridge) host(o *module.Object) *goja.Object {
	if p, ok := b.hosts[o]; ok {
		return p
	}
	p := b.vm.NewDynamicObject(&hostObject{bridge: b, obj: o})
	b.hosts[o] = p
	b.proxies[p] = o
	return p
}

// function returns the script function standing for m. A method that
// wraps a script function is that function. With export set the method
// receives plain Go arguments.
func (b *bridge) function(m *module.Method, export bool) goja.Value {
	if native, ok := m.Native().(goja.Value); ok {
		return native
	}
	if fn, ok := b.fns[m]; ok {
		return fn
	}
	fn := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		this := b.fromJS(call.This, export)
		return b.toJS(m.Invoke(this, b.fromJSAll(call.Arguments, export)))
	}).(*goja.Object)
	b.fns[m] = fn
	b.methods[fn] = m
	return fn
}

// method returns the method standing for a script function. Functions made
// by function map back to their method; any other function gets a native
// method wrapping it, the same one each time. Results of host-facing
// methods are exported.
func (b *bridge) method(fn *goja.Object, export bool) *module.Method {
	if m, ok := b.methods[fn]; ok {
		return m
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	m := module.NativeMethod(goja.Value(fn), func(this any, args []any) any {
		v, err := call(b.toJS(this), b.toJSAll(args)...)
		if err != nil {
			panic(err)
		}
		return b.result(v, export)
	})
	b.fns[m] = fn
	b.methods[fn] = m
	return m
}

// target resolves a script value to something the patcher can intercept.
func (b *bridge) target(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if o, ok := b.proxies[obj]; ok {
		return o
	}
	if obj.ClassName() == "Array" {
		var props []string
		if err := b.vm.ExportTo(obj, &props); err == nil {
			return props
		}
	}
	return &scriptTarget{bridge: b, obj: obj}
}

// hostObject exposes a *module.Object to scripts.
type hostObject struct {
	bridge *bridge
	obj    *module.Object
}

func (h *hostObject) Get(key string) goja.Value {
	if m := h.obj.Method(key); m != nil {
		return h.bridge.function(m, true)
	}
	if key == "prototype" {
		if proto := h.obj.Prototype(); proto != nil {
			return h.bridge.host(proto)
		}
	}
	if v, ok := h.obj.Get(key); ok {
		return h.bridge.toJS(v)
	}
	return nil
}

func (h *hostObject) Set(key string, val goja.Value) bool {
	if fn, ok := val.(*goja.Object); ok {
		if _, callable := goja.AssertFunction(fn); callable {
			h.obj.SetMethod(key, h.bridge.method(fn, true))
			return true
		}
	}
	h.obj.SetMethod(key, nil)
	h.obj.Set(key, h.bridge.fromJS(val, true))
	return true
}

func (h *hostObject) Has(key string) bool {
	return h.obj.Has(key)
}

func (h *hostObject) Delete(key string) bool {
	h.obj.Delete(key)
	return true
}

func (h *hostObject) Keys() []string {
	return h.obj.Keys()
}

// scriptTarget lets the patcher intercept methods of a plain script object.
type scriptTarget struct {
	bridge *bridge
	obj    *goja.Object
}

var (
	_ patcher.Target     = (*scriptTarget)(nil)
	_ patcher.Identifier = (*scriptTarget)(nil)
)

// Identity implements patcher.Identifier.
func (t *scriptTarget) Identity() any { return t.obj }

// Name returns the constructor name, used in patch ids.
func (t *scriptTarget) Name() string {
	if ctor, ok := t.obj.Get("constructor").(*goja.Object); ok {
		if name := ctor.Get("name"); name != nil && !goja.IsUndefined(name) {
			return name.String()
		}
	}
	return "Object"
}

// Occupied reports whether the property holds a truthy value. Falsy slots
// are force patched like missing ones.
func (t *scriptTarget) Occupied(key string) bool {
	v := t.obj.Get(key)
	return v != nil && v.ToBoolean()
}

// Method implements patcher.Target.
func (t *scriptTarget) Method(name string) *module.Method {
	fn, ok := t.obj.Get(name).(*goja.Object)
	if !ok {
		return nil
	}
	return t.bridge.method(fn, false)
}

// SetMethod implements patcher.Target.
func (t *scriptTarget) SetMethod(name string, m *module.Method) {
	if m == nil {
		_ = t.obj.Delete(name)
		return
	}
	_ = t.obj.Set(name, t.bridge.function(m, false))
}
