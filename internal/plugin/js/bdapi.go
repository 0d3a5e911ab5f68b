package js

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/samber/lo"

	"github.com/dshills/bdcompat/internal/module"
	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
)

// fetchTimeout bounds a single BdApi.Net.fetch.
const fetchTimeout = 30 * time.Second

// installGlobals defines BdApi. The global is a constructor: new BdApi(label)
// returns an API bound to label, and the unbound API hangs off the
// constructor itself.
func (e *Engine) installGlobals(vm *goja.Runtime) error {
	api := e.api(vm, "")
	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		return e.api(vm, str(call.Argument(0)))
	}).(*goja.Object)
	for _, key := range api.Keys() {
		if err := ctor.Set(key, api.Get(key)); err != nil {
			return err
		}
	}
	return vm.Set("BdApi", ctor)
}

// api returns the BdApi object for label, building it on first use.
func (e *Engine) api(vm *goja.Runtime, label string) *goja.Object {
	if obj, ok := e.labels[label]; ok {
		return obj
	}

	obj := vm.NewObject()
	data := e.dataAPI(vm, label)
	unbound := data
	if label != "" {
		unbound = e.dataAPI(vm, "")
	}
	ui := e.uiAPI(vm)
	dom := e.domAPI(vm, label)

	props := map[string]any{
		"Patcher": e.patcherAPI(vm, label),
		"Webpack": e.webpackAPI(vm),
		"Plugins": e.pluginsAPI(vm),
		"Data":    data,
		"UI":      ui,
		"DOM":     dom,
		"Net":     e.netAPI(vm),
		"Utils":   e.utilsAPI(vm),

		"monkeyPatch":    func(call goja.FunctionCall) goja.Value { return e.monkeyPatch(vm, call) },
		"suppressErrors": func(call goja.FunctionCall) goja.Value { return e.suppressErrors(vm, call) },

		"loadData": unbound.Get("load"),
		"getData":  unbound.Get("load"),
		"saveData": unbound.Get("save"),
		"setData":  unbound.Get("save"),

		"showToast":             ui.Get("showToast"),
		"showNotice":            ui.Get("showNotice"),
		"showConfirmationModal": ui.Get("showConfirmationModal"),
		"alert":                 ui.Get("alert"),
		"injectCSS":             dom.Get("addStyle"),
		"clearCSS":              dom.Get("removeStyle"),

		"findModule": func(call goja.FunctionCall) goja.Value {
			return e.getModule(vm, call.Argument(0), module.DefaultOptions())
		},
		"findAllModules": func(call goja.FunctionCall) goja.Value {
			opts := module.DefaultOptions()
			opts.First = false
			return e.getModule(vm, call.Argument(0), opts)
		},
		"findModuleByProps": func(call goja.FunctionCall) goja.Value {
			return e.bridge.toJS(e.modules.GetByProps(strs(call.Arguments)...))
		},
	}
	for k, v := range props {
		_ = obj.Set(k, v)
	}
	if label != "" {
		_ = obj.Set("label", label)
	}
	e.labels[label] = obj
	return obj
}

// patcherAPI builds BdApi.Patcher. Unbound, every function takes the caller
// id first; bound, the label is the caller.
func (e *Engine) patcherAPI(vm *goja.Runtime, label string) *goja.Object {
	obj := vm.NewObject()
	callerOf := func(args []goja.Value) (string, []goja.Value) {
		if label != "" {
			return label, args
		}
		if len(args) == 0 {
			return "", nil
		}
		return str(args[0]), args[1:]
	}

	for _, phase := range []patcher.Phase{patcher.Before, patcher.Instead, patcher.After} {
		phase := phase
		_ = obj.Set(phase.String(), func(call goja.FunctionCall) goja.Value {
			caller, args := callerOf(call.Arguments)
			return e.patch(vm, phase, caller, args)
		})
	}
	_ = obj.Set("getPatchesByCaller", func(call goja.FunctionCall) goja.Value {
		caller, _ := callerOf(call.Arguments)
		subs := e.patcher.GetPatchesByCaller(caller)
		return vm.NewArray(lo.Map(subs, func(s *patcher.Subscription, _ int) any {
			p := vm.NewObject()
			_ = p.Set("caller", s.Caller())
			_ = p.Set("type", s.Phase().String())
			_ = p.Set("id", s.ID())
			_ = p.Set("patchId", s.Patch().ID())
			_ = p.Set("unpatch", func() { s.Unpatch() })
			return p
		})...)
	})
	_ = obj.Set("unpatchAll", func(call goja.FunctionCall) goja.Value {
		caller, _ := callerOf(call.Arguments)
		return vm.ToValue(e.patcher.UnpatchAll(caller))
	})
	return obj
}

// patch subscribes a script callback. args are target, method, callback
// and options. The result is always an unpatch function; failures are
// logged and yield one that does nothing.
func (e *Engine) patch(vm *goja.Runtime, phase patcher.Phase, caller string, args []goja.Value) goja.Value {
	arg := func(i int) goja.Value {
		if i < len(args) {
			return args[i]
		}
		return goja.Undefined()
	}
	b := e.bridge
	target := b.target(arg(0))
	method := str(arg(1))
	cb, ok := goja.AssertFunction(arg(2))
	if !ok {
		panic(vm.NewTypeError("callback for %s must be a function", method))
	}
	// Script objects keep script values; host objects get plain Go ones.
	_, script := target.(*scriptTarget)
	export := !script

	var opts []patcher.PatchOption
	if o, ok := arg(3).(*goja.Object); ok {
		if name := str(o.Get("displayName")); name != "" {
			opts = append(opts, patcher.WithDisplayName(name))
		}
		if force := o.Get("forcePatch"); force != nil && !goja.IsUndefined(force) && !force.ToBoolean() {
			opts = append(opts, patcher.WithoutForce())
		}
	}

	var (
		unpatch patcher.Unpatch
		err     error
	)
	switch phase {
	case patcher.Before:
		unpatch, err = e.patcher.Before(caller, target, method, func(this any, params []any) error {
			list, sync := e.argList(vm, params, export)
			_, err := cb(goja.Undefined(), b.toJS(this), list)
			sync()
			return err
		}, opts...)
	case patcher.Instead:
		unpatch, err = e.patcher.Instead(caller, target, method, func(this any, params []any, original patcher.Original) (any, error) {
			list, sync := e.argList(vm, params, export)
			orig := vm.ToValue(func(call goja.FunctionCall) goja.Value {
				return b.toJS(original(b.fromJSAll(call.Arguments, export)...))
			})
			v, err := cb(goja.Undefined(), b.toJS(this), list, orig)
			sync()
			if err != nil {
				return nil, err
			}
			return b.result(v, export), nil
		}, opts...)
	case patcher.After:
		unpatch, err = e.patcher.After(caller, target, method, func(this any, params []any, ret any) (any, error) {
			list, sync := e.argList(vm, params, export)
			v, err := cb(goja.Undefined(), b.toJS(this), list, b.toJS(ret))
			sync()
			if err != nil {
				return nil, err
			}
			return b.result(v, export), nil
		}, opts...)
	}
	if err != nil {
		e.log.Named(caller).Warnw("Could not patch", "method", method, "type", phase.String(), "error", err)
	}
	return vm.ToValue(func() { unpatch() })
}

// argList hands params to a script as an array. sync copies elements the
// script replaced back into params.
func (e *Engine) argList(vm *goja.Runtime, params []any, export bool) (*goja.Object, func()) {
	vals := e.bridge.toJSAll(params)
	list := vm.NewArray(lo.ToAnySlice(vals)...)
	return list, func() {
		for i := range params {
			v := list.Get(strconv.Itoa(i))
			if v == nil || v.SameAs(vals[i]) {
				continue
			}
			params[i] = e.bridge.fromJS(v, export)
		}
	}
}

// monkeyPatch is BdApi.monkeyPatch(what, methodName, options).
func (e *Engine) monkeyPatch(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	b := e.bridge
	target := b.target(call.Argument(0))
	method := str(call.Argument(1))
	o, ok := call.Argument(2).(*goja.Object)
	if !ok {
		panic(vm.NewTypeError("monkeyPatch options must be an object"))
	}
	_, script := target.(*scriptTarget)
	export := !script

	wrap := func(key string) patcher.MonkeyFunc {
		fn, ok := goja.AssertFunction(o.Get(key))
		if !ok {
			return nil
		}
		return func(d *patcher.CallData) any {
			data, sync := e.callData(vm, d, export)
			v, err := fn(goja.Undefined(), data)
			sync()
			if err != nil {
				panic(err)
			}
			return b.result(v, export)
		}
	}
	unpatch, err := e.patcher.MonkeyPatch(target, method, patcher.MonkeyOptions{
		Before:      wrap("before"),
		After:       wrap("after"),
		Instead:     wrap("instead"),
		Once:        truthy(o.Get("once")),
		CallerID:    str(o.Get("callerId")),
		DisplayName: str(o.Get("displayName")),
	})
	if err != nil {
		e.log.Named(patcher.DefaultCallerID).Warnw("Could not monkey patch", "method", method, "error", err)
	}
	return vm.ToValue(func() { unpatch() })
}

// callData exposes d to a monkeyPatch callback. sync copies replaced
// arguments back.
func (e *Engine) callData(vm *goja.Runtime, d *patcher.CallData, export bool) (*goja.Object, func()) {
	b := e.bridge
	obj := vm.NewObject()
	args, sync := e.argList(vm, d.MethodArguments, export)

	_ = obj.Set("thisObject", b.toJS(d.ThisObject))
	_ = obj.Set("methodArguments", args)
	if d.OriginalMethod != nil {
		_ = obj.Set("originalMethod", b.function(d.OriginalMethod, export))
	}
	_ = obj.Set("callOriginalMethod", func(goja.FunctionCall) goja.Value {
		sync()
		return b.toJS(d.CallOriginalMethod())
	})
	_ = obj.Set("cancelPatch", func() { d.CancelPatch() })
	_ = obj.DefineAccessorProperty("returnValue",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return b.toJS(d.ReturnValue) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			d.ReturnValue = b.result(call.Argument(0), export)
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	return obj, sync
}

// webpackAPI builds BdApi.Webpack over the module registry.
func (e *Engine) webpackAPI(vm *goja.Runtime) *goja.Object {
	b := e.bridge
	obj := vm.NewObject()
	filters := vm.NewObject()

	filter := func(build func(args []string) module.Filter) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			f := build(strs(call.Arguments))
			fn := vm.ToValue(func(call goja.FunctionCall) goja.Value {
				o, ok := b.fromJS(call.Argument(0), true).(*module.Object)
				return vm.ToValue(ok && f(o))
			}).(*goja.Object)
			_ = fn.DefineDataPropertySymbol(filterKey, vm.ToValue(&filterBox{f}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
			return fn
		}
	}
	_ = filters.Set("byProps", filter(func(a []string) module.Filter { return module.ByProps(a...) }))
	_ = filters.Set("byKeys", filters.Get("byProps"))
	_ = filters.Set("byPrototypeFields", filter(func(a []string) module.Filter { return module.ByPrototypes(a...) }))
	_ = filters.Set("byPrototypeKeys", filters.Get("byPrototypeFields"))
	_ = filters.Set("byDisplayName", filter(func(a []string) module.Filter { return module.ByDisplayName(first(a)) }))
	_ = filters.Set("byStoreName", filter(func(a []string) module.Filter { return module.ByStoreName(first(a)) }))
	_ = obj.Set("Filters", filters)

	_ = obj.Set("getModule", func(call goja.FunctionCall) goja.Value {
		opts := module.DefaultOptions()
		if o, ok := call.Argument(1).(*goja.Object); ok {
			opts.First = flag(o.Get("first"), opts.First)
			opts.DefaultExport = flag(o.Get("defaultExport"), opts.DefaultExport)
			opts.SearchExports = flag(o.Get("searchExports"), opts.SearchExports)
		}
		return e.getModule(vm, call.Argument(0), opts)
	})
	byProps := func(call goja.FunctionCall) goja.Value {
		return b.toJS(e.modules.GetByProps(strs(call.Arguments)...))
	}
	_ = obj.Set("getByProps", byProps)
	_ = obj.Set("getByKeys", byProps)
	_ = obj.Set("getAllByProps", func(call goja.FunctionCall) goja.Value {
		return e.objects(vm, e.modules.GetAllByProps(strs(call.Arguments)...))
	})
	byPrototypes := func(call goja.FunctionCall) goja.Value {
		return b.toJS(e.modules.GetByPrototypes(strs(call.Arguments)...))
	}
	_ = obj.Set("getByPrototypes", byPrototypes)
	_ = obj.Set("getByPrototypeKeys", byPrototypes)
	_ = obj.Set("getByDisplayName", func(call goja.FunctionCall) goja.Value {
		return b.toJS(e.modules.GetByDisplayName(str(call.Argument(0))))
	})
	_ = obj.Set("getStore", func(call goja.FunctionCall) goja.Value {
		return b.toJS(e.modules.GetStore(str(call.Argument(0))))
	})
	_ = obj.Set("findByUniqueProperties", func(call goja.FunctionCall) goja.Value {
		var props []string
		if o, ok := call.Argument(0).(*goja.Object); ok {
			_ = vm.ExportTo(o, &props)
		}
		found := e.modules.FindByUniqueProperties(props, flag(call.Argument(1), true))
		if flag(call.Argument(1), true) {
			if len(found) == 0 {
				return goja.Undefined()
			}
			return b.toJS(found[0])
		}
		return e.objects(vm, found)
	})
	_ = obj.Set("getModuleWithKey", func(call goja.FunctionCall) goja.Value {
		o, key, ok := e.modules.FindWithKey(e.jsFilter(vm, call.Argument(0)))
		if !ok {
			return goja.Undefined()
		}
		return vm.NewArray(b.toJS(o), key)
	})
	return obj
}

func (e *Engine) getModule(vm *goja.Runtime, filter goja.Value, opts module.Options) goja.Value {
	f := e.jsFilter(vm, filter)
	if opts.First {
		return e.bridge.toJS(e.modules.Find(f, opts))
	}
	return e.objects(vm, e.modules.FindAll(f, opts))
}

// filterKey holds, on functions made by Webpack.Filters, the Go filter they
// stand for.
var filterKey = goja.NewSymbol("filter")

type filterBox struct {
	filter module.Filter
}

// jsFilter turns a script predicate into a module filter. Filters made by
// Webpack.Filters unwrap to their Go form.
func (e *Engine) jsFilter(vm *goja.Runtime, v goja.Value) module.Filter {
	obj, ok := v.(*goja.Object)
	if !ok {
		panic(vm.NewTypeError("filter must be a function"))
	}
	if v := obj.GetSymbol(filterKey); v != nil {
		if box, ok := v.Export().(*filterBox); ok {
			return box.filter
		}
	}
	fn, ok := goja.AssertFunction(obj)
	if !ok {
		panic(vm.NewTypeError("filter must be a function"))
	}
	return func(o *module.Object) bool {
		res, err := fn(goja.Undefined(), e.bridge.host(o))
		if err != nil {
			panic(err)
		}
		return res.ToBoolean()
	}
}

func (e *Engine) objects(vm *goja.Runtime, objs []*module.Object) goja.Value {
	return vm.NewArray(lo.Map(objs, func(o *module.Object, _ int) any { return e.bridge.host(o) })...)
}

// pluginsAPI builds BdApi.Plugins over the plugin runtime.
func (e *Engine) pluginsAPI(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.DefineAccessorProperty("folder", vm.ToValue(func(goja.FunctionCall) goja.Value {
		if p := e.pluginsView(); p != nil {
			return vm.ToValue(p.Folder())
		}
		return vm.ToValue(e.folder)
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		p := e.pluginsView()
		if p == nil {
			return goja.Undefined()
		}
		d, ok := p.Get(str(call.Argument(0)))
		if !ok {
			return goja.Undefined()
		}
		return e.pluginObject(vm, d)
	})
	_ = obj.Set("getAll", func(goja.FunctionCall) goja.Value {
		var list []*plugin.Descriptor
		if p := e.pluginsView(); p != nil {
			list = p.List()
		}
		return vm.NewArray(lo.Map(list, func(d *plugin.Descriptor, _ int) any { return e.pluginObject(vm, d) })...)
	})
	_ = obj.Set("isEnabled", func(call goja.FunctionCall) goja.Value {
		p := e.pluginsView()
		return vm.ToValue(p != nil && p.IsEnabled(str(call.Argument(0))))
	})
	return obj
}

func (e *Engine) pluginObject(vm *goja.Runtime, d *plugin.Descriptor) *goja.Object {
	obj := e.metaObject(vm, d)
	_ = obj.Set("started", d.Started())
	if inst, ok := d.Instance().(*instance); ok && inst.engine == e {
		_ = obj.Set("instance", inst.obj)
	}
	return obj
}

// dataAPI builds BdApi.Data. Bound, the label names the data file and
// load(key) and save(key, value) take one argument less.
func (e *Engine) dataAPI(vm *goja.Runtime, label string) *goja.Object {
	obj := vm.NewObject()
	split := func(args []goja.Value) (string, []goja.Value) {
		if label != "" {
			return label, args
		}
		if len(args) == 0 {
			return "", nil
		}
		return str(args[0]), args[1:]
	}
	arg := func(args []goja.Value, i int) goja.Value {
		if i < len(args) {
			return args[i]
		}
		return goja.Undefined()
	}

	_ = obj.Set("load", func(call goja.FunctionCall) goja.Value {
		name, args := split(call.Arguments)
		key := str(arg(args, 0))
		if e.data == nil || name == "" || key == "" {
			return goja.Undefined()
		}
		v, err := e.data.Load(name, key)
		if err != nil {
			e.log.Named(name).Warnw("Could not load data", "key", key, "error", err)
			return goja.Undefined()
		}
		return e.bridge.toJS(v)
	})
	_ = obj.Set("save", func(call goja.FunctionCall) goja.Value {
		name, args := split(call.Arguments)
		key := str(arg(args, 0))
		value := arg(args, 1)
		if e.data == nil || name == "" || key == "" || goja.IsUndefined(value) {
			return goja.Undefined()
		}
		if err := e.data.Save(name, key, e.bridge.fromJS(value, true)); err != nil {
			e.log.Named(name).Warnw("Could not save data", "key", key, "error", err)
		}
		return goja.Undefined()
	})
	return obj
}

// uiAPI builds BdApi.UI over the notifier.
func (e *Engine) uiAPI(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	closer := func(id string) goja.Value {
		return vm.ToValue(func() {
			if d, ok := e.notifier.(interface{ Dismiss(string) bool }); ok {
				d.Dismiss(id)
			}
		})
	}

	_ = obj.Set("showToast", func(call goja.FunctionCall) goja.Value {
		n := plugin.Notice{Kind: plugin.KindToast, Content: str(call.Argument(0))}
		if o, ok := call.Argument(1).(*goja.Object); ok {
			n.Title = str(o.Get("type"))
			n.Timeout = millis(o.Get("timeout"))
		}
		return closer(e.notifier.Notify(n))
	})
	_ = obj.Set("showNotice", func(call goja.FunctionCall) goja.Value {
		n := plugin.Notice{Kind: plugin.KindNotice, Content: str(call.Argument(0))}
		if o, ok := call.Argument(1).(*goja.Object); ok {
			n.Timeout = millis(o.Get("timeout"))
			if buttons, ok := o.Get("buttons").(*goja.Object); ok {
				for _, k := range buttons.Keys() {
					if btn, ok := buttons.Get(k).(*goja.Object); ok {
						n.Buttons = append(n.Buttons, str(btn.Get("label")))
					}
				}
			}
		}
		return closer(e.notifier.Notify(n))
	})
	_ = obj.Set("showConfirmationModal", func(call goja.FunctionCall) goja.Value {
		n := plugin.Notice{Kind: plugin.KindAlert, Title: str(call.Argument(0)), Content: str(call.Argument(1))}
		n.Buttons = []string{"Okay", "Cancel"}
		if o, ok := call.Argument(2).(*goja.Object); ok {
			if v := o.Get("confirmText"); v != nil && !goja.IsUndefined(v) {
				n.Buttons[0] = str(v)
			}
			if v := o.Get("cancelText"); v != nil && !goja.IsUndefined(v) {
				n.Buttons[1] = str(v)
			}
		}
		n.Buttons = lo.Compact(n.Buttons)
		return vm.ToValue(e.notifier.Notify(n))
	})
	_ = obj.Set("alert", func(call goja.FunctionCall) goja.Value {
		e.notifier.Notify(plugin.Notice{
			Kind:    plugin.KindAlert,
			Title:   str(call.Argument(0)),
			Content: str(call.Argument(1)),
			Buttons: []string{"Okay"},
		})
		return goja.Undefined()
	})
	return obj
}

// domAPI builds BdApi.DOM. Without a page there is nothing to render, so
// styles are kept by id for the host to read.
func (e *Engine) domAPI(vm *goja.Runtime, label string) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("addStyle", func(call goja.FunctionCall) goja.Value {
		id, css := str(call.Argument(0)), call.Argument(1)
		if goja.IsUndefined(css) && label != "" {
			id, css = label, call.Argument(0)
		}
		if id != "" {
			e.styles[id] = str(css)
		}
		return goja.Undefined()
	})
	_ = obj.Set("removeStyle", func(call goja.FunctionCall) goja.Value {
		id := str(call.Argument(0))
		if id == "" {
			id = label
		}
		delete(e.styles, id)
		return goja.Undefined()
	})
	return obj
}

// Styles returns the style sheets plugins injected, by id.
func (e *Engine) Styles(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := e.do(ctx, func(*goja.Runtime) error {
		out = maps.Clone(e.styles)
		return nil
	})
	return out, err
}

// netAPI builds BdApi.Net. fetch resolves with a small Response object.
func (e *Engine) netAPI(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("fetch", func(call goja.FunctionCall) goja.Value {
		url := str(call.Argument(0))
		promise, resolve, reject := vm.NewPromise()
		e.fetchAsync(url, func(vm *goja.Runtime, body []byte, err error) {
			if err != nil {
				reject(vm.NewGoError(err))
				return
			}
			resolve(e.response(vm, url, body))
		})
		return vm.ToValue(promise)
	})
	return obj
}

func (e *Engine) response(vm *goja.Runtime, url string, body []byte) *goja.Object {
	res := vm.NewObject()
	_ = res.Set("ok", true)
	_ = res.Set("status", 200)
	_ = res.Set("url", url)
	settle := func(fn func() (goja.Value, error)) goja.Value {
		promise, resolve, reject := vm.NewPromise()
		if v, err := fn(); err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				reject(ex.Value())
			} else {
				reject(vm.NewGoError(err))
			}
		} else {
			resolve(v)
		}
		return vm.ToValue(promise)
	}
	_ = res.Set("text", func(goja.FunctionCall) goja.Value {
		return settle(func() (goja.Value, error) { return vm.ToValue(string(body)), nil })
	})
	_ = res.Set("json", func(goja.FunctionCall) goja.Value {
		return settle(func() (goja.Value, error) {
			parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
			return parse(goja.Undefined(), vm.ToValue(string(body)))
		})
	})
	return res
}

// utilsAPI builds BdApi.Utils.
func (e *Engine) utilsAPI(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("findInTree", func(call goja.FunctionCall) goja.Value {
		return findInTree(vm, call.Argument(0), call.Argument(1), call.Argument(2))
	})
	return obj
}

// suppressErrors wraps a function so that a throw is logged instead.
func (e *Engine) suppressErrors(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(vm.NewTypeError("suppressErrors needs a function"))
	}
	message := str(call.Argument(1))
	return vm.ToValue(func(inner goja.FunctionCall) goja.Value {
		v, err := fn(inner.This, inner.Arguments...)
		if err != nil {
			e.log.Named("plugin").Errorw(fmt.Sprintf("Error occurred in %s", message), "error", err)
			return goja.Undefined()
		}
		return v
	})
}

// findInTree searches tree depth first. A string filter reads that key of
// the root. walkable limits the keys followed on objects and ignore skips
// keys. Each object is visited once.
func findInTree(vm *goja.Runtime, tree, filter, options goja.Value) goja.Value {
	if key, ok := filter.Export().(string); ok {
		if obj, ok := tree.(*goja.Object); ok {
			if v := obj.Get(key); v != nil {
				return v
			}
		}
		return goja.Undefined()
	}
	test, ok := goja.AssertFunction(filter)
	if !ok {
		panic(vm.NewTypeError("findInTree filter must be a string or function"))
	}

	var walkable, ignore []string
	if o, ok := options.(*goja.Object); ok {
		if w, ok := o.Get("walkable").(*goja.Object); ok {
			_ = vm.ExportTo(w, &walkable)
		}
		if i, ok := o.Get("ignore").(*goja.Object); ok {
			_ = vm.ExportTo(i, &ignore)
		}
	}

	seen := make(map[*goja.Object]bool)
	var find func(v goja.Value) goja.Value
	find = func(v goja.Value) goja.Value {
		ok, err := test(goja.Undefined(), v)
		if err != nil {
			panic(err)
		}
		if ok.ToBoolean() {
			return v
		}
		obj, isObj := v.(*goja.Object)
		if !isObj || seen[obj] {
			return nil
		}
		if _, fn := goja.AssertFunction(obj); fn {
			return nil
		}
		seen[obj] = true

		keys := walkable
		if keys == nil || obj.ClassName() == "Array" {
			keys = obj.Keys()
		}
		for _, k := range keys {
			if lo.Contains(ignore, k) {
				continue
			}
			child := obj.Get(k)
			if child == nil || goja.IsUndefined(child) {
				continue
			}
			if found := find(child); found != nil {
				return found
			}
		}
		return nil
	}
	if found := find(tree); found != nil {
		return found
	}
	return goja.Undefined()
}

func str(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func strs(args []goja.Value) []string {
	return lo.Map(args, func(v goja.Value, _ int) string { return str(v) })
}

func truthy(v goja.Value) bool {
	return v != nil && v.ToBoolean()
}

// flag reads an optional boolean.
func flag(v goja.Value, def bool) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.ToBoolean()
}

func millis(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	return time.Duration(v.ToInteger()) * time.Millisecond
}

func first(a []string) string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}
