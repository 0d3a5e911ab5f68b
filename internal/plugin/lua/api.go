package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/bdcompat/internal/patcher"
	"github.com/dshills/bdcompat/internal/plugin"
)

// installAPI preloads the bd module and sets it as a global.
func (e *Engine) installAPI(L *lua.LState) {
	L.PreloadModule("bd", func(L *lua.LState) int {
		L.Push(e.newAPI(L))
		return 1
	})
	L.SetGlobal("bd", e.newAPI(L))
}

func (e *Engine) newAPI(L *lua.LState) *lua.LTable {
	log := e.log.Named("plugin")
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			log.Info(joinArgs(L))
			return 0
		},
		"warn": func(L *lua.LState) int {
			log.Warn(joinArgs(L))
			return 0
		},
		"error": func(L *lua.LState) int {
			log.Error(joinArgs(L))
			return 0
		},

		"data_load": e.dataLoad,
		"data_save": e.dataSave,

		"notice": func(L *lua.LState) int {
			L.Push(lua.LString(e.notifier.Notify(plugin.Notice{Kind: plugin.KindNotice, Content: L.CheckString(1)})))
			return 1
		},
		"toast": func(L *lua.LState) int {
			L.Push(lua.LString(e.notifier.Notify(plugin.Notice{Kind: plugin.KindToast, Content: L.CheckString(1)})))
			return 1
		},
		"alert": func(L *lua.LState) int {
			e.notifier.Notify(plugin.Notice{
				Kind:    plugin.KindAlert,
				Title:   L.CheckString(1),
				Content: L.OptString(2, ""),
				Buttons: []string{"Okay"},
			})
			return 0
		},

		"patch_before":  e.patchFunc(patcher.Before),
		"patch_instead": e.patchFunc(patcher.Instead),
		"patch_after":   e.patchFunc(patcher.After),
		"unpatch_all": func(L *lua.LState) int {
			L.Push(lua.LNumber(e.patcher.UnpatchAll(L.CheckString(1))))
			return 1
		},

		"find_module_by_props": func(L *lua.LState) int {
			L.Push(e.bridge.ToLua(e.modules.GetByProps(stringArgs(L, 1)...)))
			return 1
		},
		"get_store": func(L *lua.LState) int {
			L.Push(e.bridge.ToLua(e.modules.GetStore(L.CheckString(1))))
			return 1
		},
		"get_module": func(L *lua.LState) int {
			o, _ := e.modules.Lookup(L.CheckString(1))
			L.Push(e.bridge.ToLua(o))
			return 1
		},
	})
}

// dataLoad is bd.data_load(plugin, key).
func (e *Engine) dataLoad(L *lua.LState) int {
	name, key := L.OptString(1, ""), L.OptString(2, "")
	if e.data == nil || name == "" || key == "" {
		L.Push(lua.LNil)
		return 1
	}
	v, err := e.data.Load(name, key)
	if err != nil {
		e.log.Named(name).Warnw("Could not load data", "key", key, "error", err)
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.bridge.ToLua(v))
	return 1
}

// dataSave is bd.data_save(plugin, key, value). A nil value is not saved.
func (e *Engine) dataSave(L *lua.LState) int {
	name, key, value := L.OptString(1, ""), L.OptString(2, ""), L.Get(3)
	if e.data == nil || name == "" || key == "" || value == lua.LNil {
		return 0
	}
	if err := e.data.Save(name, key, e.bridge.ToGo(value)); err != nil {
		e.log.Named(name).Warnw("Could not save data", "key", key, "error", err)
	}
	return 0
}

// patchFunc builds bd.patch_<phase>(caller, target, method, fn). target is
// a host object, a module alias or a list of unique property names. The
// result is an unpatch function; failures are logged and yield one that
// does nothing.
func (e *Engine) patchFunc(phase patcher.Phase) lua.LGFunction {
	return func(L *lua.LState) int {
		caller := L.CheckString(1)
		target := e.target(L.Get(2))
		method := L.CheckString(3)
		cb := L.CheckFunction(4)
		b := e.bridge

		// Callbacks run later, on the main state rather than whichever
		// thread installed them.
		state := e.L

		var (
			unpatch patcher.Unpatch
			err     error
		)
		switch phase {
		case patcher.Before:
			unpatch, err = e.patcher.Before(caller, target, method, func(this any, args []any) error {
				list, sync := e.argList(state, args)
				_, err := call1(state, cb, b.ToLua(this), list)
				sync()
				return err
			})
		case patcher.Instead:
			unpatch, err = e.patcher.Instead(caller, target, method, func(this any, args []any, original patcher.Original) (any, error) {
				list, sync := e.argList(state, args)
				orig := state.NewFunction(func(L *lua.LState) int {
					params := make([]any, 0, L.GetTop())
					for i := 1; i <= L.GetTop(); i++ {
						params = append(params, b.ToGo(L.Get(i)))
					}
					L.Push(b.ToLua(original(params...)))
					return 1
				})
				v, err := call1(state, cb, b.ToLua(this), list, orig)
				sync()
				if err != nil {
					return nil, err
				}
				return b.ToGo(v), nil
			})
		case patcher.After:
			unpatch, err = e.patcher.After(caller, target, method, func(this any, args []any, ret any) (any, error) {
				list, sync := e.argList(state, args)
				v, err := call1(state, cb, b.ToLua(this), list, b.ToLua(ret))
				sync()
				if err != nil {
					return nil, err
				}
				return b.ToGo(v), nil
			})
		}
		if err != nil {
			e.log.Named(caller).Warnw("Could not patch", "method", method, "type", phase.String(), "error", err)
		}
		L.Push(L.NewFunction(func(*lua.LState) int {
			unpatch()
			return 0
		}))
		return 1
	}
}

// target resolves a Lua value to a patch target.
func (e *Engine) target(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LString:
		return string(t)
	case *lua.LUserData:
		return t.Value
	case *lua.LTable:
		var props []string
		t.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				props = append(props, string(s))
			}
		})
		return props
	default:
		return nil
	}
}

// argList hands args to Lua as a sequence. sync copies entries the script
// replaced back into args.
func (e *Engine) argList(L *lua.LState, args []any) (*lua.LTable, func()) {
	vals := e.bridge.toLuaAll(args)
	list := L.NewTable()
	for i, v := range vals {
		list.RawSetInt(i+1, v)
	}
	return list, func() {
		for i := range args {
			if v := list.RawGetInt(i + 1); v != vals[i] {
				args[i] = e.bridge.ToGo(v)
			}
		}
	}
}

// stringArgs collects the string arguments from position n on.
func stringArgs(L *lua.LState, n int) []string {
	var out []string
	for i := n; i <= L.GetTop(); i++ {
		out = append(out, L.CheckString(i))
	}
	return out
}
