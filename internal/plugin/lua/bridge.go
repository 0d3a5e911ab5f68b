package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/bdcompat/internal/module"
)

// hostTypeName is the metatable name of host object userdata.
const hostTypeName = "bd.host"

// bridge converts values between Go and Lua. Host objects become userdata
// whose fields and methods read through to the object, the same userdata
// each time. All of its state belongs to the loop.
type bridge struct {
	L *lua.LState

	hosts   map[*module.Object]*lua.LUserData
	fns     map[*module.Method]*lua.LFunction
	methods map[*lua.LFunction]*module.Method
}

func newBridge(L *lua.LState) *bridge {
	b := &bridge{
		L:       L,
		hosts:   make(map[*module.Object]*lua.LUserData),
		fns:     make(map[*module.Method]*lua.LFunction),
		methods: make(map[*lua.LFunction]*module.Method),
	}
	mt := L.NewTypeMetatable(hostTypeName)
	L.SetField(mt, "__index", L.NewFunction(b.hostIndex))
	L.SetField(mt, "__newindex", L.NewFunction(b.hostNewIndex))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(b.checkHost(L, 1).String()))
		return 1
	}))
	return b
}

// ToGo converts a Lua value to a Go value.
func (b *bridge) ToGo(lv lua.LValue) any {
	return b.toGoVisited(lv, make(map[*lua.LTable]bool))
}

func (b *bridge) toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGo(v, visited)
	case *lua.LFunction:
		return b.method(v)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGo converts a sequence to a slice and anything else to a map.
func (b *bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	isArray := true
	maxN := 0
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				maxN = max(maxN, n)
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGoVisited(v, visited)
	})
	return m
}

// ToLua converts a Go value to a Lua value.
func (b *bridge) ToLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := b.L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, b.ToLua(item))
		}
		return t
	case []string:
		t := b.L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]any:
		t := b.L.NewTable()
		for k, item := range val {
			t.RawSetString(k, b.ToLua(item))
		}
		return t
	case map[string]string:
		t := b.L.NewTable()
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	case *module.Object:
		if val == nil {
			return lua.LNil
		}
		return b.host(val)
	case *module.Method:
		if val == nil {
			return lua.LNil
		}
		return b.function(val)
	default:
		ud := b.L.NewUserData()
		ud.Value = v
		return ud
	}
}

func (b *bridge) toLuaAll(args []any) []lua.LValue {
	out := make([]lua.LValue, len(args))
	for i, a := range args {
		out[i] = b.ToLua(a)
	}
	return out
}

// host returns the userdata standing for o.
func (b *bridge) host(o *module.Object) *lua.LUserData {
	if ud, ok := b.hosts[o]; ok {
		return ud
	}
	ud := b.L.NewUserData()
	ud.Value = o
	b.L.SetMetatable(ud, b.L.GetTypeMetatable(hostTypeName))
	b.hosts[o] = ud
	return ud
}

func (b *bridge) checkHost(L *lua.LState, n int) *module.Object {
	ud := L.CheckUserData(n)
	o, ok := ud.Value.(*module.Object)
	if !ok {
		L.ArgError(n, "host object expected")
	}
	return o
}

// hostIndex reads a method or field of a host object.
func (b *bridge) hostIndex(L *lua.LState) int {
	o := b.checkHost(L, 1)
	key := L.CheckString(2)
	if m := o.Method(key); m != nil {
		L.Push(b.function(m))
		return 1
	}
	v, _ := o.Get(key)
	L.Push(b.ToLua(v))
	return 1
}

// hostNewIndex assigns a host object field. A function installs a method.
func (b *bridge) hostNewIndex(L *lua.LState) int {
	o := b.checkHost(L, 1)
	key := L.CheckString(2)
	if fn, ok := L.Get(3).(*lua.LFunction); ok {
		o.SetMethod(key, b.method(fn))
		return 0
	}
	o.SetMethod(key, nil)
	o.Set(key, b.ToGo(L.Get(3)))
	return 0
}

// function returns the Lua function standing for m. Called with method
// syntax, the receiver arrives as the first argument.
func (b *bridge) function(m *module.Method) *lua.LFunction {
	if native, ok := m.Native().(*lua.LFunction); ok {
		return native
	}
	if fn, ok := b.fns[m]; ok {
		return fn
	}
	fn := b.L.NewFunction(func(L *lua.LState) int {
		var this any
		var args []any
		for i := 1; i <= L.GetTop(); i++ {
			v := b.ToGo(L.Get(i))
			if i == 1 {
				this = v
				continue
			}
			args = append(args, v)
		}
		L.Push(b.ToLua(m.Invoke(this, args)))
		return 1
	})
	b.fns[m] = fn
	b.methods[fn] = m
	return fn
}

// method returns the method standing for a Lua function, the same one each
// time. A Lua error raised by the function panics with the error.
func (b *bridge) method(fn *lua.LFunction) *module.Method {
	if m, ok := b.methods[fn]; ok {
		return m
	}
	m := module.NativeMethod(fn, func(this any, args []any) any {
		v, err := call1(b.L, fn, append([]lua.LValue{b.ToLua(this)}, b.toLuaAll(args)...)...)
		if err != nil {
			panic(err)
		}
		return b.ToGo(v)
	})
	b.fns[m] = fn
	b.methods[fn] = m
	return m
}
