package lua

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// preloaded names the modules require serves besides the safe libraries.
var preloaded = map[string]bool{
	"bd": true,
}

// installSandbox removes the functions that reach outside the state and
// routes print to the log.
func installSandbox(L *lua.LState, log *zap.SugaredLogger) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	installSafePrint(L, log)
	installSafeRequire(L)
}

// installSafePrint sends print output to the plugin log instead of stdout.
func installSafePrint(L *lua.LState, log *zap.SugaredLogger) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		log.Info(joinArgs(L))
		return 0
	}))
}

// installSafeRequire replaces require with one that only serves the safe
// libraries and preloaded modules. package.path and package.cpath are
// cleared so nothing is read from disk.
func installSafeRequire(L *lua.LState) {
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))

		safeLoaded := map[string]bool{
			"_G": true, "string": true, "table": true, "math": true, "package": true,
		}
		if loaded, ok := L.GetField(pkg, "loaded").(*lua.LTable); ok {
			var remove []string
			loaded.ForEach(func(k, _ lua.LValue) {
				if ks, ok := k.(lua.LString); ok && !safeLoaded[string(ks)] {
					remove = append(remove, string(ks))
				}
			})
			for _, key := range remove {
				loaded.RawSetString(key, lua.LNil)
			}
		}
	}

	safeModules := map[string]bool{
		"string": true,
		"table":  true,
		"math":   true,
	}
	originalRequire := L.GetGlobal("require")

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] && !preloaded[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(originalRequire)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}
