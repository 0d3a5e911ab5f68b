// Package lua runs *.plugin.lua files on gopher-lua.
//
// A plugin file opens with a metadata block in a long comment and returns
// its plugin:
//
//	--[[
//	@name Greeter
//	@version 1.0.0
//	@description Greets people
//	]]
//	local Greeter = {}
//	Greeter.__index = Greeter
//
//	function Greeter.new(meta)
//	  return setmetatable({ meta = meta }, Greeter)
//	end
//
//	function Greeter:start() bd.log("hello from " .. self.meta.name) end
//	function Greeter:stop() end
//
//	return Greeter
//
// The chunk may return a table with a new function, a factory function, a
// table keyed by plugin name, or the instance table itself. The chunk
// receives the file name and the plugins folder as its varargs.
//
// The state is sandboxed: only the base, table, string and math libraries
// are opened, dofile and load are removed, and require serves nothing but
// those libraries and the bd module. bd is also a global:
//
//	bd.log, bd.warn, bd.error
//	bd.data_load(plugin, key), bd.data_save(plugin, key, value)
//	bd.notice(content), bd.toast(content), bd.alert(title, content)
//	bd.patch_before / patch_instead / patch_after(caller, target, method, fn)
//	bd.unpatch_all(caller)
//	bd.find_module_by_props(...), bd.get_store(name), bd.get_module(alias)
//
// Every operation runs on one loop goroutine. Host code that calls a method
// a Lua plugin has patched must do so through Engine.Do.
package lua
