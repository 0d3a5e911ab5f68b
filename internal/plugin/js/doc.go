// Package js runs BetterDiscord *.plugin.js files on goja.
//
// Every plugin shares one runtime, driven by a goja_nodejs event loop.
// A plugin body runs inside a function scope that provides module,
// exports, global, __filename, __dirname, DiscordNative and a console
// whose output is logged under the file name. The global BdApi exposes
// the host to plugins:
//
//	BdApi.Patcher     before, instead, after, getPatchesByCaller, unpatchAll
//	BdApi.Webpack     getModule, getByProps, getStore, Filters, ...
//	BdApi.Plugins     folder, get, getAll, isEnabled
//	BdApi.Data        load, save
//	BdApi.UI          showToast, showNotice, showConfirmationModal, alert
//	BdApi.DOM         addStyle, removeStyle
//	BdApi.Net         fetch
//	BdApi.Utils       findInTree
//
// new BdApi(label) returns the same API bound to label, so Patcher and Data
// calls need no caller id.
//
// Host objects from the module registry appear to scripts as live proxies:
// reading a method gives a function, and assigning a function installs a
// method. Host code that calls a method a script has patched must do so
// through Engine.Do, because the callbacks run on the loop.
package js
