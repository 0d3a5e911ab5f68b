// Package plugin loads BetterDiscord plugins and manages their lifecycle
// against a host plugin registry.
//
// A plugin is a single script file that starts with a metadata block:
//
//	/**
//	 * @name HelloWorld
//	 * @description Says hello
//	 * @version 1.0.0
//	 * @author someone
//	 * @authorId 42
//	 */
//	module.exports = class HelloWorld {
//	    start() { BdApi.showToast("hello") }
//	    stop() {}
//	}
//
// Script languages are provided by Engine implementations. The js engine
// handles *.plugin.js files and the lua engine handles *.plugin.lua files.
//
// # Conversion
//
// Runtime.Convert turns one file into a Descriptor:
//
//  1. The metadata block is parsed. @name, @description, @author and
//     @authorId are recognized; any other @key value pair is kept as a
//     generic field. A malformed block fails with a *MetaError.
//  2. The engine evaluates the body in a fresh scope with a CommonJS style
//     module object. Errors thrown by the body are logged, not returned.
//  3. The export named after the plugin (or the whole export) is
//     constructed with the descriptor as its argument, or called as a
//     factory. A load method on the instance runs right away.
//  4. getName, getVersion and getDescription on the instance override the
//     metadata. An empty version becomes PlaceholderVersion.
//  5. When duplicate detection is on and the name is already taken, the
//     name gets a "-BD" suffix.
//  6. A plugin without a name, version or description raises a notice and
//     fails with a *MissingFieldsError.
//  7. The settings rows are built from the optional metadata fields.
//  8. Start and Stop record the plugin's status before calling the
//     instance's own start and stop.
//
// # Lifecycle
//
// Runtime.RegisterDescriptor registers a descriptor with the host
// registry in a disabled state and starts it if the status store says it
// was enabled last time. Runtime.RemoveAll takes every descriptor down
// again, keeping the stored status of plugins that were running and
// reverting their patches.
//
//	unloaded -> converted -> registered -> started <-> stopped -> removed
//
// Runtime.LoadAll runs both steps for every plugin file in the plugins
// folder in lexical order. One failing file never blocks the others.
package plugin
