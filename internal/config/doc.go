// Package config holds the persisted settings of the compatibility layer.
//
// Settings live in one file whose format follows its extension: TOML for
// ".toml" and YAML for ".yaml" or ".yml". A missing file yields the
// defaults. The Store owns the loaded settings, including the per-plugin
// enabled status, and writes every change back atomically. A Watcher
// reloads the Store when the file is edited by hand.
//
// # Example
//
//	store, err := config.Open("settings.toml")
//	if err != nil {
//	    return err
//	}
//	unsubscribe := store.Subscribe(func(c config.Change) {
//	    log.Infow("Settings changed", "source", c.Source)
//	})
//	defer unsubscribe()
package config
