package plugin

// State represents the lifecycle state of a converted plugin.
type State int

// Plugin states.
const (
	// StateUnloaded - Plugin source has not been converted.
	StateUnloaded State = iota

	// StateConverted - Plugin is converted but not registered with the host.
	StateConverted

	// StateRegistered - Plugin is registered and not running.
	StateRegistered

	// StateStarted - Plugin is running.
	StateStarted

	// StateStopped - Plugin was started and has been stopped.
	StateStopped

	// StateError - Plugin's last lifecycle call failed.
	StateError

	// StateRemoved - Plugin was removed. Terminal.
	StateRemoved
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateConverted:
		return "converted"
	case StateRegistered:
		return "registered"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// IsLive returns true while the plugin is known to the host registry.
func (s State) IsLive() bool {
	return s == StateRegistered || s == StateStarted || s == StateStopped || s == StateError
}
