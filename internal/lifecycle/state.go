package lifecycle

import "errors"

// State is a phase of the controller. Transitions only move forward, except
// that a failed install returns to Uninstalled and a failed cutover returns
// to Installed so the trigger can be retried.
type State int32

const (
	Uninstalled State = iota
	Provisioning
	Installed
	Activating
	Active
	// Redundant controllers were superseded by a newer version.
	Redundant
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Provisioning:
		return "provisioning"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Redundant:
		return "redundant"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")
	ErrNoDispatcher      = errors.New("lifecycle: no notification dispatcher")
	// ErrNoController is returned by Host operations before the first upgrade.
	ErrNoController      = errors.New("lifecycle: no controller in control")
)
