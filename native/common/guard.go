package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by every mutating entry point of a halted
// component. Reads are never guarded.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a component's mutating entry points are halted.
// Implementations fail closed: a lookup error reads as paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when module is paused. A nil view never pauses.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
