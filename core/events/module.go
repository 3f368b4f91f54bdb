package events

import "nexum/core/types"

const (
	TypeModulePaused   = "module.paused"
	TypeModuleUnpaused = "module.unpaused"
)

// ModulePause is emitted when an admin toggles a component's circuit breaker.
type ModulePause struct {
	Module string
	Paused bool
}

func (e ModulePause) EventType() string {
	if e.Paused {
		return TypeModulePaused
	}
	return TypeModuleUnpaused
}

func (e ModulePause) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{"module": e.Module}}
}
