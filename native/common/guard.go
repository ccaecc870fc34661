package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a fixed PauseView over a list of module names.
type PauseSet map[string]struct{}

func NewPauseSet(modules ...string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, module := range modules {
		if module == "" {
			continue
		}
		set[module] = struct{}{}
	}
	return set
}

func (s PauseSet) IsPaused(module string) bool {
	_, ok := s[module]
	return ok
}
