package common

import (
	"strings"
	"sync"

	coreerrors "energymarket/core/errors"
)

var ErrModulePaused = coreerrors.New("", 1, coreerrors.CategoryState, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating calls into a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is an operator-controlled set of paused modules.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns a set with the supplied modules paused.
func NewPauseSet(modules ...string) *PauseSet {
	set := &PauseSet{paused: make(map[string]bool)}
	for _, module := range modules {
		set.Pause(module)
	}
	return set
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

// Pause marks the module as paused.
func (s *PauseSet) Pause(module string) {
	name := normalizeModule(module)
	if name == "" {
		return
	}
	s.mu.Lock()
	s.paused[name] = true
	s.mu.Unlock()
}

// Resume clears the pause flag for the module.
func (s *PauseSet) Resume(module string) {
	s.mu.Lock()
	delete(s.paused, normalizeModule(module))
	s.mu.Unlock()
}

// IsPaused implements PauseView.
func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[normalizeModule(module)]
}
