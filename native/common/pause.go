package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when the module is halted. A nil view
// never pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is a latching PauseView. Modules pause themselves on adverse
// outcomes (e.g. a liquidation write-down) and stay paused until an admin
// resumes them.
type Switchboard struct {
	paused map[string]bool
}

// NewSwitchboard returns an empty switchboard with nothing paused.
func NewSwitchboard() *Switchboard {
	return &Switchboard{paused: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s.paused[module]
}

// Pause halts the named module.
func (s *Switchboard) Pause(module string) {
	if s == nil || module == "" {
		return
	}
	s.paused[module] = true
}

// Resume lifts the halt on the named module.
func (s *Switchboard) Resume(module string) {
	if s == nil || module == "" {
		return
	}
	delete(s.paused, module)
}
