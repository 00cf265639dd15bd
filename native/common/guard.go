package common

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrModulePaused = errors.New("module paused")
	// ErrReentrant is returned when a guarded entry point is invoked while
	// another guarded call is still executing.
	ErrReentrant = errors.New("reentrant call")
)

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

// ReentrancyGuard tracks the state-mutating entry point in flight. Only one
// guarded call may run at a time; nested or concurrent calls are rejected
// before they touch state.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter claims the guard. The returned release func must be called once when
// the guarded call returns; further calls are no-ops.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		return func() {}, ErrReentrant
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.entered.Store(false) })
	}, nil
}

// Entered reports whether a guarded call is currently executing.
func (g *ReentrancyGuard) Entered() bool {
	return g.entered.Load()
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
