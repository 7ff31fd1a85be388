package logging

import (
	"fmt"
	"runtime/debug"
)

// RecoveryHandler converts panics into error log events. Worker
// goroutines wrap their body so a single panicking execution cannot
// take down the daemon.
type RecoveryHandler struct {
	Component string
	OnPanic   func(err any, stack string)
}

func NewRecoveryHandler(component string) *RecoveryHandler {
	return &RecoveryHandler{Component: component}
}

// Wrap executes fn with panic recovery.
func (r *RecoveryHandler) Wrap(fn func()) {
	defer r.recover()
	fn()
}

// WrapErr executes fn, turning a panic into a returned error.
func (r *RecoveryHandler) WrapErr(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			stack := string(debug.Stack())
			r.log(p, stack)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *RecoveryHandler) recover() {
	if p := recover(); p != nil {
		r.log(p, string(debug.Stack()))
	}
}

func (r *RecoveryHandler) log(p any, stack string) {
	New(r.Component).Error("panic_recovered", map[string]any{
		"panic": fmt.Sprintf("%v", p),
		"stack": stack,
	}, nil)
	if r.OnPanic != nil {
		r.OnPanic(p, stack)
	}
}
