package utils

import (
	"runtime/debug"
)

// RecoverFromPanic recovers from panics and logs them with the stack.
// It must be called directly by defer.
func RecoverFromPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.Slog().Error("panic recovered", "task", task, "panic", r, "stack", string(debug.Stack()))
	}
}

// SafeGo runs a goroutine with panic recovery
func SafeGo(logger *Logger, task string, fn func()) {
	go func() {
		defer RecoverFromPanic(logger, task)
		fn()
	}()
}

// SafeGoWithError runs a goroutine with panic recovery and hands a
// returned error to onError after logging it
func SafeGoWithError(logger *Logger, task string, fn func() error, onError func(error)) {
	go func() {
		defer RecoverFromPanic(logger, task)
		if err := fn(); err != nil {
			logger.Error("Error in %s: %v", task, err)
			if onError != nil {
				onError(err)
			}
		}
	}()
}
