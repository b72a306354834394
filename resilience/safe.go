package resilience

import (
	"fmt"
)

// RunSafely runs fn once. Errors and panics are logged and swallowed.
// It reports whether fn completed without error.
func (e *Executor) RunSafely(label string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operation panicked",
				"operation", label,
				"panic", fmt.Sprint(r))
			ok = false
		}
	}()

	if err := fn(); err != nil {
		e.logger.Error("operation failed",
			"operation", label,
			"kind", Classify(err).String(),
			"error", err)
		return false
	}
	return true
}

// LogAndContinue runs fn once. A failure is logged at warn level and handed to
// onErr so the caller can record it and move on. A nil onErr only logs.
func (e *Executor) LogAndContinue(label string, fn func() error, onErr func(error)) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = Tag(KindOther, label, fmt.Errorf("panic: %v", r))
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}

	e.logger.Warn("operation failed, continuing",
		"operation", label,
		"kind", Classify(err).String(),
		"error", err)
	if onErr != nil {
		onErr(err)
	}
}
