// Package recovery provides panic recovery for simulation callbacks.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/logging"
)

// RecoverWithLog recovers from panics and logs them with the provided logger.
// Use this with defer:
//
//	defer recovery.RecoverWithLog(logger, "trace writer")
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
	}
}

// RecoverWithCallback recovers from panics, logs them, and calls the optional callback.
func RecoverWithCallback(logger *slog.Logger, name string, callback func(recovered any)) {
	if r := recover(); r != nil {
		logPanic(logger, name, r)
		if callback != nil {
			callback(r)
		}
	}
}

func logPanic(logger *slog.Logger, name string, r any) {
	logger.Error("panic recovered",
		logging.KeyComponent, name,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()))
}

// GuardHook wraps an event hook so that a panic inside it is logged and the
// hook is disabled for the rest of the run instead of aborting the run.
func GuardHook(logger *slog.Logger, name string, fn func(eventlog.Event)) func(eventlog.Event) {
	disabled := false
	return func(e eventlog.Event) {
		if disabled {
			return
		}
		defer RecoverWithCallback(logger, name, func(any) {
			disabled = true
		})
		fn(e)
	}
}
