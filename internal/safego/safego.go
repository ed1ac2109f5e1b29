// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine under the given task name. If fn panics,
// the panic and its stack are recovered and logged rather than crashing the
// process. Use this for every fire-and-forget goroutine (the manual refresh
// crawl, periodic reloads) where an unrecovered panic would silently kill the
// work forever.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"task", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
