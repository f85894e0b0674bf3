// Package panics turns panics in the node's goroutines into a logged,
// orderly exit.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/mwcnet/mwcd/infrastructure/logger"
)

// flushTimeout bounds how long an exit waits for the log to be written.
const flushTimeout = 5 * time.Second

// HandlePanic must be deferred. If the calling goroutine is panicking, it
// logs the panic with both the panicking stack and spawnStack, the stack
// that started the goroutine, and exits the process.
func HandlePanic(log *logger.Logger, goroutineName string, spawnStack []byte) {
	err := recover()
	if err == nil {
		return
	}
	exitWithTraces(log, fmt.Sprintf("panic in goroutine %s: %+v", goroutineName, err),
		"Spawned at", spawnStack, "Panicked at", debug.Stack())
}

// GoroutineWrapperFunc returns a function that starts named goroutines
// guarded by HandlePanic.
func GoroutineWrapperFunc(log *logger.Logger) func(name string, f func()) {
	return func(name string, f func()) {
		spawnStack := debug.Stack()
		go func() {
			defer HandlePanic(log, name, spawnStack)
			f()
		}()
	}
}

// Exit logs reason and exits the process with status 1.
func Exit(log *logger.Logger, reason string) {
	exitWithTraces(log, reason)
}

// exitWithTraces logs reason followed by titled stack traces, given as
// alternating titles and stacks, flushes the log and exits.
func exitWithTraces(log *logger.Logger, reason string, traces ...interface{}) {
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		log.Criticalf("Exiting: %s", reason)
		for i := 0; i+1 < len(traces); i += 2 {
			stack, _ := traces[i+1].([]byte)
			if len(stack) > 0 {
				log.Criticalf("%s: %s", traces[i], stack)
			}
		}
		log.Backend().Close()
	}()

	select {
	case <-flushed:
	case <-time.After(flushTimeout):
		fmt.Fprintln(os.Stderr, "Timed out writing the log before exiting")
	}
	os.Exit(1)
}
