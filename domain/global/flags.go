package global

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	globalNRDEnabled     *bool
	globalNRDEnabledLock sync.RWMutex
)

// InitNRDEnabled sets the process-wide NRD kernel feature flag. Like
// InitChainType it may only be called once.
func InitNRDEnabled(enabled bool) {
	globalNRDEnabledLock.Lock()
	defer globalNRDEnabledLock.Unlock()
	if globalNRDEnabled != nil {
		panic(errors.New("NRD feature flag already initialized"))
	}
	globalNRDEnabled = &enabled
}

// IsNRDEnabled returns the process-wide NRD flag. The flag defaults to
// disabled when it was never initialized.
func IsNRDEnabled() bool {
	globalNRDEnabledLock.RLock()
	defer globalNRDEnabledLock.RUnlock()
	if globalNRDEnabled == nil {
		return false
	}
	return *globalNRDEnabled
}

type nrdEnabledKey struct{}

// WithNRDEnabled returns a context that overrides the NRD flag for the worker
// that uses it.
func WithNRDEnabled(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, nrdEnabledKey{}, enabled)
}

// NRDEnabledFrom returns the worker override carried by ctx, falling back to
// the process-wide flag.
func NRDEnabledFrom(ctx context.Context) bool {
	if ctx != nil {
		if enabled, ok := ctx.Value(nrdEnabledKey{}).(bool); ok {
			return enabled
		}
	}
	return IsNRDEnabled()
}

// RunningFlag reports whether the server is still running. Long running
// operations check it at batch boundaries and bail out with a Stopped error
// once a stop was requested.
type RunningFlag struct {
	stopped uint32
}

// NewRunningFlag returns a flag in the running state.
func NewRunningFlag() *RunningFlag {
	return &RunningFlag{}
}

// IsRunning returns false once RequestStop was called.
func (f *RunningFlag) IsRunning() bool {
	return atomic.LoadUint32(&f.stopped) == 0
}

// RequestStop clears the running flag.
func (f *RunningFlag) RequestStop() {
	atomic.StoreUint32(&f.stopped, 1)
}

// Running is the process-wide running flag.
var Running = NewRunningFlag()
