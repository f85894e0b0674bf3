package global

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ChainType identifies the network a node participates in.
type ChainType int

// The supported chain types.
const (
	// AutomatedTesting is used by the test suites. It has tiny PoW graphs
	// and short horizons.
	AutomatedTesting ChainType = iota + 1

	// UserTesting is a local development network.
	UserTesting

	// Floonet is the public test network.
	Floonet

	// Mainnet is the production network.
	Mainnet
)

var chainTypeNames = map[ChainType]string{
	AutomatedTesting: "automatedtests",
	UserTesting:      "usertestnet",
	Floonet:          "floonet",
	Mainnet:          "mainnet",
}

var chainTypeShortNames = map[ChainType]string{
	AutomatedTesting: "auto",
	UserTesting:      "user",
	Floonet:          "floo",
	Mainnet:          "main",
}

// String returns the network name of the chain type.
func (ct ChainType) String() string {
	name, ok := chainTypeNames[ct]
	if !ok {
		return "unknown"
	}
	return name
}

// ShortName returns the abbreviated chain type name.
func (ct ChainType) ShortName() string {
	name, ok := chainTypeShortNames[ct]
	if !ok {
		return "unknown"
	}
	return name
}

// IsValid returns whether ct is one of the known chain types.
func (ct ChainType) IsValid() bool {
	_, ok := chainTypeNames[ct]
	return ok
}

// IsProductionMode returns true for the public networks.
func (ct ChainType) IsProductionMode() bool {
	return ct == Floonet || ct == Mainnet
}

// ChainTypeFromString resolves either the network name or the short name.
func ChainTypeFromString(name string) (ChainType, error) {
	for ct, ctName := range chainTypeNames {
		if name == ctName || name == chainTypeShortNames[ct] {
			return ct, nil
		}
	}
	return 0, errors.Errorf("unknown chain type %q", name)
}

var (
	globalChainType     ChainType
	globalChainTypeLock sync.RWMutex
)

// InitChainType sets the process-wide chain type. It must be called exactly
// once; a second call is a programming error and panics.
func InitChainType(chainType ChainType) {
	if !chainType.IsValid() {
		panic(errors.Errorf("invalid chain type %d", chainType))
	}
	globalChainTypeLock.Lock()
	defer globalChainTypeLock.Unlock()
	if globalChainType != 0 {
		panic(errors.Errorf("chain type already initialized to %s", globalChainType))
	}
	globalChainType = chainType
}

// GetChainType returns the process-wide chain type. Reading it before
// InitChainType is a programming error and panics.
func GetChainType() ChainType {
	globalChainTypeLock.RLock()
	defer globalChainTypeLock.RUnlock()
	if globalChainType == 0 {
		panic(errors.New("chain type read before initialization"))
	}
	return globalChainType
}

type chainTypeKey struct{}

// WithChainType returns a context that overrides the chain type for the
// worker that uses it.
func WithChainType(ctx context.Context, chainType ChainType) context.Context {
	return context.WithValue(ctx, chainTypeKey{}, chainType)
}

// ChainTypeFrom returns the worker override carried by ctx, falling back to
// the process-wide chain type.
func ChainTypeFrom(ctx context.Context) ChainType {
	if ctx != nil {
		if chainType, ok := ctx.Value(chainTypeKey{}).(ChainType); ok {
			return chainType
		}
	}
	return GetChainType()
}
