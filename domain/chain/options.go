package chain

// Options is a bitmask of flags that change how blocks are processed.
type Options uint32

const (
	// OptionsNone is the default of processing blocks with every check.
	OptionsNone Options = 0

	// OptionsSkipPoW skips the verification of the proof of work cycle.
	// Every other header check, the difficulty included, still runs.
	OptionsSkipPoW Options = 1 << iota

	// OptionsSync marks blocks received while syncing with a peer.
	OptionsSync

	// OptionsMine marks blocks produced by the local miner.
	OptionsMine
)

// Has returns whether every flag of flag is set in o.
func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

func (o Options) String() string {
	if o == OptionsNone {
		return "none"
	}
	names := ""
	for _, option := range []struct {
		flag Options
		name string
	}{{OptionsSkipPoW, "skip-pow"}, {OptionsSync, "sync"}, {OptionsMine, "mine"}} {
		if !o.Has(option.flag) {
			continue
		}
		if names != "" {
			names += "|"
		}
		names += option.name
	}
	return names
}
