package chainconfig

import (
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/pkg/errors"
)

const (
	// BlockTime is the target time between blocks, in seconds.
	BlockTime = 60

	// HourHeight is the number of blocks in an hour.
	HourHeight = 3600 / BlockTime

	// DayHeight is the number of blocks in a day.
	DayHeight = 24 * HourHeight

	// WeekHeight is the number of blocks in a week.
	WeekHeight = 7 * DayHeight

	// YearHeight is the number of blocks in a year.
	YearHeight = 52 * WeekHeight

	// DifficultyAdjustWindow is the number of blocks the difficulty is
	// averaged over.
	DifficultyAdjustWindow = HourHeight

	// BlockTimeWindow is the target duration of a difficulty window.
	BlockTimeWindow = DifficultyAdjustWindow * BlockTime

	// BaseEdgeBits is the graph size the graph weights are relative to.
	BaseEdgeBits = 24

	// NanoCoin is the number of base units in a coin.
	NanoCoin = 1000000000

	// Reward is the block subsidy, in base units.
	Reward = 60 * NanoCoin

	// UnitDifficulty is the difficulty of a single graph of the secondary
	// PoW family.
	UnitDifficulty = uint64(2<<(pow.SecondPoWEdgeBits-1)) * uint64(pow.SecondPoWEdgeBits)

	// DefaultFutureTimeLimit is how far ahead of the local clock, in
	// seconds, a header timestamp may be.
	DefaultFutureTimeLimit = 5 * 60
)

// Params defines a network by its consensus parameters.
type Params struct {
	// ChainType is the network these parameters belong to.
	ChainType global.ChainType

	// MinEdgeBits is the smallest accepted cuckoo graph size.
	MinEdgeBits uint8

	// BaseEdgeBits is the graph size graph weights are relative to.
	BaseEdgeBits uint8

	// ProofSize is the cuckoo cycle length.
	ProofSize int

	// CoinbaseMaturity is the number of blocks before a coinbase output
	// can be spent.
	CoinbaseMaturity uint64

	// CutThroughHorizon is the number of blocks full block data is kept
	// for, unless running in archive mode.
	CutThroughHorizon uint64

	// CompactionInterval is the height interval at which the node compacts
	// the chain. Zero disables compaction.
	CompactionInterval uint64

	// StateSyncThreshold is the depth from which a syncing node downloads
	// the txhashset instead of blocks.
	StateSyncThreshold uint64

	// InitialDifficulty is the difficulty of the genesis block.
	InitialDifficulty uint64

	// InitialGraphWeight is the secondary scaling of the genesis block.
	InitialGraphWeight uint32

	// MaxBlockWeight bounds the weight of a block body.
	MaxBlockWeight uint64

	// TxHashSetArchiveInterval is the height interval between txhashset
	// archives.
	TxHashSetArchiveInterval uint64

	// NRDActivationHeight is the height from which NRD kernels are valid.
	NRDActivationHeight uint64

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *model.Block
}

// BlockTime returns the target time between blocks, in seconds.
func (p *Params) BlockTime() int64 {
	return BlockTime
}

// DifficultyAdjustWindow returns the number of blocks the difficulty is
// averaged over.
func (p *Params) DifficultyAdjustWindow() uint64 {
	return DifficultyAdjustWindow
}

// Reward returns the block subsidy.
func (p *Params) Reward() uint64 {
	return Reward
}

// CoinbaseMaturityHeight returns the height from which a coinbase output
// created at height may be spent.
func (p *Params) CoinbaseMaturityHeight(height uint64) uint64 {
	return height + p.CoinbaseMaturity
}

func newParams(chainType global.ChainType, params Params, genesisTimestamp int64) *Params {
	params.ChainType = chainType
	params.GenesisBlock = newGenesisBlock(&params, genesisTimestamp)
	return &params
}

// AutomatedTestingParams are the parameters used by automated tests.
var AutomatedTestingParams = newParams(global.AutomatedTesting, Params{
	MinEdgeBits:              10,
	BaseEdgeBits:             10,
	ProofSize:                8,
	CoinbaseMaturity:         3,
	CutThroughHorizon:        20,
	CompactionInterval:       10,
	StateSyncThreshold:       20,
	InitialDifficulty:        1,
	InitialGraphWeight:       1,
	MaxBlockWeight:           250,
	TxHashSetArchiveInterval: 10,
	NRDActivationHeight:      0,
}, 1546300800)

// UserTestingParams are the parameters of a local user testing network.
var UserTestingParams = newParams(global.UserTesting, Params{
	MinEdgeBits:              15,
	BaseEdgeBits:             15,
	ProofSize:                42,
	CoinbaseMaturity:         3,
	CutThroughHorizon:        70,
	CompactionInterval:       10,
	StateSyncThreshold:       20,
	InitialDifficulty:        1,
	InitialGraphWeight:       1,
	MaxBlockWeight:           250,
	TxHashSetArchiveInterval: 10,
	NRDActivationHeight:      0,
}, 1546300800)

// FloonetParams are the parameters of the public test network.
var FloonetParams = newParams(global.Floonet, Params{
	MinEdgeBits:              31,
	BaseEdgeBits:             BaseEdgeBits,
	ProofSize:                42,
	CoinbaseMaturity:         DayHeight,
	CutThroughHorizon:        2 * DayHeight,
	CompactionInterval:       DayHeight,
	StateSyncThreshold:       DayHeight * 3 / 2,
	InitialDifficulty:        1000000 * UnitDifficulty,
	InitialGraphWeight:       uint32(graphWeight(pow.SecondPoWEdgeBits, BaseEdgeBits)),
	MaxBlockWeight:           40000,
	TxHashSetArchiveInterval: 12 * HourHeight,
	NRDActivationHeight:      481920,
}, 1545080400)

// MainnetParams are the parameters of the main network.
var MainnetParams = newParams(global.Mainnet, Params{
	MinEdgeBits:              31,
	BaseEdgeBits:             BaseEdgeBits,
	ProofSize:                42,
	CoinbaseMaturity:         DayHeight,
	CutThroughHorizon:        2 * DayHeight,
	CompactionInterval:       DayHeight,
	StateSyncThreshold:       DayHeight * 3 / 2,
	InitialDifficulty:        1000000 * UnitDifficulty,
	InitialGraphWeight:       uint32(graphWeight(pow.SecondPoWEdgeBits, BaseEdgeBits)),
	MaxBlockWeight:           40000,
	TxHashSetArchiveInterval: 12 * HourHeight,
	NRDActivationHeight:      494880,
}, 1547917200)

// ParamsFor returns the parameters of the given chain type.
func ParamsFor(chainType global.ChainType) (*Params, error) {
	switch chainType {
	case global.AutomatedTesting:
		return AutomatedTestingParams, nil
	case global.UserTesting:
		return UserTestingParams, nil
	case global.Floonet:
		return FloonetParams, nil
	case global.Mainnet:
		return MainnetParams, nil
	}
	return nil, errors.Errorf("unknown chain type %d", chainType)
}

// GraphWeight returns the weight of a cuckoo graph of edgeBits relative to
// the base graph size. Larger graphs take proportionally more work to
// solve.
func (p *Params) GraphWeight(edgeBits uint8) uint64 {
	return graphWeight(edgeBits, p.BaseEdgeBits)
}

func graphWeight(edgeBits uint8, baseEdgeBits uint8) uint64 {
	if edgeBits < baseEdgeBits {
		return uint64(edgeBits)
	}
	return (2 << (edgeBits - baseEdgeBits)) * uint64(edgeBits)
}

// ScalingFor returns the scaling applied to the PoW hash of a header: the
// header's secondary scaling for secondary proofs, the graph weight
// otherwise.
func (p *Params) ScalingFor(header *model.BlockHeader) uint64 {
	if header.PoW.IsSecondary() {
		return uint64(header.SecondaryScaling)
	}
	return p.GraphWeight(header.PoW.EdgeBits)
}
