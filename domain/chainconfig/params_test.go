package chainconfig

import (
	"testing"

	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/global"
)

func TestParamsFor(t *testing.T) {
	tests := []struct {
		chainType        global.ChainType
		minEdgeBits      uint8
		proofSize        int
		coinbaseMaturity uint64
		horizon          uint64
		archiveInterval  uint64
	}{
		{global.AutomatedTesting, 10, 8, 3, 20, 10},
		{global.UserTesting, 15, 42, 3, 70, 10},
		{global.Floonet, 31, 42, 1440, 2880, 720},
		{global.Mainnet, 31, 42, 1440, 2880, 720},
	}
	for _, test := range tests {
		params, err := ParamsFor(test.chainType)
		if err != nil {
			t.Fatalf("TestParamsFor: %s: %s", test.chainType, err)
		}
		if params.ChainType != test.chainType {
			t.Errorf("TestParamsFor: %s: unexpected chain type %s", test.chainType, params.ChainType)
		}
		if params.MinEdgeBits != test.minEdgeBits || params.ProofSize != test.proofSize {
			t.Errorf("TestParamsFor: %s: unexpected edge bits %d / proof size %d",
				test.chainType, params.MinEdgeBits, params.ProofSize)
		}
		if params.CoinbaseMaturity != test.coinbaseMaturity || params.CutThroughHorizon != test.horizon {
			t.Errorf("TestParamsFor: %s: unexpected maturity %d / horizon %d",
				test.chainType, params.CoinbaseMaturity, params.CutThroughHorizon)
		}
		if params.TxHashSetArchiveInterval != test.archiveInterval {
			t.Errorf("TestParamsFor: %s: unexpected archive interval %d",
				test.chainType, params.TxHashSetArchiveInterval)
		}
	}

	if _, err := ParamsFor(global.ChainType(99)); err == nil {
		t.Fatalf("TestParamsFor: expected an error for an unknown chain type")
	}
}

func TestGenesisBlock(t *testing.T) {
	for _, params := range []*Params{AutomatedTestingParams, UserTestingParams, FloonetParams, MainnetParams} {
		genesis := params.GenesisBlock.Header
		if genesis.Height != 0 {
			t.Errorf("TestGenesisBlock: %s: genesis height %d", params.ChainType, genesis.Height)
		}
		if genesis.TotalDifficulty != params.InitialDifficulty {
			t.Errorf("TestGenesisBlock: %s: genesis total difficulty %d, expected %d",
				params.ChainType, genesis.TotalDifficulty, params.InitialDifficulty)
		}
		if genesis.SecondaryScaling != params.InitialGraphWeight {
			t.Errorf("TestGenesisBlock: %s: genesis scaling %d, expected %d",
				params.ChainType, genesis.SecondaryScaling, params.InitialGraphWeight)
		}
		if !genesis.OutputRoot.IsZero() || !genesis.KernelRoot.IsZero() || !genesis.PrevHash.IsZero() {
			t.Errorf("TestGenesisBlock: %s: genesis roots must be zero", params.ChainType)
		}
		if len(params.GenesisBlock.Body.Outputs) != 0 || len(params.GenesisBlock.Body.Kernels) != 0 {
			t.Errorf("TestGenesisBlock: %s: genesis body must be empty", params.ChainType)
		}
	}

	hashesSeen := make(map[hashes.Hash]global.ChainType)
	for _, params := range []*Params{AutomatedTestingParams, FloonetParams, MainnetParams} {
		hash := *params.GenesisBlock.Hash()
		if other, ok := hashesSeen[hash]; ok {
			t.Fatalf("TestGenesisBlock: %s and %s share a genesis hash", params.ChainType, other)
		}
		hashesSeen[hash] = params.ChainType
	}
}

func TestGraphWeight(t *testing.T) {
	if UnitDifficulty != (2<<28)*29 {
		t.Fatalf("TestGraphWeight: unexpected unit difficulty %d", UnitDifficulty)
	}
	tests := []struct {
		edgeBits uint8
		expected uint64
	}{
		{pow.SecondPoWEdgeBits, 1856},
		{31, 7936},
		{BaseEdgeBits, 48},
		{20, 20},
	}
	for _, test := range tests {
		weight := MainnetParams.GraphWeight(test.edgeBits)
		if weight != test.expected {
			t.Errorf("TestGraphWeight: edge bits %d: expected %d, got %d", test.edgeBits, test.expected, weight)
		}
	}
	if MainnetParams.InitialGraphWeight != 1856 {
		t.Errorf("TestGraphWeight: unexpected initial graph weight %d", MainnetParams.InitialGraphWeight)
	}
}
