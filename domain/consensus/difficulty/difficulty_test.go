package difficulty

import (
	"math"
	"testing"

	"github.com/mwcnet/mwcd/domain/chainconfig"
)

// chainInfos returns count header infos ordered from the most recent, the
// most recent at timestamp tip, spaced by interval seconds.
func chainInfos(count int, tip int64, interval int64, difficulty uint64, scaling uint32,
	secondary bool) []*HeaderInfo {

	infos := make([]*HeaderInfo, count)
	for i := range infos {
		infos[i] = &HeaderInfo{
			Timestamp:        tip - int64(i)*interval,
			Difficulty:       difficulty,
			SecondaryScaling: scaling,
			IsSecondary:      secondary,
		}
	}
	return infos
}

func TestDataToVectorGenesisOnly(t *testing.T) {
	params := chainconfig.AutomatedTestingParams
	genesis := params.GenesisBlock.Header
	iterator := NewSliceIterator([]*HeaderInfo{{
		Timestamp:        genesis.Timestamp,
		Difficulty:       genesis.TotalDifficulty,
		SecondaryScaling: genesis.SecondaryScaling,
	}})
	data, err := DataToVector(params, iterator)
	if err != nil {
		t.Fatalf("TestDataToVectorGenesisOnly: %s", err)
	}
	expectedLen := int(params.DifficultyAdjustWindow()) + 1
	if len(data) != expectedLen {
		t.Fatalf("TestDataToVectorGenesisOnly: expected %d entries, got %d", expectedLen, len(data))
	}
	for i, info := range data {
		if info.Difficulty != params.InitialDifficulty {
			t.Fatalf("TestDataToVectorGenesisOnly: entry %d has difficulty %d", i, info.Difficulty)
		}
		expectedTimestamp := genesis.Timestamp - int64(expectedLen-1-i)*params.BlockTime()
		if info.Timestamp != expectedTimestamp {
			t.Fatalf("TestDataToVectorGenesisOnly: entry %d has timestamp %d, expected %d",
				i, info.Timestamp, expectedTimestamp)
		}
	}
}

func TestDataToVectorPadding(t *testing.T) {
	params := chainconfig.AutomatedTestingParams
	realInfos := []*HeaderInfo{
		{Timestamp: 1000, Difficulty: 9},
		{Timestamp: 990, Difficulty: 7},
		{Timestamp: 970, Difficulty: 5},
	}
	data, err := DataToVector(params, NewSliceIterator(realInfos))
	if err != nil {
		t.Fatalf("TestDataToVectorPadding: %s", err)
	}
	expectedLen := int(params.DifficultyAdjustWindow()) + 1
	if len(data) != expectedLen {
		t.Fatalf("TestDataToVectorPadding: expected %d entries, got %d", expectedLen, len(data))
	}
	// the real entries come last, in chronological order
	for i := 0; i < len(realInfos); i++ {
		if data[expectedLen-1-i] != realInfos[i] {
			t.Fatalf("TestDataToVectorPadding: real entry %d is out of place", i)
		}
	}
	// padded entries step back by the latest delta at the latest difficulty
	for i := 0; i < expectedLen-len(realInfos); i++ {
		info := data[expectedLen-len(realInfos)-1-i]
		expectedTimestamp := int64(970 - 10*(i+1))
		if info.Timestamp != expectedTimestamp || info.Difficulty != 9 {
			t.Fatalf("TestDataToVectorPadding: padded entry %d is %d@%d, expected 9@%d",
				i, info.Difficulty, info.Timestamp, expectedTimestamp)
		}
	}
}

func TestDataToVectorSaturates(t *testing.T) {
	params := chainconfig.AutomatedTestingParams
	data, err := DataToVector(params, NewSliceIterator([]*HeaderInfo{{Timestamp: 100, Difficulty: 1}}))
	if err != nil {
		t.Fatalf("TestDataToVectorSaturates: %s", err)
	}
	if data[0].Timestamp != 0 {
		t.Fatalf("TestDataToVectorSaturates: expected synthetic timestamps to saturate at 0, got %d",
			data[0].Timestamp)
	}
	for i := 1; i < len(data); i++ {
		if data[i].Timestamp < data[i-1].Timestamp {
			t.Fatalf("TestDataToVectorSaturates: timestamps are not chronological at %d", i)
		}
	}
}

func TestNextDifficulty(t *testing.T) {
	params := chainconfig.AutomatedTestingParams
	window := int(params.DifficultyAdjustWindow())
	tests := []struct {
		name       string
		infos      []*HeaderInfo
		difficulty uint64
	}{
		{
			name:       "empty chain",
			infos:      nil,
			difficulty: params.InitialDifficulty,
		},
		{
			name:       "steady",
			infos:      chainInfos(window+1, 100000, 60, 1000, 1, false),
			difficulty: 1000,
		},
		{
			name:       "twice as fast",
			infos:      chainInfos(window+1, 100000, 30, 1000, 1, false),
			difficulty: 1200,
		},
		{
			name:       "very slow is clamped",
			infos:      chainInfos(window+1, 1000000, 600, 1000, 1, false),
			difficulty: 500,
		},
		{
			name:       "floored at the minimum",
			infos:      chainInfos(window+1, 100000, 60, 1, 1, false),
			difficulty: MinDifficulty,
		},
	}
	for _, test := range tests {
		next, err := NextDifficulty(params, uint64(window+1), NewSliceIterator(test.infos))
		if err != nil {
			t.Fatalf("TestNextDifficulty: %s: %s", test.name, err)
		}
		if next.Difficulty != test.difficulty {
			t.Errorf("TestNextDifficulty: %s: expected difficulty %d, got %d", test.name, test.difficulty,
				next.Difficulty)
		}
	}
}

func TestNextDifficultyDoesNotOverflow(t *testing.T) {
	params := chainconfig.MainnetParams
	infos := chainInfos(int(params.DifficultyAdjustWindow())+1, 100000, 60, params.InitialDifficulty,
		params.InitialGraphWeight, true)
	next, err := NextDifficulty(params, 1000, NewSliceIterator(infos))
	if err != nil {
		t.Fatalf("TestNextDifficultyDoesNotOverflow: %s", err)
	}
	if next.Difficulty != params.InitialDifficulty {
		t.Fatalf("TestNextDifficultyDoesNotOverflow: expected %d, got %d", params.InitialDifficulty,
			next.Difficulty)
	}
}

func TestSecondaryPoWScaling(t *testing.T) {
	infos := chainInfos(60, 100000, 60, 1000, 1856, true)
	scaling := SecondaryPoWScaling(0, infos, 60)
	if scaling != 1840 {
		t.Fatalf("TestSecondaryPoWScaling: expected 1840, got %d", scaling)
	}

	infos = chainInfos(60, 100000, 60, 1000, 1, false)
	scaling = SecondaryPoWScaling(0, infos, 60)
	if scaling != MinSecondaryScaling {
		t.Fatalf("TestSecondaryPoWScaling: expected the minimum %d, got %d", MinSecondaryScaling, scaling)
	}
}

func TestSecondaryPoWRatio(t *testing.T) {
	tests := []struct {
		height   uint64
		expected uint64
	}{
		{0, 90},
		{11647, 90},
		{11648, 89},
		{90 * 11648, 0},
		{math.MaxUint64, 0},
	}
	for _, test := range tests {
		ratio := SecondaryPoWRatio(test.height)
		if ratio != test.expected {
			t.Errorf("TestSecondaryPoWRatio: height %d: expected %d, got %d", test.height, test.expected, ratio)
		}
	}
}

func TestDampAndClamp(t *testing.T) {
	if damp(1800, 3600, 3) != 3000 {
		t.Errorf("TestDampAndClamp: unexpected damp %d", damp(1800, 3600, 3))
	}
	if clamp(100, 3600, 2) != 1800 || clamp(10000, 3600, 2) != 7200 || clamp(3000, 3600, 2) != 3000 {
		t.Errorf("TestDampAndClamp: unexpected clamp")
	}
	if mulDiv(math.MaxUint64, 60, 30) != math.MaxUint64 {
		t.Errorf("TestDampAndClamp: mulDiv must saturate")
	}
}
