package difficulty

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/infrastructure/logger"
)

const (
	// MinDifficulty is the lowest difficulty the retargeting ever yields.
	MinDifficulty = dampFactor

	// MinSecondaryScaling is the lowest secondary scaling the retargeting
	// ever yields.
	MinSecondaryScaling = scalingDampFactor

	dampFactor        = 3
	scalingDampFactor = 13
	clampFactor       = 2
)

// HeaderInfo is the part of a header the difficulty retargeting looks at.
// Difficulty is the block's own difficulty, not the total difficulty.
type HeaderInfo struct {
	Timestamp        int64
	Difficulty       uint64
	SecondaryScaling uint32
	IsSecondary      bool
}

// HeaderInfoIterator walks back the chain from the most recent header.
// Next returns false once there are no more headers.
type HeaderInfoIterator interface {
	Next() (*HeaderInfo, bool, error)
}

// SliceIterator iterates over a slice ordered from the most recent header.
type SliceIterator struct {
	infos []*HeaderInfo
	index int
}

// NewSliceIterator returns an iterator over infos, which are ordered from
// the most recent.
func NewSliceIterator(infos []*HeaderInfo) *SliceIterator {
	return &SliceIterator{infos: infos}
}

// Next implements HeaderInfoIterator.
func (it *SliceIterator) Next() (*HeaderInfo, bool, error) {
	if it.index >= len(it.infos) {
		return nil, false, nil
	}
	info := it.infos[it.index]
	it.index++
	return info, true, nil
}

// damp moves actual towards goal: (actual + (factor-1)*goal) / factor.
func damp(actual, goal, factor uint64) uint64 {
	return (actual + (factor-1)*goal) / factor
}

// clamp bounds actual to [goal/factor, goal*factor].
func clamp(actual, goal, factor uint64) uint64 {
	upper := goal * factor
	if actual > upper {
		actual = upper
	}
	lower := goal / factor
	if actual < lower {
		return lower
	}
	return actual
}

func saturatingSub(a, b int64) int64 {
	if b > 0 && a < b {
		return 0
	}
	if b < 0 && a > math.MaxInt64+b {
		return math.MaxInt64
	}
	return a - b
}

// DataToVector collects the last window+1 header infos in chronological
// order. If the chain is shorter than that, the missing older entries are
// synthesized at the latest difficulty, with timestamps going backwards by
// the latest block interval, or by the target block time if only one
// header is known.
func DataToVector(params *chainconfig.Params, iterator HeaderInfoIterator) ([]*HeaderInfo, error) {
	needed := int(params.DifficultyAdjustWindow()) + 1
	lastN := make([]*HeaderInfo, 0, needed)
	for len(lastN) < needed {
		info, ok, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		lastN = append(lastN, info)
	}
	if len(lastN) == 0 {
		return nil, nil
	}

	if len(lastN) < needed {
		timestampDelta := params.BlockTime()
		if len(lastN) > 1 {
			timestampDelta = lastN[0].Timestamp - lastN[1].Timestamp
		}
		lastDifficulty := lastN[0].Difficulty
		lastTimestamp := lastN[len(lastN)-1].Timestamp
		for len(lastN) < needed {
			lastTimestamp = saturatingSub(lastTimestamp, timestampDelta)
			lastN = append(lastN, &HeaderInfo{
				Timestamp:        lastTimestamp,
				Difficulty:       lastDifficulty,
				SecondaryScaling: params.InitialGraphWeight,
				IsSecondary:      true,
			})
		}
	}

	for i, j := 0, len(lastN)-1; i < j; i, j = i+1, j-1 {
		lastN[i], lastN[j] = lastN[j], lastN[i]
	}
	return lastN, nil
}

// NextDifficulty computes the difficulty and secondary scaling of the
// block at height, given the headers preceding it. The difficulty is a
// damped and clamped moving average over the difficulty window. An empty
// iterator yields the initial difficulty of the chain.
func NextDifficulty(params *chainconfig.Params, height uint64, iterator HeaderInfoIterator) (*HeaderInfo, error) {
	data, err := DataToVector(params, iterator)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &HeaderInfo{
			Difficulty:       params.InitialDifficulty,
			SecondaryScaling: params.InitialGraphWeight,
		}, nil
	}
	window := params.DifficultyAdjustWindow()

	secondaryScaling := SecondaryPoWScaling(height, data[1:], window)

	var timestampDelta uint64
	if data[window].Timestamp > data[0].Timestamp {
		timestampDelta = uint64(data[window].Timestamp - data[0].Timestamp)
	}
	var difficultySum uint64
	for _, info := range data[1:] {
		difficultySum = saturatingAdd(difficultySum, info.Difficulty)
	}

	blockTimeWindow := window * uint64(params.BlockTime())
	adjustedTimestamp := clamp(damp(timestampDelta, blockTimeWindow, dampFactor), blockTimeWindow, clampFactor)
	difficulty := mulDiv(difficultySum, uint64(params.BlockTime()), adjustedTimestamp)
	if difficulty < MinDifficulty {
		difficulty = MinDifficulty
	}

	log.Tracef("Next difficulty at height %d: %d (scaling %d, window %s)", height, difficulty,
		secondaryScaling, logger.NewLogClosure(func() string {
			return windowSummary(data)
		}))

	return &HeaderInfo{Difficulty: difficulty, SecondaryScaling: secondaryScaling}, nil
}

// SecondaryPoWRatio returns the targeted percentage of secondary PoW
// blocks at height. It starts at 90% and decreases linearly over two
// years.
func SecondaryPoWRatio(height uint64) uint64 {
	decrease := height / (2 * chainconfig.YearHeight / 90)
	if decrease >= 90 {
		return 0
	}
	return 90 - decrease
}

// SecondaryPoWScaling computes the scaling factor of the secondary PoW so
// that the share of secondary blocks moves towards SecondaryPoWRatio.
// data holds the window of header infos preceding height.
func SecondaryPoWScaling(height uint64, data []*HeaderInfo, window uint64) uint32 {
	var secondaryCount, scalingSum uint64
	for _, info := range data {
		if info.IsSecondary {
			secondaryCount++
		}
		scalingSum += uint64(info.SecondaryScaling)
	}

	targetPercent := SecondaryPoWRatio(height)
	targetCount := window * targetPercent
	adjustedCount := clamp(damp(secondaryCount*100, targetCount, scalingDampFactor), targetCount, clampFactor)
	if adjustedCount < 1 {
		adjustedCount = 1
	}
	scaling := scalingSum * targetPercent / adjustedCount
	if scaling < MinSecondaryScaling {
		scaling = MinSecondaryScaling
	}
	if scaling > math.MaxUint32 {
		scaling = math.MaxUint32
	}
	return uint32(scaling)
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// mulDiv returns a*b/c using 128 bit intermediates, saturated at the
// maximum uint64.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return math.MaxUint64
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	quotient, _ := bits.Div64(hi, lo, c)
	return quotient
}

func windowSummary(data []*HeaderInfo) string {
	first, last := data[0], data[len(data)-1]
	return fmt.Sprintf("[%d@%d .. %d@%d]", first.Difficulty, first.Timestamp, last.Difficulty, last.Timestamp)
}
