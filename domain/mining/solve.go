package mining

import (
	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/pkg/errors"
)

// DefaultMaxNonceAttempts bounds the number of graphs Solve searches.
const DefaultMaxNonceAttempts = 100000

// ErrNoSolution is returned by Solve when no nonce in the searched range
// yields a proof of the target difficulty.
var ErrNoSolution = errors.New("no proof of work found")

// Solve searches nonces from header.Nonce upwards for a cycle of
// params.MinEdgeBits whose difficulty reaches target, and sets the nonce
// and proof of header. Only graphs small enough for the in-memory solver
// are practical. running stops the search when cleared.
func Solve(params *chainconfig.Params, header *model.BlockHeader, target uint64, maxAttempts int,
	running *global.RunningFlag) error {

	context, err := pow.CreateContext(params.ChainType, params.MinEdgeBits, params.ProofSize, 1)
	if err != nil {
		return err
	}
	prePoW := header.PrePoWBytes()
	nonce := header.Nonce
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if running != nil && !running.IsRunning() {
			return errors.New("stopped while solving")
		}
		context.SetHeaderNonce(prePoW, nonce)
		for _, proof := range context.FindCycles() {
			header.PoW = proof
			if proof.ToDifficulty(params.ScalingFor(header)) >= target {
				header.Nonce = nonce
				log.Debugf("Solved the header at height %d with nonce %d after %d graphs",
					header.Height, nonce, attempt+1)
				return nil
			}
		}
		nonce++
	}
	return errors.Wrapf(ErrNoSolution, "searched %d nonces from %d", maxAttempts, header.Nonce)
}
