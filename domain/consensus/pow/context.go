package pow

import (
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/pkg/errors"
)

// SecondPoWEdgeBits is the graph size of the secondary PoW family.
const SecondPoWEdgeBits uint8 = 29

// ErrVerification is the cause of every cycle verification failure.
var ErrVerification = errors.New("cuckoo cycle verification failed")

// Context is the capability set shared by all cuckoo cycle variants.
type Context interface {
	// SetHeaderNonce derives the siphash keys of the graph from the
	// pre-pow header bytes and the nonce.
	SetHeaderNonce(header []byte, nonce uint64)

	// Verify checks that proof is a cycle of the graph.
	Verify(proof *Proof) error

	// FindCycles searches the graph for cycles of the proof size. It is
	// only practical for small graphs.
	FindCycles() []*Proof
}

// CreateContext returns the PoW context for the given chain type and graph
// size. Production networks use cuckaroo-d for graphs of up to
// SecondPoWEdgeBits and cuckatoo above; testing networks always use
// cuckatoo.
func CreateContext(chainType global.ChainType, edgeBits uint8, proofSize int, maxSols int) (Context, error) {
	if edgeBits == 0 || edgeBits > 63 {
		return nil, errors.Wrapf(ErrVerification, "invalid edge bits %d", edgeBits)
	}
	if proofSize <= 0 || proofSize > MaxProofSize || proofSize%2 != 0 {
		return nil, errors.Wrapf(ErrVerification, "invalid proof size %d", proofSize)
	}
	if chainType.IsProductionMode() && edgeBits <= SecondPoWEdgeBits {
		return NewCuckaroodContext(edgeBits, proofSize), nil
	}
	return NewCuckatooContext(edgeBits, proofSize, maxSols), nil
}

// cuckooParams holds the graph parameters and the siphash keys shared by
// the cuckoo variants.
type cuckooParams struct {
	edgeBits  uint8
	proofSize int
	numEdges  uint64
	edgeMask  uint64
	keys      [4]uint64
}

func newCuckooParams(edgeBits uint8, proofSize int) cuckooParams {
	numEdges := uint64(1) << edgeBits
	return cuckooParams{
		edgeBits:  edgeBits,
		proofSize: proofSize,
		numEdges:  numEdges,
		edgeMask:  numEdges - 1,
	}
}

func (p *cuckooParams) setHeaderNonce(header []byte, nonce uint64) {
	p.keys = siphashKeys(header, nonce)
}

// checkNonces runs the checks common to all variants: proof shape, nonce
// range and strict ordering.
func (p *cuckooParams) checkNonces(proof *Proof) error {
	if proof.EdgeBits != p.edgeBits {
		return errors.Wrapf(ErrVerification, "proof edge bits %d, expected %d", proof.EdgeBits, p.edgeBits)
	}
	if len(proof.Nonces) != p.proofSize {
		return errors.Wrapf(ErrVerification, "wrong cycle length %d, expected %d", len(proof.Nonces), p.proofSize)
	}
	for n, nonce := range proof.Nonces {
		if nonce > p.edgeMask {
			return errors.Wrap(ErrVerification, "edge too big")
		}
		if n > 0 && nonce <= proof.Nonces[n-1] {
			return errors.Wrap(ErrVerification, "edges not ascending")
		}
	}
	return nil
}
