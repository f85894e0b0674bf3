package pow

import (
	"github.com/pkg/errors"
)

// CuckatooContext verifies cuckatoo cycles, the primary (ASIC friendly)
// PoW family.
type CuckatooContext struct {
	params  cuckooParams
	maxSols int
}

// NewCuckatooContext returns a cuckatoo context for graphs of 2^edgeBits
// edges.
func NewCuckatooContext(edgeBits uint8, proofSize int, maxSols int) *CuckatooContext {
	if maxSols < 1 {
		maxSols = 1
	}
	return &CuckatooContext{
		params:  newCuckooParams(edgeBits, proofSize),
		maxSols: maxSols,
	}
}

// SetHeaderNonce implements Context.
func (c *CuckatooContext) SetHeaderNonce(header []byte, nonce uint64) {
	c.params.setHeaderNonce(header, nonce)
}

// sipnode returns the endpoint of edge on side uorv.
func (c *CuckatooContext) sipnode(edge uint64, uorv uint64) uint64 {
	return siphash24(&c.params.keys, 2*edge+uorv, 21) & c.params.edgeMask
}

// Verify implements Context.
func (c *CuckatooContext) Verify(proof *Proof) error {
	err := c.params.checkNonces(proof)
	if err != nil {
		return err
	}
	size := c.params.proofSize
	uvs := make([]uint64, 2*size)
	var xor0, xor1 uint64
	for n, nonce := range proof.Nonces {
		uvs[2*n] = c.sipnode(nonce, 0)
		uvs[2*n+1] = c.sipnode(nonce, 1)
		xor0 ^= uvs[2*n]
		xor1 ^= uvs[2*n+1]
	}
	if xor0|xor1 != 0 {
		return errors.Wrap(ErrVerification, "endpoints don't match up")
	}

	n := 0
	i := 0
	for {
		j := i
		k := j
		for {
			k = (k + 2) % (2 * size)
			if k == i {
				break
			}
			if uvs[k] == uvs[i] {
				if j != i {
					return errors.Wrap(ErrVerification, "branch in cycle")
				}
				j = k
			}
		}
		if j == i {
			return errors.Wrap(ErrVerification, "cycle dead ends")
		}
		i = j ^ 1
		n++
		if i == 0 {
			break
		}
	}
	if n != size {
		return errors.Wrap(ErrVerification, "cycle too short")
	}
	return nil
}

// FindCycles implements Context.
func (c *CuckatooContext) FindCycles() []*Proof {
	graph := newCycleGraph()
	for edge := uint64(0); edge < c.params.numEdges; edge++ {
		u := uNode(c.sipnode(edge, 0))
		v := vNode(c.sipnode(edge, 1))
		graph.addEdge(edge, u, v)
		graph.addEdge(edge, v, u)
	}
	return graph.findCycles(c, c.params.edgeBits, c.params.proofSize, c.maxSols)
}
